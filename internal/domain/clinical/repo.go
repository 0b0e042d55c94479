package clinical

import (
	"context"

	"github.com/clinic/clinic/internal/platform/apperr"
)

var (
	ErrPrescriptionNotFound = apperr.NotFound("prescription not found")
	ErrRecordNotFound       = apperr.NotFound("medical record not found")
	ErrInvalidTransition    = apperr.Conflict("invalid prescription status transition")
)

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*Prescription, error)
	// SetStatus applies from -> to on a visible prescription and reports
	// whether the guard matched.
	SetStatus(ctx context.Context, id int64, from, to PrescriptionStatus) (bool, error)
	List(ctx context.Context, f PrescriptionFilter) ([]*Prescription, int, error)
}

type RecordRepository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*MedicalRecord, error)
	Update(ctx context.Context, r *MedicalRecord) error
	List(ctx context.Context, f RecordFilter) ([]*MedicalRecord, int, error)
}
