package billing

import (
	"context"
	"time"

	"github.com/clinic/clinic/internal/platform/apperr"
)

var (
	ErrBillNotFound        = apperr.NotFound("bill not found")
	ErrAppointmentNotFound = apperr.NotFound("appointment not found")
	ErrInvalidTransition   = apperr.Conflict("bill status transition not allowed")
)

type Repository interface {
	Create(ctx context.Context, b *Bill) error
	// CreateForAppointment inserts an auto-generated bill unless one already
	// exists for the appointment. It reports whether a row was inserted.
	CreateForAppointment(ctx context.Context, b *Bill) (bool, error)
	// AppointmentPatient returns the patient of a visible appointment and
	// holds it against concurrent deletion until the transaction ends.
	AppointmentPatient(ctx context.Context, appointmentID int64) (int64, error)
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*Bill, error)
	// SetStatus moves a visible bill from one status to another. It reports
	// false when the bill was not in status from.
	SetStatus(ctx context.Context, id int64, from, to Status, paymentMethod string, paymentDate *time.Time) (bool, error)
	List(ctx context.Context, f Filter) ([]*Bill, int, error)
}
