package scheduling

import (
	"context"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/civil"
)

var (
	ErrAppointmentNotFound = apperr.NotFound("appointment not found")
	ErrSlotUnavailable     = apperr.Conflict("slot is no longer available")
	ErrInvalidTransition   = apperr.Conflict("invalid appointment status transition")
)

// slotConstraint is the partial unique index over active (doctor, date, time).
const slotConstraint = "appointments_active_slot_uniq"

type Repository interface {
	// Create inserts a scheduled appointment. A taken slot yields
	// ErrSlotUnavailable.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*Appointment, error)
	// BookedTimes lists the slot-holding times of a doctor on date.
	BookedTimes(ctx context.Context, doctorID int64, date civil.Date) ([]civil.TimeOfDay, error)
	// TransitionStatus moves a visible appointment from one status to
	// another and reports whether the guard matched.
	TransitionStatus(ctx context.Context, id int64, from, to Status) (bool, error)
	// SetStatus overwrites the status of a visible appointment.
	SetStatus(ctx context.Context, id int64, to Status) error
	// MarkNoShows moves scheduled appointments dated before day to no-show.
	MarkNoShows(ctx context.Context, before civil.Date) (int64, error)
	List(ctx context.Context, f Filter) ([]*Appointment, int, error)
}
