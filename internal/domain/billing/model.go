package billing

import (
	"time"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/civil"
	"github.com/clinic/clinic/pkg/pagination"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// transitions lists the allowed status moves. Anything not listed, other
// than staying put, is rejected.
var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusRefunded},
}

// CanTransition reports whether a bill in status from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Bill is a charge against a patient, optionally tied to the appointment
// whose completion produced it.
type Bill struct {
	ID            int64      `json:"id"`
	PatientID     int64      `json:"patient_id"`
	AppointmentID *int64     `json:"appointment_id,omitempty"`
	AmountCents   int64      `json:"amount_cents"`
	Date          civil.Date `json:"date"`
	Status        Status     `json:"status"`
	PaymentMethod string     `json:"payment_method"`
	PaymentDate   *time.Time `json:"payment_date,omitempty"`
	AutoGenerated bool       `json:"auto_generated"`
	CreatedAt     time.Time  `json:"created_at"`
	IsDeleted     bool       `json:"is_deleted"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	PatientName   string     `json:"patient_name,omitempty"`
}

type CreateRequest struct {
	PatientID     int64      `json:"patient_id"`
	AppointmentID *int64     `json:"appointment_id"`
	AmountCents   int64      `json:"amount_cents"`
	Date          civil.Date `json:"date"`
	Status        Status     `json:"status"`
	PaymentMethod string     `json:"payment_method"`
}

type StatusRequest struct {
	Status        Status `json:"status"`
	PaymentMethod string `json:"payment_method"`
}

// Filter narrows bill listings. From and To bound the bill date inclusively.
type Filter struct {
	PatientID  int64
	Status     Status
	From       *civil.Date
	To         *civil.Date
	Visibility db.Visibility
	Page       pagination.Params
}
