package scheduling

import (
	"time"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/civil"
	"github.com/clinic/clinic/pkg/pagination"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no-show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// HoldsSlot reports whether an appointment in status s occupies its slot.
func (s Status) HoldsSlot() bool {
	return s != StatusCancelled
}

type Appointment struct {
	ID          int64           `json:"id"`
	PatientID   int64           `json:"patient_id"`
	DoctorID    int64           `json:"doctor_id"`
	Date        civil.Date      `json:"date"`
	Time        civil.TimeOfDay `json:"time"`
	Reason      string          `json:"reason"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	IsDeleted   bool            `json:"is_deleted"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
	PatientName string          `json:"patient_name,omitempty"`
	DoctorName  string          `json:"doctor_name,omitempty"`
}

type BookRequest struct {
	PatientID int64           `json:"patient_id"`
	DoctorID  int64           `json:"doctor_id"`
	Date      civil.Date      `json:"date"`
	Time      civil.TimeOfDay `json:"time"`
	Reason    string          `json:"reason"`
}

type StatusRequest struct {
	Status Status `json:"status"`
}

type Filter struct {
	PatientID  int64
	DoctorID   int64
	Status     Status
	From       *civil.Date
	To         *civil.Date
	Visibility db.Visibility
	Page       pagination.Params
}

// SweepResult reports one no-show sweep run.
type SweepResult struct {
	AsOf   civil.Date `json:"as_of"`
	Marked int64      `json:"marked"`
}
