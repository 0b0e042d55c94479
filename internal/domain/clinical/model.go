package clinical

import (
	"time"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/civil"
	"github.com/clinic/clinic/pkg/pagination"
)

type PrescriptionStatus string

const (
	PrescriptionActive    PrescriptionStatus = "active"
	PrescriptionCompleted PrescriptionStatus = "completed"
	PrescriptionCancelled PrescriptionStatus = "cancelled"
)

func (s PrescriptionStatus) Valid() bool {
	switch s {
	case PrescriptionActive, PrescriptionCompleted, PrescriptionCancelled:
		return true
	}
	return false
}

// Only active prescriptions change status.
func (s PrescriptionStatus) canMoveTo(to PrescriptionStatus) bool {
	return s == PrescriptionActive && (to == PrescriptionCompleted || to == PrescriptionCancelled)
}

type Prescription struct {
	ID          int64              `json:"id"`
	PatientID   int64              `json:"patient_id"`
	DoctorID    int64              `json:"doctor_id"`
	Date        civil.Date         `json:"date"`
	Medication  string             `json:"medication"`
	Dosage      string             `json:"dosage"`
	Status      PrescriptionStatus `json:"status"`
	Notes       string             `json:"notes"`
	CreatedAt   time.Time          `json:"created_at"`
	IsDeleted   bool               `json:"is_deleted"`
	DeletedAt   *time.Time         `json:"deleted_at,omitempty"`
	PatientName string             `json:"patient_name,omitempty"`
	DoctorName  string             `json:"doctor_name,omitempty"`
}

type PrescriptionRequest struct {
	PatientID  int64      `json:"patient_id"`
	DoctorID   int64      `json:"doctor_id"`
	Date       civil.Date `json:"date"`
	Medication string     `json:"medication"`
	Dosage     string     `json:"dosage"`
	Notes      string     `json:"notes"`
}

type PrescriptionFilter struct {
	PatientID  int64
	DoctorID   int64
	Status     PrescriptionStatus
	From       *civil.Date
	To         *civil.Date
	Visibility db.Visibility
	Page       pagination.Params
}

type MedicalRecord struct {
	ID          int64      `json:"id"`
	PatientID   int64      `json:"patient_id"`
	DoctorID    int64      `json:"doctor_id"`
	Date        civil.Date `json:"date"`
	Diagnosis   string     `json:"diagnosis"`
	Treatment   string     `json:"treatment"`
	Notes       string     `json:"notes"`
	CreatedAt   time.Time  `json:"created_at"`
	IsDeleted   bool       `json:"is_deleted"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	PatientName string     `json:"patient_name,omitempty"`
	DoctorName  string     `json:"doctor_name,omitempty"`
}

type RecordRequest struct {
	PatientID int64      `json:"patient_id"`
	DoctorID  int64      `json:"doctor_id"`
	Date      civil.Date `json:"date"`
	Diagnosis string     `json:"diagnosis"`
	Treatment string     `json:"treatment"`
	Notes     string     `json:"notes"`
}

// RecordUpdate holds optional changes; nil fields are kept.
type RecordUpdate struct {
	Diagnosis *string `json:"diagnosis"`
	Treatment *string `json:"treatment"`
	Notes     *string `json:"notes"`
}

type RecordFilter struct {
	PatientID  int64
	DoctorID   int64
	Diagnosis  string
	From       *civil.Date
	To         *civil.Date
	Visibility db.Visibility
	Page       pagination.Params
}
