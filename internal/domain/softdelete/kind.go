// Package softdelete hides and restores rows without ever removing them.
// Person-rooted kinds flip the user row and its role profile together;
// every other kind is a single guarded flag update.
package softdelete

import (
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/clinical"
	"github.com/clinic/clinic/internal/domain/person"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
)

type Kind string

const (
	KindPatient       Kind = "patient"
	KindDoctor        Kind = "doctor"
	KindAdmin         Kind = "admin"
	KindAppointment   Kind = "appointment"
	KindPrescription  Kind = "prescription"
	KindMedicalRecord Kind = "medical_record"
	KindBill          Kind = "bill"
)

type kindInfo struct {
	table    string
	segment  string
	role     person.Role
	notFound *apperr.Error
}

// kinds is the closed set of soft-deletable tables. Table names are only
// ever taken from here.
var kinds = map[Kind]kindInfo{
	KindPatient:       {table: "patients", segment: "patients", role: person.RolePatient, notFound: person.ErrPatientNotFound},
	KindDoctor:        {table: "doctors", segment: "doctors", role: person.RoleDoctor, notFound: person.ErrDoctorNotFound},
	KindAdmin:         {table: "admins", segment: "admins", role: person.RoleAdmin, notFound: person.ErrAdminNotFound},
	KindAppointment:   {table: "appointments", segment: "appointments", notFound: scheduling.ErrAppointmentNotFound},
	KindPrescription:  {table: "prescriptions", segment: "prescriptions", notFound: clinical.ErrPrescriptionNotFound},
	KindMedicalRecord: {table: "medical_records", segment: "medical-records", notFound: clinical.ErrRecordNotFound},
	KindBill:          {table: "bills", segment: "bills", notFound: billing.ErrBillNotFound},
}

// Kinds lists every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindPatient, KindDoctor, KindAdmin, KindAppointment, KindPrescription, KindMedicalRecord, KindBill}
}

func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// PersonRooted reports whether k is a role profile backed by a user row.
func (k Kind) PersonRooted() bool {
	return kinds[k].role != ""
}

func (k Kind) table() string { return kinds[k].table }
