// Package reports serves read-only aggregates over the clinic tables.
// Soft-deleted rows never count.
package reports

import (
	"github.com/clinic/clinic/pkg/civil"
)

const (
	DefaultRecentDays = 7
	MaxRecentDays     = 365

	DefaultTopMedications = 3
	MaxTopMedications     = 50
)

// Range is an inclusive date window. Nil bounds are open.
type Range struct {
	From *civil.Date `json:"from,omitempty"`
	To   *civil.Date `json:"to,omitempty"`
}

type Dashboard struct {
	Date               civil.Date `json:"date"`
	Patients           int64      `json:"patients"`
	Doctors            int64      `json:"doctors"`
	AppointmentsToday  int64      `json:"appointments_today"`
	PendingBills       int64      `json:"pending_bills"`
	PendingAmountCents int64      `json:"pending_amount_cents"`
	PaidRevenueCents   int64      `json:"paid_revenue_cents"`
}

type RecentActivity struct {
	Since        civil.Date `json:"since"`
	Days         int        `json:"days"`
	NewPatients  int64      `json:"new_patients"`
	Appointments int64      `json:"appointments"`
	Bills        int64      `json:"bills"`
}

type DoctorPerformance struct {
	DoctorID       int64   `json:"doctor_id"`
	Name           string  `json:"name"`
	Specialization string  `json:"specialization"`
	Total          int64   `json:"total"`
	Completed      int64   `json:"completed"`
	Cancelled      int64   `json:"cancelled"`
	NoShow         int64   `json:"no_show"`
	CompletionRate float64 `json:"completion_rate"`
}

// StatusTotal is the bill count and amount for one status.
type StatusTotal struct {
	Status      string `json:"status"`
	Count       int64  `json:"count"`
	AmountCents int64  `json:"amount_cents"`
}

type Financial struct {
	Range
	ByStatus         []StatusTotal `json:"by_status"`
	TotalBilledCents int64         `json:"total_billed_cents"`
	CollectedCents   int64         `json:"collected_cents"`
	OutstandingCents int64         `json:"outstanding_cents"`
}

type MedicationCount struct {
	Medication string `json:"medication"`
	Count      int64  `json:"count"`
}
