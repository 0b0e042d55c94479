package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/clinic/clinic/internal/domain/person"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/metrics"
	"github.com/clinic/clinic/pkg/civil"
)

// PatientFinder resolves patients; person.PatientRepository satisfies it.
type PatientFinder interface {
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*person.Patient, error)
}

type Service struct {
	tx       db.Transactor
	bills    Repository
	patients PatientFinder
	metrics  *metrics.BillingMetrics
	events   events.Publisher
	now      func() time.Time
	loc      *time.Location
}

func NewService(tx db.Transactor, bills Repository, patients PatientFinder) *Service {
	return &Service{tx: tx, bills: bills, patients: patients, events: events.Nop{}, now: time.Now, loc: time.Local}
}

func (s *Service) SetMetrics(m *metrics.BillingMetrics) { s.metrics = m }
func (s *Service) SetPublisher(p events.Publisher)      { s.events = p }

// SetClock overrides the time source and the clinic timezone used for
// default bill dates.
func (s *Service) SetClock(now func() time.Time, loc *time.Location) {
	s.now = now
	if loc != nil {
		s.loc = loc
	}
}

func (s *Service) today() civil.Date {
	return civil.DateOf(s.now().In(s.loc))
}

// Create records a bill entered directly by staff.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Bill, error) {
	if req.PatientID <= 0 {
		return nil, apperr.Validation("patient_id is required")
	}
	if req.AppointmentID != nil && *req.AppointmentID <= 0 {
		return nil, apperr.Validation("appointment_id must be positive")
	}
	if req.AmountCents < 0 {
		return nil, apperr.Validation("amount_cents must not be negative")
	}
	if req.Status == "" {
		req.Status = StatusPending
	}
	if !req.Status.Valid() {
		return nil, apperr.Validation("invalid bill status %q", req.Status)
	}

	b := &Bill{
		PatientID:     req.PatientID,
		AppointmentID: req.AppointmentID,
		AmountCents:   req.AmountCents,
		Date:          req.Date,
		Status:        req.Status,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
	}
	if b.Date.IsZero() {
		b.Date = s.today()
	}
	if b.Status == StatusPaid {
		now := s.now()
		b.PaymentDate = &now
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.patients.GetByID(ctx, req.PatientID, false)
		if err != nil {
			return err
		}
		b.PatientName = p.User.Name
		if req.AppointmentID != nil {
			owner, err := s.bills.AppointmentPatient(ctx, *req.AppointmentID)
			if err != nil {
				return err
			}
			if owner != req.PatientID {
				return apperr.Validation("appointment %d belongs to another patient", *req.AppointmentID)
			}
		}
		return s.bills.Create(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveCreated(false)
	s.publish(ctx, "bill.created", b)
	return b, nil
}

// BillCompletion inserts the auto-generated bill for a completed
// appointment. It must run inside the completing transaction. The boolean
// is false when the appointment was already billed.
func (s *Service) BillCompletion(ctx context.Context, appointmentID, patientID int64, date civil.Date, feeCents int64) (*Bill, bool, error) {
	apptID := appointmentID
	b := &Bill{
		PatientID:     patientID,
		AppointmentID: &apptID,
		AmountCents:   feeCents,
		Date:          date,
		Status:        StatusPending,
	}
	created, err := s.bills.CreateForAppointment(ctx, b)
	if err != nil {
		return nil, false, fmt.Errorf("bill appointment %d: %w", appointmentID, err)
	}
	if created {
		s.metrics.ObserveCreated(true)
	}
	return b, created, nil
}

func (s *Service) Get(ctx context.Context, id int64, includeDeleted bool) (*Bill, error) {
	return s.bills.GetByID(ctx, id, includeDeleted)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Bill, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("invalid bill status %q", f.Status)
	}
	return s.bills.List(ctx, f)
}

// UpdateStatus applies an allowed transition. Requesting the current status
// is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id int64, to Status, paymentMethod string) (*Bill, error) {
	if !to.Valid() {
		return nil, apperr.Validation("invalid bill status %q", to)
	}
	var out *Bill
	changed := false
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		b, err := s.bills.GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		if b.Status == to {
			out = b
			return nil
		}
		if !CanTransition(b.Status, to) {
			return &apperr.Error{Kind: apperr.ErrConflict, Msg: fmt.Sprintf("cannot move bill from %s to %s", b.Status, to)}
		}

		var paidAt *time.Time
		if to == StatusPaid {
			now := s.now()
			paidAt = &now
		}
		ok, err := s.bills.SetStatus(ctx, id, b.Status, to, strings.TrimSpace(paymentMethod), paidAt)
		if err != nil {
			return fmt.Errorf("update bill status: %w", err)
		}
		if !ok {
			return ErrInvalidTransition
		}
		changed = true
		out, err = s.bills.GetByID(ctx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.ObserveTransition(string(to))
		s.publish(ctx, "bill."+string(to), out)
	}
	return out, nil
}

// Pay settles a pending bill. Payment processing is simulated.
func (s *Service) Pay(ctx context.Context, id int64, method string) (*Bill, error) {
	if strings.TrimSpace(method) == "" {
		return nil, apperr.Validation("payment_method is required")
	}
	return s.UpdateStatus(ctx, id, StatusPaid, method)
}

// PublishCreated announces a bill created by another component's
// transaction, once that transaction has committed.
func (s *Service) PublishCreated(ctx context.Context, b *Bill) {
	s.publish(ctx, "bill.created", b)
}

func (s *Service) publish(ctx context.Context, typ string, b *Bill) {
	events.Emit(ctx, s.events, typ, "bill", b.ID, b, "bills", "patients/"+strconv.FormatInt(b.PatientID, 10))
}
