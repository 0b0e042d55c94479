package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/person"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/metrics"
	"github.com/clinic/clinic/pkg/civil"
)

// DefaultConsultationFeeCents is billed when an appointment completes.
const DefaultConsultationFeeCents int64 = 10000

type DoctorFinder interface {
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*person.Doctor, error)
}

type PatientFinder interface {
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*person.Patient, error)
}

// Biller creates the completion bill inside the caller's transaction and
// announces it once that transaction has committed. *billing.Service
// satisfies it.
type Biller interface {
	BillCompletion(ctx context.Context, appointmentID, patientID int64, date civil.Date, feeCents int64) (*billing.Bill, bool, error)
	PublishCreated(ctx context.Context, b *billing.Bill)
}

type Service struct {
	tx           db.Transactor
	appointments Repository
	doctors      DoctorFinder
	patients     PatientFinder
	biller       Biller
	feeCents     int64
	metrics      *metrics.SchedulingMetrics
	events       events.Publisher
	now          func() time.Time
	loc          *time.Location
}

func NewService(tx db.Transactor, appts Repository, doctors DoctorFinder, patients PatientFinder, biller Biller) *Service {
	return &Service{
		tx:           tx,
		appointments: appts,
		doctors:      doctors,
		patients:     patients,
		biller:       biller,
		feeCents:     DefaultConsultationFeeCents,
		events:       events.Nop{},
		now:          time.Now,
		loc:          time.Local,
	}
}

func (s *Service) SetMetrics(m *metrics.SchedulingMetrics) { s.metrics = m }
func (s *Service) SetPublisher(p events.Publisher)         { s.events = p }

// SetConsultationFee sets the amount billed on completion. Negative values
// are ignored.
func (s *Service) SetConsultationFee(cents int64) {
	if cents >= 0 {
		s.feeCents = cents
	}
}

// SetClock overrides the time source and the clinic timezone in which
// "today" and the booking cutoff are evaluated.
func (s *Service) SetClock(now func() time.Time, loc *time.Location) {
	s.now = now
	if loc != nil {
		s.loc = loc
	}
}

func (s *Service) clock() time.Time { return s.now().In(s.loc) }

// Today returns the current date in the clinic timezone.
func (s *Service) Today() civil.Date { return civil.DateOf(s.clock()) }

// AvailableSlots returns the bookable slot starts of a doctor on date. An
// unknown or soft-deleted doctor is an error, never an empty list.
func (s *Service) AvailableSlots(ctx context.Context, doctorID int64, date civil.Date) ([]civil.TimeOfDay, error) {
	if date.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	d, err := s.doctors.GetByID(ctx, doctorID, false)
	if err != nil {
		return nil, err
	}
	booked, err := s.appointments.BookedTimes(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load booked times: %w", err)
	}
	return ComputeSlots(Window{From: d.From, Until: d.Until}, date, booked, s.clock()), nil
}

// Book reserves a slot. Availability is re-checked inside the transaction
// and the slot index rejects a concurrent booking of the same slot.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	a, err := s.book(ctx, req)
	switch {
	case err == nil:
		s.metrics.ObserveBooking("booked")
	case errors.Is(err, ErrSlotUnavailable):
		s.metrics.ObserveBooking("conflict")
	default:
		s.metrics.ObserveBooking("rejected")
	}
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Int64("appointment_id", a.ID).Int64("doctor_id", a.DoctorID).
		Str("date", a.Date.String()).Str("time", a.Time.String()).Msg("appointment booked")
	s.publish(ctx, "appointment.booked", a)
	return a, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if req.PatientID <= 0 {
		return nil, apperr.Validation("patient_id is required")
	}
	if req.DoctorID <= 0 {
		return nil, apperr.Validation("doctor_id is required")
	}
	if req.Date.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	if !req.Time.Valid() {
		return nil, apperr.Validation("invalid time %s", req.Time)
	}
	now := s.clock()
	if req.Date.Before(civil.DateOf(now)) {
		return nil, apperr.Validation("cannot book an appointment in the past")
	}

	a := &Appointment{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Date:      req.Date,
		Time:      req.Time,
		Reason:    strings.TrimSpace(req.Reason),
		Status:    StatusScheduled,
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		d, err := s.doctors.GetByID(ctx, req.DoctorID, false)
		if err != nil {
			return err
		}
		p, err := s.patients.GetByID(ctx, req.PatientID, false)
		if err != nil {
			return err
		}
		w := Window{From: d.From, Until: d.Until}
		if !w.OnGrid(req.Time) {
			return apperr.Validation("%s is not a slot within the doctor's working hours %s-%s", req.Time, d.From, d.Until)
		}
		booked, err := s.appointments.BookedTimes(ctx, req.DoctorID, req.Date)
		if err != nil {
			return fmt.Errorf("load booked times: %w", err)
		}
		if !containsTime(ComputeSlots(w, req.Date, booked, now), req.Time) {
			return ErrSlotUnavailable
		}
		if err := s.appointments.Create(ctx, a); err != nil {
			if errors.Is(err, ErrSlotUnavailable) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		a.PatientName = p.User.Name
		a.DoctorName = d.User.Name
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateStatus completes or cancels a scheduled appointment. Completing
// creates the consultation bill in the same transaction. Repeating the
// transition an appointment already went through returns it unchanged; any
// other move yields ErrInvalidTransition.
func (s *Service) UpdateStatus(ctx context.Context, id int64, to Status) (*Appointment, error) {
	if to != StatusCompleted && to != StatusCancelled {
		return nil, ErrInvalidTransition
	}

	var (
		out     *Appointment
		bill    *billing.Bill
		changed bool
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.appointments.TransitionStatus(ctx, id, StatusScheduled, to)
		if err != nil {
			return fmt.Errorf("update appointment status: %w", err)
		}
		out, err = s.appointments.GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		if !ok {
			if out.Status == to {
				return nil
			}
			return ErrInvalidTransition
		}
		changed = true
		if to != StatusCompleted {
			return nil
		}
		b, created, err := s.biller.BillCompletion(ctx, out.ID, out.PatientID, out.Date, s.feeCents)
		if err != nil {
			return err
		}
		if created {
			bill = b
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.metrics.ObserveTransition(string(to), "update")
		zerolog.Ctx(ctx).Info().Int64("appointment_id", id).Str("status", string(to)).Msg("appointment status changed")
		s.publish(ctx, "appointment."+eventSuffix(to), out)
	}
	if bill != nil {
		s.biller.PublishCreated(ctx, bill)
	}
	return out, nil
}

// OverrideStatus overwrites the status of an appointment for corrections.
// It never bills. Re-activating a cancelled appointment whose slot was taken
// meanwhile fails with ErrSlotUnavailable.
func (s *Service) OverrideStatus(ctx context.Context, id int64, to Status) (*Appointment, error) {
	if !to.Valid() {
		return nil, apperr.Validation("invalid appointment status %q", to)
	}
	var (
		out  *Appointment
		from Status
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		from = a.Status
		if a.Status == to {
			out = a
			return nil
		}
		if err := s.appointments.SetStatus(ctx, id, to); err != nil {
			if errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return fmt.Errorf("override appointment status: %w", err)
		}
		a.Status = to
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from != to {
		s.metrics.ObserveTransition(string(to), "override")
		zerolog.Ctx(ctx).Warn().Int64("appointment_id", id).Str("from", string(from)).Str("to", string(to)).
			Msg("appointment status overridden")
		s.publish(ctx, "appointment.overridden", out)
	}
	return out, nil
}

// RunNoShowSweep marks every scheduled appointment dated before asOf as a
// no-show and returns how many rows changed. Running it again is a no-op.
func (s *Service) RunNoShowSweep(ctx context.Context, asOf civil.Date) (*SweepResult, error) {
	start := time.Now()
	marked, err := s.appointments.MarkNoShows(ctx, asOf)
	s.metrics.ObserveSweep(marked, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("no-show sweep: %w", err)
	}
	res := &SweepResult{AsOf: asOf, Marked: marked}
	if marked > 0 {
		zerolog.Ctx(ctx).Info().Int64("marked", marked).Str("as_of", asOf.String()).Msg("no-show sweep")
		events.Emit(ctx, s.events, "appointment.no_show_sweep", "appointment", 0, res, "appointments")
	}
	return res, nil
}

// SweepToday runs the no-show sweep as of the clinic's current date.
func (s *Service) SweepToday(ctx context.Context) (*SweepResult, error) {
	return s.RunNoShowSweep(ctx, s.Today())
}

func (s *Service) Get(ctx context.Context, id int64, includeDeleted bool) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id, includeDeleted)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Appointment, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("invalid appointment status %q", f.Status)
	}
	return s.appointments.List(ctx, f)
}

func (s *Service) publish(ctx context.Context, typ string, a *Appointment) {
	events.Emit(ctx, s.events, typ, "appointment", a.ID, a,
		"appointments",
		"doctors/"+strconv.FormatInt(a.DoctorID, 10),
		"patients/"+strconv.FormatInt(a.PatientID, 10),
	)
}

func eventSuffix(s Status) string {
	if s == StatusNoShow {
		return "no_show"
	}
	return string(s)
}

func containsTime(ts []civil.TimeOfDay, t civil.TimeOfDay) bool {
	for _, v := range ts {
		if v == t {
			return true
		}
	}
	return false
}
