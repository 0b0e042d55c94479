package clinical

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
	"github.com/clinic/clinic/pkg/civil"
)

type DoctorFinder interface {
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*person.Doctor, error)
}

type PatientFinder interface {
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*person.Patient, error)
}

type Service struct {
	tx            db.Transactor
	prescriptions PrescriptionRepository
	records       RecordRepository
	doctors       DoctorFinder
	patients      PatientFinder
	events        events.Publisher
	now           func() time.Time
	loc           *time.Location
}

func NewService(tx db.Transactor, rx PrescriptionRepository, records RecordRepository, doctors DoctorFinder, patients PatientFinder) *Service {
	return &Service{
		tx:            tx,
		prescriptions: rx,
		records:       records,
		doctors:       doctors,
		patients:      patients,
		events:        events.Nop{},
		now:           time.Now,
		loc:           time.Local,
	}
}

func (s *Service) SetPublisher(p events.Publisher) { s.events = p }

func (s *Service) SetClock(now func() time.Time, loc *time.Location) {
	s.now = now
	if loc != nil {
		s.loc = loc
	}
}

func (s *Service) today() civil.Date { return civil.DateOf(s.now().In(s.loc)) }

// parties resolves the visible patient and doctor a clinical entry refers to.
func (s *Service) parties(ctx context.Context, patientID, doctorID int64) (*person.Patient, *person.Doctor, error) {
	if patientID <= 0 {
		return nil, nil, apperr.Validation("patient_id is required")
	}
	if doctorID <= 0 {
		return nil, nil, apperr.Validation("doctor_id is required")
	}
	p, err := s.patients.GetByID(ctx, patientID, false)
	if err != nil {
		return nil, nil, err
	}
	d, err := s.doctors.GetByID(ctx, doctorID, false)
	if err != nil {
		return nil, nil, err
	}
	return p, d, nil
}

// -- Prescriptions --

func (s *Service) CreatePrescription(ctx context.Context, req PrescriptionRequest) (*Prescription, error) {
	rx := &Prescription{
		PatientID:  req.PatientID,
		DoctorID:   req.DoctorID,
		Date:       req.Date,
		Medication: strings.TrimSpace(req.Medication),
		Dosage:     strings.TrimSpace(req.Dosage),
		Notes:      strings.TrimSpace(req.Notes),
		Status:     PrescriptionActive,
	}
	if rx.Medication == "" {
		return nil, apperr.Validation("medication is required")
	}
	if rx.Date.IsZero() {
		rx.Date = s.today()
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, d, err := s.parties(ctx, req.PatientID, req.DoctorID)
		if err != nil {
			return err
		}
		if err := s.prescriptions.Create(ctx, rx); err != nil {
			return fmt.Errorf("create prescription: %w", err)
		}
		rx.PatientName, rx.DoctorName = p.User.Name, d.User.Name
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "prescription.created", "prescription", rx.ID, rx.PatientID, rx)
	return rx, nil
}

func (s *Service) GetPrescription(ctx context.Context, id int64, includeDeleted bool) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id, includeDeleted)
}

func (s *Service) ListPrescriptions(ctx context.Context, f PrescriptionFilter) ([]*Prescription, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("invalid prescription status %q", f.Status)
	}
	return s.prescriptions.List(ctx, f)
}

// UpdatePrescriptionStatus completes or cancels an active prescription.
// Requesting the current status is a no-op.
func (s *Service) UpdatePrescriptionStatus(ctx context.Context, id int64, to PrescriptionStatus) (*Prescription, error) {
	if !to.Valid() {
		return nil, apperr.Validation("invalid prescription status %q", to)
	}
	var out *Prescription
	changed := false
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		rx, err := s.prescriptions.GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		out = rx
		if rx.Status == to {
			return nil
		}
		if !rx.Status.canMoveTo(to) {
			return ErrInvalidTransition
		}
		ok, err := s.prescriptions.SetStatus(ctx, id, rx.Status, to)
		if err != nil {
			return fmt.Errorf("update prescription status: %w", err)
		}
		if !ok {
			return ErrInvalidTransition
		}
		out.Status = to
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, "prescription."+string(to), "prescription", out.ID, out.PatientID, out)
	}
	return out, nil
}

// -- Medical records --

func (s *Service) CreateRecord(ctx context.Context, req RecordRequest) (*MedicalRecord, error) {
	m := &MedicalRecord{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Date:      req.Date,
		Diagnosis: strings.TrimSpace(req.Diagnosis),
		Treatment: strings.TrimSpace(req.Treatment),
		Notes:     strings.TrimSpace(req.Notes),
	}
	if m.Diagnosis == "" {
		return nil, apperr.Validation("diagnosis is required")
	}
	if m.Date.IsZero() {
		m.Date = s.today()
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, d, err := s.parties(ctx, req.PatientID, req.DoctorID)
		if err != nil {
			return err
		}
		if err := s.records.Create(ctx, m); err != nil {
			return fmt.Errorf("create medical record: %w", err)
		}
		m.PatientName, m.DoctorName = p.User.Name, d.User.Name
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "medical_record.created", "medical_record", m.ID, m.PatientID, m)
	return m, nil
}

func (s *Service) GetRecord(ctx context.Context, id int64, includeDeleted bool) (*MedicalRecord, error) {
	return s.records.GetByID(ctx, id, includeDeleted)
}

func (s *Service) ListRecords(ctx context.Context, f RecordFilter) ([]*MedicalRecord, int, error) {
	return s.records.List(ctx, f)
}

func (s *Service) UpdateRecord(ctx context.Context, id int64, upd RecordUpdate) (*MedicalRecord, error) {
	var out *MedicalRecord
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		m, err := s.records.GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		if upd.Diagnosis != nil {
			d := strings.TrimSpace(*upd.Diagnosis)
			if d == "" {
				return apperr.Validation("diagnosis must not be empty")
			}
			m.Diagnosis = d
		}
		if upd.Treatment != nil {
			m.Treatment = strings.TrimSpace(*upd.Treatment)
		}
		if upd.Notes != nil {
			m.Notes = strings.TrimSpace(*upd.Notes)
		}
		if err := s.records.Update(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "medical_record.updated", "medical_record", out.ID, out.PatientID, out)
	return out, nil
}

func (s *Service) publish(ctx context.Context, typ, entity string, id, patientID int64, payload interface{}) {
	events.Emit(ctx, s.events, typ, entity, id, payload, entity+"s", "patients/"+strconv.FormatInt(patientID, 10))
}
