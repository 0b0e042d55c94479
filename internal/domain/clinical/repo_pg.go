package clinical

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/civil"
)

// Both tables share the patient/doctor join used to resolve display names.
const partiesJoin = `
	JOIN patients p ON p.id = x.patient_id JOIN users pu ON pu.id = p.user_id
	JOIN doctors d ON d.id = x.doctor_id JOIN users du ON du.id = d.user_id`

// -- Prescriptions --

const rxCols = `x.id, x.patient_id, x.doctor_id, x.date, x.medication, x.dosage, x.status, x.notes,
	x.created_at, x.is_deleted, x.deleted_at, pu.name, du.name`

const rxFrom = `prescriptions x` + partiesJoin

type prescriptionRepoPG struct {
	pool db.Querier
}

func NewPrescriptionRepo(pool db.Querier) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO prescriptions (patient_id, doctor_id, date, medication, dosage, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		p.PatientID, p.DoctorID, p.Date.Time, p.Medication, p.Dosage, string(p.Status), p.Notes,
	).Scan(&p.ID, &p.CreatedAt)
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id int64, includeDeleted bool) (*Prescription, error) {
	where := `x.id = $1`
	if !includeDeleted {
		where += ` AND NOT x.is_deleted`
	}
	p, err := scanPrescription(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+rxCols+` FROM `+rxFrom+` WHERE `+where, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPrescriptionNotFound
	}
	return p, err
}

func (r *prescriptionRepoPG) SetStatus(ctx context.Context, id int64, from, to PrescriptionStatus) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE prescriptions SET status = $3
		WHERE id = $1 AND status = $2 AND NOT is_deleted`,
		id, string(from), string(to),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *prescriptionRepoPG) List(ctx context.Context, f PrescriptionFilter) ([]*Prescription, int, error) {
	q := db.NewQuery(rxFrom, rxCols)
	if f.PatientID != 0 {
		q.Eq("x.patient_id", f.PatientID)
	}
	if f.DoctorID != 0 {
		q.Eq("x.doctor_id", f.DoctorID)
	}
	if f.Status != "" {
		q.Eq("x.status", string(f.Status))
	}
	if f.From != nil {
		q.Gte("x.date", f.From.Time)
	}
	if f.To != nil {
		q.Lte("x.date", f.To.Time)
	}
	q.Visible(f.Visibility, "x.is_deleted").OrderBy("x.date DESC, x.id DESC")

	page := f.Page.Normalize()
	return db.Fetch(ctx, db.Conn(ctx, r.pool), q, page.Limit, page.Offset, scanPrescription)
}

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	var date pgtype.Date
	var status string
	err := row.Scan(&p.ID, &p.PatientID, &p.DoctorID, &date, &p.Medication, &p.Dosage, &status, &p.Notes,
		&p.CreatedAt, &p.IsDeleted, &p.DeletedAt, &p.PatientName, &p.DoctorName)
	if err != nil {
		return nil, err
	}
	p.Status = PrescriptionStatus(status)
	if date.Valid {
		p.Date = civil.DateOf(date.Time)
	}
	return &p, nil
}

// -- Medical records --

const recordCols = `x.id, x.patient_id, x.doctor_id, x.date, x.diagnosis, x.treatment, x.notes,
	x.created_at, x.is_deleted, x.deleted_at, pu.name, du.name`

const recordFrom = `medical_records x` + partiesJoin

type recordRepoPG struct {
	pool db.Querier
}

func NewRecordRepo(pool db.Querier) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) Create(ctx context.Context, m *MedicalRecord) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO medical_records (patient_id, doctor_id, date, diagnosis, treatment, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		m.PatientID, m.DoctorID, m.Date.Time, m.Diagnosis, m.Treatment, m.Notes,
	).Scan(&m.ID, &m.CreatedAt)
}

func (r *recordRepoPG) GetByID(ctx context.Context, id int64, includeDeleted bool) (*MedicalRecord, error) {
	where := `x.id = $1`
	if !includeDeleted {
		where += ` AND NOT x.is_deleted`
	}
	m, err := scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+recordCols+` FROM `+recordFrom+` WHERE `+where, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return m, err
}

func (r *recordRepoPG) Update(ctx context.Context, m *MedicalRecord) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE medical_records SET diagnosis = $2, treatment = $3, notes = $4
		WHERE id = $1 AND NOT is_deleted`,
		m.ID, m.Diagnosis, m.Treatment, m.Notes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *recordRepoPG) List(ctx context.Context, f RecordFilter) ([]*MedicalRecord, int, error) {
	q := db.NewQuery(recordFrom, recordCols)
	if f.PatientID != 0 {
		q.Eq("x.patient_id", f.PatientID)
	}
	if f.DoctorID != 0 {
		q.Eq("x.doctor_id", f.DoctorID)
	}
	q.Contains(f.Diagnosis, "x.diagnosis")
	if f.From != nil {
		q.Gte("x.date", f.From.Time)
	}
	if f.To != nil {
		q.Lte("x.date", f.To.Time)
	}
	q.Visible(f.Visibility, "x.is_deleted").OrderBy("x.date DESC, x.id DESC")

	page := f.Page.Normalize()
	return db.Fetch(ctx, db.Conn(ctx, r.pool), q, page.Limit, page.Offset, scanRecord)
}

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var m MedicalRecord
	var date pgtype.Date
	err := row.Scan(&m.ID, &m.PatientID, &m.DoctorID, &date, &m.Diagnosis, &m.Treatment, &m.Notes,
		&m.CreatedAt, &m.IsDeleted, &m.DeletedAt, &m.PatientName, &m.DoctorName)
	if err != nil {
		return nil, err
	}
	if date.Valid {
		m.Date = civil.DateOf(date.Time)
	}
	return &m, nil
}
