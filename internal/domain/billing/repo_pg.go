package billing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/civil"
)

const billCols = `b.id, b.patient_id, b.appointment_id, b.amount_cents, b.date, b.status, b.payment_method,
	b.payment_date, b.auto_generated, b.created_at, b.is_deleted, b.deleted_at, u.name`

const billFrom = `bills b JOIN patients p ON p.id = b.patient_id JOIN users u ON u.id = p.user_id`

type repoPG struct {
	pool db.Querier
}

func NewRepo(pool db.Querier) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Create(ctx context.Context, b *Bill) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO bills (patient_id, appointment_id, amount_cents, date, status, payment_method, payment_date, auto_generated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		b.PatientID, b.AppointmentID, b.AmountCents, b.Date.Time, string(b.Status), b.PaymentMethod, b.PaymentDate, b.AutoGenerated,
	).Scan(&b.ID, &b.CreatedAt)
}

func (r *repoPG) CreateForAppointment(ctx context.Context, b *Bill) (bool, error) {
	b.AutoGenerated = true
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO bills (patient_id, appointment_id, amount_cents, date, status, auto_generated)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (appointment_id) WHERE auto_generated DO NOTHING
		RETURNING id, created_at`,
		b.PatientID, b.AppointmentID, b.AmountCents, b.Date.Time, string(b.Status),
	).Scan(&b.ID, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *repoPG) AppointmentPatient(ctx context.Context, appointmentID int64) (int64, error) {
	var patientID int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT patient_id FROM appointments WHERE id = $1 AND NOT is_deleted FOR SHARE`, appointmentID,
	).Scan(&patientID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAppointmentNotFound
	}
	return patientID, err
}

func (r *repoPG) GetByID(ctx context.Context, id int64, includeDeleted bool) (*Bill, error) {
	where := `b.id = $1`
	if !includeDeleted {
		where += ` AND NOT b.is_deleted`
	}
	b, err := scanBill(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+billCols+` FROM `+billFrom+` WHERE `+where, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBillNotFound
	}
	return b, err
}

func (r *repoPG) SetStatus(ctx context.Context, id int64, from, to Status, paymentMethod string, paymentDate *time.Time) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE bills
		SET status = $3,
		    payment_method = COALESCE(NULLIF($4, ''), payment_method),
		    payment_date = COALESCE($5, payment_date)
		WHERE id = $1 AND status = $2 AND NOT is_deleted`,
		id, string(from), string(to), paymentMethod, paymentDate,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*Bill, int, error) {
	q := db.NewQuery(billFrom, billCols)
	if f.PatientID != 0 {
		q.Eq("b.patient_id", f.PatientID)
	}
	if f.Status != "" {
		q.Eq("b.status", string(f.Status))
	}
	if f.From != nil {
		q.Gte("b.date", f.From.Time)
	}
	if f.To != nil {
		q.Lte("b.date", f.To.Time)
	}
	q.Visible(f.Visibility, "b.is_deleted").OrderBy("b.date DESC, b.id DESC")

	page := f.Page.Normalize()
	return db.Fetch(ctx, db.Conn(ctx, r.pool), q, page.Limit, page.Offset, scanBill)
}

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	var date pgtype.Date
	var status string
	err := row.Scan(&b.ID, &b.PatientID, &b.AppointmentID, &b.AmountCents, &date, &status, &b.PaymentMethod,
		&b.PaymentDate, &b.AutoGenerated, &b.CreatedAt, &b.IsDeleted, &b.DeletedAt, &b.PatientName)
	if err != nil {
		return nil, err
	}
	b.Status = Status(status)
	if date.Valid {
		b.Date = civil.DateOf(date.Time)
	}
	return &b, nil
}
