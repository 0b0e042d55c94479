package scheduling

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/civil"
)

const apptCols = `a.id, a.patient_id, a.doctor_id, a.date, a.time, a.reason, a.status, a.created_at,
	a.is_deleted, a.deleted_at, pu.name, du.name`

const apptFrom = `appointments a
	JOIN patients p ON p.id = a.patient_id JOIN users pu ON pu.id = p.user_id
	JOIN doctors d ON d.id = a.doctor_id JOIN users du ON du.id = d.user_id`

type repoPG struct {
	pool db.Querier
}

func NewRepo(pool db.Querier) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointments (patient_id, doctor_id, date, time, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		a.PatientID, a.DoctorID, a.Date.Time, a.Time.PG(), a.Reason, string(a.Status),
	).Scan(&a.ID, &a.CreatedAt)
	if db.IsUniqueViolation(err, slotConstraint) {
		return ErrSlotUnavailable
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id int64, includeDeleted bool) (*Appointment, error) {
	where := `a.id = $1`
	if !includeDeleted {
		where += ` AND NOT a.is_deleted`
	}
	a, err := scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+apptCols+` FROM `+apptFrom+` WHERE `+where, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	return a, err
}

func (r *repoPG) BookedTimes(ctx context.Context, doctorID int64, date civil.Date) ([]civil.TimeOfDay, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT time FROM appointments
		WHERE doctor_id = $1 AND date = $2 AND status <> 'cancelled' AND NOT is_deleted
		ORDER BY time`,
		doctorID, date.Time,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []civil.TimeOfDay
	for rows.Next() {
		var t pgtype.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, civil.TimeOfDayFromPG(t))
	}
	return out, rows.Err()
}

func (r *repoPG) TransitionStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE appointments SET status = $3
		WHERE id = $1 AND status = $2 AND NOT is_deleted`,
		id, string(from), string(to),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) SetStatus(ctx context.Context, id int64, to Status) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE appointments SET status = $2 WHERE id = $1 AND NOT is_deleted`,
		id, string(to),
	)
	if db.IsUniqueViolation(err, slotConstraint) {
		return ErrSlotUnavailable
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *repoPG) MarkNoShows(ctx context.Context, before civil.Date) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE appointments SET status = 'no-show'
		WHERE date < $1 AND status = 'scheduled' AND NOT is_deleted`,
		before.Time,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*Appointment, int, error) {
	q := db.NewQuery(apptFrom, apptCols)
	if f.PatientID != 0 {
		q.Eq("a.patient_id", f.PatientID)
	}
	if f.DoctorID != 0 {
		q.Eq("a.doctor_id", f.DoctorID)
	}
	if f.Status != "" {
		q.Eq("a.status", string(f.Status))
	}
	if f.From != nil {
		q.Gte("a.date", f.From.Time)
	}
	if f.To != nil {
		q.Lte("a.date", f.To.Time)
	}
	q.Visible(f.Visibility, "a.is_deleted").OrderBy("a.date DESC, a.time DESC, a.id DESC")

	page := f.Page.Normalize()
	return db.Fetch(ctx, db.Conn(ctx, r.pool), q, page.Limit, page.Offset, scanAppointment)
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date pgtype.Date
	var tod pgtype.Time
	var status string
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &date, &tod, &a.Reason, &status, &a.CreatedAt,
		&a.IsDeleted, &a.DeletedAt, &a.PatientName, &a.DoctorName)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	if date.Valid {
		a.Date = civil.DateOf(date.Time)
	}
	if tod.Valid {
		a.Time = civil.TimeOfDayFromPG(tod)
	}
	return &a, nil
}
