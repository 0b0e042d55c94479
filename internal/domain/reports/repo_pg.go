package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/civil"
)

type Repository interface {
	Dashboard(ctx context.Context, today civil.Date) (*Dashboard, error)
	// RecentActivity counts rows created at or after since.
	RecentActivity(ctx context.Context, since time.Time) (*RecentActivity, error)
	DoctorPerformance(ctx context.Context, r Range) ([]DoctorPerformance, error)
	BillTotals(ctx context.Context, r Range) ([]StatusTotal, error)
	TopMedications(ctx context.Context, r Range, limit int) ([]MedicationCount, error)
}

// rangeClause filters col by the optional bounds passed as $1 and $2.
func rangeClause(col string) string {
	return `($1::date IS NULL OR ` + col + ` >= $1) AND ($2::date IS NULL OR ` + col + ` <= $2)`
}

func rangeArgs(r Range) []interface{} {
	return []interface{}{dateArg(r.From), dateArg(r.To)}
}

func dateArg(d *civil.Date) interface{} {
	if d == nil {
		return nil
	}
	return d.Time
}

type repoPG struct {
	pool db.Querier
}

func NewRepo(pool db.Querier) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Dashboard(ctx context.Context, today civil.Date) (*Dashboard, error) {
	d := &Dashboard{Date: today}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM patients p JOIN users u ON u.id = p.user_id
				WHERE NOT p.is_deleted AND NOT u.is_deleted),
			(SELECT COUNT(*) FROM doctors d JOIN users u ON u.id = d.user_id
				WHERE NOT d.is_deleted AND NOT u.is_deleted),
			(SELECT COUNT(*) FROM appointments
				WHERE date = $1 AND status <> 'cancelled' AND NOT is_deleted),
			(SELECT COUNT(*) FROM bills WHERE status = 'pending' AND NOT is_deleted),
			(SELECT COALESCE(SUM(amount_cents), 0) FROM bills WHERE status = 'pending' AND NOT is_deleted),
			(SELECT COALESCE(SUM(amount_cents), 0) FROM bills WHERE status = 'paid' AND NOT is_deleted)`,
		today.Time,
	).Scan(&d.Patients, &d.Doctors, &d.AppointmentsToday, &d.PendingBills, &d.PendingAmountCents, &d.PaidRevenueCents)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *repoPG) RecentActivity(ctx context.Context, since time.Time) (*RecentActivity, error) {
	a := &RecentActivity{}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM patients p JOIN users u ON u.id = p.user_id
				WHERE u.created_at >= $1 AND NOT p.is_deleted AND NOT u.is_deleted),
			(SELECT COUNT(*) FROM appointments WHERE created_at >= $1 AND NOT is_deleted),
			(SELECT COUNT(*) FROM bills WHERE created_at >= $1 AND NOT is_deleted)`,
		since,
	).Scan(&a.NewPatients, &a.Appointments, &a.Bills)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *repoPG) DoctorPerformance(ctx context.Context, rg Range) ([]DoctorPerformance, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT d.id, u.name, d.specialization,
			COUNT(a.id),
			COUNT(a.id) FILTER (WHERE a.status = 'completed'),
			COUNT(a.id) FILTER (WHERE a.status = 'cancelled'),
			COUNT(a.id) FILTER (WHERE a.status = 'no-show')
		FROM doctors d
		JOIN users u ON u.id = d.user_id
		LEFT JOIN appointments a ON a.doctor_id = d.id AND NOT a.is_deleted AND `+rangeClause("a.date")+`
		WHERE NOT d.is_deleted AND NOT u.is_deleted
		GROUP BY d.id, u.name, d.specialization
		ORDER BY u.name, d.id`,
		rangeArgs(rg)...,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DoctorPerformance, error) {
		var p DoctorPerformance
		err := row.Scan(&p.DoctorID, &p.Name, &p.Specialization, &p.Total, &p.Completed, &p.Cancelled, &p.NoShow)
		return p, err
	})
}

func (r *repoPG) BillTotals(ctx context.Context, rg Range) ([]StatusTotal, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(amount_cents), 0)
		FROM bills
		WHERE NOT is_deleted AND `+rangeClause("date")+`
		GROUP BY status
		ORDER BY status`,
		rangeArgs(rg)...,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (StatusTotal, error) {
		var t StatusTotal
		err := row.Scan(&t.Status, &t.Count, &t.AmountCents)
		return t, err
	})
}

func (r *repoPG) TopMedications(ctx context.Context, rg Range, limit int) ([]MedicationCount, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT medication, COUNT(*)
		FROM prescriptions
		WHERE NOT is_deleted AND `+rangeClause("date")+`
		GROUP BY medication
		ORDER BY COUNT(*) DESC, medication
		LIMIT $3`,
		append(rangeArgs(rg), limit)...,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MedicationCount, error) {
		var m MedicationCount
		err := row.Scan(&m.Medication, &m.Count)
		return m, err
	})
}
