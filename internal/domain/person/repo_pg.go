package person

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/civil"
)

const emailConstraint = "users_email_active_uniq"

const userCols = `u.id, u.email, u.password, u.name, u.phone, u.role, u.is_deleted, u.deleted_at, u.created_at`

// personDeleted is the visibility predicate shared by every profile join.
func personDeleted(alias string) string {
	return fmt.Sprintf("(u.is_deleted OR %s.is_deleted)", alias)
}

func visibleOnly(alias string, includeDeleted bool) string {
	if includeDeleted {
		return ""
	}
	return " AND NOT " + personDeleted(alias)
}

// -- User Repository --

type userRepoPG struct {
	pool db.Querier
}

func NewUserRepo(pool db.Querier) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO users (email, password, name, phone, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		u.Email, u.PasswordHash, u.Name, u.Phone, string(u.Role),
	).Scan(&u.ID, &u.CreatedAt)
	if db.IsUniqueViolation(err, emailConstraint) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE users SET email = $2, password = $3, name = $4, phone = $5
		WHERE id = $1 AND is_deleted = FALSE`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Phone,
	)
	if db.IsUniqueViolation(err, emailConstraint) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userCols+` FROM users u WHERE LOWER(u.email) = LOWER($1) AND u.is_deleted = FALSE`, email)
	var u User
	if err := scanUser(row, &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func scanUser(row pgx.Row, u *User) error {
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Phone, &role,
		&u.IsDeleted, &u.DeletedAt, &u.CreatedAt); err != nil {
		return err
	}
	u.Role = Role(role)
	return nil
}

// -- Patient Repository --

type patientRepoPG struct {
	pool db.Querier
}

func NewPatientRepo(pool db.Querier) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `p.id, p.user_id, p.address, p.date_of_birth, p.blood_type, p.insurance_id, p.is_deleted, p.deleted_at, ` + userCols

const patientFrom = `patients p JOIN users u ON u.id = p.user_id`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patients (user_id, address, date_of_birth, blood_type, insurance_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		p.UserID, p.Address, dateArg(p.DateOfBirth), p.BloodType, p.InsuranceID,
	).Scan(&p.ID)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64, includeDeleted bool) (*Patient, error) {
	return r.getOne(ctx, `p.id = $1`+visibleOnly("p", includeDeleted), id)
}

// GetByUserID returns the profile for a user regardless of the profile's
// deleted flag; callers decide how to treat a deleted half.
func (r *patientRepoPG) GetByUserID(ctx context.Context, userID int64) (*Patient, error) {
	return r.getOne(ctx, `p.user_id = $1`, userID)
}

func (r *patientRepoPG) getOne(ctx context.Context, where string, arg interface{}) (*Patient, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM `+patientFrom+` WHERE `+where, arg)
	p, err := scanPatient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	return p, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE patients SET address = $2, date_of_birth = $3, blood_type = $4, insurance_id = $5
		WHERE id = $1 AND is_deleted = FALSE`,
		p.ID, p.Address, dateArg(p.DateOfBirth), p.BloodType, p.InsuranceID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, f ListFilter) ([]*Patient, int, error) {
	q := db.NewQuery(patientFrom, patientCols).
		Contains(f.Query, "u.name", "u.email", "u.phone").
		Visible(f.Visibility, personDeleted("p")).
		OrderBy("u.name, p.id")

	page := f.Page.Normalize()
	return db.Fetch(ctx, db.Conn(ctx, r.pool), q, page.Limit, page.Offset, scanPatient)
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var dob pgtype.Date
	var role string
	err := row.Scan(
		&p.ID, &p.UserID, &p.Address, &dob, &p.BloodType, &p.InsuranceID, &p.IsDeleted, &p.DeletedAt,
		&p.User.ID, &p.User.Email, &p.User.PasswordHash, &p.User.Name, &p.User.Phone, &role,
		&p.User.IsDeleted, &p.User.DeletedAt, &p.User.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.User.Role = Role(role)
	if dob.Valid {
		d := civil.DateOf(dob.Time)
		p.DateOfBirth = &d
	}
	return &p, nil
}

// -- Doctor Repository --

type doctorRepoPG struct {
	pool db.Querier
}

func NewDoctorRepo(pool db.Querier) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

const doctorCols = `d.id, d.user_id, d.specialization, d.department, d.from_time, d.until_time, d.is_deleted, d.deleted_at, ` + userCols

const doctorFrom = `doctors d JOIN users u ON u.id = d.user_id`

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO doctors (user_id, specialization, department, from_time, until_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		d.UserID, d.Specialization, d.Department, d.From.PG(), d.Until.PG(),
	).Scan(&d.ID)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id int64, includeDeleted bool) (*Doctor, error) {
	return r.getOne(ctx, `d.id = $1`+visibleOnly("d", includeDeleted), id)
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID int64) (*Doctor, error) {
	return r.getOne(ctx, `d.user_id = $1`, userID)
}

func (r *doctorRepoPG) getOne(ctx context.Context, where string, arg interface{}) (*Doctor, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+doctorCols+` FROM `+doctorFrom+` WHERE `+where, arg)
	d, err := scanDoctor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDoctorNotFound
	}
	return d, err
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE doctors SET specialization = $2, department = $3, from_time = $4, until_time = $5
		WHERE id = $1 AND is_deleted = FALSE`,
		d.ID, d.Specialization, d.Department, d.From.PG(), d.Until.PG(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context, f ListFilter) ([]*Doctor, int, error) {
	q := db.NewQuery(doctorFrom, doctorCols).
		Contains(f.Query, "u.name", "u.email").
		Contains(f.Specialization, "d.specialization").
		Contains(f.Department, "d.department").
		Visible(f.Visibility, personDeleted("d")).
		OrderBy("u.name, d.id")

	page := f.Page.Normalize()
	return db.Fetch(ctx, db.Conn(ctx, r.pool), q, page.Limit, page.Offset, scanDoctor)
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var from, until pgtype.Time
	var role string
	err := row.Scan(
		&d.ID, &d.UserID, &d.Specialization, &d.Department, &from, &until, &d.IsDeleted, &d.DeletedAt,
		&d.User.ID, &d.User.Email, &d.User.PasswordHash, &d.User.Name, &d.User.Phone, &role,
		&d.User.IsDeleted, &d.User.DeletedAt, &d.User.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.User.Role = Role(role)
	d.From = civil.TimeOfDayFromPG(from)
	d.Until = civil.TimeOfDayFromPG(until)
	return &d, nil
}

// -- Admin Repository --

type adminRepoPG struct {
	pool db.Querier
}

func NewAdminRepo(pool db.Querier) AdminRepository {
	return &adminRepoPG{pool: pool}
}

const adminCols = `a.id, a.user_id, a.role_detail, a.is_deleted, a.deleted_at, ` + userCols

const adminFrom = `admins a JOIN users u ON u.id = a.user_id`

func (r *adminRepoPG) Create(ctx context.Context, a *Admin) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO admins (user_id, role_detail) VALUES ($1, $2) RETURNING id`,
		a.UserID, a.RoleDetail,
	).Scan(&a.ID)
}

func (r *adminRepoPG) GetByID(ctx context.Context, id int64, includeDeleted bool) (*Admin, error) {
	return r.getOne(ctx, `a.id = $1`+visibleOnly("a", includeDeleted), id)
}

func (r *adminRepoPG) GetByUserID(ctx context.Context, userID int64) (*Admin, error) {
	return r.getOne(ctx, `a.user_id = $1`, userID)
}

func (r *adminRepoPG) getOne(ctx context.Context, where string, arg interface{}) (*Admin, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+adminCols+` FROM `+adminFrom+` WHERE `+where, arg)
	a, err := scanAdmin(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAdminNotFound
	}
	return a, err
}

func (r *adminRepoPG) Update(ctx context.Context, a *Admin) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE admins SET role_detail = $2 WHERE id = $1 AND is_deleted = FALSE`,
		a.ID, a.RoleDetail,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAdminNotFound
	}
	return nil
}

func (r *adminRepoPG) List(ctx context.Context, f ListFilter) ([]*Admin, int, error) {
	q := db.NewQuery(adminFrom, adminCols).
		Contains(f.Query, "u.name", "u.email").
		Visible(f.Visibility, personDeleted("a")).
		OrderBy("u.name, a.id")

	page := f.Page.Normalize()
	return db.Fetch(ctx, db.Conn(ctx, r.pool), q, page.Limit, page.Offset, scanAdmin)
}

func scanAdmin(row pgx.Row) (*Admin, error) {
	var a Admin
	var role string
	err := row.Scan(
		&a.ID, &a.UserID, &a.RoleDetail, &a.IsDeleted, &a.DeletedAt,
		&a.User.ID, &a.User.Email, &a.User.PasswordHash, &a.User.Name, &a.User.Phone, &role,
		&a.User.IsDeleted, &a.User.DeletedAt, &a.User.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.User.Role = Role(role)
	return &a, nil
}

func dateArg(d *civil.Date) interface{} {
	if d == nil {
		return nil
	}
	return d.Time
}
