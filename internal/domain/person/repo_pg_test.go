package person

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/civil"
)

func TestUserRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("a@example.com", "hash", "Ann", "555", "patient").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), now))

	u := &User{Email: "a@example.com", PasswordHash: "hash", Name: "Ann", Phone: "555", Role: RolePatient}
	require.NoError(t, NewUserRepo(mock).Create(context.Background(), u))
	assert.Equal(t, int64(11), u.ID)
	assert.Equal(t, now, u.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Create_DuplicateEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("a@example.com", "hash", "Ann", "", "doctor").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_active_uniq"})

	u := &User{Email: "a@example.com", PasswordHash: "hash", Name: "Ann", Role: RoleDoctor}
	err = NewUserRepo(mock).Create(context.Background(), u)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Update_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE users SET").
		WithArgs(int64(4), "a@example.com", "hash", "Ann", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewUserRepo(mock).Update(context.Background(), &User{ID: 4, Email: "a@example.com", PasswordHash: "hash", Name: "Ann"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepo_GetByEmail_NoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM users u WHERE LOWER").
		WithArgs("ghost@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err = NewUserRepo(mock).GetByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPatientRepo_GetByID_HidesDeleted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`WHERE p.id = \$1 AND NOT \(u.is_deleted OR p.is_deleted\)`).
		WithArgs(int64(3)).
		WillReturnError(pgx.ErrNoRows)

	_, err = NewPatientRepo(mock).GetByID(context.Background(), 3, false)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDoctorRepo_GetByID_ScansWindow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "user_id", "specialization", "department", "from_time", "until_time", "is_deleted", "deleted_at",
		"id", "email", "password", "name", "phone", "role", "is_deleted", "deleted_at", "created_at",
	}).AddRow(
		int64(2), int64(8), "Cardiology", "Heart", "09:00:00", "12:00:00", false, (*time.Time)(nil),
		int64(8), "doc@example.com", "hash", "Dr. A", "", "doctor", false, (*time.Time)(nil), created,
	)
	mock.ExpectQuery(`FROM doctors d JOIN users u`).WithArgs(int64(2)).WillReturnRows(rows)

	d, err := NewDoctorRepo(mock).GetByID(context.Background(), 2, false)
	require.NoError(t, err)
	assert.Equal(t, civil.NewTimeOfDay(9, 0), d.From)
	assert.Equal(t, civil.NewTimeOfDay(12, 0), d.Until)
	assert.Equal(t, RoleDoctor, d.User.Role)
	assert.True(t, d.Visible())
}

func TestAdminRepo_Update_InsideTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE admins SET role_detail").
		WithArgs(int64(1), "ops").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	repo := NewAdminRepo(mock)
	err = db.NewTxManager(mock).WithTx(context.Background(), func(ctx context.Context) error {
		return repo.Update(ctx, &Admin{ID: 1, RoleDetail: "ops"})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
