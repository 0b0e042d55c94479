package billing

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/pkg/civil"
)

func TestRepo_CreateForAppointment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	date := civil.NewDate(2025, time.March, 10)
	apptID := int64(42)
	mock.ExpectQuery("ON CONFLICT \\(appointment_id\\) WHERE auto_generated DO NOTHING").
		WithArgs(int64(1), &apptID, int64(10000), date.Time, "pending").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(9), now))

	b := &Bill{PatientID: 1, AppointmentID: &apptID, AmountCents: 10000, Date: date, Status: StatusPending}
	created, err := NewRepo(mock).CreateForAppointment(context.Background(), b)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(9), b.ID)
	assert.True(t, b.AutoGenerated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_CreateForAppointment_AlreadyBilled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	apptID := int64(42)
	mock.ExpectQuery("INSERT INTO bills").
		WithArgs(int64(1), &apptID, int64(10000), pgxmock.AnyArg(), "pending").
		WillReturnError(pgx.ErrNoRows)

	b := &Bill{PatientID: 1, AppointmentID: &apptID, AmountCents: 10000, Date: civil.NewDate(2025, 3, 10), Status: StatusPending}
	created, err := NewRepo(mock).CreateForAppointment(context.Background(), b)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Zero(t, b.ID)
}

func TestRepo_AppointmentPatient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT patient_id FROM appointments WHERE id = \$1 AND NOT is_deleted FOR SHARE`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"patient_id"}).AddRow(int64(3)))
	mock.ExpectQuery(`SELECT patient_id FROM appointments`).
		WithArgs(int64(8)).
		WillReturnError(pgx.ErrNoRows)

	repo := NewRepo(mock)
	patientID, err := repo.AppointmentPatient(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), patientID)

	_, err = repo.AppointmentPatient(context.Background(), 8)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_SetStatus_GuardMiss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE bills").
		WithArgs(int64(3), "pending", "paid", "card", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	paid := time.Now()
	ok, err := NewRepo(mock).SetStatus(context.Background(), 3, StatusPending, StatusPaid, "card", &paid)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`WHERE b.id = \$1 AND NOT b.is_deleted`).
		WithArgs(int64(5)).
		WillReturnError(pgx.ErrNoRows)

	_, err = NewRepo(mock).GetByID(context.Background(), 5, false)
	assert.ErrorIs(t, err, ErrBillNotFound)
}

func TestRepo_List_FiltersAndScans(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM bills b .* AND b.patient_id = \$1 AND b.status = \$2 AND NOT b.is_deleted`).
		WithArgs(int64(1), "pending").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`ORDER BY b.date DESC, b.id DESC LIMIT \$3 OFFSET \$4`).
		WithArgs(int64(1), "pending", 20, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "patient_id", "appointment_id", "amount_cents", "date", "status", "payment_method",
			"payment_date", "auto_generated", "created_at", "is_deleted", "deleted_at", "name",
		}).AddRow(
			int64(7), int64(1), (*int64)(nil), int64(2500), created, "pending", "",
			(*time.Time)(nil), false, created, false, (*time.Time)(nil), "Pat One",
		))

	items, total, err := NewRepo(mock).List(context.Background(), Filter{PatientID: 1, Status: StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Pat One", items[0].PatientName)
	assert.Equal(t, civil.NewDate(2025, time.March, 10), items[0].Date)
	assert.Nil(t, items[0].AppointmentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
