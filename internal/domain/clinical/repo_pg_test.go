package clinical

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

func TestPrescriptionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	date := civil.NewDate(2025, time.March, 10)
	mock.ExpectQuery("INSERT INTO prescriptions").
		WithArgs(int64(1), int64(2), date.Time, "Aspirin", "100mg", "active", "").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), now))

	p := &Prescription{PatientID: 1, DoctorID: 2, Date: date, Medication: "Aspirin", Dosage: "100mg", Status: PrescriptionActive}
	require.NoError(t, NewPrescriptionRepo(mock).Create(context.Background(), p))
	assert.Equal(t, int64(11), p.ID)
	assert.Equal(t, now, p.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrescriptionRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`WHERE x.id = \$1 AND NOT x.is_deleted`).
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "patient_id", "doctor_id", "date", "medication", "dosage", "status", "notes",
			"created_at", "is_deleted", "deleted_at", "patient_name", "doctor_name",
		}).AddRow(
			int64(11), int64(1), int64(2), created, "Aspirin", "100mg", "completed", "",
			created, false, (*time.Time)(nil), "Pat One", "Dr. House",
		))

	p, err := NewPrescriptionRepo(mock).GetByID(context.Background(), 11, false)
	require.NoError(t, err)
	assert.Equal(t, PrescriptionCompleted, p.Status)
	assert.Equal(t, civil.NewDate(2025, time.March, 10), p.Date)
	assert.Equal(t, "Dr. House", p.DoctorName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrescriptionRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`WHERE x.id = \$1$`).
		WithArgs(int64(3)).
		WillReturnError(pgx.ErrNoRows)

	_, err = NewPrescriptionRepo(mock).GetByID(context.Background(), 3, true)
	assert.ErrorIs(t, err, ErrPrescriptionNotFound)
}

func TestPrescriptionRepo_SetStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE prescriptions SET status").
		WithArgs(int64(4), "active", "cancelled").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE prescriptions SET status").
		WithArgs(int64(4), "active", "completed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewPrescriptionRepo(mock)
	ok, err := repo.SetStatus(context.Background(), 4, PrescriptionActive, PrescriptionCancelled)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SetStatus(context.Background(), 4, PrescriptionActive, PrescriptionCompleted)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_Update_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE medical_records").
		WithArgs(int64(8), "Flu", "Rest", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewRecordRepo(mock).Update(context.Background(), &MedicalRecord{ID: 8, Diagnosis: "Flu", Treatment: "Rest"})
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_List_DiagnosisSearch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM medical_records x .* AND x.patient_id = \$1 AND .*x.diagnosis ILIKE \$2.* AND NOT x.is_deleted`).
		WithArgs(int64(1), "%flu%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	created := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`ORDER BY x.date DESC, x.id DESC LIMIT \$3 OFFSET \$4`).
		WithArgs(int64(1), "%flu%", 20, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "patient_id", "doctor_id", "date", "diagnosis", "treatment", "notes",
			"created_at", "is_deleted", "deleted_at", "patient_name", "doctor_name",
		}).AddRow(
			int64(5), int64(1), int64(2), created, "Influenza", "Rest", "",
			created, false, (*time.Time)(nil), "Pat One", "Dr. House",
		))

	items, total, err := NewRecordRepo(mock).List(context.Background(), RecordFilter{PatientID: 1, Diagnosis: "flu"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Influenza", items[0].Diagnosis)
	assert.Equal(t, civil.NewDate(2025, time.February, 1), items[0].Date)
	assert.NoError(t, mock.ExpectationsWereMet())
}
