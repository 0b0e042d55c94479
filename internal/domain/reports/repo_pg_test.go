package reports

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/pkg/civil"
)

func TestRepo_Dashboard(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	today := civil.NewDate(2025, time.March, 10)
	mock.ExpectQuery(`WHERE date = \$1 AND status <> 'cancelled' AND NOT is_deleted`).
		WithArgs(today.Time).
		WillReturnRows(pgxmock.NewRows([]string{"p", "d", "a", "pb", "pa", "paid"}).
			AddRow(int64(12), int64(3), int64(5), int64(2), int64(20000), int64(150000)))

	d, err := NewRepo(mock).Dashboard(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, int64(12), d.Patients)
	assert.Equal(t, int64(5), d.AppointmentsToday)
	assert.Equal(t, int64(150000), d.PaidRevenueCents)
	assert.True(t, d.Date.Equal(today))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_DoctorPerformance_OpenRange(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`LEFT JOIN appointments a ON a.doctor_id = d.id AND NOT a.is_deleted`).
		WithArgs(nil, nil).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "spec", "total", "completed", "cancelled", "no_show"}).
			AddRow(int64(1), "Dr. House", "Diagnostics", int64(4), int64(3), int64(1), int64(0)).
			AddRow(int64(2), "Dr. Wilson", "Oncology", int64(0), int64(0), int64(0), int64(0)))

	out, err := NewRepo(mock).DoctorPerformance(context.Background(), Range{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Dr. House", out[0].Name)
	assert.Equal(t, int64(3), out[0].Completed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_TopMedications(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	from := civil.NewDate(2025, time.March, 1)
	mock.ExpectQuery(`FROM prescriptions .* GROUP BY medication ORDER BY COUNT\(\*\) DESC, medication LIMIT \$3`).
		WithArgs(from.Time, nil, 3).
		WillReturnRows(pgxmock.NewRows([]string{"medication", "count"}).
			AddRow("Aspirin", int64(5)).
			AddRow("Ibuprofen", int64(2)))

	out, err := NewRepo(mock).TopMedications(context.Background(), Range{From: &from}, 3)
	require.NoError(t, err)
	assert.Equal(t, []MedicationCount{{"Aspirin", 5}, {"Ibuprofen", 2}}, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_BillTotals(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM bills WHERE NOT is_deleted .* GROUP BY status`).
		WithArgs(nil, nil).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count", "sum"}).
			AddRow("paid", int64(2), int64(20000)))

	out, err := NewRepo(mock).BillTotals(context.Background(), Range{})
	require.NoError(t, err)
	assert.Equal(t, []StatusTotal{{Status: "paid", Count: 2, AmountCents: 20000}}, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}
