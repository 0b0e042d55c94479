package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/civil"
)

type mockRepo struct {
	since  time.Time
	today  civil.Date
	limit  int
	rng    Range
	perf   []DoctorPerformance
	totals []StatusTotal
	meds   []MedicationCount
	err    error
}

func (m *mockRepo) Dashboard(_ context.Context, today civil.Date) (*Dashboard, error) {
	m.today = today
	if m.err != nil {
		return nil, m.err
	}
	return &Dashboard{Date: today, Patients: 4}, nil
}

func (m *mockRepo) RecentActivity(_ context.Context, since time.Time) (*RecentActivity, error) {
	m.since = since
	return &RecentActivity{NewPatients: 2}, m.err
}

func (m *mockRepo) DoctorPerformance(_ context.Context, r Range) ([]DoctorPerformance, error) {
	m.rng = r
	return m.perf, m.err
}

func (m *mockRepo) BillTotals(_ context.Context, r Range) ([]StatusTotal, error) {
	m.rng = r
	return m.totals, m.err
}

func (m *mockRepo) TopMedications(_ context.Context, r Range, limit int) ([]MedicationCount, error) {
	m.rng, m.limit = r, limit
	return m.meds, m.err
}

var fixedNow = time.Date(2025, time.March, 10, 15, 4, 0, 0, time.UTC)

func newTestService(repo *mockRepo) *Service {
	s := NewService(repo)
	s.SetClock(func() time.Time { return fixedNow }, time.UTC)
	return s
}

func date(y int, m time.Month, d int) *civil.Date {
	v := civil.NewDate(y, m, d)
	return &v
}

func TestDashboard_UsesClinicToday(t *testing.T) {
	repo := &mockRepo{}
	s := NewService(repo)
	tokyo := time.FixedZone("JST", 9*3600)
	// 20:00 UTC on the 10th is already the 11th in Tokyo.
	s.SetClock(func() time.Time { return time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC) }, tokyo)

	d, err := s.Dashboard(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !repo.today.Equal(civil.NewDate(2025, time.March, 11)) || d.Patients != 4 {
		t.Errorf("today = %s, dashboard %+v", repo.today, d)
	}

	repo.err = errors.New("boom")
	if _, err := s.Dashboard(context.Background()); err == nil {
		t.Error("expected repository error")
	}
}

func TestRecentActivity_Window(t *testing.T) {
	tests := []struct {
		name      string
		days      int
		wantDays  int
		wantSince civil.Date
	}{
		{"default", 0, 7, civil.NewDate(2025, time.March, 4)},
		{"today only", 1, 1, civil.NewDate(2025, time.March, 10)},
		{"month", 30, 30, civil.NewDate(2025, time.February, 9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{}
			a, err := newTestService(repo).RecentActivity(context.Background(), tt.days)
			if err != nil {
				t.Fatal(err)
			}
			if a.Days != tt.wantDays || !a.Since.Equal(tt.wantSince) {
				t.Errorf("got days=%d since=%s", a.Days, a.Since)
			}
			if !repo.since.Equal(tt.wantSince.Time) {
				t.Errorf("repo since = %s", repo.since)
			}
		})
	}

	for _, days := range []int{-1, MaxRecentDays + 1} {
		if _, err := newTestService(&mockRepo{}).RecentActivity(context.Background(), days); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("days=%d: err = %v", days, err)
		}
	}
}

func TestDoctorPerformance_CompletionRate(t *testing.T) {
	repo := &mockRepo{perf: []DoctorPerformance{
		{DoctorID: 1, Total: 3, Completed: 2, Cancelled: 1},
		{DoctorID: 2},
	}}
	out, err := newTestService(repo).DoctorPerformance(context.Background(), Range{})
	if err != nil {
		t.Fatal(err)
	}
	if out[0].CompletionRate != 66.7 {
		t.Errorf("rate = %v, want 66.7", out[0].CompletionRate)
	}
	if out[1].CompletionRate != 0 {
		t.Errorf("empty doctor rate = %v", out[1].CompletionRate)
	}

	empty, err := newTestService(&mockRepo{}).DoctorPerformance(context.Background(), Range{})
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("no doctors: got %v, %v", empty, err)
	}
}

func TestFinancial_Totals(t *testing.T) {
	repo := &mockRepo{totals: []StatusTotal{
		{Status: "cancelled", Count: 1, AmountCents: 500},
		{Status: "paid", Count: 2, AmountCents: 20000},
		{Status: "pending", Count: 1, AmountCents: 10000},
		{Status: "refunded", Count: 1, AmountCents: 3000},
	}}
	r := Range{From: date(2025, time.March, 1), To: date(2025, time.March, 31)}
	f, err := newTestService(repo).Financial(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if f.TotalBilledCents != 33000 || f.CollectedCents != 20000 || f.OutstandingCents != 10000 {
		t.Errorf("unexpected totals %+v", f)
	}
	if repo.rng.From == nil || !repo.rng.From.Equal(*r.From) {
		t.Error("range not forwarded")
	}
}

func TestReports_RejectInvertedRange(t *testing.T) {
	s := newTestService(&mockRepo{})
	r := Range{From: date(2025, time.March, 10), To: date(2025, time.March, 1)}

	if _, err := s.Financial(context.Background(), r); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Financial: err = %v", err)
	}
	if _, err := s.DoctorPerformance(context.Background(), r); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("DoctorPerformance: err = %v", err)
	}
	if _, err := s.TopMedications(context.Background(), r, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("TopMedications: err = %v", err)
	}
}

func TestTopMedications_Limit(t *testing.T) {
	repo := &mockRepo{meds: []MedicationCount{{Medication: "Aspirin", Count: 4}}}
	s := newTestService(repo)

	out, err := s.TopMedications(context.Background(), Range{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if repo.limit != DefaultTopMedications || len(out) != 1 {
		t.Errorf("limit = %d, out = %v", repo.limit, out)
	}
	if _, err := s.TopMedications(context.Background(), Range{}, MaxTopMedications+1); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("oversized limit: err = %v", err)
	}
}
