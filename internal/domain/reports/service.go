package reports

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/civil"
)

type Service struct {
	repo Repository
	now  func() time.Time
	loc  *time.Location
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now, loc: time.Local}
}

func (s *Service) SetClock(now func() time.Time, loc *time.Location) {
	s.now = now
	if loc != nil {
		s.loc = loc
	}
}

func (s *Service) today() civil.Date { return civil.DateOf(s.now().In(s.loc)) }

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	d, err := s.repo.Dashboard(ctx, s.today())
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	return d, nil
}

// RecentActivity counts what was created in the last days days, today
// included. Zero means DefaultRecentDays.
func (s *Service) RecentActivity(ctx context.Context, days int) (*RecentActivity, error) {
	if days == 0 {
		days = DefaultRecentDays
	}
	if days < 0 || days > MaxRecentDays {
		return nil, apperr.Validation("days must be between 1 and %d", MaxRecentDays)
	}
	since := s.today().AddDays(-(days - 1))
	start := time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, s.loc)

	a, err := s.repo.RecentActivity(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	a.Since, a.Days = since, days
	return a, nil
}

func (s *Service) DoctorPerformance(ctx context.Context, r Range) ([]DoctorPerformance, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	out, err := s.repo.DoctorPerformance(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("doctor performance: %w", err)
	}
	for i := range out {
		out[i].CompletionRate = completionRate(out[i].Completed, out[i].Total)
	}
	if out == nil {
		out = []DoctorPerformance{}
	}
	return out, nil
}

// Financial totals bills by status. Cancelled bills are not billed;
// refunded bills were billed but are not collected.
func (s *Service) Financial(ctx context.Context, r Range) (*Financial, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	totals, err := s.repo.BillTotals(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("financial report: %w", err)
	}
	f := &Financial{Range: r, ByStatus: totals}
	if f.ByStatus == nil {
		f.ByStatus = []StatusTotal{}
	}
	for _, t := range totals {
		switch t.Status {
		case "pending":
			f.OutstandingCents += t.AmountCents
		case "paid":
			f.CollectedCents += t.AmountCents
		}
		if t.Status != "cancelled" {
			f.TotalBilledCents += t.AmountCents
		}
	}
	return f, nil
}

func (s *Service) TopMedications(ctx context.Context, r Range, limit int) ([]MedicationCount, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = DefaultTopMedications
	}
	if limit < 0 || limit > MaxTopMedications {
		return nil, apperr.Validation("limit must be between 1 and %d", MaxTopMedications)
	}
	out, err := s.repo.TopMedications(ctx, r, limit)
	if err != nil {
		return nil, fmt.Errorf("top medications: %w", err)
	}
	if out == nil {
		out = []MedicationCount{}
	}
	return out, nil
}

func (r Range) validate() error {
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return apperr.Validation("to must not be before from")
	}
	return nil
}

// completionRate is a percentage rounded to one decimal.
func completionRate(completed, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(completed)*1000/float64(total)) / 10
}
