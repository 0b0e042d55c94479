package reports

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
)

func serve(t *testing.T, repo *mockRepo, target string, roles ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	NewHandler(newTestService(repo)).RegisterRoutes(e.Group("/api/v1"))
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), "u", 1, roles...))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_AdminOnly(t *testing.T) {
	if rec := serve(t, &mockRepo{}, "/api/v1/reports/dashboard", "doctor"); rec.Code != http.StatusForbidden {
		t.Errorf("doctor: code = %d, want 403", rec.Code)
	}
	rec := serve(t, &mockRepo{}, "/api/v1/reports/dashboard", auth.RoleAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: code = %d", rec.Code)
	}
	var d Dashboard
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatal(err)
	}
	if d.Patients != 4 || d.Date.String() != "2025-03-10" {
		t.Errorf("dashboard = %+v", d)
	}
}

func TestHandler_Params(t *testing.T) {
	tests := []struct {
		target string
		want   int
	}{
		{"/api/v1/reports/recent?days=14", http.StatusOK},
		{"/api/v1/reports/recent?days=abc", http.StatusBadRequest},
		{"/api/v1/reports/recent?days=-3", http.StatusBadRequest},
		{"/api/v1/reports/financial?from=2025-03-01&to=2025-03-31", http.StatusOK},
		{"/api/v1/reports/financial?from=March", http.StatusBadRequest},
		{"/api/v1/reports/doctors?from=2025-03-31&to=2025-03-01", http.StatusBadRequest},
		{"/api/v1/reports/medications?limit=10", http.StatusOK},
		{"/api/v1/reports/medications?limit=500", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			if rec := serve(t, &mockRepo{}, tt.target, auth.RoleAdmin); rec.Code != tt.want {
				t.Errorf("code = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestHandler_MedicationsPassesLimit(t *testing.T) {
	repo := &mockRepo{}
	if rec := serve(t, repo, "/api/v1/reports/medications?limit=10&from=2025-01-01", auth.RoleAdmin); rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if repo.limit != 10 || repo.rng.From == nil || repo.rng.From.String() != "2025-01-01" {
		t.Errorf("limit = %d, range = %+v", repo.limit, repo.rng)
	}
}
