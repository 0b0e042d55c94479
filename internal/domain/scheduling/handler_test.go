package scheduling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
)

func withRole(req *http.Request, profileID int64, role string) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), "u", profileID, role))
}

func errCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_GetSlots(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	req := withRole(httptest.NewRequest(http.MethodGet, "/?date=2025-03-11", nil), 1, "patient")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1")

	if err := h.GetSlots(c); err != nil {
		t.Fatalf("GetSlots: %v", err)
	}
	var resp struct {
		Slots []string `json:"slots"`
		Date  string   `json:"date"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Date != "2025-03-11" || len(resp.Slots) != 6 || resp.Slots[0] != "09:00" || resp.Slots[5] != "11:30" {
		t.Errorf("unexpected response %s", rec.Body.String())
	}
}

func TestHandler_GetSlots_Errors(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	tests := []struct {
		name  string
		id    string
		query string
		want  int
	}{
		{"missing date", "1", "", http.StatusBadRequest},
		{"bad date", "1", "?date=11/03/2025", http.StatusBadRequest},
		{"bad id", "x", "?date=2025-03-11", http.StatusBadRequest},
		{"deleted doctor", "2", "?date=2025-03-11", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(withRole(httptest.NewRequest(http.MethodGet, "/"+tt.query, nil), 1, "patient"), httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues(tt.id)
			if code := errCode(t, h.GetSlots(c)); code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, code)
			}
		})
	}
}

func TestHandler_Book_PatientBooksForSelf(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	req := withRole(jsonRequest(http.MethodPost, `{"patient_id":1,"doctor_id":1,"date":"2025-03-11","time":"10:00","reason":"checkup"}`), 2, "patient")
	rec := httptest.NewRecorder()
	if err := h.Book(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Book: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var a Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatal(err)
	}
	if a.PatientID != 2 || a.Status != StatusScheduled || a.Time != hm(10, 0) {
		t.Errorf("unexpected appointment %+v", a)
	}
}

func TestHandler_Book_Conflict(t *testing.T) {
	f := newFixture()
	f.book(t, 1, tomorrow, hm(10, 0))
	h := NewHandler(f.svc)

	req := withRole(jsonRequest(http.MethodPost, `{"doctor_id":1,"date":"2025-03-11","time":"10:00"}`), 2, "patient")
	if code := errCode(t, h.Book(echo.New().NewContext(req, httptest.NewRecorder()))); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestHandler_UpdateStatus_PatientMayOnlyCancel(t *testing.T) {
	f := newFixture()
	a := f.book(t, 1, tomorrow, hm(9, 0))
	h := NewHandler(f.svc)
	e := echo.New()

	c := e.NewContext(withRole(jsonRequest(http.MethodPatch, `{"status":"completed"}`), 1, "patient"), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("1")
	if code := errCode(t, h.UpdateStatus(c)); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}

	rec := httptest.NewRecorder()
	c = e.NewContext(withRole(jsonRequest(http.MethodPatch, `{"status":"cancelled"}`), 1, "patient"), rec)
	c.SetParamNames("id")
	c.SetParamValues("1")
	if err := h.UpdateStatus(c); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.repo.appts[a.ID].Status != StatusCancelled {
		t.Errorf("status = %s", f.repo.appts[a.ID].Status)
	}
}

func TestHandler_UpdateStatus_DoctorCompletes(t *testing.T) {
	f := newFixture()
	f.book(t, 1, tomorrow, hm(9, 0))
	h := NewHandler(f.svc)

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(withRole(jsonRequest(http.MethodPatch, `{"status":"completed"}`), 1, "doctor"), rec)
	c.SetParamNames("id")
	c.SetParamValues("1")
	if err := h.UpdateStatus(c); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(f.biller.bills) != 1 {
		t.Errorf("expected one bill, got %d", len(f.biller.bills))
	}
}

func TestHandler_GetAppointment_HiddenFromOthers(t *testing.T) {
	f := newFixture()
	f.book(t, 1, tomorrow, hm(9, 0))
	h := NewHandler(f.svc)
	e := echo.New()

	for _, tc := range []struct {
		role    string
		profile int64
	}{{"patient", 2}, {"doctor", 3}} {
		c := e.NewContext(withRole(httptest.NewRequest(http.MethodGet, "/", nil), tc.profile, tc.role), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues("1")
		if code := errCode(t, h.GetAppointment(c)); code != http.StatusNotFound {
			t.Errorf("%s %d: expected 404, got %d", tc.role, tc.profile, code)
		}
	}
}

func TestHandler_ListAppointments_ScopedToDoctor(t *testing.T) {
	f := newFixture()
	f.book(t, 1, tomorrow, hm(9, 0))
	other := f.seed(tomorrow, hm(9, 30), StatusScheduled)
	f.repo.appts[other.ID].DoctorID = 3

	rec := httptest.NewRecorder()
	req := withRole(httptest.NewRequest(http.MethodGet, "/?doctor_id=3", nil), 1, "doctor")
	if err := NewHandler(f.svc).ListAppointments(echo.New().NewContext(req, rec)); err != nil {
		t.Fatalf("ListAppointments: %v", err)
	}
	var resp struct {
		Total int            `json:"total"`
		Data  []*Appointment `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Data[0].DoctorID != 1 {
		t.Errorf("doctor should only see own appointments, got %s", rec.Body.String())
	}
}

func TestHandler_OverrideAndSweep(t *testing.T) {
	f := newFixture()
	f.seed(yesterday, hm(9, 0), StatusScheduled)
	h := NewHandler(f.svc)
	e := echo.New()

	rec := httptest.NewRecorder()
	req := withRole(httptest.NewRequest(http.MethodPost, "/", nil), 0, auth.RoleAdmin)
	if err := h.RunNoShowSweep(e.NewContext(req, rec)); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"marked":1`) || !strings.Contains(rec.Body.String(), `"as_of":"2025-03-10"`) {
		t.Errorf("unexpected sweep response %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c := e.NewContext(withRole(jsonRequest(http.MethodPut, `{"status":"completed"}`), 0, auth.RoleAdmin), rec)
	c.SetParamNames("id")
	c.SetParamValues("1")
	if err := h.OverrideStatus(c); err != nil {
		t.Fatalf("override: %v", err)
	}
	if f.repo.appts[1].Status != StatusCompleted || len(f.biller.bills) != 0 {
		t.Errorf("override should set completed without billing, got %s and %d bills", f.repo.appts[1].Status, len(f.biller.bills))
	}

	req = withRole(httptest.NewRequest(http.MethodPost, "/?as_of=yesterday", nil), 0, auth.RoleAdmin)
	if code := errCode(t, h.RunNoShowSweep(e.NewContext(req, httptest.NewRecorder()))); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}
