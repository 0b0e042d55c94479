package person

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
)

var handlerKey = []byte("handler-test-key")

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _ := newTestService()
	h := NewHandler(svc, auth.JWTConfig{SigningKey: handlerKey, Issuer: "clinic"})
	return h, svc, echo.New()
}

func asRole(req *http.Request, profileID int64, role string) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), "1", profileID, role))
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

func TestHandler_Login_IssuesToken(t *testing.T) {
	h, svc, e := newTestHandler()
	if _, err := svc.RegisterPatient(context.Background(), patientReg("pat@example.com")); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"email":"pat@example.com","password":"secret"}`), rec)
	if err := h.Login(c); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Token   string `json:"token"`
		Account struct {
			ProfileID int64 `json:"profile_id"`
			User      struct {
				Role     string `json:"role"`
				Password string `json:"password"`
			} `json:"user"`
		} `json:"account"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected a signed token")
	}
	if resp.Account.User.Role != "patient" || resp.Account.ProfileID == 0 {
		t.Errorf("unexpected account %+v", resp.Account)
	}
	if strings.Contains(rec.Body.String(), "hashed:") {
		t.Error("password hash leaked into the response")
	}
}

func TestHandler_Login_BadCredentials(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"email":"x@example.com","password":"nope"}`), httptest.NewRecorder())
	if code := httpCode(t, h.Login(c)); code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", code)
	}
}

func TestHandler_RegisterPatient(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"email":"new@example.com","password":"pw","name":"New Patient","blood_type":"A+","date_of_birth":"1990-04-01"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, body), rec)

	if err := h.RegisterPatient(c); err != nil {
		t.Fatalf("RegisterPatient: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"date_of_birth":"1990-04-01"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_RegisterPatient_Duplicate(t *testing.T) {
	h, svc, e := newTestHandler()
	svc.RegisterPatient(context.Background(), patientReg("dup@example.com"))

	body := `{"email":"dup@example.com","password":"pw","name":"Again"}`
	c := e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())
	if code := httpCode(t, h.RegisterPatient(c)); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestHandler_RegisterDoctor_BadWindow(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"email":"doc@example.com","password":"pw","name":"Doc","from_time":"14:00","until_time":"09:00"}`
	c := e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())
	if code := httpCode(t, h.RegisterDoctor(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_GetPatient_SelfOnly(t *testing.T) {
	h, svc, e := newTestHandler()
	p, _ := svc.RegisterPatient(context.Background(), patientReg("pat@example.com"))

	req := asRole(httptest.NewRequest(http.MethodGet, "/", nil), p.ID+1, "patient")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("1")
	if code := httpCode(t, h.GetPatient(c)); code != http.StatusForbidden {
		t.Errorf("expected 403 for another patient's record, got %d", code)
	}

	req = asRole(httptest.NewRequest(http.MethodGet, "/", nil), p.ID, "patient")
	rec := httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1")
	if err := h.GetPatient(c); err != nil {
		t.Fatalf("own record: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetPatient_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	req := asRole(httptest.NewRequest(http.MethodGet, "/", nil), 0, "admin")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("abc")
	if code := httpCode(t, h.GetPatient(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_GetDoctor_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	req := asRole(httptest.NewRequest(http.MethodGet, "/", nil), 0, "patient")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("99")
	if code := httpCode(t, h.GetDoctor(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_ListDoctors(t *testing.T) {
	h, svc, e := newTestHandler()
	svc.RegisterDoctor(context.Background(), doctorReg("a@example.com"))
	svc.RegisterDoctor(context.Background(), doctorReg("b@example.com"))

	req := asRole(httptest.NewRequest(http.MethodGet, "/?specialization=cardio", nil), 1, "patient")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.ListDoctors(c); err != nil {
		t.Fatalf("ListDoctors: %v", err)
	}

	var resp struct {
		Total int `json:"total"`
		Limit int `json:"limit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || resp.Limit != 20 {
		t.Errorf("unexpected page %+v", resp)
	}
}
