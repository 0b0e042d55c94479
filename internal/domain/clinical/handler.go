package clinical

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/civil"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/prescriptions", h.CreatePrescription, auth.RequireRole("doctor"))
	api.GET("/prescriptions", h.ListPrescriptions, auth.RequireRole("doctor", "patient"))
	api.GET("/prescriptions/:id", h.GetPrescription, auth.RequireRole("doctor", "patient"))
	api.PATCH("/prescriptions/:id/status", h.UpdatePrescriptionStatus, auth.RequireRole("doctor"))

	api.POST("/medical-records", h.CreateRecord, auth.RequireRole("doctor"))
	api.GET("/medical-records", h.ListRecords, auth.RequireRole("doctor", "patient"))
	api.GET("/medical-records/:id", h.GetRecord, auth.RequireRole("doctor", "patient"))
	api.PATCH("/medical-records/:id", h.UpdateRecord, auth.RequireRole("doctor"))
}

// -- Prescriptions --

func (h *Handler) CreatePrescription(c echo.Context) error {
	var req PrescriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if !auth.HasRole(ctx, auth.RoleAdmin) {
		req.DoctorID = auth.ProfileIDFromContext(ctx)
	}
	rx, err := h.svc.CreatePrescription(ctx, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, rx)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	rx, err := h.svc.GetPrescription(ctx, id, includeDeleted(c))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if !canSeePatient(ctx, rx.PatientID) {
		return apperr.ToHTTP(ErrPrescriptionNotFound)
	}
	return c.JSON(http.StatusOK, rx)
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	f := PrescriptionFilter{
		Status: PrescriptionStatus(c.QueryParam("status")),
		Page:   pagination.FromContext(c),
	}
	var err error
	if f.PatientID, f.DoctorID, err = partyParams(c); err != nil {
		return err
	}
	if f.From, f.To, err = dateRange(c); err != nil {
		return err
	}
	f.Visibility = visibility(c)

	items, total, err := h.svc.ListPrescriptions(c.Request().Context(), f)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, f.Page.Limit, f.Page.Offset))
}

type prescriptionStatusRequest struct {
	Status PrescriptionStatus `json:"status"`
}

func (h *Handler) UpdatePrescriptionStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req prescriptionStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rx, err := h.svc.UpdatePrescriptionStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rx)
}

// -- Medical records --

func (h *Handler) CreateRecord(c echo.Context) error {
	var req RecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if !auth.HasRole(ctx, auth.RoleAdmin) {
		req.DoctorID = auth.ProfileIDFromContext(ctx)
	}
	m, err := h.svc.CreateRecord(ctx, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	m, err := h.svc.GetRecord(ctx, id, includeDeleted(c))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if !canSeePatient(ctx, m.PatientID) {
		return apperr.ToHTTP(ErrRecordNotFound)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListRecords(c echo.Context) error {
	f := RecordFilter{
		Diagnosis: c.QueryParam("diagnosis"),
		Page:      pagination.FromContext(c),
	}
	var err error
	if f.PatientID, f.DoctorID, err = partyParams(c); err != nil {
		return err
	}
	if f.From, f.To, err = dateRange(c); err != nil {
		return err
	}
	f.Visibility = visibility(c)

	items, total, err := h.svc.ListRecords(c.Request().Context(), f)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, f.Page.Limit, f.Page.Offset))
}

// UpdateRecord lets the authoring doctor amend a record.
func (h *Handler) UpdateRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var upd RecordUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if !auth.HasRole(ctx, auth.RoleAdmin) {
		m, err := h.svc.GetRecord(ctx, id, false)
		if err != nil {
			return apperr.ToHTTP(err)
		}
		if m.DoctorID != auth.ProfileIDFromContext(ctx) {
			return echo.NewHTTPError(http.StatusForbidden, "only the authoring doctor may amend a record")
		}
	}
	m, err := h.svc.UpdateRecord(ctx, id, upd)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

// -- helpers --

func isPatient(ctx context.Context) bool {
	if auth.HasRole(ctx, auth.RoleAdmin) {
		return false
	}
	for _, r := range auth.RolesFromContext(ctx) {
		if r == "patient" {
			return true
		}
	}
	return false
}

// canSeePatient hides other patients' entries from a patient caller.
func canSeePatient(ctx context.Context, patientID int64) bool {
	return !isPatient(ctx) || auth.ProfileIDFromContext(ctx) == patientID
}

// partyParams reads patient_id and doctor_id. Patients are always scoped to
// their own entries.
func partyParams(c echo.Context) (patientID, doctorID int64, err error) {
	if patientID, err = int64Param(c, "patient_id"); err != nil {
		return 0, 0, err
	}
	if doctorID, err = int64Param(c, "doctor_id"); err != nil {
		return 0, 0, err
	}
	ctx := c.Request().Context()
	if isPatient(ctx) {
		patientID = auth.ProfileIDFromContext(ctx)
	}
	return patientID, doctorID, nil
}

func visibility(c echo.Context) db.Visibility {
	if !auth.HasRole(c.Request().Context(), auth.RoleAdmin) {
		return db.Visibility{}
	}
	return db.VisibilityFromContext(c)
}

func includeDeleted(c echo.Context) bool {
	v := visibility(c)
	return v.IncludeDeleted || v.OnlyDeleted
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func int64Param(c echo.Context, name string) (int64, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func dateRange(c echo.Context) (from, to *civil.Date, err error) {
	parse := func(name string) (*civil.Date, error) {
		v := c.QueryParam(name)
		if v == "" {
			return nil, nil
		}
		d, err := civil.ParseDate(v)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": expected YYYY-MM-DD")
		}
		return &d, nil
	}
	if from, err = parse("from"); err != nil {
		return nil, nil, err
	}
	if to, err = parse("to"); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}
