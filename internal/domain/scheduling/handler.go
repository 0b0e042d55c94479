package scheduling

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
	api.GET("/doctors/:id/slots", h.GetSlots, auth.RequireRole("doctor", "patient"))

	api.POST("/appointments", h.Book, auth.RequireRole("patient"))
	api.GET("/appointments", h.ListAppointments, auth.RequireRole("doctor", "patient"))
	api.GET("/appointments/:id", h.GetAppointment, auth.RequireRole("doctor", "patient"))
	api.PATCH("/appointments/:id/status", h.UpdateStatus, auth.RequireRole("doctor", "patient"))

	api.PUT("/appointments/:id/override", h.OverrideStatus, auth.RequireRole(auth.RoleAdmin))
	api.POST("/appointments/no-show-sweep", h.RunNoShowSweep, auth.RequireRole(auth.RoleAdmin))
}

type slotsResponse struct {
	DoctorID int64             `json:"doctor_id"`
	Date     civil.Date        `json:"date"`
	Slots    []civil.TimeOfDay `json:"slots"`
}

func (h *Handler) GetSlots(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	date, err := civil.ParseDate(c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	slots, err := h.svc.AvailableSlots(c.Request().Context(), id, date)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, slotsResponse{DoctorID: id, Date: date, Slots: slots})
}

// Book reserves a slot. Patients always book for themselves.
func (h *Handler) Book(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if !auth.HasRole(ctx, auth.RoleAdmin) {
		req.PatientID = auth.ProfileIDFromContext(ctx)
	}
	a, err := h.svc.Book(ctx, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	a, err := h.visibleAppointment(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	ctx := c.Request().Context()
	f := Filter{
		Status: Status(c.QueryParam("status")),
		Page:   pagination.FromContext(c),
	}
	var err error
	if f.PatientID, err = int64Param(c, "patient_id"); err != nil {
		return err
	}
	if f.DoctorID, err = int64Param(c, "doctor_id"); err != nil {
		return err
	}
	if f.From, err = dateParam(c, "from"); err != nil {
		return err
	}
	if f.To, err = dateParam(c, "to"); err != nil {
		return err
	}
	switch {
	case auth.HasRole(ctx, auth.RoleAdmin):
		f.Visibility = db.VisibilityFromContext(c)
	case hasOwnRole(ctx, "doctor"):
		f.DoctorID = auth.ProfileIDFromContext(ctx)
	default:
		f.PatientID = auth.ProfileIDFromContext(ctx)
	}

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, f.Page.Limit, f.Page.Offset))
}

// UpdateStatus completes or cancels an appointment. Doctors act on their
// own appointments; patients may only cancel theirs.
func (h *Handler) UpdateStatus(c echo.Context) error {
	a, err := h.visibleAppointment(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if !auth.HasRole(ctx, auth.RoleAdmin) && !hasOwnRole(ctx, "doctor") && req.Status != StatusCancelled {
		return echo.NewHTTPError(http.StatusForbidden, "patients may only cancel appointments")
	}
	updated, err := h.svc.UpdateStatus(ctx, a.ID, req.Status)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) OverrideStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.OverrideStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

// RunNoShowSweep sweeps as of the as_of date, defaulting to today.
func (h *Handler) RunNoShowSweep(c echo.Context) error {
	ctx := c.Request().Context()
	asOf, err := dateParam(c, "as_of")
	if err != nil {
		return err
	}
	var res *SweepResult
	if asOf == nil {
		res, err = h.svc.SweepToday(ctx)
	} else {
		res, err = h.svc.RunNoShowSweep(ctx, *asOf)
	}
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

// visibleAppointment loads :id and hides appointments the caller is not a
// party to.
func (h *Handler) visibleAppointment(c echo.Context) (*Appointment, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	ctx := c.Request().Context()
	admin := auth.HasRole(ctx, auth.RoleAdmin)
	includeDeleted := false
	if admin {
		v := db.VisibilityFromContext(c)
		includeDeleted = v.IncludeDeleted || v.OnlyDeleted
	}
	a, err := h.svc.Get(ctx, id, includeDeleted)
	if err != nil {
		return nil, apperr.ToHTTP(err)
	}
	if admin {
		return a, nil
	}
	profile := auth.ProfileIDFromContext(ctx)
	if hasOwnRole(ctx, "doctor") && a.DoctorID == profile {
		return a, nil
	}
	if hasOwnRole(ctx, "patient") && a.PatientID == profile {
		return a, nil
	}
	return nil, apperr.ToHTTP(ErrAppointmentNotFound)
}

// hasOwnRole checks the caller's roles without the admin pass-through of
// auth.HasRole.
func hasOwnRole(ctx context.Context, role string) bool {
	for _, r := range auth.RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
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

func dateParam(c echo.Context, name string) (*civil.Date, error) {
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
