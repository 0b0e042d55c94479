package person

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
	jwt auth.JWTConfig
	now func() time.Time
}

// NewHandler builds the person handler. Login only issues tokens when
// jwtCfg carries a signing key.
func NewHandler(svc *Service, jwtCfg auth.JWTConfig) *Handler {
	return &Handler{svc: svc, jwt: jwtCfg, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/login", h.Login)
	api.POST("/auth/register", h.RegisterPatient)

	api.POST("/patients", h.RegisterPatient, auth.RequireRole(auth.RoleAdmin))
	api.GET("/patients", h.ListPatients, auth.RequireRole("doctor"))
	api.GET("/patients/:id", h.GetPatient, auth.RequireRole("doctor", "patient"))
	api.PATCH("/patients/:id", h.UpdatePatient, auth.RequireRole("patient"))

	api.POST("/doctors", h.RegisterDoctor, auth.RequireRole(auth.RoleAdmin))
	api.GET("/doctors", h.ListDoctors, auth.RequireRole("doctor", "patient"))
	api.GET("/doctors/:id", h.GetDoctor, auth.RequireRole("doctor", "patient"))
	api.PATCH("/doctors/:id", h.UpdateDoctor, auth.RequireRole("doctor"))

	admins := api.Group("/admins", auth.RequireRole(auth.RoleAdmin))
	admins.POST("", h.RegisterAdmin)
	admins.GET("", h.ListAdmins)
	admins.GET("/:id", h.GetAdmin)
	admins.PATCH("/:id", h.UpdateAdmin)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Account   *Account   `json:"account"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.svc.Authenticate(c.Request().Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidCredentials.Msg)
	}
	if err != nil {
		return apperr.ToHTTP(err)
	}

	resp := loginResponse{Account: acct}
	if len(h.jwt.SigningKey) > 0 {
		token, exp, err := auth.IssueToken(h.jwt, acct.User.ID, string(acct.User.Role), acct.ProfileID, h.now())
		if err != nil {
			return apperr.ToHTTP(err)
		}
		resp.Token = token
		resp.ExpiresAt = &exp
	}
	return c.JSON(http.StatusOK, resp)
}

// -- Patient Handlers --

func (h *Handler) RegisterPatient(c echo.Context) error {
	var req PatientRegistration
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.RegisterPatient(c.Request().Context(), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := requireSelf(c, "patient", id); err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id, includeDeleted(c))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	f := listFilter(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), f)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, f.Page.Limit, f.Page.Offset))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := requireSelf(c, "patient", id); err != nil {
		return err
	}
	var upd PatientUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), id, upd)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

// -- Doctor Handlers --

func (h *Handler) RegisterDoctor(c echo.Context) error {
	var req DoctorRegistration
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.RegisterDoctor(c.Request().Context(), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id, includeDeleted(c))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	f := listFilter(c)
	f.Specialization = c.QueryParam("specialization")
	f.Department = c.QueryParam("department")
	items, total, err := h.svc.ListDoctors(c.Request().Context(), f)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, f.Page.Limit, f.Page.Offset))
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := requireSelf(c, "doctor", id); err != nil {
		return err
	}
	var upd DoctorUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.UpdateDoctor(c.Request().Context(), id, upd)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

// -- Admin Handlers --

func (h *Handler) RegisterAdmin(c echo.Context) error {
	var req AdminRegistration
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.RegisterAdmin(c.Request().Context(), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAdmin(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAdmin(c.Request().Context(), id, includeDeleted(c))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAdmins(c echo.Context) error {
	f := listFilter(c)
	items, total, err := h.svc.ListAdmins(c.Request().Context(), f)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, f.Page.Limit, f.Page.Offset))
}

func (h *Handler) UpdateAdmin(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var upd AdminUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateAdmin(c.Request().Context(), id, upd)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

// -- helpers --

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// requireSelf restricts callers whose only role is role to their own
// profile. Other permitted roles pass through.
func requireSelf(c echo.Context, role string, id int64) error {
	ctx := c.Request().Context()
	if auth.HasRole(ctx, auth.RoleAdmin) {
		return nil
	}
	for _, r := range auth.RolesFromContext(ctx) {
		if r == role && auth.ProfileIDFromContext(ctx) != id {
			return echo.NewHTTPError(http.StatusForbidden, "access limited to own record")
		}
	}
	return nil
}

// includeDeleted honours include_deleted for admins only.
func includeDeleted(c echo.Context) bool {
	if !auth.HasRole(c.Request().Context(), auth.RoleAdmin) {
		return false
	}
	v := db.VisibilityFromContext(c)
	return v.IncludeDeleted || v.OnlyDeleted
}

func listFilter(c echo.Context) ListFilter {
	f := ListFilter{
		Query: c.QueryParam("q"),
		Page:  pagination.FromContext(c),
	}
	if auth.HasRole(c.Request().Context(), auth.RoleAdmin) {
		f.Visibility = db.VisibilityFromContext(c)
	}
	return f
}
