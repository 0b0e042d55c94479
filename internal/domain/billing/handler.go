package billing

import (
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
	api.POST("/bills", h.CreateBill, auth.RequireRole(auth.RoleAdmin))
	api.GET("/bills", h.ListBills, auth.RequireRole("patient"))
	api.GET("/bills/:id", h.GetBill, auth.RequireRole("patient"))
	api.PATCH("/bills/:id/status", h.UpdateStatus, auth.RequireRole(auth.RoleAdmin))
	api.POST("/bills/:id/pay", h.Pay, auth.RequireRole("patient"))
}

func (h *Handler) CreateBill(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBill(c echo.Context) error {
	b, err := h.ownBill(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBills(c echo.Context) error {
	ctx := c.Request().Context()
	f := Filter{
		Status: Status(c.QueryParam("status")),
		Page:   pagination.FromContext(c),
	}
	if auth.HasRole(ctx, auth.RoleAdmin) {
		f.Visibility = db.VisibilityFromContext(c)
		if v := c.QueryParam("patient_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
			}
			f.PatientID = id
		}
	} else {
		f.PatientID = auth.ProfileIDFromContext(ctx)
	}
	var err error
	if f.From, err = dateParam(c, "from"); err != nil {
		return err
	}
	if f.To, err = dateParam(c, "to"); err != nil {
		return err
	}

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, f.Page.Limit, f.Page.Offset))
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status, req.PaymentMethod)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Pay(c echo.Context) error {
	b, err := h.ownBill(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	paid, err := h.svc.Pay(c.Request().Context(), b.ID, req.PaymentMethod)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, paid)
}

// ownBill loads the bill named by :id. Patients only see their own bills;
// anyone else's is reported as missing.
func (h *Handler) ownBill(c echo.Context) (*Bill, error) {
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
	b, err := h.svc.Get(ctx, id, includeDeleted)
	if err != nil {
		return nil, apperr.ToHTTP(err)
	}
	if !admin && b.PatientID != auth.ProfileIDFromContext(ctx) {
		return nil, apperr.ToHTTP(ErrBillNotFound)
	}
	return b, nil
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
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
