package reports

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/civil"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole(auth.RoleAdmin))
	g.GET("/dashboard", h.Dashboard)
	g.GET("/recent", h.RecentActivity)
	g.GET("/doctors", h.DoctorPerformance)
	g.GET("/financial", h.Financial)
	g.GET("/medications", h.TopMedications)
}

func (h *Handler) Dashboard(c echo.Context) error {
	d, err := h.svc.Dashboard(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) RecentActivity(c echo.Context) error {
	days, err := intParam(c, "days")
	if err != nil {
		return err
	}
	a, err := h.svc.RecentActivity(c.Request().Context(), days)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DoctorPerformance(c echo.Context) error {
	r, err := rangeParams(c)
	if err != nil {
		return err
	}
	out, err := h.svc.DoctorPerformance(c.Request().Context(), r)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": out})
}

func (h *Handler) Financial(c echo.Context) error {
	r, err := rangeParams(c)
	if err != nil {
		return err
	}
	f, err := h.svc.Financial(c.Request().Context(), r)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) TopMedications(c echo.Context) error {
	r, err := rangeParams(c)
	if err != nil {
		return err
	}
	limit, err := intParam(c, "limit")
	if err != nil {
		return err
	}
	out, err := h.svc.TopMedications(c.Request().Context(), r, limit)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": out})
}

func intParam(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}

func rangeParams(c echo.Context) (Range, error) {
	var r Range
	for name, dst := range map[string]**civil.Date{"from": &r.From, "to": &r.To} {
		v := c.QueryParam(name)
		if v == "" {
			continue
		}
		d, err := civil.ParseDate(v)
		if err != nil {
			return Range{}, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": expected YYYY-MM-DD")
		}
		*dst = &d
	}
	return r, nil
}
