package softdelete

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

type Handler struct {
	mgr *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

// RegisterRoutes adds DELETE /<collection>/:id and POST /<collection>/:id/restore
// for every kind. Both are admin only.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := auth.RequireRole(auth.RoleAdmin)
	for _, k := range Kinds() {
		seg := "/" + kinds[k].segment + "/:id"
		api.DELETE(seg, h.Delete(k), admin)
		api.POST(seg+"/restore", h.Restore(k), admin)
	}
}

func (h *Handler) Delete(kind Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		if err := h.mgr.SoftDelete(c.Request().Context(), kind, id); err != nil {
			return apperr.ToHTTP(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func (h *Handler) Restore(kind Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		if err := h.mgr.Restore(c.Request().Context(), kind, id); err != nil {
			return apperr.ToHTTP(err)
		}
		return c.JSON(http.StatusOK, Result{Kind: kind, ID: id})
	}
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}
