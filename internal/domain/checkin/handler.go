package checkin

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cliniq/cliniq/internal/platform/auth"
)

type Handler struct {
	mgr *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/checkin", auth.RequireRole(auth.RolePatient))
	g.GET("", h.Snapshot)
	g.POST("/refresh", h.Refresh)
	g.POST("/code", h.GenerateCode)
	g.DELETE("", h.End)
}

// Snapshot returns the session state, creating the session on first call.
func (h *Handler) Snapshot(c echo.Context) error {
	ctx := c.Request().Context()
	s := h.mgr.Session(ctx, auth.UserIDFromContext(ctx))
	return c.JSON(http.StatusOK, s.Snapshot())
}

// Refresh re-evaluates the gate and queue projection on demand.
func (h *Handler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	s := h.mgr.Session(ctx, auth.UserIDFromContext(ctx))
	s.RefreshGate(ctx)
	s.RefreshQueue(ctx)
	return c.JSON(http.StatusOK, s.Snapshot())
}

type generateRequest struct {
	Purpose string `json:"purpose"`
}

func (h *Handler) GenerateCode(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	s := h.mgr.Session(ctx, auth.UserIDFromContext(ctx))
	snap, err := s.Generate(ctx, req.Purpose)
	if err != nil {
		switch {
		case errors.Is(err, ErrGateNotApproved):
			return echo.NewHTTPError(http.StatusConflict, "insurance cover is not approved")
		case errors.Is(err, ErrAlreadyCheckedIn):
			return echo.NewHTTPError(http.StatusConflict, "already checked in")
		default:
			// The snapshot carries GENERATION_FAILED; surface it with the error.
			return c.JSON(http.StatusBadGateway, snap)
		}
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) End(c echo.Context) error {
	ctx := c.Request().Context()
	h.mgr.End(auth.UserIDFromContext(ctx))
	return c.NoContent(http.StatusNoContent)
}
