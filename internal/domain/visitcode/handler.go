package visitcode

import (
	"net/http"

	"github.com/labstack/echo/v4"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/cliniq/cliniq/internal/platform/auth"
	"github.com/cliniq/cliniq/internal/platform/clock"
)

type Handler struct {
	issuer *Issuer
	clock  clock.Clock
}

func NewHandler(issuer *Issuer, clk clock.Clock) *Handler {
	return &Handler{issuer: issuer, clock: clk}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	patientGroup := api.Group("/codes", auth.RequireRole(auth.RolePatient))
	patientGroup.GET("/active", h.GetActive)
	patientGroup.GET("/active/qr", h.GetActiveQR)

	adminGroup := api.Group("/codes", auth.RequireRole(auth.RoleAdmin))
	adminGroup.POST("/:code/invalidate", h.Invalidate)
}

type activeCodeResponse struct {
	*VisitCode
	SecondsRemaining int `json:"seconds_remaining"`
}

func (h *Handler) GetActive(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	vc, err := h.issuer.GetActive(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	if vc == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active visit code")
	}
	return c.JSON(http.StatusOK, activeCodeResponse{
		VisitCode:        vc,
		SecondsRemaining: vc.SecondsRemaining(h.clock.Now()),
	})
}

// GetActiveQR renders the active code as a QR PNG the front desk can scan
// instead of typing the code.
func (h *Handler) GetActiveQR(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	vc, err := h.issuer.GetActive(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	if vc == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active visit code")
	}

	png, err := qrcode.Encode(vc.Code, qrcode.Medium, 256)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "qr encoding failed")
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

func (h *Handler) Invalidate(c echo.Context) error {
	code := c.Param("code")
	if err := h.issuer.Invalidate(c.Request().Context(), code); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "invalidation failed")
	}
	return c.NoContent(http.StatusNoContent)
}
