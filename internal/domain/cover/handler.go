package cover

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cliniq/cliniq/internal/platform/auth"
	"github.com/cliniq/cliniq/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	patientGroup := api.Group("/cover", auth.RequireRole(auth.RolePatient))
	patientGroup.POST("", h.Submit)
	patientGroup.GET("/gate", h.Gate)
	patientGroup.GET("/mine", h.ListMine)

	adminGroup := api.Group("/cover", auth.RequireRole(auth.RoleAdmin))
	adminGroup.GET("/pending", h.ListPending)
	adminGroup.POST("/:id/review", h.Review)
}

type submitRequest struct {
	UserEmail     string `json:"user_email"`
	Country       string `json:"country"`
	InsuranceName string `json:"insurance_name"`
	MemberNumber  string `json:"member_number"`
}

func (h *Handler) Submit(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	lr := &LinkRequest{
		UserID:        auth.UserIDFromContext(c.Request().Context()),
		UserEmail:     req.UserEmail,
		Country:       req.Country,
		InsuranceName: req.InsuranceName,
		MemberNumber:  req.MemberNumber,
	}
	if err := h.svc.Submit(c.Request().Context(), lr); err != nil {
		if errors.Is(err, ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "submit failed")
	}
	return c.JSON(http.StatusCreated, lr)
}

func (h *Handler) Gate(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	return c.JSON(http.StatusOK, h.svc.Evaluate(c.Request().Context(), userID))
}

func (h *Handler) ListMine(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	items, err := h.svc.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListPending(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPending(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type reviewRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

func (h *Handler) Review(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	reviewerID := auth.UserIDFromContext(c.Request().Context())
	reviewed, err := h.svc.Review(c.Request().Context(), id, req.Approve, req.Note, reviewerID)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "cover link request not found")
		case errors.Is(err, ErrAlreadyReviewed):
			return echo.NewHTTPError(http.StatusConflict, "request already reviewed")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "review failed")
		}
	}
	return c.JSON(http.StatusOK, reviewed)
}
