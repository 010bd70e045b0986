package frontdesk

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cliniq/cliniq/internal/domain/queue"
	"github.com/cliniq/cliniq/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/frontdesk", auth.RequireRole(auth.RoleFrontDesk))
	g.POST("/verify", h.Verify)
	g.POST("/checkin", h.CheckIn)
}

type verifyRequest struct {
	Code string `json:"code"`
}

func (h *Handler) Verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code is required")
	}

	res, err := h.svc.Verify(c.Request().Context(), req.Code)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "verification failed")
	}
	return c.JSON(http.StatusOK, res)
}

type checkInRequest struct {
	Code        string `json:"code"`
	DoctorID    string `json:"doctor_id"`
	PatientName string `json:"patient_name"`
}

type checkInResponse struct {
	Result VerifyResult `json:"result"`
	Entry  *queue.Entry `json:"entry,omitempty"`
}

func (h *Handler) CheckIn(c echo.Context) error {
	var req checkInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code is required")
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}

	entry, res, err := h.svc.CheckIn(c.Request().Context(), CheckInInput{
		Code:        req.Code,
		DoctorID:    doctorID,
		PatientName: req.PatientName,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotApproved):
			// The body tells the clerk which gate blocked the visit.
			return c.JSON(http.StatusConflict, checkInResponse{Result: res})
		case errors.Is(err, queue.ErrNoDoctor):
			return echo.NewHTTPError(http.StatusConflict, "doctor is not on duty")
		case errors.Is(err, queue.ErrAlreadyQueued):
			return echo.NewHTTPError(http.StatusConflict, "patient is already in a queue today")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "check-in failed")
		}
	}
	return c.JSON(http.StatusCreated, checkInResponse{Result: res, Entry: entry})
}
