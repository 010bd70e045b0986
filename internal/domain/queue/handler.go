package queue

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cliniq/cliniq/internal/platform/auth"
)

type Handler struct {
	coord *Coordinator
}

func NewHandler(coord *Coordinator) *Handler {
	return &Handler{coord: coord}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	patientGroup := api.Group("/queue", auth.RequireRole(auth.RolePatient))
	patientGroup.GET("/mine", h.Mine)

	boardGroup := api.Group("/queue", auth.RequireRole(auth.RoleDoctor, auth.RoleFrontDesk))
	boardGroup.GET("/:doctorID", h.Board)
	boardGroup.GET("/:doctorID/completed", h.Completed)

	doctorGroup := api.Group("/queue", auth.RequireRole(auth.RoleDoctor))
	doctorGroup.POST("/entries/:id/complete", h.Complete)
	doctorGroup.POST("/entries/:id/call", h.Call)
}

func (h *Handler) Mine(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	entry, err := h.coord.ActiveForPatient(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	if entry == nil {
		return echo.NewHTTPError(http.StatusNotFound, "not in a queue today")
	}
	return c.JSON(http.StatusOK, entry)
}

type boardResponse struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Entries  []*Entry  `json:"entries"`
}

func (h *Handler) Board(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("doctorID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	date := c.QueryParam("date")
	if date == "" {
		date = h.coord.Today()
	}

	entries, err := h.coord.ListForDoctor(c.Request().Context(), doctorID, date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	return c.JSON(http.StatusOK, boardResponse{DoctorID: doctorID, Date: date, Entries: entries})
}

func (h *Handler) Completed(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("doctorID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	entries, err := h.coord.CompletedToday(c.Request().Context(), doctorID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	return c.JSON(http.StatusOK, entries)
}

type completeResponse struct {
	Promoted *Entry `json:"promoted,omitempty"`
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entry id")
	}
	promoted, err := h.coord.Complete(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "queue entry not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "complete failed")
	}
	return c.JSON(http.StatusOK, completeResponse{Promoted: promoted})
}

func (h *Handler) Call(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entry id")
	}
	entry, err := h.coord.Call(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "queue entry not found")
		case errors.Is(err, ErrDoctorBusy):
			return echo.NewHTTPError(http.StatusConflict, "a consultation is already in progress")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "call failed")
		}
	}
	return c.JSON(http.StatusOK, entry)
}
