package stock

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rebekz/simRS-sub002/internal/domain/prescription"
	"github.com/rebekz/simRS-sub002/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("pharmacist", "technician"))
	g.POST("/prescriptions/:id/stock-check", h.RunCheck)
	g.GET("/prescriptions/:id/stock-checks", h.ListChecks)
	g.POST("/stock-checks/:id/accept-alternative", h.AcceptAlternative)
}

func (h *Handler) RunCheck(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid prescription id")
	}
	records, err := h.svc.CheckAvailability(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrDrugNotFound):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, prescription.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) ListChecks(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid prescription id")
	}
	records, err := h.svc.ListChecks(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, records)
}

type acceptAlternativeRequest struct {
	ActorID uuid.UUID `json:"actor_id"`
}

func (h *Handler) AcceptAlternative(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid stock check id")
	}
	var req acceptAlternativeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ActorID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "actor_id is required")
	}
	rec, err := h.svc.AcceptAlternative(c.Request().Context(), id, req.ActorID)
	if err != nil {
		if errors.Is(err, ErrCheckNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}
