package handler

import (
	"net/http"

	"github.com/Eursukkul/residence-booking/internal/auth"
	"github.com/Eursukkul/residence-booking/internal/dto"
	"github.com/Eursukkul/residence-booking/internal/middleware"
	"github.com/Eursukkul/residence-booking/internal/service"
	"github.com/labstack/echo/v4"
)

type SettlementHandler struct {
	settlement service.SettlementService
}

func NewSettlementHandler(settlement service.SettlementService) *SettlementHandler {
	return &SettlementHandler{settlement: settlement}
}

func (h *SettlementHandler) RegisterRoutes(api *echo.Group) {
	api.POST("/bookings/:id/release", h.Release, middleware.RequireRole(auth.RoleAdmin))
}

func (h *SettlementHandler) Release(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req dto.ReleaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	booking, err := h.settlement.Release(c.Request().Context(), id, a, req.PayoutReference)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponse(booking, booking.Status, 0))
}
