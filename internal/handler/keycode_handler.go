package handler

import (
	"net/http"

	"github.com/Eursukkul/residence-booking/internal/dto"
	"github.com/Eursukkul/residence-booking/internal/service"
	"github.com/labstack/echo/v4"
)

type KeyCodeHandler struct {
	keys service.KeyExchangeService
}

func NewKeyCodeHandler(keys service.KeyExchangeService) *KeyCodeHandler {
	return &KeyCodeHandler{keys: keys}
}

func (h *KeyCodeHandler) RegisterRoutes(api *echo.Group) {
	api.POST("/bookings/redeem-key", h.RedeemKeyCode)
	api.POST("/bookings/:id/key-code", h.IssueKeyCode)
	api.GET("/bookings/:id/key-code", h.CurrentKeyCode)
}

func (h *KeyCodeHandler) IssueKeyCode(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	code, err := h.keys.Issue(c.Request().Context(), id, a)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, dto.ToKeyCodeResponse(code))
}

func (h *KeyCodeHandler) CurrentKeyCode(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	code, err := h.keys.Current(c.Request().Context(), id, a)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dto.ToKeyCodeResponse(code))
}

func (h *KeyCodeHandler) RedeemKeyCode(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}

	var req dto.RedeemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	booking, err := h.keys.Redeem(c.Request().Context(), req.Code, a)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponse(booking, booking.Status, 0))
}
