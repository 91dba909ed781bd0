package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Eursukkul/residence-booking/internal/auth"
	"github.com/Eursukkul/residence-booking/internal/middleware"
	"github.com/Eursukkul/residence-booking/internal/service"
	"github.com/labstack/echo/v4"
)

var statusByErr = []struct {
	err  error
	code int
}{
	{service.ErrInvalidTransition, http.StatusConflict},
	{service.ErrStaleBooking, http.StatusConflict},
	{service.ErrUnavailable, http.StatusConflict},
	{service.ErrForbidden, http.StatusForbidden},
	{service.ErrAmountMismatch, http.StatusUnprocessableEntity},
	{service.ErrMissingStartDate, http.StatusBadRequest},
	{service.ErrInvalidFormat, http.StatusBadRequest},
	{service.ErrInvalidInput, http.StatusBadRequest},
	{service.ErrNotPaid, http.StatusBadRequest},
	{service.ErrPayoutNotAllowed, http.StatusConflict},
	{service.ErrNotFound, http.StatusNotFound},
	{service.ErrExpired, http.StatusGone},
	{service.ErrGatewayError, http.StatusBadGateway},
	{service.ErrTooManyAttempts, http.StatusTooManyRequests},
}

// httpError maps a service failure onto a status code. Anything unmapped
// surfaces as a 500 through the error handler.
func httpError(err error) error {
	for _, m := range statusByErr {
		if errors.Is(err, m.err) {
			return echo.NewHTTPError(m.code, err.Error())
		}
	}
	return err
}

func pathID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid booking id")
	}
	return uint(id), nil
}

func actor(c echo.Context) (auth.Actor, error) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return auth.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return a, nil
}
