package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Bookings   *BookingHandler
	Payments   *PaymentHandler
	Keys       *KeyCodeHandler
	Settlement *SettlementHandler
}

// Register mounts the API under /api/v1 behind authMw. The payment webhook
// and health probe stay public.
func (h Handlers) Register(e *echo.Echo, authMw echo.MiddlewareFunc) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api/v1", authMw)
	h.Bookings.RegisterRoutes(api)
	h.Payments.RegisterRoutes(e, api)
	h.Keys.RegisterRoutes(api)
	h.Settlement.RegisterRoutes(api)
}
