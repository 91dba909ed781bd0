package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/Eursukkul/residence-booking/internal/dto"
	"github.com/Eursukkul/residence-booking/internal/service"
	"github.com/Eursukkul/residence-booking/pkg/payment"
	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// provider event payloads are a few kilobytes
const webhookBodyLimit = "64K"

type PaymentHandler struct {
	payments      service.PaymentService
	webhookSecret string
	logger        zerolog.Logger
}

func NewPaymentHandler(payments service.PaymentService, webhookSecret string, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments:      payments,
		webhookSecret: webhookSecret,
		logger:        logger.With().Str("component", "payment_handler").Logger(),
	}
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo, api *echo.Group) {
	api.GET("/bookings/:id/payment-info", h.PaymentInfo)
	api.POST("/bookings/:id/payments", h.InitializePayment)
	api.POST("/payments/verify", h.VerifyPayment)

	// the provider authenticates by signature, not bearer token
	e.POST("/api/v1/payments/webhook", h.Webhook, echoMw.BodyLimit(webhookBodyLimit))
}

func (h *PaymentHandler) PaymentInfo(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	info, err := h.payments.Info(c.Request().Context(), id, a)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, info)
}

func (h *PaymentHandler) InitializePayment(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	session, err := h.payments.Initialize(c.Request().Context(), id, a)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, session)
}

func (h *PaymentHandler) VerifyPayment(c echo.Context) error {
	var req dto.VerifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Reference == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reference is required")
	}

	res, err := h.payments.Verify(c.Request().Context(), req.Reference)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dto.ToVerifyResponse(res))
}

// Webhook re-verifies successful charges with the provider. Once the
// signature checks out the provider always gets a 200 so it stops retrying;
// verification failures are logged instead.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	if !payment.VerifySignature(body, c.Request().Header.Get(payment.SignatureHeader), h.webhookSecret) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	}

	ev, err := payment.ParseWebhook(body)
	if err != nil {
		h.logger.Warn().Err(err).Msg("malformed webhook payload")
		return c.NoContent(http.StatusOK)
	}
	if ev.Event != payment.EventChargeSuccess || ev.Data.Reference == "" {
		h.logger.Debug().Str("event", ev.Event).Msg("webhook ignored")
		return c.NoContent(http.StatusOK)
	}

	res, err := h.payments.Verify(c.Request().Context(), ev.Data.Reference)
	if err != nil {
		h.logger.Error().Err(err).Str("reference", ev.Data.Reference).Msg("webhook verification failed")
		return c.NoContent(http.StatusOK)
	}
	h.logger.Info().Uint("booking_id", res.BookingID).Str("reference", res.Reference).Str("status", string(res.Status)).Msg("webhook verified payment")
	return c.NoContent(http.StatusOK)
}
