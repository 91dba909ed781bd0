package handler

import (
	"net/http"
	"time"

	"github.com/Eursukkul/residence-booking/internal/dto"
	"github.com/Eursukkul/residence-booking/internal/models"
	"github.com/Eursukkul/residence-booking/internal/service"
	"github.com/labstack/echo/v4"
)

type BookingHandler struct {
	bookings   service.BookingService
	decisions  service.DecisionService
	paymentTTL time.Duration
}

func NewBookingHandler(bookings service.BookingService, decisions service.DecisionService, paymentTTL time.Duration) *BookingHandler {
	return &BookingHandler{bookings: bookings, decisions: decisions, paymentTTL: paymentTTL}
}

func (h *BookingHandler) RegisterRoutes(api *echo.Group) {
	api.POST("/bookings", h.CreateBooking)
	api.GET("/bookings/mine", h.ListMine)
	api.GET("/bookings/owner-inbox", h.OwnerInbox)
	api.GET("/bookings/:id", h.GetBooking)
	api.POST("/bookings/:id/decision", h.Decide)
	api.POST("/bookings/:id/cancel", h.CancelBooking)
}

func (h *BookingHandler) CreateBooking(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}

	var req dto.CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ListingID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "listing_id is required")
	}
	desired, err := dto.ParseDate("desired_start_date", req.DesiredStartDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	booking, err := h.bookings.CreateRequest(c.Request().Context(), a, service.CreateRequestInput{
		ListingID:        req.ListingID,
		DurationDays:     req.DurationDays,
		Guests:           req.Guests,
		DesiredStartDate: desired,
		CustomerNote:     req.Note,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, h.render(booking))
}

func (h *BookingHandler) GetBooking(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	booking, err := h.bookings.GetBooking(c.Request().Context(), id, a)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.render(booking))
}

func (h *BookingHandler) ListMine(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	bookings, err := h.bookings.ListMine(c.Request().Context(), a)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.renderAll(bookings))
}

func (h *BookingHandler) OwnerInbox(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}

	// pending requests unless the owner asks for more
	status := new(models.BookingStatus)
	*status = models.StatusRequested
	switch s := c.QueryParam("status"); s {
	case "":
	case "all":
		status = nil
	default:
		*status = models.BookingStatus(s)
	}

	bookings, err := h.bookings.OwnerInbox(c.Request().Context(), a, status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.renderAll(bookings))
}

func (h *BookingHandler) Decide(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req dto.DecisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in := service.DecisionInput{Action: service.DecisionAction(req.Action), OwnerNote: req.Note}
	if in.StartDate, err = dto.ParseDate("start_date", req.StartDate); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	for _, p := range req.Proposals {
		start, err := dto.ParseDate("proposals.start_date", p.StartDate)
		if err != nil || start == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "each proposal needs a start_date in YYYY-MM-DD form")
		}
		end, err := dto.ParseDate("proposals.end_date", p.EndDate)
		if err != nil || end == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "each proposal needs an end_date in YYYY-MM-DD form")
		}
		in.Proposals = append(in.Proposals, service.DateRange{Start: *start, End: *end})
	}

	booking, err := h.decisions.Decide(c.Request().Context(), id, a, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.render(booking))
}

func (h *BookingHandler) CancelBooking(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	booking, err := h.bookings.Cancel(c.Request().Context(), id, a)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.render(booking))
}

func (h *BookingHandler) render(b *models.Booking) dto.BookingResponse {
	return dto.ToBookingResponse(b, h.bookings.EffectiveStatus(b), h.paymentTTL)
}

func (h *BookingHandler) renderAll(bookings []models.Booking) []dto.BookingResponse {
	resp := make([]dto.BookingResponse, len(bookings))
	for i := range bookings {
		resp[i] = h.render(&bookings[i])
	}
	return resp
}
