package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Eursukkul/residence-booking/internal/auth"
	"github.com/Eursukkul/residence-booking/internal/metrics"
	"github.com/Eursukkul/residence-booking/internal/models"
	"github.com/Eursukkul/residence-booking/internal/notify"
	"github.com/Eursukkul/residence-booking/internal/repository"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type CreateRequestInput struct {
	ListingID        uint
	DurationDays     int
	Guests           int
	DesiredStartDate *time.Time
	CustomerNote     string
}

type BookingService interface {
	CreateRequest(ctx context.Context, actor auth.Actor, in CreateRequestInput) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID uint, actor auth.Actor) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID uint, actor auth.Actor) (*models.Booking, error)
	ListMine(ctx context.Context, actor auth.Actor) ([]models.Booking, error)
	OwnerInbox(ctx context.Context, actor auth.Actor, status *models.BookingStatus) ([]models.Booking, error)
	ExpireOverdue(ctx context.Context, limit int) (int, error)
	EffectiveStatus(b *models.Booking) models.BookingStatus
}

type bookingService struct {
	tx       repository.Transactor
	bookings repository.BookingRepository
	listings repository.ListingRepository
	notifier Notifier
	opts     Options
	logger   zerolog.Logger
}

func NewBookingService(
	tx repository.Transactor,
	bookings repository.BookingRepository,
	listings repository.ListingRepository,
	notifier Notifier,
	opts Options,
) BookingService {
	opts = opts.withDefaults()
	return &bookingService{
		tx:       tx,
		bookings: bookings,
		listings: listings,
		notifier: notifierOrNop(notifier),
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "booking_service").Logger(),
	}
}

func (s *bookingService) CreateRequest(ctx context.Context, actor auth.Actor, in CreateRequestInput) (*models.Booking, error) {
	if in.DurationDays < 1 {
		return nil, fmt.Errorf("duration must be at least one night: %w", ErrInvalidInput)
	}
	if in.Guests < 1 {
		return nil, fmt.Errorf("guests must be at least one: %w", ErrInvalidInput)
	}

	listing, err := s.listings.FindByID(ctx, nil, in.ListingID)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("listing %d", in.ListingID))
	}
	if !listing.IsActive {
		return nil, fmt.Errorf("listing %d is not published: %w", listing.ID, ErrUnavailable)
	}
	if listing.OwnerID == actor.UserID {
		return nil, fmt.Errorf("owners cannot book their own listing: %w", ErrForbidden)
	}
	if in.Guests > listing.MaxGuests {
		return nil, fmt.Errorf("listing accepts at most %d guests: %w", listing.MaxGuests, ErrInvalidInput)
	}

	var desired *time.Time
	if in.DesiredStartDate != nil {
		d := dateOnly(*in.DesiredStartDate)
		if d.Before(dateOnly(s.opts.Now())) {
			return nil, fmt.Errorf("desired start date: %w", ErrStartDateInPast)
		}
		desired = &d
	}

	booking := &models.Booking{
		ListingID:        listing.ID,
		CustomerID:       actor.UserID,
		DurationDays:     in.DurationDays,
		Guests:           in.Guests,
		DesiredStartDate: desired,
		CustomerNote:     strings.TrimSpace(in.CustomerNote),
		PricePerNight:    listing.PricePerNight,
		TotalAmount:      listing.PricePerNight * int64(in.DurationDays),
		Status:           models.StatusRequested,
		PayoutStatus:     models.PayoutPending,
	}

	if err := s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		return s.bookings.Create(ctx, tx, booking)
	}); err != nil {
		return nil, err
	}
	booking.Listing = listing

	s.logger.Info().
		Uint("booking_id", booking.ID).
		Uint("listing_id", listing.ID).
		Uint("customer_id", actor.UserID).
		Msg("booking requested")
	return booking, nil
}

// Cancel withdraws a booking before payment. Either party may cancel.
func (s *bookingService) Cancel(ctx context.Context, bookingID uint, actor auth.Actor) (*models.Booking, error) {
	var (
		booking *models.Booking
		from    models.BookingStatus
	)
	now := s.opts.Now()

	err := s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		b, err := s.bookings.FindByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return storeErr(err, fmt.Sprintf("booking %d", bookingID))
		}
		if b.CustomerID != actor.UserID && b.OwnerID() != actor.UserID && !actor.IsAdmin() {
			return ErrForbidden
		}

		from = b.EffectiveStatus(now, s.opts.PaymentTTL)
		if from != models.StatusRequested && from != models.StatusAwaitingPayment {
			return fmt.Errorf("booking %d is %s: %w", b.ID, from, ErrInvalidTransition)
		}

		cancelledBy := actor.UserID
		if err := s.bookings.Transition(ctx, tx, b.ID, from, models.StatusCancelled, map[string]any{
			"cancelled_at": now,
			"cancelled_by": cancelledBy,
		}); err != nil {
			return storeErr(err, fmt.Sprintf("booking %d", b.ID))
		}

		b.Status = models.StatusCancelled
		b.CancelledAt = &now
		b.CancelledBy = &cancelledBy
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Transition(string(from), string(models.StatusCancelled))
	counterpart := booking.OwnerID()
	if actor.UserID == booking.OwnerID() {
		counterpart = booking.CustomerID
	}
	s.notifier.Notify(ctx, notify.Cancelled(booking.ID, counterpart))
	s.logger.Info().Uint("booking_id", booking.ID).Uint("by", actor.UserID).Str("from", string(from)).Msg("booking cancelled")
	return booking, nil
}

func (s *bookingService) GetBooking(ctx context.Context, bookingID uint, actor auth.Actor) (*models.Booking, error) {
	b, err := s.bookings.FindByID(ctx, nil, bookingID)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("booking %d", bookingID))
	}
	if b.CustomerID != actor.UserID && b.OwnerID() != actor.UserID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return b, nil
}

func (s *bookingService) ListMine(ctx context.Context, actor auth.Actor) ([]models.Booking, error) {
	return s.bookings.FindByCustomer(ctx, actor.UserID)
}

func (s *bookingService) OwnerInbox(ctx context.Context, actor auth.Actor, status *models.BookingStatus) ([]models.Booking, error) {
	if status != nil && !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", *status, ErrInvalidInput)
	}
	return s.bookings.FindByOwner(ctx, actor.UserID, status)
}

func (s *bookingService) EffectiveStatus(b *models.Booking) models.BookingStatus {
	return b.EffectiveStatus(s.opts.Now(), s.opts.PaymentTTL)
}

// ExpireOverdue persists the lazy expiry of unpaid approvals. Rows another
// writer moved first are skipped.
func (s *bookingService) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	now := s.opts.Now()
	overdue, err := s.bookings.FindOverdueAwaitingPayment(ctx, now.Add(-s.opts.PaymentTTL), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, b := range overdue {
		err := s.bookings.Transition(ctx, nil, b.ID, models.StatusAwaitingPayment, models.StatusExpired, map[string]any{
			"expired_at": now,
		})
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return expired, fmt.Errorf("expire booking %d: %w", b.ID, err)
		}
		expired++
		metrics.Transition(string(models.StatusAwaitingPayment), string(models.StatusExpired))
		s.notifier.Notify(ctx, notify.Expired(b.ID, b.CustomerID))
	}
	return expired, nil
}
