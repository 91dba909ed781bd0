package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Eursukkul/residence-booking/internal/auth"
	"github.com/Eursukkul/residence-booking/internal/metrics"
	"github.com/Eursukkul/residence-booking/internal/models"
	"github.com/Eursukkul/residence-booking/internal/notify"
	"github.com/Eursukkul/residence-booking/internal/repository"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type KeyExchangeService interface {
	Issue(ctx context.Context, bookingID uint, actor auth.Actor) (*models.HandoverCode, error)
	Current(ctx context.Context, bookingID uint, actor auth.Actor) (*models.HandoverCode, error)
	Redeem(ctx context.Context, code string, actor auth.Actor) (*models.Booking, error)
	ExpireCodes(ctx context.Context) (int64, error)
}

type keyExchangeService struct {
	tx       repository.Transactor
	bookings repository.BookingRepository
	codes    repository.HandoverCodeRepository
	limiter  AttemptLimiter
	notifier Notifier
	gen      CodeGenerator
	opts     Options
	logger   zerolog.Logger
}

func NewKeyExchangeService(
	tx repository.Transactor,
	bookings repository.BookingRepository,
	codes repository.HandoverCodeRepository,
	limiter AttemptLimiter,
	notifier Notifier,
	opts Options,
) KeyExchangeService {
	opts = opts.withDefaults()
	return &keyExchangeService{
		tx:       tx,
		bookings: bookings,
		codes:    codes,
		limiter:  limiter,
		notifier: notifierOrNop(notifier),
		gen:      randomCode,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "key_exchange").Logger(),
	}
}

// Issue hands the customer a fresh code. Any earlier code stops working.
func (s *keyExchangeService) Issue(ctx context.Context, bookingID uint, actor auth.Actor) (*models.HandoverCode, error) {
	var code *models.HandoverCode
	err := s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		b, err := s.bookings.FindByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return storeErr(err, fmt.Sprintf("booking %d", bookingID))
		}
		if b.CustomerID != actor.UserID {
			return fmt.Errorf("only the booking's customer holds the key code: %w", ErrForbidden)
		}
		if b.Status != models.StatusPaid {
			return fmt.Errorf("booking %d is %s, key codes exist only once paid: %w", b.ID, b.Status, ErrInvalidTransition)
		}
		code, err = issueCode(ctx, tx, s.codes, s.gen, b.ID, s.opts.Now(), s.opts.KeyCodeTTL)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Uint("booking_id", bookingID).Time("expires_at", code.ExpiresAt).Msg("key code issued")
	return code, nil
}

// Current returns the code the customer already holds without rotating it.
func (s *keyExchangeService) Current(ctx context.Context, bookingID uint, actor auth.Actor) (*models.HandoverCode, error) {
	b, err := s.bookings.FindByID(ctx, nil, bookingID)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("booking %d", bookingID))
	}
	if b.CustomerID != actor.UserID {
		return nil, ErrForbidden
	}
	if b.Status != models.StatusPaid {
		return nil, fmt.Errorf("booking %d is %s: %w", b.ID, b.Status, ErrInvalidTransition)
	}

	code, err := s.codes.FindLatestByBooking(ctx, nil, b.ID)
	if err != nil {
		return nil, storeErr(err, "key code")
	}
	if code.Status == models.CodeExpired || (code.Status == models.CodeActive && code.IsExpired(s.opts.Now())) {
		return nil, ErrExpired
	}
	if code.Status != models.CodeActive {
		return nil, fmt.Errorf("key code: %w", ErrNotFound)
	}
	return code, nil
}

// Redeem checks the customer in. Code consumption and the paid -> checked_in
// move commit together or not at all.
func (s *keyExchangeService) Redeem(ctx context.Context, code string, actor auth.Actor) (*models.Booking, error) {
	code = strings.TrimSpace(code)
	if !validCodeFormat(code) {
		metrics.Redemption("invalid_format")
		return nil, ErrInvalidFormat
	}

	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, fmt.Sprintf("redeem:%d", actor.UserID))
		if err != nil {
			s.logger.Warn().Err(err).Uint("owner_id", actor.UserID).Msg("rate limiter unavailable, allowing attempt")
		} else if !ok {
			metrics.Redemption("throttled")
			return nil, ErrTooManyAttempts
		}
	}

	now := s.opts.Now()
	var booking *models.Booking
	err := s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		// nothing to redeem: expired if the owner once held this value
		missing := func() error {
			expired, err := s.codes.ExistsExpiredCode(ctx, tx, code, actor.UserID)
			if err != nil {
				return err
			}
			if expired {
				return ErrExpired
			}
			return fmt.Errorf("key code: %w", ErrNotFound)
		}

		found, err := s.codes.FindActiveByCode(ctx, tx, code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return missing()
		}
		if err != nil {
			return err
		}

		// booking before code, as in Issue and Verify
		b, err := s.bookings.FindByIDForUpdate(ctx, tx, found.BookingID)
		if err != nil {
			return storeErr(err, fmt.Sprintf("booking %d", found.BookingID))
		}
		if b.OwnerID() != actor.UserID {
			return fmt.Errorf("the code belongs to another owner's listing: %w", ErrForbidden)
		}
		hc, err := s.codes.LockActive(ctx, tx, found.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// superseded or consumed while we waited for the booking
			return missing()
		}
		if err != nil {
			return err
		}
		if hc.IsExpired(now) {
			return ErrExpired
		}
		if b.Status != models.StatusPaid {
			return fmt.Errorf("booking %d is %s: %w", b.ID, b.Status, ErrInvalidTransition)
		}

		if err := s.codes.Consume(ctx, tx, hc.ID, actor.UserID, now); err != nil {
			return storeErr(err, "key code")
		}
		payout := Payout(b.DepositAmount, b.PlatformCommission)
		if err := s.bookings.Transition(ctx, tx, b.ID, models.StatusPaid, models.StatusCheckedIn, map[string]any{
			"checked_in_at": now,
			"payout_amount": payout,
		}); err != nil {
			return storeErr(err, fmt.Sprintf("booking %d", b.ID))
		}

		b.Status = models.StatusCheckedIn
		b.CheckedInAt = &now
		b.PayoutAmount = payout
		booking = b
		return nil
	})
	if err != nil {
		metrics.Redemption(redemptionOutcome(err))
		return nil, err
	}

	metrics.Redemption("checked_in")
	metrics.Transition(string(models.StatusPaid), string(models.StatusCheckedIn))
	s.notifier.Notify(ctx, notify.CheckedIn(booking.ID, booking.CustomerID))
	s.logger.Info().Uint("booking_id", booking.ID).Uint("owner_id", actor.UserID).Msg("customer checked in")
	return booking, nil
}

func (s *keyExchangeService) ExpireCodes(ctx context.Context) (int64, error) {
	return s.codes.ExpireDue(ctx, s.opts.Now())
}

func redemptionOutcome(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "conflict"
	default:
		return "error"
	}
}
