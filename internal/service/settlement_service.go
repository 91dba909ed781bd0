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
	"github.com/Eursukkul/residence-booking/pkg/payment"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type SettlementService interface {
	Release(ctx context.Context, bookingID uint, actor auth.Actor, payoutReference string) (*models.Booking, error)
	SettleDue(ctx context.Context, checkedInBefore time.Time, limit int) (int, error)
}

type settlementService struct {
	tx       repository.Transactor
	bookings repository.BookingRepository
	payouts  payment.Payouts
	notifier Notifier
	opts     Options
	logger   zerolog.Logger
}

func NewSettlementService(
	tx repository.Transactor,
	bookings repository.BookingRepository,
	payouts payment.Payouts,
	notifier Notifier,
	opts Options,
) SettlementService {
	opts = opts.withDefaults()
	return &settlementService{
		tx:       tx,
		bookings: bookings,
		payouts:  payouts,
		notifier: notifierOrNop(notifier),
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "settlement").Logger(),
	}
}

// Release pays the owner out and closes the booking. A manual payout reference
// records a transfer made outside the gateway. Releasing twice is a no-op.
func (s *settlementService) Release(ctx context.Context, bookingID uint, actor auth.Actor, payoutReference string) (*models.Booking, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("release is an administrative action: %w", ErrForbidden)
	}
	return s.release(ctx, bookingID, strings.TrimSpace(payoutReference))
}

func (s *settlementService) release(ctx context.Context, bookingID uint, payoutReference string) (*models.Booking, error) {
	b, err := s.bookings.FindByID(ctx, nil, bookingID)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("booking %d", bookingID))
	}
	if b.Status == models.StatusReleased {
		return b, nil
	}
	if b.Status != models.StatusCheckedIn {
		return nil, fmt.Errorf("booking %d is %s: %w", b.ID, b.Status, ErrPayoutNotAllowed)
	}

	if payoutReference == "" {
		if s.payouts == nil {
			return nil, fmt.Errorf("no payout gateway configured, supply a payout reference: %w", ErrInvalidInput)
		}
		recipient := ""
		if b.Listing != nil {
			recipient = b.Listing.PayoutRecipient
		}
		callCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
		started := time.Now()
		ref, err := s.payouts.Transfer(callCtx, payment.TransferRequest{
			Reference: fmt.Sprintf("payout-%d", b.ID),
			Amount:    b.PayoutAmount,
			Currency:  s.opts.Currency,
			Recipient: recipient,
			Reason:    fmt.Sprintf("booking %d", b.ID),
		})
		cancel()
		metrics.GatewayCall("transfer", time.Since(started).Seconds())
		if err != nil {
			return nil, fmt.Errorf("payout booking %d: %v: %w", b.ID, err, ErrGatewayError)
		}
		payoutReference = ref
	}

	now := s.opts.Now()
	err = s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		return s.bookings.Transition(ctx, tx, b.ID, models.StatusCheckedIn, models.StatusReleased, map[string]any{
			"payout_status":    models.PayoutPaid,
			"payout_reference": payoutReference,
			"released_at":      now,
		})
	})
	if errors.Is(err, repository.ErrConflict) {
		// released concurrently; report the stored outcome
		current, ferr := s.bookings.FindByID(ctx, nil, b.ID)
		if ferr == nil && current.Status == models.StatusReleased {
			return current, nil
		}
	}
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("booking %d", b.ID))
	}

	b.Status = models.StatusReleased
	b.PayoutStatus = models.PayoutPaid
	b.PayoutReference = payoutReference
	b.ReleasedAt = &now

	metrics.Transition(string(models.StatusCheckedIn), string(models.StatusReleased))
	s.notifier.Notify(ctx, notify.Released(b.ID, b.OwnerID(), b.PayoutAmount))
	s.notifier.Notify(ctx, notify.Released(b.ID, b.CustomerID, b.PayoutAmount))
	s.logger.Info().Uint("booking_id", b.ID).Str("payout_reference", payoutReference).Int64("payout", b.PayoutAmount).Msg("funds released")
	return b, nil
}

// SettleDue releases checked-in bookings older than the cutoff. Failures are
// logged and retried on the next run.
func (s *settlementService) SettleDue(ctx context.Context, checkedInBefore time.Time, limit int) (int, error) {
	due, err := s.bookings.FindSettleable(ctx, checkedInBefore, limit)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, b := range due {
		if _, err := s.release(ctx, b.ID, ""); err != nil {
			s.logger.Warn().Err(err).Uint("booking_id", b.ID).Msg("settlement failed, will retry")
			continue
		}
		settled++
	}
	return settled, nil
}
