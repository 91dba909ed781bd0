package service

import (
	"context"
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

type DecisionAction string

const (
	ActionApprove DecisionAction = "approve"
	ActionReject  DecisionAction = "reject"
)

type DateRange struct {
	Start time.Time
	End   time.Time
}

type DecisionInput struct {
	Action    DecisionAction
	StartDate *time.Time
	OwnerNote string
	Proposals []DateRange
}

type DecisionService interface {
	Decide(ctx context.Context, bookingID uint, actor auth.Actor, in DecisionInput) (*models.Booking, error)
}

type decisionService struct {
	tx       repository.Transactor
	bookings repository.BookingRepository
	notifier Notifier
	opts     Options
	logger   zerolog.Logger
}

func NewDecisionService(
	tx repository.Transactor,
	bookings repository.BookingRepository,
	notifier Notifier,
	opts Options,
) DecisionService {
	opts = opts.withDefaults()
	return &decisionService{
		tx:       tx,
		bookings: bookings,
		notifier: notifierOrNop(notifier),
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "decision_service").Logger(),
	}
}

func (s *decisionService) Decide(ctx context.Context, bookingID uint, actor auth.Actor, in DecisionInput) (*models.Booking, error) {
	now := s.opts.Now()
	today := dateOnly(now)

	switch in.Action {
	case ActionApprove, ActionReject:
	default:
		return nil, fmt.Errorf("action must be approve or reject: %w", ErrInvalidInput)
	}

	var start *time.Time
	if in.StartDate != nil {
		d := dateOnly(*in.StartDate)
		if d.Before(today) {
			return nil, ErrStartDateInPast
		}
		start = &d
	}

	proposals := make([]models.DateProposal, 0, len(in.Proposals))
	for _, p := range in.Proposals {
		ps, pe := dateOnly(p.Start), dateOnly(p.End)
		if !ps.Before(pe) {
			return nil, fmt.Errorf("proposal %s must end after it starts: %w", ps.Format(time.DateOnly), ErrInvalidInput)
		}
		proposals = append(proposals, models.DateProposal{StartDate: ps, EndDate: pe})
	}

	var booking *models.Booking
	err := s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		b, err := s.bookings.FindByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return storeErr(err, fmt.Sprintf("booking %d", bookingID))
		}
		if b.OwnerID() != actor.UserID {
			return fmt.Errorf("only the listing owner decides: %w", ErrForbidden)
		}
		if b.Status != models.StatusRequested {
			return fmt.Errorf("booking %d is %s: %w", b.ID, b.Status, ErrInvalidTransition)
		}

		if in.Action == ActionReject {
			return s.reject(ctx, tx, b, in.OwnerNote, proposals, now)
		}
		return s.approve(ctx, tx, b, start, in.OwnerNote, now)
	})
	if err != nil {
		return nil, err
	}
	booking, err = s.bookings.FindByID(ctx, nil, bookingID)
	if err != nil {
		return nil, err
	}

	metrics.Transition(string(models.StatusRequested), string(booking.Status))
	if booking.Status == models.StatusAwaitingPayment {
		s.notifier.Notify(ctx, notify.Approved(booking.ID, booking.CustomerID, booking.AmountToPay))
	} else {
		s.notifier.Notify(ctx, notify.Rejected(booking.ID, booking.CustomerID, len(booking.DateProposals)))
	}
	s.logger.Info().
		Uint("booking_id", booking.ID).
		Str("action", string(in.Action)).
		Str("status", string(booking.Status)).
		Msg("booking decided")
	return booking, nil
}

func (s *decisionService) approve(ctx context.Context, tx *gorm.DB, b *models.Booking, start *time.Time, note string, now time.Time) error {
	if start == nil {
		start = b.DesiredStartDate
	}
	if start == nil {
		return ErrMissingStartDate
	}
	end := start.AddDate(0, 0, b.DurationDays)

	taken, err := s.bookings.HasOverlap(ctx, tx, b.ListingID, *start, end, b.ID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%s to %s overlaps another booking: %w", start.Format(time.DateOnly), end.Format(time.DateOnly), ErrUnavailable)
	}

	fin := ComputeFinancials(b.PricePerNight, b.DurationDays, s.opts.Commission)
	diverge := b.DesiredStartDate != nil && !b.DesiredStartDate.Equal(*start)

	if err := s.bookings.Transition(ctx, tx, b.ID, models.StatusRequested, models.StatusAwaitingPayment, map[string]any{
		"start_date":             *start,
		"end_date":               end,
		"dates_diverge":          diverge,
		"owner_note":             strings.TrimSpace(note),
		"total_amount":           fin.Total,
		"deposit_amount":         fin.Deposit,
		"platform_commission":    fin.Commission,
		"amount_to_pay":          fin.AmountToPay,
		"approved_at":            now,
		"awaiting_payment_since": now,
	}); err != nil {
		return storeErr(err, fmt.Sprintf("booking %d", b.ID))
	}
	return s.bookings.ReplaceProposals(ctx, tx, b.ID, nil)
}

func (s *decisionService) reject(ctx context.Context, tx *gorm.DB, b *models.Booking, note string, proposals []models.DateProposal, now time.Time) error {
	if err := s.bookings.Transition(ctx, tx, b.ID, models.StatusRequested, models.StatusRejected, map[string]any{
		"owner_note":  strings.TrimSpace(note),
		"rejected_at": now,
	}); err != nil {
		return storeErr(err, fmt.Sprintf("booking %d", b.ID))
	}
	return s.bookings.ReplaceProposals(ctx, tx, b.ID, proposals)
}
