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
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

type InitResult struct {
	BookingID        uint   `json:"booking_id"`
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	Amount           int64  `json:"amount"`
}

type VerifyResult struct {
	BookingID uint
	Reference string
	Status    models.BookingStatus
	KeyCode   *models.HandoverCode
}

type PaymentInfo struct {
	BookingID       uint                 `json:"booking_id"`
	Status          models.BookingStatus `json:"status"`
	Financials      Financials           `json:"financials"`
	PaymentAllowed  bool                 `json:"payment_allowed"`
	PaymentDeadline *time.Time           `json:"payment_deadline,omitempty"`
}

type PaymentService interface {
	Info(ctx context.Context, bookingID uint, actor auth.Actor) (*PaymentInfo, error)
	Initialize(ctx context.Context, bookingID uint, actor auth.Actor) (*InitResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}

type paymentService struct {
	tx       repository.Transactor
	bookings repository.BookingRepository
	payments repository.PaymentRepository
	codes    repository.HandoverCodeRepository
	gateway  payment.Provider
	notifier Notifier
	gen      CodeGenerator
	flight   singleflight.Group
	opts     Options
	logger   zerolog.Logger
}

func NewPaymentService(
	tx repository.Transactor,
	bookings repository.BookingRepository,
	payments repository.PaymentRepository,
	codes repository.HandoverCodeRepository,
	gateway payment.Provider,
	notifier Notifier,
	opts Options,
) PaymentService {
	opts = opts.withDefaults()
	return &paymentService{
		tx:       tx,
		bookings: bookings,
		payments: payments,
		codes:    codes,
		gateway:  gateway,
		notifier: notifierOrNop(notifier),
		gen:      randomCode,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "payment_service").Logger(),
	}
}

func (s *paymentService) Info(ctx context.Context, bookingID uint, actor auth.Actor) (*PaymentInfo, error) {
	b, err := s.bookings.FindByID(ctx, nil, bookingID)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("booking %d", bookingID))
	}
	if b.CustomerID != actor.UserID {
		return nil, ErrForbidden
	}

	status := b.EffectiveStatus(s.opts.Now(), s.opts.PaymentTTL)
	return &PaymentInfo{
		BookingID: b.ID,
		Status:    status,
		Financials: Financials{
			Total:       b.TotalAmount,
			Deposit:     b.DepositAmount,
			Commission:  b.PlatformCommission,
			AmountToPay: b.AmountToPay,
		},
		PaymentAllowed:  status == models.StatusAwaitingPayment,
		PaymentDeadline: b.PaymentDeadline(s.opts.PaymentTTL),
	}, nil
}

// Initialize records a new attempt under a fresh reference, then asks the
// provider for a checkout session.
func (s *paymentService) Initialize(ctx context.Context, bookingID uint, actor auth.Actor) (*InitResult, error) {
	b, err := s.bookings.FindByID(ctx, nil, bookingID)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("booking %d", bookingID))
	}
	if b.CustomerID != actor.UserID {
		return nil, ErrForbidden
	}
	if status := b.EffectiveStatus(s.opts.Now(), s.opts.PaymentTTL); status != models.StatusAwaitingPayment {
		return nil, fmt.Errorf("booking %d is %s: %w", b.ID, status, ErrInvalidTransition)
	}
	if actor.Email == "" {
		return nil, fmt.Errorf("an account email is required for card payments: %w", ErrInvalidInput)
	}

	attempt := &models.PaymentAttempt{
		BookingID:         b.ID,
		ProviderReference: "pay_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Amount:            b.AmountToPay,
		Status:            models.AttemptInitialized,
	}
	err = s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.payments.Create(ctx, tx, attempt); err != nil {
			return err
		}
		return s.bookings.UpdateFields(ctx, tx, b.ID, models.StatusAwaitingPayment, map[string]any{
			"payment_reference": attempt.ProviderReference,
		})
	})
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("booking %d", b.ID))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()
	started := time.Now()
	sess, err := s.gateway.Initialize(callCtx, payment.InitializeRequest{
		Reference:   attempt.ProviderReference,
		Amount:      attempt.Amount,
		Currency:    s.opts.Currency,
		Email:       actor.Email,
		CallbackURL: s.opts.CallbackURL,
		Metadata:    map[string]any{"booking_id": b.ID},
	})
	metrics.GatewayCall("initialize", time.Since(started).Seconds())
	if err != nil {
		if mErr := s.payments.MarkFailed(ctx, nil, attempt.ID, "gateway initialize: "+err.Error(), nil); mErr != nil {
			s.logger.Error().Err(mErr).Str("reference", attempt.ProviderReference).Msg("failed to record failed attempt")
		}
		return nil, fmt.Errorf("initialize %s: %v: %w", attempt.ProviderReference, err, ErrGatewayError)
	}

	if err := s.payments.SetAuthorizationURL(ctx, attempt.ID, sess.AuthorizationURL); err != nil {
		s.logger.Warn().Err(err).Str("reference", attempt.ProviderReference).Msg("failed to store authorization url")
	}

	s.logger.Info().Uint("booking_id", b.ID).Str("reference", attempt.ProviderReference).Int64("amount", attempt.Amount).Msg("payment initialized")
	return &InitResult{
		BookingID:        b.ID,
		Reference:        attempt.ProviderReference,
		AuthorizationURL: sess.AuthorizationURL,
		Amount:           attempt.Amount,
	}, nil
}

// Verify reconciles a reference with the provider. Concurrent calls for the
// same reference in this process share one execution; across processes the
// attempt row lock and its unique reference serialize them.
func (s *paymentService) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("reference is required: %w", ErrInvalidInput)
	}

	v, err, _ := s.flight.Do(reference, func() (any, error) {
		return s.verify(context.WithoutCancel(ctx), reference)
	})
	if err != nil {
		return nil, err
	}
	return v.(*VerifyResult), nil
}

func (s *paymentService) verify(ctx context.Context, reference string) (*VerifyResult, error) {
	attempt, err := s.payments.FindByReference(ctx, nil, reference)
	if err != nil {
		return nil, storeErr(err, "payment reference "+reference)
	}
	if attempt.Status == models.AttemptVerified {
		metrics.Verification("replayed")
		return s.resultFor(ctx, nil, attempt.BookingID, reference)
	}

	conf, err := s.confirm(ctx, reference)
	if err != nil {
		metrics.Verification("gateway_error")
		return nil, fmt.Errorf("confirm %s: %v: %w", reference, err, ErrGatewayError)
	}
	if !conf.Paid() {
		metrics.Verification("not_paid")
		return nil, fmt.Errorf("provider reports %q for %s: %w", conf.Status, reference, ErrNotPaid)
	}

	var (
		result  *VerifyResult
		outcome error
		paid    *models.Booking
	)
	now := s.opts.Now()

	err = s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		locked, err := s.payments.FindByReferenceForUpdate(ctx, tx, reference)
		if err != nil {
			return storeErr(err, "payment reference "+reference)
		}
		if locked.Status == models.AttemptVerified {
			result, err = s.resultFor(ctx, tx, locked.BookingID, reference)
			return err
		}

		b, err := s.bookings.FindByIDForUpdate(ctx, tx, locked.BookingID)
		if err != nil {
			return storeErr(err, fmt.Sprintf("booking %d", locked.BookingID))
		}

		confirmed := conf.Amount
		if conf.Fraction != 0 || confirmed != locked.Amount || confirmed != b.AmountToPay {
			outcome = fmt.Errorf("provider confirmed %d, booking expects %d: %w", confirmed, b.AmountToPay, ErrAmountMismatch)
			return s.payments.MarkFailed(ctx, tx, locked.ID, fmt.Sprintf("amount mismatch: confirmed %d, expected %d", confirmed, b.AmountToPay), &confirmed)
		}

		switch status := b.EffectiveStatus(now, s.opts.PaymentTTL); status {
		case models.StatusAwaitingPayment:
			if err := s.payments.MarkVerified(ctx, tx, locked.ID, confirmed, now); err != nil {
				return storeErr(err, "payment reference "+reference)
			}
			if err := s.bookings.Transition(ctx, tx, b.ID, models.StatusAwaitingPayment, models.StatusPaid, map[string]any{
				"verified_at":       now,
				"payment_reference": reference,
				"escrow_amount":     b.DepositAmount,
			}); err != nil {
				return storeErr(err, fmt.Sprintf("booking %d", b.ID))
			}
			code, err := issueCode(ctx, tx, s.codes, s.gen, b.ID, now, s.opts.KeyCodeTTL)
			if err != nil {
				return err
			}
			b.Status = models.StatusPaid
			paid = b
			result = &VerifyResult{BookingID: b.ID, Reference: reference, Status: models.StatusPaid, KeyCode: code}
			return nil

		case models.StatusPaid, models.StatusCheckedIn, models.StatusReleased:
			// a different reference already settled this booking
			if err := s.payments.MarkFailed(ctx, tx, locked.ID, "duplicate payment: booking already paid via "+b.PaymentReference, &confirmed); err != nil {
				return err
			}
			s.logger.Warn().
				Uint("booking_id", b.ID).
				Str("reference", reference).
				Str("paid_reference", b.PaymentReference).
				Int64("amount", confirmed).
				Msg("duplicate payment confirmed, refund required")
			result, err = s.resultFor(ctx, tx, b.ID, b.PaymentReference)
			return err

		default:
			if status == models.StatusExpired && b.Status == models.StatusAwaitingPayment {
				if err := s.bookings.Transition(ctx, tx, b.ID, models.StatusAwaitingPayment, models.StatusExpired, map[string]any{
					"expired_at": now,
				}); err != nil {
					return storeErr(err, fmt.Sprintf("booking %d", b.ID))
				}
			}
			if err := s.payments.MarkFailed(ctx, tx, locked.ID, "stale booking: "+string(status), &confirmed); err != nil {
				return err
			}
			s.logger.Warn().
				Uint("booking_id", b.ID).
				Str("reference", reference).
				Str("status", string(status)).
				Int64("amount", confirmed).
				Msg("payment confirmed for a booking that no longer awaits payment")
			outcome = fmt.Errorf("booking %d is %s: %w", b.ID, status, ErrStaleBooking)
			return nil
		}
	})
	if err != nil {
		metrics.Verification("error")
		return nil, err
	}
	if outcome != nil {
		metrics.Verification(verificationOutcome(outcome))
		return nil, outcome
	}

	if paid != nil {
		metrics.Verification("paid")
		metrics.Transition(string(models.StatusAwaitingPayment), string(models.StatusPaid))
		s.notifier.Notify(ctx, notify.Paid(paid.ID, paid.CustomerID, reference))
		s.notifier.Notify(ctx, notify.Paid(paid.ID, paid.OwnerID(), reference))
		s.logger.Info().Uint("booking_id", paid.ID).Str("reference", reference).Msg("deposit verified")
	} else {
		metrics.Verification("replayed")
	}
	return result, nil
}

func (s *paymentService) confirm(ctx context.Context, reference string) (*payment.Confirmation, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()

	started := time.Now()
	conf, err := s.gateway.Verify(callCtx, reference)
	metrics.GatewayCall("verify", time.Since(started).Seconds())
	if err != nil {
		return nil, err
	}
	if conf == nil {
		return nil, errors.New("empty confirmation")
	}
	return conf, nil
}

// resultFor rebuilds the outcome of an earlier successful verification.
func (s *paymentService) resultFor(ctx context.Context, tx *gorm.DB, bookingID uint, reference string) (*VerifyResult, error) {
	b, err := s.bookings.FindByID(ctx, tx, bookingID)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("booking %d", bookingID))
	}
	res := &VerifyResult{BookingID: b.ID, Reference: reference, Status: b.Status}

	code, err := s.codes.FindActiveByBooking(ctx, tx, b.ID)
	switch {
	case err == nil:
		res.KeyCode = code
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return res, nil
}

func verificationOutcome(err error) string {
	switch {
	case errors.Is(err, ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, ErrStaleBooking):
		return "stale"
	default:
		return "error"
	}
}
