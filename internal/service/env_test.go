package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Eursukkul/residence-booking/internal/auth"
	"github.com/Eursukkul/residence-booking/internal/models"
	"github.com/Eursukkul/residence-booking/pkg/payment"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var (
	owner    = auth.Actor{UserID: 100, Email: "owner@example.com", Role: auth.RoleOwner}
	customer = auth.Actor{UserID: 200, Email: "guest@example.com", Role: auth.RoleCustomer}
	stranger = auth.Actor{UserID: 300, Email: "other@example.com", Role: auth.RoleCustomer}
	admin    = auth.Actor{UserID: 1, Email: "ops@example.com", Role: auth.RoleAdmin}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store    *memStore
	clock    *clock
	notifier *recordingNotifier
	gateway  *mockGateway
	payouts  *mockPayouts
	limiter  *stubLimiter

	bookings   BookingService
	decisions  DecisionService
	payments   PaymentService
	keys       KeyExchangeService
	settlement SettlementService

	listing   models.Listing
	approvals int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:    newMemStore(),
		clock:    &clock{now: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)},
		notifier: &recordingNotifier{},
		limiter:  &stubLimiter{allow: true},
		payouts: &mockPayouts{transferFn: func(_ context.Context, req payment.TransferRequest) (string, error) {
			return "TRF_" + req.Reference, nil
		}},
	}
	// the gateway confirms whatever amount was initialized for a reference
	env.gateway = &mockGateway{verifyFn: func(_ context.Context, ref string) (*payment.Confirmation, error) {
		a, err := memPayments{env.store}.FindByReference(context.Background(), nil, ref)
		if err != nil {
			return &payment.Confirmation{Reference: ref, Status: payment.StatusAbandoned}, nil
		}
		return &payment.Confirmation{Reference: ref, Status: payment.StatusSuccess, Amount: a.Amount}, nil
	}}

	opts := Options{
		PaymentTTL:     24 * time.Hour,
		KeyCodeTTL:     10 * time.Minute,
		GatewayTimeout: time.Second,
		Commission:     DefaultCommission,
		Logger:         zerolog.Nop(),
		Now:            env.clock.Now,
	}

	s := env.store
	env.bookings = NewBookingService(s, memBookings{s}, memListings{s}, env.notifier, opts)
	env.decisions = NewDecisionService(s, memBookings{s}, env.notifier, opts)
	env.payments = NewPaymentService(s, memBookings{s}, memPayments{s}, memCodes{s}, env.gateway, env.notifier, opts)
	env.keys = NewKeyExchangeService(s, memBookings{s}, memCodes{s}, env.limiter, env.notifier, opts)
	env.settlement = NewSettlementService(s, memBookings{s}, env.payouts, env.notifier, opts)

	env.listing = models.Listing{
		ID:              7,
		OwnerID:         owner.UserID,
		Title:           "Villa Cocody",
		PricePerNight:   25000,
		MaxGuests:       4,
		IsActive:        true,
		PayoutRecipient: "RCP_owner",
	}
	require.NoError(t, memListings{s}.Upsert(context.Background(), &env.listing))
	return env
}

func date(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func (env *testEnv) requested(t *testing.T, nights int) *models.Booking {
	t.Helper()
	b, err := env.bookings.CreateRequest(context.Background(), customer, CreateRequestInput{
		ListingID:    env.listing.ID,
		DurationDays: nights,
		Guests:       2,
	})
	require.NoError(t, err)
	return b
}

func (env *testEnv) approved(t *testing.T) *models.Booking {
	t.Helper()
	// each approval gets its own window so they never overlap
	start := date("2025-06-01").AddDate(0, 0, 10*env.approvals)
	env.approvals++

	b := env.requested(t, 4)
	b, err := env.decisions.Decide(context.Background(), b.ID, owner, DecisionInput{
		Action:    ActionApprove,
		StartDate: &start,
	})
	require.NoError(t, err)
	return b
}

func (env *testEnv) paid(t *testing.T) (*models.Booking, *models.HandoverCode) {
	t.Helper()
	b := env.approved(t)
	session, err := env.payments.Initialize(context.Background(), b.ID, customer)
	require.NoError(t, err)
	res, err := env.payments.Verify(context.Background(), session.Reference)
	require.NoError(t, err)
	require.NotNil(t, res.KeyCode)
	return b, res.KeyCode
}

func (env *testEnv) checkedIn(t *testing.T) *models.Booking {
	t.Helper()
	_, code := env.paid(t)
	b, err := env.keys.Redeem(context.Background(), code.Code, owner)
	require.NoError(t, err)
	return b
}

func (env *testEnv) booking(t *testing.T, id uint) *models.Booking {
	t.Helper()
	b, err := memBookings{env.store}.FindByID(context.Background(), nil, id)
	require.NoError(t, err)
	return b
}
