package service

import (
	"context"
	"testing"
	"time"

	"github.com/Eursukkul/residence-booking/internal/models"
	"github.com/Eursukkul/residence-booking/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide_ApproveComputesDatesAndFinancials(t *testing.T) {
	env := newTestEnv(t)
	req := env.requested(t, 4)

	b, err := env.decisions.Decide(context.Background(), req.ID, owner, DecisionInput{
		Action:    ActionApprove,
		StartDate: date("2025-06-01"),
		OwnerNote: "welcome",
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingPayment, b.Status)
	assert.Equal(t, "2025-06-01", b.StartDate.Format(time.DateOnly))
	assert.Equal(t, "2025-06-05", b.EndDate.Format(time.DateOnly))
	assert.Equal(t, int64(100000), b.TotalAmount)
	assert.Equal(t, int64(50000), b.DepositAmount)
	assert.Equal(t, int64(2500), b.PlatformCommission)
	assert.Equal(t, int64(52500), b.AmountToPay)
	assert.NotNil(t, b.AwaitingPaymentSince)
	assert.False(t, b.DatesDiverge)
	assert.Equal(t, []string{notify.TypeApproved}, env.notifier.types())
}

func TestDecide_EndDateIsStartPlusDuration(t *testing.T) {
	env := newTestEnv(t)
	req := env.requested(t, 3)

	b, err := env.decisions.Decide(context.Background(), req.ID, owner, DecisionInput{
		Action:    ActionApprove,
		StartDate: date("2025-06-01"),
	})

	require.NoError(t, err)
	assert.Equal(t, "2025-06-04", b.EndDate.Format(time.DateOnly))
}

func TestDecide_ApproveFallsBackToDesiredDate(t *testing.T) {
	env := newTestEnv(t)
	req, err := env.bookings.CreateRequest(context.Background(), customer, CreateRequestInput{
		ListingID: env.listing.ID, DurationDays: 2, Guests: 1, DesiredStartDate: date("2025-07-10"),
	})
	require.NoError(t, err)

	b, err := env.decisions.Decide(context.Background(), req.ID, owner, DecisionInput{Action: ActionApprove})

	require.NoError(t, err)
	assert.Equal(t, "2025-07-10", b.StartDate.Format(time.DateOnly))
	assert.False(t, b.DatesDiverge)
}

func TestDecide_RecordsDivergingDates(t *testing.T) {
	env := newTestEnv(t)
	req, err := env.bookings.CreateRequest(context.Background(), customer, CreateRequestInput{
		ListingID: env.listing.ID, DurationDays: 2, Guests: 1, DesiredStartDate: date("2025-07-10"),
	})
	require.NoError(t, err)

	b, err := env.decisions.Decide(context.Background(), req.ID, owner, DecisionInput{
		Action: ActionApprove, StartDate: date("2025-07-12"),
	})

	require.NoError(t, err)
	assert.True(t, b.DatesDiverge)
}

func TestDecide_Failures(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing start date", func(t *testing.T) {
		b := env.requested(t, 2)
		_, err := env.decisions.Decide(context.Background(), b.ID, owner, DecisionInput{Action: ActionApprove})
		assert.ErrorIs(t, err, ErrMissingStartDate)
		assert.Equal(t, models.StatusRequested, env.booking(t, b.ID).Status)
	})

	t.Run("start date in past", func(t *testing.T) {
		b := env.requested(t, 2)
		_, err := env.decisions.Decide(context.Background(), b.ID, owner, DecisionInput{Action: ActionApprove, StartDate: date("2025-04-30")})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("not the owner", func(t *testing.T) {
		b := env.requested(t, 2)
		_, err := env.decisions.Decide(context.Background(), b.ID, stranger, DecisionInput{Action: ActionApprove, StartDate: date("2025-06-01")})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unknown action", func(t *testing.T) {
		b := env.requested(t, 2)
		_, err := env.decisions.Decide(context.Background(), b.ID, owner, DecisionInput{Action: "maybe"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("already decided", func(t *testing.T) {
		b := env.requested(t, 2)
		_, err := env.decisions.Decide(context.Background(), b.ID, owner, DecisionInput{Action: ActionReject})
		require.NoError(t, err)
		_, err = env.decisions.Decide(context.Background(), b.ID, owner, DecisionInput{Action: ActionApprove, StartDate: date("2025-06-01")})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("unknown booking", func(t *testing.T) {
		_, err := env.decisions.Decide(context.Background(), 999, owner, DecisionInput{Action: ActionReject})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDecide_OverlappingApprovalIsRefused(t *testing.T) {
	env := newTestEnv(t)
	env.approved(t) // holds 2025-06-01 .. 2025-06-05

	b := env.requested(t, 2)
	_, err := env.decisions.Decide(context.Background(), b.ID, owner, DecisionInput{Action: ActionApprove, StartDate: date("2025-06-04")})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = env.decisions.Decide(context.Background(), b.ID, owner, DecisionInput{Action: ActionApprove, StartDate: date("2025-06-05")})
	assert.NoError(t, err, "checkout day is free for the next arrival")
}

func TestDecide_RejectWithProposals(t *testing.T) {
	env := newTestEnv(t)
	req := env.requested(t, 2)

	b, err := env.decisions.Decide(context.Background(), req.ID, owner, DecisionInput{
		Action:    ActionReject,
		OwnerNote: "booked that week",
		Proposals: []DateRange{
			{Start: *date("2025-06-10"), End: *date("2025-06-12")},
			{Start: *date("2025-06-20"), End: *date("2025-06-22")},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, b.Status)
	assert.Equal(t, "booked that week", b.OwnerNote)
	assert.NotNil(t, b.RejectedAt)
	assert.Len(t, b.DateProposals, 2)
	assert.Zero(t, b.AmountToPay)
	assert.Equal(t, []string{notify.TypeRejected}, env.notifier.types())
}

func TestDecide_RejectWithInvalidProposal(t *testing.T) {
	env := newTestEnv(t)
	req := env.requested(t, 2)

	_, err := env.decisions.Decide(context.Background(), req.ID, owner, DecisionInput{
		Action:    ActionReject,
		Proposals: []DateRange{{Start: *date("2025-06-12"), End: *date("2025-06-12")}},
	})

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, models.StatusRequested, env.booking(t, req.ID).Status)
}
