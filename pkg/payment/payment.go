package payment

import (
	"context"
	"errors"
	"time"
)

// Amounts crossing this package are whole currency units; providers that
// bill in minor units convert at their own boundary.

type InitializeRequest struct {
	Reference   string
	Amount      int64
	Currency    string
	Email       string
	CallbackURL string
	Metadata    map[string]any
}

type Session struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string
}

type Confirmation struct {
	Reference string
	Status    string
	Amount    int64
	// minor units left over after Amount; a non-zero value never matches a
	// whole-unit price
	Fraction int64
	Currency string
	PaidAt   *time.Time
}

const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
	StatusPending   = "pending"
)

func (c *Confirmation) Paid() bool {
	return c.Status == StatusSuccess
}

type TransferRequest struct {
	Reference string
	Amount    int64
	Currency  string
	Recipient string
	Reason    string
}

// Provider collects customer deposits.
type Provider interface {
	Initialize(ctx context.Context, req InitializeRequest) (*Session, error)
	Verify(ctx context.Context, reference string) (*Confirmation, error)
}

// Payouts pays owners out of the platform balance.
type Payouts interface {
	Transfer(ctx context.Context, req TransferRequest) (string, error)
}

var ErrMissingRecipient = errors.New("payout recipient not configured")
