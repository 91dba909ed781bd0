package service

import (
	"context"
	"time"

	"github.com/Eursukkul/residence-booking/internal/notify"
	"github.com/rs/zerolog"
)

type Options struct {
	PaymentTTL     time.Duration
	KeyCodeTTL     time.Duration
	GatewayTimeout time.Duration
	CallbackURL    string
	Currency       string
	Commission     CommissionPolicy
	Logger         zerolog.Logger
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PaymentTTL == 0 {
		o.PaymentTTL = 24 * time.Hour
	}
	if o.KeyCodeTTL == 0 {
		o.KeyCodeTTL = 48 * time.Hour
	}
	if o.GatewayTimeout == 0 {
		o.GatewayTimeout = 20 * time.Second
	}
	if o.Commission == nil {
		o.Commission = DefaultCommission
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

type Notifier interface {
	Notify(ctx context.Context, ev notify.Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, notify.Event) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// dateOnly truncates to a calendar day in UTC.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
