package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	TypeApproved  = "approved"
	TypeRejected  = "rejected"
	TypePaid      = "paid"
	TypeCheckedIn = "checked_in"
	TypeReleased  = "released"
	TypeCancelled = "cancelled"
	TypeExpired   = "expired"
)

// Event is a booking status change addressed to one user. The push channel
// consumes these from the bookings exchange.
type Event struct {
	Type        string         `json:"type"`
	BookingID   uint           `json:"booking_id"`
	RecipientID uint           `json:"recipient_id"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Data        map[string]any `json:"data,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

type Publisher interface {
	Publish(routingKey string, payload any) error
}

// Notifier is fire-and-forget: a failed publish never fails the transition
// that triggered it.
type Notifier struct {
	pub    Publisher
	logger zerolog.Logger
}

func NewNotifier(pub Publisher, logger zerolog.Logger) *Notifier {
	return &Notifier{pub: pub, logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *Notifier) Notify(_ context.Context, ev Event) {
	if n == nil || n.pub == nil || ev.RecipientID == 0 {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := n.pub.Publish("booking."+ev.Type, ev); err != nil {
		n.logger.Warn().Err(err).
			Str("type", ev.Type).
			Uint("booking_id", ev.BookingID).
			Uint("recipient_id", ev.RecipientID).
			Msg("notification dropped")
	}
}

func Approved(bookingID, customerID uint, amountToPay int64) Event {
	return Event{
		Type: TypeApproved, BookingID: bookingID, RecipientID: customerID,
		Title: "Booking approved",
		Body:  "Your request was approved. Pay the deposit to confirm your stay.",
		Data:  map[string]any{"amount_to_pay": amountToPay},
	}
}

func Rejected(bookingID, customerID uint, proposals int) Event {
	return Event{
		Type: TypeRejected, BookingID: bookingID, RecipientID: customerID,
		Title: "Booking declined",
		Body:  "The owner declined your request.",
		Data:  map[string]any{"date_proposals": proposals},
	}
}

func Paid(bookingID, recipientID uint, reference string) Event {
	return Event{
		Type: TypePaid, BookingID: bookingID, RecipientID: recipientID,
		Title: "Deposit received",
		Body:  "The deposit is confirmed. Show the handover code at arrival.",
		Data:  map[string]any{"reference": reference},
	}
}

func CheckedIn(bookingID, customerID uint) Event {
	return Event{
		Type: TypeCheckedIn, BookingID: bookingID, RecipientID: customerID,
		Title: "Checked in",
		Body:  "The owner confirmed your arrival. Enjoy your stay.",
	}
}

func Released(bookingID, recipientID uint, payout int64) Event {
	return Event{
		Type: TypeReleased, BookingID: bookingID, RecipientID: recipientID,
		Title: "Funds released",
		Body:  "The deposit was settled to the owner.",
		Data:  map[string]any{"payout_amount": payout},
	}
}

func Cancelled(bookingID, recipientID uint) Event {
	return Event{
		Type: TypeCancelled, BookingID: bookingID, RecipientID: recipientID,
		Title: "Booking cancelled",
		Body:  "The booking was cancelled before payment.",
	}
}

func Expired(bookingID, customerID uint) Event {
	return Event{
		Type: TypeExpired, BookingID: bookingID, RecipientID: customerID,
		Title: "Payment window closed",
		Body:  "The deposit was not paid in time. Send a new request to book again.",
	}
}
