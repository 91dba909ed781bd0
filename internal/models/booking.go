package models

import "time"

type BookingStatus string

const (
	StatusRequested       BookingStatus = "requested"
	StatusAwaitingPayment BookingStatus = "awaiting_payment"
	StatusRejected        BookingStatus = "rejected"
	StatusPaid            BookingStatus = "paid"
	StatusExpired         BookingStatus = "expired"
	StatusCheckedIn       BookingStatus = "checked_in"
	StatusReleased        BookingStatus = "released"
	StatusCancelled       BookingStatus = "cancelled"
)

type PayoutStatus string

const (
	PayoutPending PayoutStatus = "pending"
	PayoutPaid    PayoutStatus = "paid"
)

// transitions lists every legal edge of the booking lifecycle.
var transitions = map[BookingStatus][]BookingStatus{
	StatusRequested:       {StatusAwaitingPayment, StatusRejected, StatusCancelled},
	StatusAwaitingPayment: {StatusPaid, StatusExpired, StatusCancelled},
	StatusPaid:            {StatusCheckedIn},
	StatusCheckedIn:       {StatusReleased},
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusRequested, StatusAwaitingPayment, StatusRejected, StatusPaid,
		StatusExpired, StatusCheckedIn, StatusReleased, StatusCancelled:
		return true
	}
	return false
}

// BlockingStatuses hold the listing's dates against other approvals.
var BlockingStatuses = []BookingStatus{StatusAwaitingPayment, StatusPaid, StatusCheckedIn, StatusReleased}

type Booking struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	ListingID        uint       `gorm:"not null;index" json:"listing_id"`
	CustomerID       uint       `gorm:"not null;index" json:"customer_id"`
	DurationDays     int        `gorm:"not null" json:"duration_days"`
	Guests           int        `gorm:"not null" json:"guests"`
	DesiredStartDate *time.Time `gorm:"type:date" json:"desired_start_date,omitempty"`
	CustomerNote     string     `gorm:"type:text" json:"customer_note,omitempty"`

	StartDate    *time.Time `gorm:"type:date" json:"start_date,omitempty"`
	EndDate      *time.Time `gorm:"type:date" json:"end_date,omitempty"`
	OwnerNote    string     `gorm:"type:text" json:"owner_note,omitempty"`
	DatesDiverge bool       `gorm:"not null;default:false" json:"dates_diverge"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	RejectedAt   *time.Time `json:"rejected_at,omitempty"`

	PricePerNight      int64 `gorm:"not null;default:0" json:"price_per_night"`
	TotalAmount        int64 `gorm:"not null;default:0" json:"total_amount"`
	DepositAmount      int64 `gorm:"not null;default:0" json:"deposit_amount"`
	PlatformCommission int64 `gorm:"not null;default:0" json:"platform_commission"`
	AmountToPay        int64 `gorm:"not null;default:0" json:"amount_to_pay"`
	EscrowAmount       int64 `gorm:"not null;default:0" json:"escrow_amount"`
	PayoutAmount       int64 `gorm:"not null;default:0" json:"payout_amount"`

	Status               BookingStatus `gorm:"type:varchar(20);not null;default:'requested';index" json:"status"`
	AwaitingPaymentSince *time.Time    `json:"awaiting_payment_since,omitempty"`
	PaymentReference     string        `gorm:"type:varchar(64)" json:"payment_reference,omitempty"`
	VerifiedAt           *time.Time    `json:"verified_at,omitempty"`
	CheckedInAt          *time.Time    `json:"checked_in_at,omitempty"`
	PayoutStatus         PayoutStatus  `gorm:"type:varchar(20);not null;default:'pending'" json:"payout_status"`
	PayoutReference      string        `gorm:"type:varchar(100)" json:"payout_reference,omitempty"`
	ReleasedAt           *time.Time    `json:"released_at,omitempty"`
	CancelledAt          *time.Time    `json:"cancelled_at,omitempty"`
	CancelledBy          *uint         `json:"cancelled_by,omitempty"`
	ExpiredAt            *time.Time    `json:"expired_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Listing       *Listing       `gorm:"foreignKey:ListingID" json:"listing,omitempty"`
	DateProposals []DateProposal `gorm:"foreignKey:BookingID" json:"date_proposals,omitempty"`
}

// PaymentDeadline is when an unpaid approval lapses, or nil outside awaiting_payment.
func (b *Booking) PaymentDeadline(ttl time.Duration) *time.Time {
	if b.Status != StatusAwaitingPayment || b.AwaitingPaymentSince == nil || ttl <= 0 {
		return nil
	}
	deadline := b.AwaitingPaymentSince.Add(ttl)
	return &deadline
}

// EffectiveStatus reports the status as of now, treating an overdue
// awaiting_payment booking as expired even before the sweeper persists it.
func (b *Booking) EffectiveStatus(now time.Time, paymentTTL time.Duration) BookingStatus {
	if deadline := b.PaymentDeadline(paymentTTL); deadline != nil && !now.Before(*deadline) {
		return StatusExpired
	}
	return b.Status
}

func (b *Booking) OwnerID() uint {
	if b.Listing == nil {
		return 0
	}
	return b.Listing.OwnerID
}
