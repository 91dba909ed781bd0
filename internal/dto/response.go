package dto

import (
	"time"

	"github.com/Eursukkul/residence-booking/internal/models"
	"github.com/Eursukkul/residence-booking/internal/service"
)

type BookingResponse struct {
	ID               uint                 `json:"id"`
	ListingID        uint                 `json:"listing_id"`
	ListingTitle     string               `json:"listing_title,omitempty"`
	CustomerID       uint                 `json:"customer_id"`
	OwnerID          uint                 `json:"owner_id,omitempty"`
	Status           models.BookingStatus `json:"status"`
	DurationDays     int                  `json:"duration_days"`
	Guests           int                  `json:"guests"`
	DesiredStartDate string               `json:"desired_start_date,omitempty"`
	StartDate        string               `json:"start_date,omitempty"`
	EndDate          string               `json:"end_date,omitempty"`
	DatesDiverge     bool                 `json:"dates_diverge"`
	CustomerNote     string               `json:"customer_note,omitempty"`
	OwnerNote        string               `json:"owner_note,omitempty"`
	DateProposals    []DateProposal       `json:"date_proposals,omitempty"`

	TotalAmount        int64               `json:"total_amount"`
	DepositAmount      int64               `json:"deposit_amount"`
	PlatformCommission int64               `json:"platform_commission"`
	AmountToPay        int64               `json:"amount_to_pay"`
	EscrowAmount       int64               `json:"escrow_amount"`
	PayoutAmount       int64               `json:"payout_amount"`
	PayoutStatus       models.PayoutStatus `json:"payout_status"`

	PaymentDeadline *time.Time `json:"payment_deadline,omitempty"`
	CheckedInAt     *time.Time `json:"checked_in_at,omitempty"`
	ReleasedAt      *time.Time `json:"released_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type DateProposal struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type KeyCodeResponse struct {
	BookingID uint      `json:"booking_id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type VerifyResponse struct {
	BookingID uint                 `json:"booking_id"`
	Reference string               `json:"reference"`
	Status    models.BookingStatus `json:"status"`
	KeyCode   *KeyCodeResponse     `json:"key_code,omitempty"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

// ToBookingResponse renders b with status as the caller should see it now.
// paymentTTL lets an unpaid approval show its deadline.
func ToBookingResponse(b *models.Booking, status models.BookingStatus, paymentTTL time.Duration) BookingResponse {
	resp := BookingResponse{
		ID:                 b.ID,
		ListingID:          b.ListingID,
		CustomerID:         b.CustomerID,
		OwnerID:            b.OwnerID(),
		Status:             status,
		DurationDays:       b.DurationDays,
		Guests:             b.Guests,
		DesiredStartDate:   formatDate(b.DesiredStartDate),
		StartDate:          formatDate(b.StartDate),
		EndDate:            formatDate(b.EndDate),
		DatesDiverge:       b.DatesDiverge,
		CustomerNote:       b.CustomerNote,
		OwnerNote:          b.OwnerNote,
		TotalAmount:        b.TotalAmount,
		DepositAmount:      b.DepositAmount,
		PlatformCommission: b.PlatformCommission,
		AmountToPay:        b.AmountToPay,
		EscrowAmount:       b.EscrowAmount,
		PayoutAmount:       b.PayoutAmount,
		PayoutStatus:       b.PayoutStatus,
		CheckedInAt:        b.CheckedInAt,
		ReleasedAt:         b.ReleasedAt,
		CreatedAt:          b.CreatedAt,
	}
	if status == models.StatusAwaitingPayment {
		resp.PaymentDeadline = b.PaymentDeadline(paymentTTL)
	}
	if b.Listing != nil {
		resp.ListingTitle = b.Listing.Title
	}
	for _, p := range b.DateProposals {
		resp.DateProposals = append(resp.DateProposals, DateProposal{
			StartDate: p.StartDate.Format(time.DateOnly),
			EndDate:   p.EndDate.Format(time.DateOnly),
		})
	}
	return resp
}

func ToKeyCodeResponse(c *models.HandoverCode) *KeyCodeResponse {
	if c == nil {
		return nil
	}
	return &KeyCodeResponse{BookingID: c.BookingID, Code: c.Code, ExpiresAt: c.ExpiresAt}
}

func ToVerifyResponse(r *service.VerifyResult) VerifyResponse {
	return VerifyResponse{
		BookingID: r.BookingID,
		Reference: r.Reference,
		Status:    r.Status,
		KeyCode:   ToKeyCodeResponse(r.KeyCode),
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}
