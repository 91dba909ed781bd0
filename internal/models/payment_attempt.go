package models

import "time"

type AttemptStatus string

const (
	AttemptInitialized AttemptStatus = "initialized"
	AttemptVerified    AttemptStatus = "verified"
	AttemptFailed      AttemptStatus = "failed"
)

type PaymentAttempt struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	BookingID         uint          `gorm:"not null;index" json:"booking_id"`
	ProviderReference string        `gorm:"type:varchar(64);not null;uniqueIndex" json:"provider_reference"`
	Amount            int64         `gorm:"not null" json:"amount"`
	Status            AttemptStatus `gorm:"type:varchar(20);not null;default:'initialized'" json:"status"`
	AuthorizationURL  string        `gorm:"type:text" json:"authorization_url,omitempty"`
	FailureReason     string        `gorm:"type:text" json:"failure_reason,omitempty"`
	ConfirmedAmount   *int64        `json:"confirmed_amount,omitempty"`
	VerifiedAt        *time.Time    `json:"verified_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}
