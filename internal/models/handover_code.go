package models

import "time"

type CodeStatus string

const (
	CodeActive     CodeStatus = "active"
	CodeConsumed   CodeStatus = "consumed"
	CodeSuperseded CodeStatus = "superseded"
	CodeExpired    CodeStatus = "expired"
)

const KeyCodeLength = 6

// HandoverCode is the one-time code the customer shows the owner at arrival.
type HandoverCode struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	BookingID  uint       `gorm:"not null;index" json:"booking_id"`
	Code       string     `gorm:"type:char(6);not null;index" json:"code"`
	Status     CodeStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	IssuedAt   time.Time  `gorm:"not null" json:"issued_at"`
	ExpiresAt  time.Time  `gorm:"not null" json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	ConsumedBy *uint      `json:"consumed_by,omitempty"`
}

func (c *HandoverCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
