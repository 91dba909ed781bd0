package models

import "time"

// Listing is the local replica of a residence published by the listings service.
type Listing struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	OwnerID         uint      `gorm:"not null;index" json:"owner_id"`
	Title           string    `gorm:"not null" json:"title"`
	PricePerNight   int64     `gorm:"not null" json:"price_per_night"`
	MaxGuests       int       `gorm:"not null;default:1" json:"max_guests"`
	IsActive        bool      `gorm:"not null;default:true" json:"is_active"`
	PayoutRecipient string    `gorm:"type:varchar(100)" json:"payout_recipient,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
