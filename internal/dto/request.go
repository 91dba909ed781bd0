package dto

import (
	"fmt"
	"time"
)

type CreateBookingRequest struct {
	ListingID        uint   `json:"listing_id"`
	DurationDays     int    `json:"duration_days"`
	Guests           int    `json:"guests"`
	DesiredStartDate string `json:"desired_start_date"`
	Note             string `json:"note"`
}

type DateRangeRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type DecisionRequest struct {
	Action    string             `json:"action"`
	StartDate string             `json:"start_date"`
	Note      string             `json:"note"`
	Proposals []DateRangeRequest `json:"proposals"`
}

type VerifyRequest struct {
	Reference string `json:"reference"`
}

type RedeemRequest struct {
	Code string `json:"code"`
}

type ReleaseRequest struct {
	PayoutReference string `json:"payout_reference"`
}

// ParseDate reads an optional YYYY-MM-DD value; empty yields nil.
func ParseDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("%s must be a date in YYYY-MM-DD form", field)
	}
	return &t, nil
}
