package service

import (
	"errors"
	"fmt"

	"github.com/Eursukkul/residence-booking/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrInvalidTransition = errors.New("invalid transition: the booking is not in a state that allows this action, reload it")
	ErrForbidden         = errors.New("forbidden: re-authenticate as the booking's customer or listing owner")
	ErrMissingStartDate  = errors.New("missing start date: supply a start date to approve this request")
	ErrAmountMismatch    = errors.New("amount mismatch: the provider confirmed a different amount, re-initialize payment")
	ErrNotPaid           = errors.New("not paid: the provider has not confirmed this payment yet, retry verification later")
	ErrGatewayError      = errors.New("payment gateway unavailable: retry shortly")
	ErrStaleBooking      = errors.New("stale booking: the booking is no longer awaiting payment, contact support for a refund")
	ErrInvalidFormat     = errors.New("invalid format: the key code is exactly 6 digits")
	ErrNotFound          = errors.New("not found")
	ErrExpired           = errors.New("key code expired: ask the customer to request a new code")

	ErrInvalidInput     = errors.New("invalid input")
	ErrUnavailable      = errors.New("unavailable: the listing is not bookable for these dates, choose other dates")
	ErrTooManyAttempts  = errors.New("too many attempts: wait before trying another key code")
	ErrStartDateInPast  = fmt.Errorf("start date is in the past: %w", ErrInvalidInput)
	ErrPayoutNotAllowed = errors.New("payout not allowed: the booking must be checked in before release")
)

// storeErr translates repository failures into service errors.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%s: %v: %w", what, err, ErrInvalidTransition)
	default:
		return err
	}
}
