package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Eursukkul/residence-booking/internal/models"
	"gorm.io/gorm"
)

type PaymentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.PaymentAttempt) error
	FindByReference(ctx context.Context, tx *gorm.DB, reference string) (*models.PaymentAttempt, error)
	FindByReferenceForUpdate(ctx context.Context, tx *gorm.DB, reference string) (*models.PaymentAttempt, error)
	FindVerifiedByBooking(ctx context.Context, tx *gorm.DB, bookingID uint) (*models.PaymentAttempt, error)
	SetAuthorizationURL(ctx context.Context, id uint, url string) error
	MarkVerified(ctx context.Context, tx *gorm.DB, id uint, confirmedAmount int64, at time.Time) error
	MarkFailed(ctx context.Context, tx *gorm.DB, id uint, reason string, confirmedAmount *int64) error
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, tx *gorm.DB, attempt *models.PaymentAttempt) error {
	return pick(r.db, tx).WithContext(ctx).Create(attempt).Error
}

func (r *paymentRepository) FindByReference(ctx context.Context, tx *gorm.DB, reference string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := pick(r.db, tx).WithContext(ctx).
		Where("provider_reference = ?", reference).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *paymentRepository) FindByReferenceForUpdate(ctx context.Context, tx *gorm.DB, reference string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := tx.WithContext(ctx).
		Clauses(forUpdate).
		Where("provider_reference = ?", reference).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *paymentRepository) FindVerifiedByBooking(ctx context.Context, tx *gorm.DB, bookingID uint) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := pick(r.db, tx).WithContext(ctx).
		Where("booking_id = ? AND status = ?", bookingID, models.AttemptVerified).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *paymentRepository) SetAuthorizationURL(ctx context.Context, id uint, url string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("id = ?", id).
		Update("authorization_url", url).Error
}

// MarkVerified flips an attempt to verified exactly once.
func (r *paymentRepository) MarkVerified(ctx context.Context, tx *gorm.DB, id uint, confirmedAmount int64, at time.Time) error {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("id = ? AND status <> ?", id, models.AttemptVerified).
		Updates(map[string]any{
			"status":           models.AttemptVerified,
			"confirmed_amount": confirmedAmount,
			"verified_at":      at,
			"failure_reason":   "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("payment attempt %d already verified: %w", id, ErrConflict)
	}
	return nil
}

// MarkFailed never downgrades a verified attempt.
func (r *paymentRepository) MarkFailed(ctx context.Context, tx *gorm.DB, id uint, reason string, confirmedAmount *int64) error {
	updates := map[string]any{
		"status":         models.AttemptFailed,
		"failure_reason": reason,
	}
	if confirmedAmount != nil {
		updates["confirmed_amount"] = *confirmedAmount
	}
	return pick(r.db, tx).WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("id = ? AND status <> ?", id, models.AttemptVerified).
		Updates(updates).Error
}
