package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Eursukkul/residence-booking/internal/models"
	"gorm.io/gorm"
)

type HandoverCodeRepository interface {
	Create(ctx context.Context, tx *gorm.DB, code *models.HandoverCode) error
	SupersedeActive(ctx context.Context, tx *gorm.DB, bookingID uint) error
	FindActiveByBooking(ctx context.Context, tx *gorm.DB, bookingID uint) (*models.HandoverCode, error)
	FindLatestByBooking(ctx context.Context, tx *gorm.DB, bookingID uint) (*models.HandoverCode, error)
	FindActiveByCode(ctx context.Context, tx *gorm.DB, code string) (*models.HandoverCode, error)
	LockActive(ctx context.Context, tx *gorm.DB, id uint) (*models.HandoverCode, error)
	ExistsExpiredCode(ctx context.Context, tx *gorm.DB, code string, ownerID uint) (bool, error)
	Consume(ctx context.Context, tx *gorm.DB, id, ownerID uint, at time.Time) error
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type handoverCodeRepository struct {
	db *gorm.DB
}

func NewHandoverCodeRepository(db *gorm.DB) HandoverCodeRepository {
	return &handoverCodeRepository{db: db}
}

// Create fails with gorm.ErrDuplicatedKey when the value collides with
// another active code. The insert runs under a savepoint so a collision
// leaves the caller's transaction usable for a retry.
func (r *handoverCodeRepository) Create(ctx context.Context, tx *gorm.DB, code *models.HandoverCode) error {
	return pick(r.db, tx).WithContext(ctx).Transaction(func(sp *gorm.DB) error {
		return sp.Create(code).Error
	})
}

func (r *handoverCodeRepository) SupersedeActive(ctx context.Context, tx *gorm.DB, bookingID uint) error {
	return pick(r.db, tx).WithContext(ctx).
		Model(&models.HandoverCode{}).
		Where("booking_id = ? AND status = ?", bookingID, models.CodeActive).
		Update("status", models.CodeSuperseded).Error
}

func (r *handoverCodeRepository) FindActiveByBooking(ctx context.Context, tx *gorm.DB, bookingID uint) (*models.HandoverCode, error) {
	var code models.HandoverCode
	err := pick(r.db, tx).WithContext(ctx).
		Where("booking_id = ? AND status = ?", bookingID, models.CodeActive).
		First(&code).Error
	if err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *handoverCodeRepository) FindLatestByBooking(ctx context.Context, tx *gorm.DB, bookingID uint) (*models.HandoverCode, error) {
	var code models.HandoverCode
	err := pick(r.db, tx).WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("issued_at DESC, id DESC").
		First(&code).Error
	if err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *handoverCodeRepository) FindActiveByCode(ctx context.Context, tx *gorm.DB, code string) (*models.HandoverCode, error) {
	var hc models.HandoverCode
	err := pick(r.db, tx).WithContext(ctx).
		Where("code = ? AND status = ?", code, models.CodeActive).
		First(&hc).Error
	if err != nil {
		return nil, err
	}
	return &hc, nil
}

// LockActive re-reads a code FOR UPDATE. Callers take the booking lock first,
// the same order issuance uses, so redeem and reissue cannot deadlock.
func (r *handoverCodeRepository) LockActive(ctx context.Context, tx *gorm.DB, id uint) (*models.HandoverCode, error) {
	var hc models.HandoverCode
	err := tx.WithContext(ctx).
		Clauses(forUpdate).
		Where("id = ? AND status = ?", id, models.CodeActive).
		First(&hc).Error
	if err != nil {
		return nil, err
	}
	return &hc, nil
}

// ExistsExpiredCode only looks at bookings on the owner's own listings.
func (r *handoverCodeRepository) ExistsExpiredCode(ctx context.Context, tx *gorm.DB, code string, ownerID uint) (bool, error) {
	var count int64
	err := pick(r.db, tx).WithContext(ctx).
		Model(&models.HandoverCode{}).
		Joins("JOIN bookings ON bookings.id = handover_codes.booking_id").
		Joins("JOIN listings ON listings.id = bookings.listing_id").
		Where("handover_codes.code = ? AND handover_codes.status = ? AND listings.owner_id = ?", code, models.CodeExpired, ownerID).
		Count(&count).Error
	return count > 0, err
}

// Consume marks an active code used. A second consumer matches zero rows.
func (r *handoverCodeRepository) Consume(ctx context.Context, tx *gorm.DB, id, ownerID uint, at time.Time) error {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&models.HandoverCode{}).
		Where("id = ? AND status = ?", id, models.CodeActive).
		Updates(map[string]any{
			"status":      models.CodeConsumed,
			"consumed_at": at,
			"consumed_by": ownerID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("handover code %d already used: %w", id, ErrConflict)
	}
	return nil
}

// ExpireDue retires active codes past their expiry so their values can be reissued.
func (r *handoverCodeRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.HandoverCode{}).
		Where("status = ? AND expires_at <= ?", models.CodeActive, now).
		Update("status", models.CodeExpired)
	return result.RowsAffected, result.Error
}
