package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Eursukkul/residence-booking/internal/models"
	"gorm.io/gorm"
)

type BookingRepository interface {
	Create(ctx context.Context, tx *gorm.DB, booking *models.Booking) error
	FindByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Booking, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Booking, error)
	FindByCustomer(ctx context.Context, customerID uint) ([]models.Booking, error)
	FindByOwner(ctx context.Context, ownerID uint, status *models.BookingStatus) ([]models.Booking, error)
	Transition(ctx context.Context, tx *gorm.DB, id uint, from, to models.BookingStatus, fields map[string]any) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uint, status models.BookingStatus, fields map[string]any) error
	HasOverlap(ctx context.Context, tx *gorm.DB, listingID uint, start, end time.Time, excludeID uint) (bool, error)
	ReplaceProposals(ctx context.Context, tx *gorm.DB, bookingID uint, proposals []models.DateProposal) error
	FindOverdueAwaitingPayment(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
	FindSettleable(ctx context.Context, checkedInBefore time.Time, limit int) ([]models.Booking, error)
}

type bookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) Create(ctx context.Context, tx *gorm.DB, booking *models.Booking) error {
	return pick(r.db, tx).WithContext(ctx).Create(booking).Error
}

func (r *bookingRepository) FindByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Booking, error) {
	var booking models.Booking
	err := pick(r.db, tx).WithContext(ctx).
		Preload("Listing").
		Preload("DateProposals").
		First(&booking, id).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindByIDForUpdate locks the booking row for the rest of the transaction.
func (r *bookingRepository) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Booking, error) {
	var booking models.Booking
	if err := tx.WithContext(ctx).Clauses(forUpdate).First(&booking, id).Error; err != nil {
		return nil, err
	}
	var listing models.Listing
	if err := tx.WithContext(ctx).First(&listing, booking.ListingID).Error; err != nil {
		return nil, err
	}
	booking.Listing = &listing
	return &booking, nil
}

func (r *bookingRepository) FindByCustomer(ctx context.Context, customerID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Preload("Listing").
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&bookings).Error
	return bookings, err
}

func (r *bookingRepository) FindByOwner(ctx context.Context, ownerID uint, status *models.BookingStatus) ([]models.Booking, error) {
	var bookings []models.Booking
	q := r.db.WithContext(ctx).
		Preload("Listing").
		Joins("JOIN listings ON listings.id = bookings.listing_id").
		Where("listings.owner_id = ?", ownerID)
	if status != nil {
		q = q.Where("bookings.status = ?", *status)
	}
	err := q.Order("bookings.created_at DESC").Find(&bookings).Error
	return bookings, err
}

// Transition moves a booking from one status to another only if it is still
// in the expected status. Zero matched rows means a concurrent writer won.
func (r *bookingRepository) Transition(ctx context.Context, tx *gorm.DB, id uint, from, to models.BookingStatus, fields map[string]any) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("booking %d: %s -> %s is not a lifecycle edge: %w", id, from, to, ErrConflict)
	}

	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	result := pick(r.db, tx).WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("booking %d no longer %s: %w", id, from, ErrConflict)
	}
	return nil
}

// UpdateFields writes non-status columns, guarded by the current status.
func (r *bookingRepository) UpdateFields(ctx context.Context, tx *gorm.DB, id uint, status models.BookingStatus, fields map[string]any) error {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, status).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("booking %d no longer %s: %w", id, status, ErrConflict)
	}
	return nil
}

// HasOverlap reports whether another date-holding booking of the listing
// intersects the half-open window [start, end).
func (r *bookingRepository) HasOverlap(ctx context.Context, tx *gorm.DB, listingID uint, start, end time.Time, excludeID uint) (bool, error) {
	var count int64
	err := pick(r.db, tx).WithContext(ctx).
		Model(&models.Booking{}).
		Where("listing_id = ? AND id <> ?", listingID, excludeID).
		Where("status IN ?", models.BlockingStatuses).
		Where("start_date < ? AND end_date > ?", end, start).
		Count(&count).Error
	return count > 0, err
}

func (r *bookingRepository) ReplaceProposals(ctx context.Context, tx *gorm.DB, bookingID uint, proposals []models.DateProposal) error {
	db := pick(r.db, tx).WithContext(ctx)
	if err := db.Where("booking_id = ?", bookingID).Delete(&models.DateProposal{}).Error; err != nil {
		return err
	}
	if len(proposals) == 0 {
		return nil
	}
	for i := range proposals {
		proposals[i].BookingID = bookingID
	}
	return db.Create(&proposals).Error
}

func (r *bookingRepository) FindOverdueAwaitingPayment(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND awaiting_payment_since <= ?", models.StatusAwaitingPayment, cutoff).
		Order("awaiting_payment_since ASC").
		Limit(limit).
		Find(&bookings).Error
	return bookings, err
}

func (r *bookingRepository) FindSettleable(ctx context.Context, checkedInBefore time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND checked_in_at <= ?", models.StatusCheckedIn, checkedInBefore).
		Order("checked_in_at ASC").
		Limit(limit).
		Find(&bookings).Error
	return bookings, err
}
