package repository

import (
	"context"

	"github.com/Eursukkul/residence-booking/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListingRepository interface {
	FindByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Listing, error)
	Upsert(ctx context.Context, listing *models.Listing) error
}

type listingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) FindByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Listing, error) {
	var listing models.Listing
	if err := pick(r.db, tx).WithContext(ctx).First(&listing, id).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// Upsert inserts or refreshes a listing replica keyed by the upstream id.
func (r *listingRepository) Upsert(ctx context.Context, listing *models.Listing) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"owner_id", "title", "price_per_night", "max_guests", "is_active", "payout_recipient", "updated_at",
		}),
	}).Create(listing).Error
}
