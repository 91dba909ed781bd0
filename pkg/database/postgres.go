package database

import (
	"fmt"
	"time"

	"github.com/Eursukkul/residence-booking/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewPostgresDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(1 * time.Minute)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// partialIndexes back the uniqueness rules that gorm tags cannot express.
var partialIndexes = []string{
	// at most one verified payment per booking
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_attempt_verified
		ON payment_attempts (booking_id)
		WHERE status = 'verified'`,
	// at most one usable handover code per booking
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_handover_code_active_booking
		ON handover_codes (booking_id)
		WHERE status = 'active'`,
	// redemption looks codes up by value alone
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_handover_code_active_value
		ON handover_codes (code)
		WHERE status = 'active'`,
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Listing{},
		&models.Booking{},
		&models.DateProposal{},
		&models.PaymentAttempt{},
		&models.HandoverCode{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
