package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Eursukkul/residence-booking/internal/models"
	"github.com/Eursukkul/residence-booking/internal/repository"
	"gorm.io/gorm"
)

const maxCodeCollisions = 5

var codeSpace = big.NewInt(1_000_000)

// CodeGenerator returns a KeyCodeLength-digit string.
type CodeGenerator func() (string, error)

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func validCodeFormat(code string) bool {
	if len(code) != models.KeyCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// issueCode supersedes any active code of the booking and stores a fresh one.
// It must run inside the caller's transaction.
func issueCode(ctx context.Context, tx *gorm.DB, codes repository.HandoverCodeRepository, gen CodeGenerator, bookingID uint, now time.Time, ttl time.Duration) (*models.HandoverCode, error) {
	if err := codes.SupersedeActive(ctx, tx, bookingID); err != nil {
		return nil, err
	}

	for i := 0; i < maxCodeCollisions; i++ {
		value, err := gen()
		if err != nil {
			return nil, fmt.Errorf("generate key code: %w", err)
		}
		hc := &models.HandoverCode{
			BookingID: bookingID,
			Code:      value,
			Status:    models.CodeActive,
			IssuedAt:  now,
			ExpiresAt: now.Add(ttl),
		}
		err = codes.Create(ctx, tx, hc)
		if err == nil {
			return hc, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no free key code after %d attempts", maxCodeCollisions)
}
