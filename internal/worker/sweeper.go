package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type BookingExpirer interface {
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

type CodeExpirer interface {
	ExpireCodes(ctx context.Context) (int64, error)
}

type Settler interface {
	SettleDue(ctx context.Context, checkedInBefore time.Time, limit int) (int, error)
}

type SweeperConfig struct {
	Interval   time.Duration
	BatchSize  int
	AutoSettle bool
	// how long a checked-in booking waits before funds are released
	SettleAfter time.Duration
}

// Sweeper persists time-driven transitions the request path only applies
// lazily: overdue approvals, stale handover codes and, optionally, payouts.
type Sweeper struct {
	bookings BookingExpirer
	codes    CodeExpirer
	settler  Settler
	cfg      SweeperConfig
	logger   zerolog.Logger
	now      func() time.Time
}

func NewSweeper(bookings BookingExpirer, codes CodeExpirer, settler Settler, cfg SweeperConfig, logger zerolog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		bookings: bookings,
		codes:    codes,
		settler:  settler,
		cfg:      cfg,
		logger:   logger.With().Str("component", "sweeper").Logger(),
		now:      time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.cfg.Interval).Bool("auto_settle", s.cfg.AutoSettle).Msg("sweeper started")
	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep runs one pass. Each step is independent; a failing step is logged
// and retried on the next pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	if n, err := s.bookings.ExpireOverdue(ctx, s.cfg.BatchSize); err != nil {
		s.logger.Error().Err(err).Msg("expire overdue bookings")
	} else if n > 0 {
		s.logger.Info().Int("count", n).Msg("expired unpaid bookings")
	}

	if n, err := s.codes.ExpireCodes(ctx); err != nil {
		s.logger.Error().Err(err).Msg("expire handover codes")
	} else if n > 0 {
		s.logger.Debug().Int64("count", n).Msg("expired handover codes")
	}

	if !s.cfg.AutoSettle || s.settler == nil {
		return
	}
	if n, err := s.settler.SettleDue(ctx, s.now().Add(-s.cfg.SettleAfter), s.cfg.BatchSize); err != nil {
		s.logger.Error().Err(err).Msg("settle checked-in bookings")
	} else if n > 0 {
		s.logger.Info().Int("count", n).Msg("released funds")
	}
}
