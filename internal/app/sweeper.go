package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ExpiredReleaser is the single engine operation the sweeper may invoke.
type ExpiredReleaser interface {
	ReleaseExpired(ctx context.Context) (int, error)
}

// Sweeper reclaims stock from reservations whose hold window elapsed without
// resolution. Each tick is one ReleaseExpired call; a failed tick is logged
// and the loop keeps going. There is no catch-up after downtime — stale
// reservations just age further and are swept on the next successful tick.
type Sweeper struct {
	engine   ExpiredReleaser
	interval time.Duration
	logger   zerolog.Logger
}

const defaultSweepInterval = 5 * time.Minute

func NewSweeper(engine ExpiredReleaser, logger zerolog.Logger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		engine:   engine,
		interval: defaultSweepInterval,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SweeperOption func(*Sweeper)

// WithSweepInterval overrides the default time between sweeps.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval. Ticks are
// never cancelled mid-sweep; the loop only exits between them.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			s.logger.Info().Msg("expiry sweeper stopped")
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	released, err := s.engine.ReleaseExpired(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep failed")
		return
	}
	if released > 0 {
		s.logger.Info().Int("released", released).Msg("expired reservations released")
	}
}
