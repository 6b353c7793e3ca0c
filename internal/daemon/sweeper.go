// Package daemon implements the long-running gatekeeper loops.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// Expirer is the session manager transition the sweeper drives.
type Expirer interface {
	Expire(ctx context.Context, now time.Time) (bool, error)
}

// SweeperConfig holds expiry sweeper configuration.
type SweeperConfig struct {
	Interval time.Duration // How often to compare now with the window end
}

// DefaultSweeperConfig returns default sweeper configuration.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: time.Second,
	}
}

// Sweeper is the single source of time-based teardown. Once the window end
// has passed, the session returns to NoSession within one Interval.
type Sweeper struct {
	config   SweeperConfig
	sessions Expirer
	clock    domain.Clock
	logger   *zap.Logger
}

// NewSweeper creates a new expiry sweeper.
func NewSweeper(config SweeperConfig, sessions Expirer, clock domain.Clock, logger *zap.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultSweeperConfig().Interval
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Sweeper{
		config:   config,
		sessions: sessions,
		clock:    clock,
		logger:   logger,
	}
}

// Run sweeps immediately and then on every tick.
// This blocks until context is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.config.Interval))

	s.Sweep(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopping")
			return ctx.Err()

		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry check and reports whether a window was torn down.
func (s *Sweeper) Sweep(ctx context.Context) bool {
	expired, err := s.sessions.Expire(ctx, s.clock.Now())
	if err != nil {
		s.logger.Error("expiry check failed", zap.Error(err))
		return false
	}
	if expired {
		s.logger.Info("session window expired, default block restored")
	}
	return expired
}
