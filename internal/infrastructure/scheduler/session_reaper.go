package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/yuzvak/checkout-service/internal/infrastructure/monitoring"
	"github.com/yuzvak/checkout-service/internal/pkg/clock"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

type SessionSweeper interface {
	Reap() int
	Len() int
}

type MetricsPruner interface {
	Prune(before time.Time) int
}

// SessionReaper periodically closes abandoned and finished checkout
// sessions.
type SessionReaper struct {
	sessions SessionSweeper
	pruner   MetricsPruner
	interval time.Duration
	// pruneAfter is how long per-session metric state may sit untouched.
	pruneAfter time.Duration
	clock      clock.Clock
	logger     *logger.Logger

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewSessionReaper(
	sessions SessionSweeper,
	pruner MetricsPruner,
	interval time.Duration,
	pruneAfter time.Duration,
	clk clock.Clock,
	logger *logger.Logger,
) *SessionReaper {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &SessionReaper{
		sessions:   sessions,
		pruner:     pruner,
		interval:   interval,
		pruneAfter: pruneAfter,
		clock:      clk,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

func (s *SessionReaper) Start(ctx context.Context) {
	s.logger.Info("Starting session reaper", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Session reaper stopped")
			return
		case <-s.stopChan:
			s.logger.Info("Session reaper stopped")
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *SessionReaper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Sweep runs one reaping pass.
func (s *SessionReaper) Sweep() int {
	reaped := s.sessions.Reap()
	if reaped > 0 {
		s.logger.Info("Reaped checkout sessions", "count", reaped)
	}
	if s.pruner != nil && s.pruneAfter > 0 {
		s.pruner.Prune(s.clock.Now().Add(-s.pruneAfter))
	}
	monitoring.SetActiveSessions(s.sessions.Len())
	return reaped
}
