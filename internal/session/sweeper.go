package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kaledsoft/platform/internal/metrics"
)

// Sweeper periodically deletes expired sessions.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewSweeper creates the session sweep. The sweep is idempotent: a rerun
// deletes nothing new because expired rows are already gone.
func NewSweeper(store Store, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: 15 * time.Minute,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the sweep loop is actively running.
func (s *Sweeper) Running() bool {
	return s.running.Load()
}

// Start begins the sweep loop. Call in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.safeSweep(ctx)
		}
	}
}

// Stop signals the sweeper to stop.
func (s *Sweeper) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

func (s *Sweeper) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in session sweeper", "panic", fmt.Sprint(r))
		}
	}()
	s.Sweep(ctx)
}

// Sweep runs one pass. Exported so operational tooling can trigger it on demand.
func (s *Sweeper) Sweep(ctx context.Context) {
	count, err := s.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.logger.Warn("session sweep failed", "error", err)
		return
	}
	if count > 0 {
		metrics.SessionsSweptTotal.Add(float64(count))
		s.logger.Info("swept expired sessions", "count", count)
	}
	if active, err := s.store.CountActive(ctx, time.Now()); err == nil {
		metrics.ActiveSessions.Set(float64(active))
	}
}
