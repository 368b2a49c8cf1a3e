package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kaledsoft/platform/internal/metrics"
)

// Sweeper periodically suspends tenants whose subscription has ended.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewSweeper creates the subscription sweep. The default interval is hourly;
// the sweep is idempotent so a shorter interval only costs a cheap UPDATE.
func NewSweeper(store Store, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: time.Hour,
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
			s.logger.Error("panic in tenant sweeper", "panic", fmt.Sprint(r))
		}
	}()
	s.Sweep(ctx)
}

// Sweep runs one pass. Exported so operational tooling can trigger it on demand.
func (s *Sweeper) Sweep(ctx context.Context) {
	count, err := s.store.SuspendExpired(ctx, time.Now())
	if err != nil {
		s.logger.Warn("tenant subscription sweep failed", "error", err)
		return
	}
	if count > 0 {
		metrics.TenantsSuspendedTotal.Add(float64(count))
		s.logger.Info("suspended tenants past subscription end", "count", count)
	}
}
