package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/adat-tool/adat-api/internal/clock"
	"github.com/adat-tool/adat-api/internal/redact"
)

// ReaperConfig controls lease expiry and garbage collection.
type ReaperConfig struct {
	// Interval defines how often to sweep. Zero defaults to 30 seconds.
	Interval      time.Duration
	MaxDeliveries int
	Retention     time.Duration
}

// Reaper periodically fails tasks whose worker disappeared mid-flight and
// deletes terminal tasks past their retention window.
type Reaper struct {
	store   TaskStore
	config  ReaperConfig
	clock   clock.Clock
	logger  *slog.Logger
	metrics Metrics
}

// NewReaper creates a reaper over store.
func NewReaper(store TaskStore, config ReaperConfig, clk clock.Clock, logger *slog.Logger) *Reaper {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.MaxDeliveries <= 0 {
		config.MaxDeliveries = 1
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		store:   store,
		config:  config,
		clock:   clk,
		logger:  logger.With("component", "task_reaper"),
		metrics: noopMetrics{},
	}
}

// Run sweeps once immediately, then on every interval until ctx is done.
// The initial sweep recovers tasks abandoned by a previous process.
func (r *Reaper) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	if _, _, err := r.ReapOnce(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("task sweep failed", "error", redact.Error(err))
	}
}

// ReapOnce expires stale leases and then deletes expired terminal tasks.
func (r *Reaper) ReapOnce(ctx context.Context) (expired, deleted int, err error) {
	now := r.clock.Now().UTC()

	expired, err = r.store.ExpireLeases(ctx, now, r.config.MaxDeliveries, r.config.Retention)
	if err != nil {
		return 0, 0, err
	}
	if expired > 0 {
		r.metrics.LeasesExpired(ctx, expired)
		r.logger.Warn("failed tasks with expired leases", "count", expired)
	}

	deleted, err = r.store.DeleteExpired(ctx, now)
	if err != nil {
		return expired, 0, err
	}
	if deleted > 0 {
		r.logger.Info("deleted expired tasks", "count", deleted)
	}
	return expired, deleted, nil
}
