// Package retention prunes stored chat history past its retention period.
package retention

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is how often the worker sweeps.
const DefaultInterval = time.Hour

// ChatHistory deletes chat turns older than a cutoff.
type ChatHistory interface {
	DeleteChatTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Worker periodically deletes chat turns older than its retention period.
type Worker struct {
	repo      ChatHistory
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewWorker creates a retention worker. A non-positive interval uses
// DefaultInterval.
func NewWorker(repo ChatHistory, retention, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		repo:      repo,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		logger:    logger,
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.logger.Info("Retention worker started", "interval", w.interval, "retention", w.retention)

	w.Sweep(ctx)
	for {
		select {
		case <-ticker.C:
			w.Sweep(ctx)
		case <-ctx.Done():
			w.logger.Info("Retention worker shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

// Sweep deletes expired chat turns once and returns how many were removed.
func (w *Worker) Sweep(ctx context.Context) int64 {
	cutoff := w.now().Add(-w.retention)
	deleted, err := w.repo.DeleteChatTurnsBefore(ctx, cutoff)
	if err != nil {
		if ctx.Err() != nil {
			w.logger.Debug("Retention sweep interrupted", "error", err)
			return 0
		}
		w.logger.Error("Retention worker failed to delete chat turns", "error", err)
		return 0
	}
	if deleted > 0 {
		w.logger.Info("Retention worker deleted chat turns", "count", deleted, "cutoff", cutoff)
	}
	return deleted
}
