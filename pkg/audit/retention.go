package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetentionWorker periodically deletes audit events past their retention.
type RetentionWorker struct {
	store     *Store
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewRetentionWorker creates a worker keeping retentionDays of events. It
// runs once a day.
func NewRetentionWorker(store *Store, retentionDays int, logger *zap.Logger) *RetentionWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetentionWorker{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  24 * time.Hour,
		logger:    logger,
		now:       time.Now,
	}
}

// Run cleans up on every tick until ctx is cancelled.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.store == nil || w.retention <= 0 {
		w.logger.Info("audit retention worker disabled", zap.Duration("retention", w.retention))
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("audit retention worker started",
		zap.Duration("retention", w.retention),
		zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("audit retention worker stopped")
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

// cleanup performs a single retention pass.
func (w *RetentionWorker) cleanup(ctx context.Context) int64 {
	cutoff := w.now().Add(-w.retention)
	deleted, err := w.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		w.logger.Error("audit retention cleanup failed", zap.Error(err))
		return 0
	}
	if deleted > 0 {
		w.logger.Info("audit retention cleanup completed",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff))
	}
	return deleted
}
