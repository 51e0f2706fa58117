package chat

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultStreamRetention     = 24 * time.Hour
	DefaultStreamCleanInterval = time.Hour
)

// StreamPruner deletes stream ids created before cutoff.
type StreamPruner interface {
	DeleteStreamsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StartStreamCleaner prunes stream ids older than retention every interval
// until ctx is done.
func StartStreamCleaner(ctx context.Context, pruner StreamPruner, interval, retention time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = DefaultStreamCleanInterval
	}
	if retention <= 0 {
		retention = DefaultStreamRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	go cleanupLoop(ctx, pruner, interval, retention, logger)
}

func cleanupLoop(ctx context.Context, pruner StreamPruner, interval, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruneStreams(ctx, pruner, retention, logger)
		}
	}
}

func pruneStreams(ctx context.Context, pruner StreamPruner, retention time.Duration, logger *slog.Logger) {
	n, err := pruner.DeleteStreamsBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		logger.Error("cleanup stream ids failed", "error", err)
		return
	}
	if n > 0 {
		logger.Info("pruned stream ids", "count", n)
	}
}
