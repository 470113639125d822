package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often expired prompt sessions are purged.
const DefaultSweepInterval = 5 * time.Minute

// ExpiredStateDeleter removes expired prompt sessions.
type ExpiredStateDeleter interface {
	DeleteExpiredState(ctx context.Context, now time.Time) (int64, error)
}

// StartSweeper runs a background goroutine that periodically deletes expired
// prompt state. The returned channel is closed once the goroutine exits.
func StartSweeper(ctx context.Context, repo ExpiredStateDeleter, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("State sweeper started", "interval", interval)

		for {
			select {
			case now := <-ticker.C:
				sweepExpiredState(ctx, repo, now)
			case <-ctx.Done():
				slog.Info("State sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func sweepExpiredState(ctx context.Context, repo ExpiredStateDeleter, now time.Time) {
	deleted, err := repo.DeleteExpiredState(ctx, now)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("State sweeper: context canceled during sweep", "error", err)
			return
		}
		slog.Error("State sweeper failed to delete expired state", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("State sweeper removed expired prompt state", "rows", deleted)
	}
}
