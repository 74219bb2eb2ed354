package chat

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often idle sessions are swept.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper deletes expired sessions.
type Sweeper interface {
	Sweep(ctx context.Context, ttl time.Duration) (int64, error)
}

// StartTTLWorker periodically deletes sessions idle for longer than ttl until
// ctx is cancelled. Which idle sessions are kept is up to the Sweeper; the
// chat Service keeps every session whose socket is still open.
func StartTTLWorker(ctx context.Context, s Sweeper, ttl, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepOnce(ctx, s, ttl)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepOnce(ctx context.Context, s Sweeper, ttl time.Duration) {
	deleted, err := s.Sweep(ctx, ttl)
	if err != nil {
		slog.Error("TTL worker failed to delete expired sessions", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("TTL worker deleted expired sessions", "count", deleted)
	}
}
