package history

// retention.go purges expired run history in the background.
//
// The job runs once at start and then every interval until ctx is cancelled.
// A failed purge is logged and retried on the next tick; it never stops the
// server.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig controls history pruning.
type RetentionConfig struct {
	MaxAge   time.Duration // runs older than this are deleted; <= 0 disables pruning
	Interval time.Duration // how often to prune (default: 24h)
}

// RunRetention prunes store until ctx is done. It blocks; start it in a goroutine.
func RunRetention(ctx context.Context, store Store, cfg RetentionConfig) {
	if cfg.MaxAge <= 0 {
		slog.Info("history retention disabled")
		return
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}

	slog.Info("history retention started",
		"max_age", cfg.MaxAge,
		"interval", cfg.Interval,
	)

	pruneOnce(ctx, store, cfg.MaxAge)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("history retention stopped")
			return
		case <-ticker.C:
			pruneOnce(ctx, store, cfg.MaxAge)
		}
	}
}

func pruneOnce(ctx context.Context, store Store, maxAge time.Duration) {
	start := time.Now()
	purged, err := store.Prune(ctx, start.Add(-maxAge))
	if err != nil {
		slog.Error("history prune failed", "error", err)
		return
	}
	slog.Info("history pruned",
		"runs_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
