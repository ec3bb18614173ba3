package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/pinmap/internal/jobs"
)

// Cleaner removes expired records. Stores with native expiry don't need one.
type Cleaner interface {
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// CleanupOldKeys removes records older than expiry and records the run in
// metrics (which may be nil).
func CleanupOldKeys(ctx context.Context, c Cleaner, expiry time.Duration, metrics *jobs.Metrics) (int64, error) {
	start := time.Now()
	deleted, err := c.DeleteOlderThan(ctx, expiry)
	metrics.ObserveJob(jobs.JobTypeIdempotencyCleanup, time.Since(start), err)
	if err != nil {
		slog.ErrorContext(ctx, "failed to cleanup old idempotency keys", "error", err)
		return 0, err
	}

	if deleted > 0 {
		slog.InfoContext(ctx, "cleaned up old idempotency keys", "deleted", deleted, "older_than", expiry)
	}
	return deleted, nil
}

// RunPeriodicCleanup runs CleanupOldKeys every interval until ctx is done.
func RunPeriodicCleanup(ctx context.Context, c Cleaner, interval, expiry time.Duration, metrics *jobs.Metrics) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = CleanupOldKeys(ctx, c, expiry, metrics)
		case <-ctx.Done():
			slog.Info("stopping idempotency cleanup")
			return
		}
	}
}
