package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// Run executes fn once as jobType and records its duration and outcome.
// metrics may be nil.
func Run(ctx context.Context, jobType string, metrics *Metrics, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	metrics.ObserveJob(jobType, time.Since(start), err)
	if err != nil {
		slog.ErrorContext(ctx, "background job failed", "job_type", jobType, "error", err)
	}
	return err
}

// Every runs fn as jobType on each tick of interval until ctx is done.
// Failures are recorded and the loop keeps going.
func Every(ctx context.Context, clk clock.Clock, interval time.Duration, jobType string, metrics *Metrics, fn func(context.Context) error) {
	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = Run(ctx, jobType, metrics, fn)
		case <-ctx.Done():
			slog.Info("stopping background job", "job_type", jobType)
			return
		}
	}
}
