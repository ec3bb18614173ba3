// Package health provides health check implementations for external dependencies.
package health

import (
	"context"
	"time"
)

// Checker reports whether a dependency is usable.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Status values reported per check.
const (
	StatusUp   = "up"
	StatusDown = "down"
)

// DefaultTimeout bounds each individual check.
const DefaultTimeout = 2 * time.Second

// Result is the outcome of running a set of named checks.
type Result struct {
	Healthy bool              `json:"healthy"`
	Checks  map[string]string `json:"checks"`
}

// Run executes every checker concurrently, each bounded by timeout.
// Errors are reported per check and never returned.
func Run(ctx context.Context, checkers map[string]Checker, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	type outcome struct {
		name string
		err  error
	}
	results := make(chan outcome, len(checkers))
	for name, c := range checkers {
		go func(name string, c Checker) {
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			results <- outcome{name: name, err: c.HealthCheck(checkCtx)}
		}(name, c)
	}

	res := Result{Healthy: true, Checks: make(map[string]string, len(checkers))}
	for range checkers {
		o := <-results
		if o.err != nil {
			res.Healthy = false
			res.Checks[o.name] = StatusDown
			continue
		}
		res.Checks[o.name] = StatusUp
	}
	return res
}
