package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestRun(t *testing.T) {
	ok := checkerFunc(func(context.Context) error { return nil })
	failing := checkerFunc(func(context.Context) error { return errors.New("boom") })
	slow := checkerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	tests := []struct {
		name        string
		checkers    map[string]Checker
		wantHealthy bool
		wantChecks  map[string]string
	}{
		{
			name:        "no checks",
			checkers:    map[string]Checker{},
			wantHealthy: true,
			wantChecks:  map[string]string{},
		},
		{
			name:        "all up",
			checkers:    map[string]Checker{"database": ok, "redis": ok},
			wantHealthy: true,
			wantChecks:  map[string]string{"database": StatusUp, "redis": StatusUp},
		},
		{
			name:        "one down",
			checkers:    map[string]Checker{"database": ok, "redis": failing},
			wantHealthy: false,
			wantChecks:  map[string]string{"database": StatusUp, "redis": StatusDown},
		},
		{
			name:        "timeout counts as down",
			checkers:    map[string]Checker{"geocoder": slow},
			wantHealthy: false,
			wantChecks:  map[string]string{"geocoder": StatusDown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Run(context.Background(), tt.checkers, 20*time.Millisecond)
			if res.Healthy != tt.wantHealthy {
				t.Errorf("expected healthy=%v, got %v", tt.wantHealthy, res.Healthy)
			}
			if len(res.Checks) != len(tt.wantChecks) {
				t.Fatalf("expected %d checks, got %d", len(tt.wantChecks), len(res.Checks))
			}
			for name, want := range tt.wantChecks {
				if got := res.Checks[name]; got != want {
					t.Errorf("check %s: expected %s, got %s", name, want, got)
				}
			}
		})
	}
}

type breakerStub struct{ err error }

func (b breakerStub) CheckHealth(context.Context) error { return b.err }

func TestGeocoderChecker(t *testing.T) {
	if err := NewGeocoderChecker(nil).HealthCheck(context.Background()); !errors.Is(err, ErrGeocoderNotConfigured) {
		t.Errorf("expected ErrGeocoderNotConfigured, got %v", err)
	}
	if err := NewGeocoderChecker(breakerStub{}).HealthCheck(context.Background()); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	open := errors.New("open")
	if err := NewGeocoderChecker(breakerStub{err: open}).HealthCheck(context.Background()); !errors.Is(err, open) {
		t.Errorf("expected breaker error, got %v", err)
	}
}
