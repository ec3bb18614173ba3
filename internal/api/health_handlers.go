package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/pinmap/internal/health"
)

// readinessTimeout bounds the whole readiness probe.
const readinessTimeout = 5 * time.Second

// HealthHandlers provides liveness and readiness endpoints.
type HealthHandlers struct {
	checkers map[string]health.Checker
	timeout  time.Duration
}

// NewHealthHandlers creates health handlers over named dependency checkers
// (e.g. "database", "redis", "geocoder"). Only configured dependencies are checked.
func NewHealthHandlers(checkers map[string]health.Checker) *HealthHandlers {
	if checkers == nil {
		checkers = map[string]health.Checker{}
	}
	return &HealthHandlers{checkers: checkers, timeout: health.DefaultTimeout}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe). It never touches dependencies.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r.Context(), http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": health.StatusUp},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready (readiness probe).
// Returns 503 if any configured dependency is down.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, readinessTimeout)
	defer cancel()

	result := health.Run(ctx, h.checkers, h.timeout)

	status, code := "healthy", http.StatusOK
	if !result.Healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
		for name, state := range result.Checks {
			if state == health.StatusDown {
				slog.WarnContext(r.Context(), "readiness check failed", "dependency", name)
			}
		}
	}

	writeJSON(w, r.Context(), code, HealthResponse{
		Status:    status,
		Checks:    result.Checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
