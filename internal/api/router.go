package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/pinmap/internal/idempotency"
	"github.com/onnwee/pinmap/internal/middleware"
)

// RouterConfig wires handlers and cross-cutting middleware into the API router.
type RouterConfig struct {
	Logger         *slog.Logger
	Pins           *PinHandlers
	Users          *UserHandlers
	Geocode        *GeocodeHandlers
	Health         *HealthHandlers
	Tokens         middleware.TokenValidator // required
	CORSOrigins    []string
	RateLimitStore middleware.RateLimitStore
	GlobalLimit    middleware.RateLimitConfig
	NoGlobalLimit  bool // skips the global limiter; auth and geocode limits still apply
	Idempotency    idempotency.Store
	Metrics        *middleware.Metrics
	Gatherer       prometheus.Gatherer
	TracingEnabled bool
	ServiceName    string
}

// NewRouter builds the HTTP handler for the API.
//
// Middleware order, outermost first: recoverer, request ID, tracing, logging,
// metrics, CORS, global rate limit. Route groups add auth and tighter limits.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	if cfg.TracingEnabled {
		r.Use(middleware.Tracing(cfg.ServiceName))
	}
	r.Use(middleware.Logging(logger))
	if cfg.Metrics != nil {
		r.Use(middleware.HTTPMetrics(cfg.Metrics))
	}
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	})

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Health)
		r.Get("/ready", cfg.Health.Ready)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	store := cfg.RateLimitStore
	if store == nil {
		store = middleware.NewInMemoryRateLimitStore()
	}
	globalLimit := cfg.GlobalLimit
	if globalLimit.Validate() != nil {
		globalLimit = middleware.DefaultGlobalLimit()
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.Tokens))
		if !cfg.NoGlobalLimit {
			r.Use(middleware.RateLimiter("global", store, globalLimit, middleware.UserKeyFunc(), cfg.Metrics))
		}

		if cfg.Pins != nil {
			r.Get("/pins", cfg.Pins.ListPins)
			r.Get("/pins/live", cfg.Pins.LiveFeed)
			r.Get("/pins/{id}", cfg.Pins.GetPin)
			r.With(
				middleware.RequireAuth(cfg.Tokens),
				middleware.Idempotency(cfg.Idempotency, cfg.Metrics),
			).Post("/pins", cfg.Pins.CreatePin)
		}

		if cfg.Users != nil {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimiter("auth", store, middleware.DefaultAuthLimit(), middleware.IPKeyFunc(), cfg.Metrics))
				r.Post("/user/register", cfg.Users.Register)
				r.Post("/user/login", cfg.Users.Login)
			})
		}

		if cfg.Geocode != nil {
			r.With(middleware.RateLimiter("geocode", store, middleware.DefaultGeocodeLimit(), middleware.UserKeyFunc(), cfg.Metrics)).
				Get("/geocode", cfg.Geocode.Search)
		}
	})

	return r
}

func contextWithTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
