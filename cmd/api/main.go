// Package main is the entry point for the pinmap API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/pinmap/internal/api"
	"github.com/onnwee/pinmap/internal/auth"
	"github.com/onnwee/pinmap/internal/config"
	"github.com/onnwee/pinmap/internal/db"
	"github.com/onnwee/pinmap/internal/geo"
	"github.com/onnwee/pinmap/internal/geocode"
	"github.com/onnwee/pinmap/internal/health"
	"github.com/onnwee/pinmap/internal/idempotency"
	"github.com/onnwee/pinmap/internal/jobs"
	"github.com/onnwee/pinmap/internal/middleware"
	"github.com/onnwee/pinmap/internal/pin"
	"github.com/onnwee/pinmap/internal/tracing"
	"github.com/onnwee/pinmap/internal/user"
)

const (
	serviceName     = "pinmap-api"
	shutdownTimeout = 10 * time.Second
	startupTimeout  = 30 * time.Second

	idempotencyCleanupInterval = time.Hour
	rateLimitCleanupInterval   = 5 * time.Minute
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", os.Getenv("PINMAP_CONFIG"), "optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Pinmap API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	env := config.DefaultEnv
	if cfg != nil {
		env = cfg.Env
	}
	logger := middleware.NewLogger(env)
	slog.SetDefault(logger)

	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}
	logger.Info("configuration loaded", summaryArgs(cfg.LogSummary())...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// run builds the server and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	srv, cleanup, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	return serve(ctx, srv, ln, logger)
}

// serve runs srv on ln and shuts it down gracefully once ctx is done.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// newServer wires storage, caches, tracing and metrics into the HTTP server.
// The returned cleanup releases everything that was opened.
func newServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*http.Server, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*http.Server, func(), error) {
		cleanup()
		return nil, nil, err
	}

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	// background starts a loop that stops when cleanup runs.
	background := func(loop func(context.Context)) {
		loopCtx, stop := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			loop(loopCtx)
		}()
		closers = append(closers, func() {
			stop()
			<-done
		})
	}

	// Tracing
	provider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		return fail(fmt.Errorf("init tracing: %w", err))
	}
	closers = append(closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracing shutdown failed", "error", err)
		}
	})

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := middleware.NewMetrics()
	pinMetrics := pin.NewMetrics()
	geoMetrics := geocode.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	type registerer interface {
		Register(prometheus.Registerer) error
	}
	for _, m := range []registerer{httpMetrics, pinMetrics, geoMetrics, jobMetrics} {
		if err := m.Register(reg); err != nil {
			return fail(fmt.Errorf("register metrics: %w", err))
		}
	}

	checkers := map[string]health.Checker{}

	// Storage
	var pinRepo pin.Repository
	var userRepo user.Repository
	if cfg.DatabaseURL != "" {
		database, err := db.Open(startCtx, cfg.DatabaseURL)
		if err != nil {
			return fail(fmt.Errorf("open database: %w", err))
		}
		closers = append(closers, func() { _ = database.Close() })
		pinRepo = pin.NewSQLRepository(database)
		userRepo = user.NewSQLRepository(database)
		checkers["database"] = health.NewDBChecker(database.DB)
		logger.Info("database connected", "driver", database.System())
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		pinRepo = pin.NewInMemoryRepository()
		userRepo = user.NewInMemoryRepository()
	}

	// Redis
	var rdb *redis.Client
	var limitStore middleware.RateLimitStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("parse REDIS_URL: %w", err))
		}
		rdb = redis.NewClient(opts)
		closers = append(closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(startCtx).Err(); err != nil {
			logger.Warn("redis unreachable at startup", "error", err)
		}
		limitStore = middleware.NewRedisRateLimitStore(rdb).WithMetrics(httpMetrics)
		checkers["redis"] = health.NewRedisChecker(rdb)
	} else {
		mem := middleware.NewInMemoryRateLimitStore()
		limitStore = mem
		background(func(ctx context.Context) {
			jobs.Every(ctx, clock.New(), rateLimitCleanupInterval, jobs.JobTypeRateLimitCleanup, jobMetrics, func(context.Context) error {
				if removed := mem.Cleanup(); removed > 0 {
					logger.Debug("expired rate limit buckets removed", "removed", removed)
				}
				return nil
			})
		})
	}

	// Idempotency keys for pin creation
	var idemStore idempotency.Store
	if rdb != nil {
		idemStore = idempotency.NewRedisStore(rdb, idempotency.DefaultExpiry)
	} else {
		mem := idempotency.NewInMemoryStore(idempotency.DefaultExpiry)
		background(func(ctx context.Context) {
			idempotency.RunPeriodicCleanup(ctx, mem, idempotencyCleanupInterval, idempotency.DefaultExpiry, jobMetrics)
		})
		idemStore = mem
	}

	// Geocoding
	var geocoder geocode.Geocoder
	if cfg.MapboxToken != "" {
		mapbox := geocode.NewMapboxClient(geocode.MapboxConfig{
			Token:   cfg.MapboxToken,
			Timeout: cfg.GeocodeTimeout,
			Metrics: geoMetrics,
		})
		geocoder = mapbox
		if rdb != nil {
			geocoder = geocode.NewCachedGeocoder(mapbox, rdb, 0, geoMetrics)
		}
		checkers["geocoder"] = health.NewGeocoderChecker(mapbox)
	} else {
		logger.Warn("MAPBOX_TOKEN not set, geocoding disabled")
	}

	// Pins
	svc := pin.NewService(pinRepo, geo.NewIndex(), pin.NewBroadcaster(), pinMetrics)
	if err := jobs.Run(startCtx, jobs.JobTypeIndexWarm, jobMetrics, svc.Warm); err != nil {
		return fail(err)
	}

	tokens := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)

	handler := api.NewRouter(api.RouterConfig{
		Logger:         logger,
		Pins:           api.NewPinHandlers(svc, pinMetrics, cfg.CORSOrigins),
		Users:          api.NewUserHandlers(userRepo, tokens),
		Geocode:        api.NewGeocodeHandlers(geocoder),
		Health:         api.NewHealthHandlers(checkers),
		Tokens:         tokens,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitStore: limitStore,
		GlobalLimit: middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimitRPM,
			WindowDuration:    time.Minute,
		},
		NoGlobalLimit:  cfg.RateLimitRPM == 0,
		Idempotency:    idemStore,
		Metrics:        httpMetrics,
		Gatherer:       reg,
		TracingEnabled: cfg.TracingEnabled,
		ServiceName:    serviceName,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, cleanup, nil
}

// summaryArgs flattens a config summary into sorted slog key/value pairs.
func summaryArgs(summary map[string]string) []any {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, summary[k])
	}
	return args
}
