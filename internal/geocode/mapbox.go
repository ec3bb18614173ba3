package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/pinmap/internal/tracing"
)

// DefaultMapboxURL is the public Mapbox API host.
const DefaultMapboxURL = "https://api.mapbox.com"

// DefaultTimeout bounds a single lookup.
const DefaultTimeout = 5 * time.Second

const placesPath = "/geocoding/v5/mapbox.places/{query}.json"

// MapboxConfig configures a MapboxClient.
type MapboxConfig struct {
	Token   string
	BaseURL string        // defaults to DefaultMapboxURL
	Timeout time.Duration // defaults to DefaultTimeout

	// Consecutive failures before the breaker opens, and how long it stays open.
	BreakerFailures uint32
	BreakerCooldown time.Duration

	Metrics *Metrics
}

// MapboxClient queries the Mapbox places endpoint with autocomplete enabled.
// Calls go through a circuit breaker so an unavailable provider fails fast.
type MapboxClient struct {
	client  *resty.Client
	token   string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[[]Suggestion]
	metrics *Metrics
}

type mapboxResponse struct {
	Features []Suggestion `json:"features"`
}

// NewMapboxClient creates a Mapbox geocoder.
func NewMapboxClient(cfg MapboxConfig) *MapboxClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMapboxURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout)

	failures := cfg.BreakerFailures
	metrics := cfg.Metrics
	cb := gobreaker.NewCircuitBreaker[[]Suggestion](gobreaker.Settings{
		Name:        "mapbox-geocoding",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Caller cancellation says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if metrics != nil {
				metrics.SetBreakerOpen(to == gobreaker.StateOpen)
			}
		},
	})

	return &MapboxClient{
		client:  c,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		cb:      cb,
		metrics: metrics,
	}
}

// Search implements Geocoder.
func (m *MapboxClient) Search(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	ctx, end := tracing.StartSpan(ctx, "geocode.mapbox.search",
		attribute.Int("geocode.limit", limit),
		attribute.Int("geocode.query_length", len(query)),
	)

	start := time.Now()
	out, err := m.cb.Execute(func() ([]Suggestion, error) {
		return m.fetch(ctx, query, limit)
	})
	if m.metrics != nil {
		m.metrics.ObserveLookup(resultLabel(err), time.Since(start))
	}
	end(err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CheckHealth reports ErrBreakerOpen while the circuit breaker is open.
func (m *MapboxClient) CheckHealth(context.Context) error {
	if m.cb.State() == gobreaker.StateOpen {
		return ErrBreakerOpen
	}
	return nil
}

func (m *MapboxClient) fetch(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp, err := m.client.R().
		SetContext(ctx).
		SetPathParam("query", query).
		SetQueryParams(map[string]string{
			"access_token": m.token,
			"autocomplete": "true",
			"limit":        strconv.Itoa(limit),
		}).
		Get(placesPath)
	if err != nil {
		return nil, fmt.Errorf("mapbox request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode())
	}

	var body mapboxResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("decode mapbox response: %w", err)
	}
	if len(body.Features) > limit {
		body.Features = body.Features[:limit]
	}
	if body.Features == nil {
		body.Features = []Suggestion{}
	}
	return body.Features, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ResultRejected
	default:
		return ResultError
	}
}
