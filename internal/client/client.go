// Package client is the HTTP client for the pinmap backend. It satisfies the
// mapstate collaborators (pin source and geocoder) over the REST API.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/onnwee/pinmap/internal/geocode"
	"github.com/onnwee/pinmap/internal/mapstate"
	"github.com/onnwee/pinmap/internal/pin"
)

// DefaultBaseURL is the backend address used by the CLI when none is configured.
const DefaultBaseURL = "http://localhost:8080"

// DefaultTimeout bounds a single request.
const DefaultTimeout = 10 * time.Second

const idempotencyKeyHeader = "Idempotency-Key"

// DefaultRetries is how often a request is resent after a transport error.
const DefaultRetries = 2

var (
	// ErrUnauthorized matches 401 responses.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("not found")
	// ErrConflict matches 409 responses.
	ErrConflict = errors.New("conflict")
	// ErrRateLimited matches 429 responses.
	ErrRateLimited = errors.New("rate limited")
)

// APIError is a non-2xx response decoded from the backend error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("pinmap api: status %d", e.Status)
	}
	return fmt.Sprintf("pinmap api: %s: %s (status %d)", e.Code, e.Message, e.Status)
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Config configures a Client.
type Config struct {
	BaseURL string        // defaults to DefaultBaseURL
	Timeout time.Duration // defaults to DefaultTimeout
	Retries int           // 0 uses DefaultRetries; negative disables
	Logger  *slog.Logger  // receives transport warnings; nil discards them
}

// Client talks to the pinmap REST API.
type Client struct {
	http *resty.Client
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch {
	case cfg.Retries == 0:
		cfg.Retries = DefaultRetries
	case cfg.Retries < 0:
		cfg.Retries = 0
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal).
		SetLogger(restyLogger{logger: cfg.Logger})

	return &Client{http: c}
}

// restyLogger routes resty's own diagnostics into slog.
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) log() *slog.Logger {
	if l.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l.logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.log().Error(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "http_client")
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.log().Warn(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "http_client")
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.log().Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "http_client")
}

// ListPins implements mapstate.PinSource.
func (c *Client) ListPins(ctx context.Context) ([]pin.Pin, error) {
	var pins []pin.Pin
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&pins).
		Get("/api/pins")
	if err := check(resp, err, "list pins"); err != nil {
		return nil, err
	}
	if pins == nil {
		pins = []pin.Pin{}
	}
	return pins, nil
}

// GetPin fetches one pin.
func (c *Client) GetPin(ctx context.Context, id string) (*pin.Pin, error) {
	var p pin.Pin
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&p).
		Get("/api/pins/{id}")
	if err := check(resp, err, "get pin"); err != nil {
		return nil, err
	}
	return &p, nil
}

type createPinBody struct {
	Title       string  `json:"title"`
	Description string  `json:"desc,omitempty"`
	Rating      int     `json:"rating"`
	Lat         float64 `json:"lat"`
	Long        float64 `json:"long"`
}

// CreatePin creates a pin owned by the token's user. Each call carries a
// fresh Idempotency-Key so transport retries cannot create the pin twice.
func (c *Client) CreatePin(ctx context.Context, token string, in pin.NewPin) (*pin.Pin, error) {
	var created pin.Pin
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetHeader(idempotencyKeyHeader, uuid.NewString()).
		SetBody(createPinBody{
			Title:       in.Title,
			Description: in.Description,
			Rating:      in.Rating,
			Lat:         in.Lat,
			Long:        in.Long,
		}).
		SetResult(&created).
		Post("/api/pins")
	if err := check(resp, err, "create pin"); err != nil {
		return nil, err
	}
	return &created, nil
}

type geocodeResponse struct {
	Features []geocode.Suggestion `json:"features"`
}

// Search implements geocode.Geocoder through the backend proxy, so the
// provider token stays on the server.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]geocode.Suggestion, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, geocode.ErrEmptyQuery
	}

	var body geocodeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetResult(&body).
		Get("/api/geocode")
	if err := check(resp, err, "geocode"); err != nil {
		return nil, err
	}
	if limit > 0 && len(body.Features) > limit {
		body.Features = body.Features[:limit]
	}
	return body.Features, nil
}

type credentials struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

type loginResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, email, password string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(credentials{Username: username, Email: email, Password: password}).
		Post("/api/user/register")
	return check(resp, err, "register")
}

// Login exchanges credentials for a session user carrying a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (*mapstate.User, error) {
	var out loginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(credentials{Username: username, Password: password}).
		SetResult(&out).
		Post("/api/user/login")
	if err := check(resp, err, "login"); err != nil {
		return nil, err
	}
	return &mapstate.User{Username: out.Username, Token: out.Token}, nil
}

// check turns a transport error or non-2xx response into an error.
func check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}
	apiErr := &APIError{Status: resp.StatusCode()}
	var env errorEnvelope
	if json.Unmarshal(resp.Body(), &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return fmt.Errorf("%s: %w", op, apiErr)
}
