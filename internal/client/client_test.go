package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/onnwee/pinmap/internal/api"
	"github.com/onnwee/pinmap/internal/auth"
	"github.com/onnwee/pinmap/internal/geocode"
	"github.com/onnwee/pinmap/internal/mapstate"
	"github.com/onnwee/pinmap/internal/pin"
	"github.com/onnwee/pinmap/internal/user"
)

var (
	_ mapstate.PinSource = (*Client)(nil)
	_ geocode.Geocoder   = (*Client)(nil)
)

type stubGeocoder struct{}

func (stubGeocoder) Search(_ context.Context, query string, limit int) ([]geocode.Suggestion, error) {
	out := make([]geocode.Suggestion, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, geocode.Suggestion{ID: query, PlaceName: query, Center: [2]float64{80.6, 7.3}})
	}
	return out, nil
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	tokens := auth.NewJWTService("client-test-secret-0123456789abcdef")
	svc := pin.NewService(pin.NewInMemoryRepository(), nil, nil, nil)
	srv := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Pins:    api.NewPinHandlers(svc, nil, nil),
		Users:   api.NewUserHandlers(user.NewInMemoryRepository(), tokens),
		Geocode: api.NewGeocodeHandlers(stubGeocoder{}),
		Tokens:  tokens,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_RegisterLoginCreateList(t *testing.T) {
	srv := newBackend(t)
	c := New(Config{BaseURL: srv.URL})
	ctx := context.Background()

	if err := c.Register(ctx, "alice", "alice@example.com", "hunter22"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	u, err := c.Login(ctx, "alice", "hunter22")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if u.Username != "alice" || u.Token == "" {
		t.Fatalf("unexpected session user %+v", u)
	}

	created, err := c.CreatePin(ctx, u.Token, pin.NewPin{Title: "Cafe", Description: "Good", Rating: 4, Lat: 6.9, Long: 79.8})
	if err != nil {
		t.Fatalf("CreatePin failed: %v", err)
	}
	if created.Username != "alice" {
		t.Errorf("expected owner alice, got %s", created.Username)
	}

	pins, err := c.ListPins(ctx)
	if err != nil {
		t.Fatalf("ListPins failed: %v", err)
	}
	if len(pins) != 1 || pins[0].ID != created.ID {
		t.Fatalf("expected the created pin, got %+v", pins)
	}

	got, err := c.GetPin(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetPin failed: %v", err)
	}
	if got.Title != "Cafe" {
		t.Errorf("expected title Cafe, got %s", got.Title)
	}
}

func TestClient_ErrorsMapToSentinels(t *testing.T) {
	srv := newBackend(t)
	c := New(Config{BaseURL: srv.URL})
	ctx := context.Background()

	if err := c.Register(ctx, "bob", "bob@example.com", "hunter22"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err := c.Register(ctx, "bob", "bob@example.com", "hunter22")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	_, err = c.Login(ctx, "bob", "wrong-password")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Code != api.ErrCodeAuthFailed {
		t.Errorf("expected code %s, got %s", api.ErrCodeAuthFailed, apiErr.Code)
	}

	_, err = c.CreatePin(ctx, "", pin.NewPin{Title: "x", Rating: 1, Lat: 1, Long: 1})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized without token, got %v", err)
	}

	_, err = c.GetPin(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_Search(t *testing.T) {
	srv := newBackend(t)
	c := New(Config{BaseURL: srv.URL})

	got, err := c.Search(context.Background(), "kandy", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 suggestions after truncation, got %d", len(got))
	}
	if got[0].Lat() != 7.3 || got[0].Long() != 80.6 {
		t.Errorf("unexpected center %v", got[0].Center)
	}

	if _, err := c.Search(context.Background(), "   ", 3); !errors.Is(err, geocode.ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).ListPins(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", apiErr.Status)
	}
	if apiErr.Code != "" {
		t.Errorf("expected empty code, got %q", apiErr.Code)
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{BaseURL: url, Retries: -1}).ListPins(context.Background())
	if err == nil {
		t.Fatal("expected error for closed server")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Errorf("expected transport error, got API error %v", apiErr)
	}
}

func TestClient_TransportErrorLogsThroughSlog(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe failed: %v", err)
	}
	stderr := os.Stderr
	os.Stderr = w
	defer func() { os.Stderr = stderr }()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := New(Config{BaseURL: url, Retries: 1, Logger: logger})
	if _, err := c.ListPins(context.Background()); err == nil {
		t.Fatal("expected error for closed server")
	}

	os.Stderr = stderr
	_ = w.Close()
	written, _ := io.ReadAll(r)
	if len(written) != 0 {
		t.Errorf("expected nothing on stderr, got %q", written)
	}
	if !strings.Contains(logs.String(), "component=http_client") {
		t.Errorf("expected the failure in the supplied logger, got %q", logs.String())
	}
}

func TestClient_NilLoggerDiscards(t *testing.T) {
	l := restyLogger{}
	l.Errorf("boom %d", 1)
	l.Warnf("retrying")
	l.Debugf("ignored")
}

func TestClient_CreatePinSendsIdempotencyKey(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p1","username":"alice","title":"Cafe","rating":4,"lat":1,"long":1}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	for i := 0; i < 2; i++ {
		if _, err := c.CreatePin(context.Background(), "tok", pin.NewPin{Title: "Cafe", Rating: 4, Lat: 1, Long: 1}); err != nil {
			t.Fatalf("CreatePin failed: %v", err)
		}
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(keys))
	}
	if keys[0] == "" || keys[0] == keys[1] {
		t.Errorf("expected a distinct key per call, got %q and %q", keys[0], keys[1])
	}
}
