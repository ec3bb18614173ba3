package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var passHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// hit sends one GET /api/pins from remote through h.
func hit(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/pins", nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestInMemoryRateLimitStore_Allow(t *testing.T) {
	tests := []struct {
		name        string
		limit       int
		wantAllowed []bool
	}{
		{"under limit", 5, []bool{true, true, true}},
		{"over limit", 3, []bool{true, true, true, false, false}},
		{"single request", 1, []bool{true, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewInMemoryRateLimitStore()
			config := RateLimitConfig{RequestsPerWindow: tt.limit, WindowDuration: time.Minute}
			for i, want := range tt.wantAllowed {
				allowed, remaining, retryAfter := store.Allow(context.Background(), "global:ip:10.0.0.1", config)
				if allowed != want {
					t.Errorf("request %d: expected allowed=%v, got %v", i+1, want, allowed)
				}
				if want {
					if remaining != tt.limit-i-1 {
						t.Errorf("request %d: expected remaining %d, got %d", i+1, tt.limit-i-1, remaining)
					}
					if retryAfter != 0 {
						t.Errorf("request %d: expected no retryAfter, got %d", i+1, retryAfter)
					}
				} else if remaining != 0 {
					t.Errorf("request %d: expected remaining 0 when blocked, got %d", i+1, remaining)
				}
			}
		})
	}
}

func TestInMemoryRateLimitStore_RetryAfterCountsDown(t *testing.T) {
	mock := clock.NewMock()
	store := NewInMemoryRateLimitStoreWithClock(mock)
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 10 * time.Second}
	ctx := context.Background()

	store.Allow(ctx, "auth:ip:10.0.0.1", config)

	_, _, retryAfter := store.Allow(ctx, "auth:ip:10.0.0.1", config)
	if retryAfter != 10 {
		t.Errorf("expected retryAfter 10, got %d", retryAfter)
	}

	mock.Add(7 * time.Second)
	_, _, retryAfter = store.Allow(ctx, "auth:ip:10.0.0.1", config)
	if retryAfter != 3 {
		t.Errorf("expected retryAfter 3, got %d", retryAfter)
	}

	mock.Add(2*time.Second + 500*time.Millisecond)
	_, _, retryAfter = store.Allow(ctx, "auth:ip:10.0.0.1", config)
	if retryAfter != 1 {
		t.Errorf("expected retryAfter to floor at 1, got %d", retryAfter)
	}
}

func TestInMemoryRateLimitStore_WindowExpiry(t *testing.T) {
	mock := clock.NewMock()
	store := NewInMemoryRateLimitStoreWithClock(mock)
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	ctx := context.Background()

	store.Allow(ctx, "geocode:user:alice", config)
	if allowed, _, _ := store.Allow(ctx, "geocode:user:alice", config); allowed {
		t.Fatal("second lookup in the window should be blocked")
	}
	if allowed, _, _ := store.Allow(ctx, "geocode:user:bob", config); !allowed {
		t.Error("expected bob to get a separate bucket")
	}

	mock.Add(time.Minute)
	if allowed, _, _ := store.Allow(ctx, "geocode:user:alice", config); !allowed {
		t.Error("lookup after the window should be allowed")
	}
}

func TestInMemoryRateLimitStore_Concurrency(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 100, WindowDuration: time.Minute}

	var wg sync.WaitGroup
	var allowed int32
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _, _ := store.Allow(context.Background(), "global:ip:10.0.0.1", config); ok {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	if allowed != 100 {
		t.Errorf("expected 100 allowed requests, got %d", allowed)
	}
}

func TestInMemoryRateLimitStore_Cleanup(t *testing.T) {
	mock := clock.NewMock()
	store := NewInMemoryRateLimitStoreWithClock(mock)
	ctx := context.Background()

	store.Allow(ctx, "auth:ip:10.0.0.1", RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second})
	store.Allow(ctx, "auth:ip:10.0.0.2", RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second})
	store.Allow(ctx, "global:ip:10.0.0.1", RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour})

	mock.Add(2 * time.Second)

	if removed := store.Cleanup(); removed != 2 {
		t.Errorf("expected 2 expired buckets removed, got %d", removed)
	}
	if n := store.Len(); n != 1 {
		t.Errorf("expected the hour-long bucket to survive, got %d buckets", n)
	}
}

func TestIPKeyFunc(t *testing.T) {
	keyFunc := IPKeyFunc()

	tests := []struct {
		name          string
		remoteAddr    string
		xForwardedFor string
		xRealIP       string
		want          string
	}{
		{name: "remote addr", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "remote addr without port", remoteAddr: "192.168.1.1", want: "192.168.1.1"},
		{name: "ipv6 remote addr", remoteAddr: "[2001:db8::1]:8080", want: "2001:db8::1"},
		{name: "forwarded for", remoteAddr: "10.0.0.1:1", xForwardedFor: "203.0.113.50", want: "203.0.113.50"},
		{name: "first hop of chain", remoteAddr: "10.0.0.1:1", xForwardedFor: " 203.0.113.50 , 198.51.100.1", want: "203.0.113.50"},
		{name: "real ip", remoteAddr: "10.0.0.1:1", xRealIP: " 203.0.113.50 ", want: "203.0.113.50"},
		{name: "forwarded for wins over real ip", remoteAddr: "10.0.0.1:1", xForwardedFor: "203.0.113.50", xRealIP: "198.51.100.1", want: "203.0.113.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/pins", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if got := keyFunc(req); got != tt.want {
				t.Errorf("expected key %q, got %q", tt.want, got)
			}
		})
	}
}

func TestUserKeyFunc(t *testing.T) {
	keyFunc := UserKeyFunc()

	req := httptest.NewRequest(http.MethodGet, "/api/geocode?q=kandy", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	if got := keyFunc(req); got != "ip:192.168.1.1" {
		t.Errorf("expected ip key when signed out, got %q", got)
	}

	req = req.WithContext(SetUsername(req.Context(), "alice"))
	if got := keyFunc(req); got != "user:alice" {
		t.Errorf("expected user key when signed in, got %q", got)
	}
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	config := RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute}
	h := RateLimiter("global", NewInMemoryRateLimitStore(), config, IPKeyFunc(), nil)(passHandler)

	var allowed, blocked int
	for i := 0; i < 15; i++ {
		switch hit(h, "192.168.1.1:12345").Code {
		case http.StatusOK:
			allowed++
		case http.StatusTooManyRequests:
			blocked++
		}
	}
	if allowed != 10 || blocked != 5 {
		t.Errorf("expected 10 allowed and 5 blocked, got %d and %d", allowed, blocked)
	}

	if rr := hit(h, "192.168.1.2:12345"); rr.Code != http.StatusOK {
		t.Errorf("expected another client to pass, got %d", rr.Code)
	}
}

func TestRateLimiter_RejectionHeaders(t *testing.T) {
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 30 * time.Second}
	h := RateLimiter("global", NewInMemoryRateLimitStore(), config, IPKeyFunc(), nil)(passHandler)

	hit(h, "192.168.1.1:12345")
	rr := hit(h, "192.168.1.1:12345")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}

	retryAfter, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	if err != nil || retryAfter <= 0 || retryAfter > 30 {
		t.Errorf("expected Retry-After between 1 and 30, got %q", rr.Header().Get("Retry-After"))
	}

	reset, err := strconv.ParseInt(rr.Header().Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		t.Fatalf("expected X-RateLimit-Reset as Unix seconds: %v", err)
	}
	now := time.Now().Unix()
	if reset <= now || reset > now+30 {
		t.Errorf("expected reset within 30 seconds of %d, got %d", now, reset)
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	mock := clock.NewMock()
	config := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}
	h := RateLimiter("global", NewInMemoryRateLimitStoreWithClock(mock), config, IPKeyFunc(), nil)(passHandler)

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		if rr := hit(h, "192.168.1.1:12345"); rr.Code != want {
			t.Errorf("request %d: expected %d, got %d", i+1, want, rr.Code)
		}
	}

	mock.Add(time.Minute)
	if rr := hit(h, "192.168.1.1:12345"); rr.Code != http.StatusOK {
		t.Errorf("expected a new window to allow requests, got %d", rr.Code)
	}
}

func TestRateLimiter_JSONErrorAndMetrics(t *testing.T) {
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	metrics := NewMetrics()
	h := RateLimiter("auth", NewInMemoryRateLimitStore(), config, UserKeyFunc(), metrics)(passHandler)

	login := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/user/login", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	rr := login()
	if got := rr.Header().Get("X-RateLimit-Limit"); got != "1" {
		t.Errorf("expected X-RateLimit-Limit 1, got %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected X-RateLimit-Remaining 0, got %q", got)
	}

	rr = login()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Error.Code != ErrCodeRateLimited {
		t.Errorf("expected code %s, got %s", ErrCodeRateLimited, body.Error.Code)
	}

	if got := testutil.ToFloat64(metrics.rateLimitRequests.WithLabelValues("auth", "ip")); got != 2 {
		t.Errorf("expected 2 checks, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.rateLimitBlocked.WithLabelValues("auth", "ip")); got != 1 {
		t.Errorf("expected 1 blocked, got %v", got)
	}
}

func TestRateLimiter_ScopesAreIndependent(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}

	auth := RateLimiter("auth", store, config, IPKeyFunc(), nil)(passHandler)
	geocode := RateLimiter("geocode", store, config, IPKeyFunc(), nil)(passHandler)

	for _, h := range []http.Handler{auth, geocode} {
		if rr := hit(h, "10.0.0.1:1"); rr.Code != http.StatusOK {
			t.Errorf("expected first request in each scope to pass, got %d", rr.Code)
		}
	}
}

func TestDefaultLimits(t *testing.T) {
	tests := []struct {
		name string
		got  RateLimitConfig
		want int
	}{
		{"global", DefaultGlobalLimit(), 120},
		{"auth", DefaultAuthLimit(), 10},
		{"geocode", DefaultGeocodeLimit(), 30},
	}
	for _, tt := range tests {
		if tt.got.RequestsPerWindow != tt.want || tt.got.WindowDuration != time.Minute {
			t.Errorf("%s: expected %d per minute, got %d per %s", tt.name, tt.want, tt.got.RequestsPerWindow, tt.got.WindowDuration)
		}
		if err := tt.got.Validate(); err != nil {
			t.Errorf("%s: expected valid default, got %v", tt.name, err)
		}
	}

	copied := DefaultGlobalLimit()
	copied.RequestsPerWindow = 9999
	if DefaultGlobalLimit().RequestsPerWindow != 120 {
		t.Error("expected defaults to be returned by value")
	}
}

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RateLimitConfig
		wantErr bool
	}{
		{"valid", RateLimitConfig{RequestsPerWindow: 100, WindowDuration: time.Minute}, false},
		{"zero requests", RateLimitConfig{RequestsPerWindow: 0, WindowDuration: time.Minute}, true},
		{"negative requests", RateLimitConfig{RequestsPerWindow: -1, WindowDuration: time.Minute}, true},
		{"zero window", RateLimitConfig{RequestsPerWindow: 100}, true},
		{"negative window", RateLimitConfig{RequestsPerWindow: 100, WindowDuration: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}
