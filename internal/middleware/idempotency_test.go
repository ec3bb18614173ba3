package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/onnwee/pinmap/internal/idempotency"
)

// countingCreate answers 201 with an increasing id, or status when set.
func countingCreate(calls *int32, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p` + string(rune('0'+n)) + `"}`))
	})
}

func idempotentPost(h http.Handler, user, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/pins", strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	if user != "" {
		req = req.WithContext(SetUsername(req.Context(), user))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIdempotency_ReplaysCompletedResponse(t *testing.T) {
	var calls int32
	metrics := NewMetrics()
	h := Idempotency(idempotency.NewInMemoryStore(time.Hour), metrics)(countingCreate(&calls, 0))

	first := idempotentPost(h, "alice", "key-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}

	second := idempotentPost(h, "alice", "key-1")
	if second.Code != http.StatusCreated {
		t.Errorf("expected replayed 201, got %d", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("expected body %q, got %q", first.Body.String(), second.Body.String())
	}
	if second.Header().Get(IdempotentReplayedHeader) != "true" {
		t.Error("expected replay header")
	}
	if calls != 1 {
		t.Errorf("expected handler called once, got %d", calls)
	}
	if got := testutil.ToFloat64(metrics.idempotencyRequests.WithLabelValues(IdempotencyStored)); got != 1 {
		t.Errorf("expected 1 stored response, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.idempotencyRequests.WithLabelValues(IdempotencyReplayed)); got != 1 {
		t.Errorf("expected 1 replay, got %v", got)
	}
}

func TestIdempotency_KeysScopedByUser(t *testing.T) {
	var calls int32
	h := Idempotency(idempotency.NewInMemoryStore(time.Hour), nil)(countingCreate(&calls, 0))

	idempotentPost(h, "alice", "shared")
	rr := idempotentPost(h, "bob", "shared")
	if rr.Header().Get(IdempotentReplayedHeader) != "" {
		t.Error("expected bob's request not to replay alice's response")
	}
	if calls != 2 {
		t.Errorf("expected 2 handler calls, got %d", calls)
	}
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	var calls int32
	h := Idempotency(idempotency.NewInMemoryStore(time.Hour), nil)(countingCreate(&calls, 0))

	idempotentPost(h, "alice", "")
	idempotentPost(h, "alice", "")
	if calls != 2 {
		t.Errorf("expected 2 handler calls without keys, got %d", calls)
	}
}

func TestIdempotency_NilStorePassesThrough(t *testing.T) {
	var calls int32
	h := Idempotency(nil, nil)(countingCreate(&calls, 0))

	idempotentPost(h, "alice", "k")
	idempotentPost(h, "alice", "k")
	if calls != 2 {
		t.Errorf("expected 2 handler calls, got %d", calls)
	}
}

func TestIdempotency_InvalidKey(t *testing.T) {
	var calls int32
	h := Idempotency(idempotency.NewInMemoryStore(time.Hour), nil)(countingCreate(&calls, 0))

	rr := idempotentPost(h, "alice", strings.Repeat("k", idempotency.MaxKeyLength+1))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != ErrCodeInvalidIdempotencyKey {
		t.Errorf("expected %s, got %s", ErrCodeInvalidIdempotencyKey, code)
	}
	if calls != 0 {
		t.Errorf("expected handler not called, got %d", calls)
	}
}

func TestIdempotency_FailureReleasesKey(t *testing.T) {
	var calls int32
	store := idempotency.NewInMemoryStore(time.Hour)
	h := Idempotency(store, nil)(countingCreate(&calls, http.StatusBadRequest))

	idempotentPost(h, "alice", "retry-me")
	idempotentPost(h, "alice", "retry-me")
	if calls != 2 {
		t.Errorf("expected failed request to be retried, got %d calls", calls)
	}
	if _, err := store.Get(context.Background(), idempotency.ScopedKey("alice", "retry-me")); !errors.Is(err, idempotency.ErrKeyNotFound) {
		t.Errorf("expected key released, got %v", err)
	}
}

func TestIdempotency_InProgressConflict(t *testing.T) {
	store := idempotency.NewInMemoryStore(time.Hour)
	if _, err := store.Reserve(context.Background(), &idempotency.Record{Key: idempotency.ScopedKey("alice", "busy")}); err != nil {
		t.Fatal(err)
	}

	var calls int32
	h := Idempotency(store, nil)(countingCreate(&calls, 0))
	rr := idempotentPost(h, "alice", "busy")
	if rr.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != ErrCodeIdempotencyInProgress {
		t.Errorf("expected %s, got %s", ErrCodeIdempotencyInProgress, code)
	}
	if calls != 0 {
		t.Errorf("expected handler not called, got %d", calls)
	}
}

type brokenStore struct{}

func (brokenStore) Reserve(context.Context, *idempotency.Record) (*idempotency.Record, error) {
	return nil, errors.New("redis down")
}

func (brokenStore) Complete(context.Context, *idempotency.Record) error {
	return nil
}

func (brokenStore) Release(context.Context, string) error {
	return nil
}

func TestIdempotency_StoreFailureFallsThrough(t *testing.T) {
	var calls int32
	h := Idempotency(brokenStore{}, nil)(countingCreate(&calls, 0))

	rr := idempotentPost(h, "alice", "k")
	if rr.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rr.Code)
	}
	if calls != 1 {
		t.Errorf("expected handler called, got %d", calls)
	}
}
