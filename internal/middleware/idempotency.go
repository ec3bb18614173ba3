package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/pinmap/internal/idempotency"
)

// IdempotencyKeyHeader is the HTTP header name for idempotency keys.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotentReplayedHeader marks a response served from the store.
const IdempotentReplayedHeader = "Idempotent-Replayed"

// Error codes written by the idempotency middleware.
const (
	ErrCodeInvalidIdempotencyKey = "invalid_idempotency_key"
	ErrCodeIdempotencyInProgress = "idempotency_in_progress"
)

// idempotencyResponseWriter captures the status and body for storage.
type idempotencyResponseWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	written    bool
}

func (w *idempotencyResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *idempotencyResponseWriter) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.body.Write(b[:n])
	return n, err
}

// Idempotency replays the stored response when a POST repeats an
// Idempotency-Key. Keys are optional and scoped to the authenticated user, so
// place this after RequireAuth. Only 2xx responses are stored; anything else
// releases the key so the client can retry. Store failures fall through to the
// handler. metrics may be nil.
func Idempotency(store idempotency.Store, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if store == nil || r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			if err := idempotency.ValidateKey(key); err != nil {
				writeError(w, ctx, http.StatusBadRequest, ErrCodeInvalidIdempotencyKey, "Idempotency-Key must be 1 to 64 characters")
				return
			}

			scoped := idempotency.ScopedKey(GetUsername(ctx), key)
			existing, err := store.Reserve(ctx, &idempotency.Record{
				Key:    scoped,
				Method: r.Method,
				Route:  r.URL.Path,
			})
			switch {
			case errors.Is(err, idempotency.ErrKeyExists):
				if existing.Status != idempotency.StatusCompleted {
					metrics.IncIdempotency(IdempotencyInProgress)
					writeError(w, ctx, http.StatusConflict, ErrCodeIdempotencyInProgress, "A request with this Idempotency-Key is still being processed")
					return
				}
				slog.InfoContext(ctx, "idempotency key found, returning stored response",
					"key", key,
					"status", existing.StatusCode,
				)
				metrics.IncIdempotency(IdempotencyReplayed)
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set(IdempotentReplayedHeader, "true")
				w.WriteHeader(existing.StatusCode)
				_, _ = w.Write([]byte(existing.Body))
				return
			case err != nil:
				slog.ErrorContext(ctx, "failed to reserve idempotency key", "key", key, "error", err)
				metrics.IncIdempotency(IdempotencyStoreError)
				next.ServeHTTP(w, r)
				return
			}

			capture := &idempotencyResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.statusCode < 200 || capture.statusCode >= 300 {
				metrics.IncIdempotency(IdempotencyReleased)
				if err := store.Release(ctx, scoped); err != nil {
					slog.ErrorContext(ctx, "failed to release idempotency key", "key", key, "error", err)
				}
				return
			}

			body := capture.body.String()
			err = store.Complete(ctx, &idempotency.Record{
				Key:        scoped,
				Method:     r.Method,
				Route:      r.URL.Path,
				StatusCode: capture.statusCode,
				Body:       body,
				BodyHash:   idempotency.ComputeResponseHash(body),
			})
			if err != nil {
				slog.ErrorContext(ctx, "failed to store idempotency key", "key", key, "error", err)
				metrics.IncIdempotency(IdempotencyStoreError)
				return
			}
			metrics.IncIdempotency(IdempotencyStored)
		})
	}
}
