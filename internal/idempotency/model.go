// Package idempotency lets clients retry pin creation without creating the
// pin twice. A key is reserved while the first request runs and then holds
// the stored response until it expires.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Record status values.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

var (
	// ErrKeyNotFound is returned when an idempotency key is not found.
	ErrKeyNotFound = errors.New("idempotency key not found")

	// ErrKeyExists is returned when a key is already reserved or completed.
	ErrKeyExists = errors.New("idempotency key already exists")

	// ErrInvalidKey is returned when the key is invalid.
	ErrInvalidKey = errors.New("invalid idempotency key")

	// ErrKeyTooLong is returned when the key exceeds maximum length.
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length of 64 characters")
)

// MaxKeyLength is the maximum allowed length for a client supplied key.
const MaxKeyLength = 64

// DefaultExpiry is how long a completed response is replayed.
const DefaultExpiry = 24 * time.Hour

// Record is a reserved or completed request.
type Record struct {
	Key        string    `json:"key"`
	Method     string    `json:"method"`
	Route      string    `json:"route"`
	Status     string    `json:"status"`
	StatusCode int       `json:"status_code,omitempty"`
	Body       string    `json:"body,omitempty"`
	BodyHash   string    `json:"body_hash,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists idempotency records.
type Store interface {
	// Reserve marks rec.Key as processing. If the key is already held it
	// returns the existing record and ErrKeyExists.
	Reserve(ctx context.Context, rec *Record) (*Record, error)

	// Complete stores the final response for a reserved key.
	Complete(ctx context.Context, rec *Record) error

	// Release drops a reservation so the request can be retried.
	Release(ctx context.Context, key string) error
}

// ValidateKey checks a client supplied key.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}

// ScopedKey namespaces key by user so one user can never replay another's
// response.
func ScopedKey(username, key string) string {
	return username + ":" + key
}

// ComputeResponseHash computes a SHA256 hash of the response body.
func ComputeResponseHash(responseBody string) string {
	hash := sha256.Sum256([]byte(responseBody))
	return hex.EncodeToString(hash[:])
}
