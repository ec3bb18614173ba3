package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// InMemoryStore keeps records in process. Expired records are ignored and
// removed by DeleteOlderThan.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	clock   clock.Clock
	expiry  time.Duration
}

// NewInMemoryStore creates a store whose records live for expiry
// (DefaultExpiry when expiry <= 0).
func NewInMemoryStore(expiry time.Duration) *InMemoryStore {
	return NewInMemoryStoreWithClock(clock.New(), expiry)
}

// NewInMemoryStoreWithClock creates a store driven by clk.
func NewInMemoryStoreWithClock(clk clock.Clock, expiry time.Duration) *InMemoryStore {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &InMemoryStore{
		records: make(map[string]*Record),
		clock:   clk,
		expiry:  expiry,
	}
}

// Reserve implements Store.
func (s *InMemoryStore) Reserve(_ context.Context, rec *Record) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if existing, ok := s.records[rec.Key]; ok && now.Sub(existing.CreatedAt) < s.expiry {
		cp := *existing
		return &cp, ErrKeyExists
	}

	stored := *rec
	stored.Status = StatusProcessing
	stored.CreatedAt = now
	s.records[rec.Key] = &stored
	return nil, nil
}

// Complete implements Store.
func (s *InMemoryStore) Complete(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.Key]
	if !ok {
		return ErrKeyNotFound
	}
	stored := *rec
	stored.Status = StatusCompleted
	stored.CreatedAt = existing.CreatedAt
	s.records[rec.Key] = &stored
	return nil
}

// Release implements Store.
func (s *InMemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the record for key.
func (s *InMemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := *rec
	return &cp, nil
}

// DeleteOlderThan removes records created more than age ago.
func (s *InMemoryStore) DeleteOlderThan(_ context.Context, age time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-age)
	var deleted int64
	for key, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.records, key)
			deleted++
		}
	}
	return deleted, nil
}
