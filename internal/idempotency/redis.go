package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "idempotency:"

// RedisStore shares records between API instances. Redis TTLs expire them,
// so it needs no cleanup job.
type RedisStore struct {
	client *redis.Client
	expiry time.Duration
}

// NewRedisStore creates a store whose records live for expiry
// (DefaultExpiry when expiry <= 0).
func NewRedisStore(client *redis.Client, expiry time.Duration) *RedisStore {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &RedisStore{client: client, expiry: expiry}
}

// Reserve implements Store.
func (s *RedisStore) Reserve(ctx context.Context, rec *Record) (*Record, error) {
	stored := *rec
	stored.Status = StatusProcessing
	stored.CreatedAt = time.Now()
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode idempotency record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, redisKeyPrefix+rec.Key, data, s.expiry).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	existing, err := s.get(ctx, rec.Key)
	if errors.Is(err, ErrKeyNotFound) {
		// Expired between SETNX and GET; treat as still held.
		return &Record{Key: rec.Key, Status: StatusProcessing}, ErrKeyExists
	}
	if err != nil {
		return nil, err
	}
	return existing, ErrKeyExists
}

// Complete implements Store. The reservation's TTL is kept.
func (s *RedisStore) Complete(ctx context.Context, rec *Record) error {
	stored := *rec
	stored.Status = StatusCompleted
	stored.CreatedAt = time.Now()
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+rec.Key, data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, key string) (*Record, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, nil
}
