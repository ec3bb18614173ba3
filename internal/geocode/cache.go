package geocode

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long a cached result set is served.
const DefaultCacheTTL = 24 * time.Hour

const cacheKeyPrefix = "geocode:"

// CachedGeocoder serves repeated queries from Redis and delegates misses.
// Redis failures degrade to an uncached lookup.
type CachedGeocoder struct {
	next    Geocoder
	client  *redis.Client
	ttl     time.Duration
	metrics *Metrics
}

// NewCachedGeocoder wraps next with a Redis cache. ttl <= 0 uses DefaultCacheTTL.
func NewCachedGeocoder(next Geocoder, client *redis.Client, ttl time.Duration, metrics *Metrics) *CachedGeocoder {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedGeocoder{next: next, client: client, ttl: ttl, metrics: metrics}
}

// Search implements Geocoder.
func (c *CachedGeocoder) Search(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	key := cacheKey(query, limit)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []Suggestion
		if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
			c.record(true)
			return cached, nil
		}
		slog.WarnContext(ctx, "discarding corrupt geocode cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		slog.WarnContext(ctx, "geocode cache read failed", "error", err)
	}
	c.record(false)

	results, err := c.next.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(results); err == nil {
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			slog.WarnContext(ctx, "geocode cache write failed", "error", err)
		}
	}
	return results, nil
}

func (c *CachedGeocoder) record(hit bool) {
	if c.metrics != nil {
		c.metrics.ObserveCache(hit)
	}
}

// cacheKey normalizes case and whitespace so equivalent queries share an entry.
func cacheKey(query string, limit int) string {
	q := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return cacheKeyPrefix + strconv.Itoa(limit) + ":" + q
}
