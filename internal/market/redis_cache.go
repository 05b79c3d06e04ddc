package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// RedisCandleCache provides Redis-based caching for candle series.
// An optional circuit breaker guards the client calls so a down Redis
// stops being polled once the failure ratio trips it.
type RedisCandleCache struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

// cacheEntry wraps a cached series with metadata
type cacheEntry struct {
	Series   *Series   `json:"series"`
	CachedAt time.Time `json:"cached_at"`
}

// NewRedisCandleCache creates a new Redis-based candle cache.
// If client is nil, returns nil (Redis support is optional).
func NewRedisCandleCache(client *redis.Client, ttl time.Duration) *RedisCandleCache {
	if client == nil {
		return nil
	}

	if ttl == 0 {
		ttl = 60 * time.Second
	}

	return &RedisCandleCache{
		client: client,
		ttl:    ttl,
	}
}

// NewRedisCandleCacheWithBreaker creates a candle cache whose client
// calls run through the given circuit breaker. A nil breaker leaves the
// calls unguarded.
func NewRedisCandleCacheWithBreaker(client *redis.Client, ttl time.Duration, breaker *gobreaker.CircuitBreaker) *RedisCandleCache {
	cache := NewRedisCandleCache(client, ttl)
	if cache != nil {
		cache.breaker = breaker
	}
	return cache
}

// guarded runs op through the breaker when one is attached
func (c *RedisCandleCache) guarded(op func() error) error {
	if c.breaker == nil {
		return op()
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, op()
	})
	return err
}

// Get retrieves a cached series.
// Returns the series and true if found, or nil and false on miss or error.
func (c *RedisCandleCache) Get(ctx context.Context, symbol, interval string) (*Series, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	key := c.buildKey(symbol, interval)

	// Short timeout so cache lookups never block analytics
	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	var cached string
	var miss bool
	err := c.guarded(func() error {
		value, err := c.client.Get(cacheCtx, key).Result()
		if err == redis.Nil {
			// A miss is a healthy response, not a breaker failure
			miss = true
			return nil
		}
		if err != nil {
			return err
		}
		cached = value
		return nil
	})
	if err != nil {
		log.Debug().
			Err(err).
			Str("key", key).
			Msg("Redis get error - treating as cache miss")
		return nil, false
	}
	if miss {
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(cached), &entry); err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to unmarshal cached series")
		return nil, false
	}

	log.Debug().
		Str("symbol", symbol).
		Str("interval", interval).
		Int("candles", entry.Series.Len()).
		Time("cached_at", entry.CachedAt).
		Msg("Cache hit for series")

	return entry.Series, true
}

// Set stores a series in cache with the configured TTL
func (c *RedisCandleCache) Set(ctx context.Context, series *Series) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}
	if series == nil {
		return fmt.Errorf("nil series")
	}

	key := c.buildKey(series.Symbol, series.Interval)

	entry := cacheEntry{
		Series:   series,
		CachedAt: time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal series entry: %w", err)
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := c.guarded(func() error {
		return c.client.Set(cacheCtx, key, data, c.ttl).Err()
	}); err != nil {
		// Cache failure is not fatal for callers that can recompute
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to cache series")
		return err
	}

	log.Debug().
		Str("symbol", series.Symbol).
		Str("interval", series.Interval).
		Int("candles", series.Len()).
		Dur("ttl", c.ttl).
		Msg("Cached series")

	return nil
}

// LatestClose returns the most recent close for a cached symbol
func (c *RedisCandleCache) LatestClose(ctx context.Context, symbol, interval string) (float64, bool) {
	series, ok := c.Get(ctx, symbol, interval)
	if !ok || series.Len() == 0 {
		return 0, false
	}
	return series.Candles[series.Len()-1].Close, true
}

// Delete removes a series from cache
func (c *RedisCandleCache) Delete(ctx context.Context, symbol, interval string) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	key := c.buildKey(symbol, interval)

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := c.guarded(func() error {
		return c.client.Del(cacheCtx, key).Err()
	}); err != nil {
		return fmt.Errorf("failed to delete cache key: %w", err)
	}

	return nil
}

// Health checks if the Redis connection is healthy
func (c *RedisCandleCache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.guarded(func() error {
		return c.client.Ping(cacheCtx).Err()
	}); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	return nil
}

// buildKey creates a Redis key for a symbol/interval pair
func (c *RedisCandleCache) buildKey(symbol, interval string) string {
	return fmt.Sprintf("quantdesk:candles:%s:%s", symbol, interval)
}
