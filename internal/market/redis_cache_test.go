package market

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestCache creates a cache backed by an in-process miniredis
func setupTestCache(t *testing.T, ttl time.Duration) (*RedisCandleCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisCandleCache(client, ttl)
	require.NotNil(t, cache)

	return cache, mr
}

func testSeries(symbol string, closes ...float64) *Series {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]Candle, len(closes))
	for i, c := range closes {
		candles[i] = Candle{
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1000,
		}
	}
	return &Series{Symbol: symbol, Interval: "1d", Candles: candles}
}

func TestCacheSetGet(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()

	series := testSeries("BTCUSDT", 100, 101, 102)
	require.NoError(t, cache.Set(ctx, series))

	got, ok := cache.Get(ctx, "BTCUSDT", "1d")
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, 3, got.Len())
	assert.Equal(t, 102.0, got.Candles[2].Close)
}

func TestCacheMiss(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)

	got, ok := cache.Get(context.Background(), "MISSING", "1d")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestCacheTTLExpiry(t *testing.T) {
	cache, mr := setupTestCache(t, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testSeries("ETHUSDT", 2000, 2050)))

	_, ok := cache.Get(ctx, "ETHUSDT", "1d")
	require.True(t, ok)

	// miniredis only expires keys when the clock is advanced manually
	mr.FastForward(time.Minute)

	_, ok = cache.Get(ctx, "ETHUSDT", "1d")
	assert.False(t, ok)
}

func TestCacheLatestClose(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testSeries("BTCUSDT", 100, 105, 99.5)))

	price, ok := cache.LatestClose(ctx, "BTCUSDT", "1d")
	require.True(t, ok)
	assert.Equal(t, 99.5, price)

	_, ok = cache.LatestClose(ctx, "NOPE", "1d")
	assert.False(t, ok)
}

func TestCacheDelete(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testSeries("BTCUSDT", 100)))
	require.NoError(t, cache.Delete(ctx, "BTCUSDT", "1d"))

	_, ok := cache.Get(ctx, "BTCUSDT", "1d")
	assert.False(t, ok)
}

func TestCacheNilClient(t *testing.T) {
	assert.Nil(t, NewRedisCandleCache(nil, time.Minute))

	// A nil cache degrades to misses and errors, never panics
	var cache *RedisCandleCache
	_, ok := cache.Get(context.Background(), "BTCUSDT", "1d")
	assert.False(t, ok)
	assert.Error(t, cache.Set(context.Background(), testSeries("BTCUSDT", 100)))
	assert.Error(t, cache.Health(context.Background()))
}

func TestCacheHealth(t *testing.T) {
	cache, mr := setupTestCache(t, time.Minute)

	assert.NoError(t, cache.Health(context.Background()))

	mr.Close()
	assert.Error(t, cache.Health(context.Background()))
}

func TestCacheSetNilSeries(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)
	assert.Error(t, cache.Set(context.Background(), nil))
}
