package tabular

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, cfg CacheConfig) *Cache {
	t.Helper()
	c := NewCache(cfg)
	t.Cleanup(c.Close)
	return c
}

func TestCacheKeyCanonical(t *testing.T) {
	t.Parallel()

	a := CacheKey(CacheClassQuery, "ds1", []string{"page=1", "size=50", "search=x"})
	b := CacheKey(CacheClassQuery, "ds1", []string{"search=x", "page=1", "size=50"})
	assert.Equal(t, a, b, "parameter order must not change the key")

	c := CacheKey(CacheClassQuery, "ds2", []string{"page=1", "size=50", "search=x"})
	assert.NotEqual(t, a, c)

	d := CacheKey(CacheClassSchema, "ds1", nil)
	assert.NotEqual(t, a, d)
}

func TestCacheGetSet(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, DefaultCacheConfig())
	key := CacheKey(CacheClassQuery, "ds1", []string{"page=1"})

	_, ok := cache.Get(key)
	assert.False(t, ok)

	cache.Set(key, []byte("payload"), CacheClassQuery)
	payload, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), payload)
}

func TestCacheExpiry(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, CacheConfig{
		QueryTTL:      10 * time.Millisecond,
		SchemaTTL:     time.Hour,
		SweepInterval: time.Hour,
	})

	queryKey := CacheKey(CacheClassQuery, "ds1", nil)
	schemaKey := CacheKey(CacheClassSchema, "ds1", nil)
	cache.Set(queryKey, []byte("q"), CacheClassQuery)
	cache.Set(schemaKey, []byte("s"), CacheClassSchema)

	time.Sleep(20 * time.Millisecond)

	// Expired entries are never served, even before the sweep runs.
	_, ok := cache.Get(queryKey)
	assert.False(t, ok, "expired entry must not be served")

	// The schema class has its own, longer TTL.
	_, ok = cache.Get(schemaKey)
	assert.True(t, ok)
}

func TestCacheSweep(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, CacheConfig{
		QueryTTL:      time.Millisecond,
		SchemaTTL:     time.Hour,
		SweepInterval: time.Hour,
	})

	cache.Set(CacheKey(CacheClassQuery, "ds1", nil), []byte("q"), CacheClassQuery)
	time.Sleep(5 * time.Millisecond)

	require.Equal(t, 1, cache.Len())
	cache.sweep(time.Now())
	assert.Equal(t, 0, cache.Len())
}

func TestCacheInvalidateDataset(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, DefaultCacheConfig())

	cache.Set(CacheKey(CacheClassQuery, "ds1", []string{"page=1"}), []byte("a"), CacheClassQuery)
	cache.Set(CacheKey(CacheClassQuery, "ds1", []string{"page=2"}), []byte("b"), CacheClassQuery)
	cache.Set(CacheKey(CacheClassSchema, "ds1", nil), []byte("c"), CacheClassSchema)
	otherKey := CacheKey(CacheClassQuery, "ds2", []string{"page=1"})
	cache.Set(otherKey, []byte("d"), CacheClassQuery)

	cache.InvalidateDataset("ds1")

	assert.Equal(t, 1, cache.Len(), "only the unrelated dataset's entry survives")
	_, ok := cache.Get(otherKey)
	assert.True(t, ok)
}

func TestCacheConcurrentAccess(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, DefaultCacheConfig())

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := range 100 {
				key := CacheKey(CacheClassQuery, fmt.Sprintf("ds%d", n%4), []string{fmt.Sprintf("page=%d", j)})
				cache.Set(key, []byte("x"), CacheClassQuery)
				cache.Get(key)
				if j%10 == 0 {
					cache.InvalidateDataset(fmt.Sprintf("ds%d", n%4))
				}
			}
		}(i)
	}
	wg.Wait()
}
