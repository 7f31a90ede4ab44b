package tabular

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Cache operation classes. The class selects the entry's TTL and is the
// first segment of every cache key.
const (
	// CacheClassQuery caches query results.
	CacheClassQuery = "query"
	// CacheClassSchema caches dataset column metadata.
	CacheClassSchema = "schema"
)

// CacheConfig controls entry lifetimes and the expiry sweep interval.
type CacheConfig struct {
	QueryTTL      time.Duration
	SchemaTTL     time.Duration
	SweepInterval time.Duration
}

// DefaultCacheConfig returns the standard cache configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		QueryTTL:      2 * time.Minute,
		SchemaTTL:     10 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

// cacheEntry is one cached payload with an absolute expiry.
type cacheEntry struct {
	payload   []byte
	expiresAt time.Time
}

// Cache is a process-scoped, mutex-guarded TTL cache sitting in front
// of the read paths. It is advisory only: losing all entries never
// changes query results, only their latency. Entries are keyed
// "class:datasetID:params" so bulk invalidation by dataset id is a
// linear scan over key segments.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	cfg     CacheConfig
	done    chan struct{}
	once    sync.Once
}

// NewCache constructs a cache and starts its background expiry sweep.
// Callers own the lifecycle and must Close it.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.QueryTTL <= 0 {
		cfg.QueryTTL = DefaultCacheConfig().QueryTTL
	}
	if cfg.SchemaTTL <= 0 {
		cfg.SchemaTTL = DefaultCacheConfig().SchemaTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultCacheConfig().SweepInterval
	}

	c := &Cache{
		entries: make(map[string]cacheEntry),
		cfg:     cfg,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Close stops the background sweep. Safe to call more than once.
func (c *Cache) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep(time.Now())
		}
	}
}

// sweep removes expired entries.
func (c *Cache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// CacheKey builds the canonical key for an operation class, dataset id,
// and parameter list. Parameters are sorted so equivalent requests hash
// to the same entry regardless of arrival order.
func CacheKey(class, datasetID string, params []string) string {
	sorted := append([]string(nil), params...)
	sort.Strings(sorted)
	return class + ":" + datasetID + ":" + strings.Join(sorted, "&")
}

// Get returns the payload for key if present and unexpired. An expired
// entry is deleted on access rather than waiting for the sweep.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.payload, true
}

// Set stores a payload under key with the TTL of its operation class.
func (c *Cache) Set(key string, payload []byte, class string) {
	ttl := c.cfg.QueryTTL
	if class == CacheClassSchema {
		ttl = c.cfg.SchemaTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		payload:   payload,
		expiresAt: time.Now().Add(ttl),
	}
}

// InvalidateDataset removes every entry scoped to the dataset id,
// regardless of class. Called whenever the owning dataset is mutated:
// ingestion completion, ingestion failure, deletion.
func (c *Cache) InvalidateDataset(datasetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		parts := strings.SplitN(key, ":", 3)
		if len(parts) == 3 && parts[1] == datasetID {
			delete(c.entries, key)
		}
	}
}

// Len reports the number of live entries, expired or not. Used by tests
// and the stats surface.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
