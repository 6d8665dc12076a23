package screening

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/aegis-screener/pkg/logger"
)

type memEntry struct {
	version  string
	data     []byte
	storedAt time.Time
}

// MemoryCache is an in-process result cache keyed by query hash and data version.
// It stands in for the Redis cache when Redis is disabled.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	ttl     time.Duration
	now     func() time.Time
	logger  *logger.Logger
}

// NewMemoryCache creates a new memory cache. A ttl <= 0 never expires entries.
func NewMemoryCache(ttl time.Duration, log *logger.Logger) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*memEntry),
		ttl:     ttl,
		now:     time.Now,
		logger:  log,
	}
}

func memKey(queryHash, dataVersion string) string {
	return dataVersion + ":" + queryHash
}

func (c *MemoryCache) expired(e *memEntry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.storedAt) > c.ttl
}

// Get decodes a stored result into dest. Expired entries are misses and are evicted.
func (c *MemoryCache) Get(_ context.Context, queryHash, dataVersion string, dest interface{}) (bool, error) {
	key := memKey(queryHash, dataVersion)

	c.mu.RLock()
	e, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return false, nil
	}
	if c.expired(e, c.now()) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}
	return true, nil
}

// Set stores a copy of value
func (c *MemoryCache) Set(_ context.Context, queryHash, dataVersion string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[memKey(queryHash, dataVersion)] = &memEntry{
		version:  dataVersion,
		data:     data,
		storedAt: c.now(),
	}
	return nil
}

// Purge removes expired entries and every entry of another data version
func (c *MemoryCache) Purge(_ context.Context, currentVersion string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for k, e := range c.entries {
		if e.version != currentVersion || c.expired(e, now) {
			delete(c.entries, k)
			count++
		}
	}

	if count > 0 {
		c.logger.WithField("count", count).Info("Purged result cache")
	}
	return count, nil
}

// CleanExpired removes expired entries
func (c *MemoryCache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			count++
		}
	}

	if count > 0 {
		c.logger.WithField("count", count).Debug("Cleaned expired results from cache")
	}
	return count
}

// StartCleanup sweeps expired entries every interval until ctx is done
func (c *MemoryCache) StartCleanup(ctx context.Context, interval time.Duration) {
	if c.ttl <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.CleanExpired()
			}
		}
	}()
}

// Len returns the number of stored results
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
