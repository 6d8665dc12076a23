package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// VersionedCache is a read-through cache whose keys embed the data version the value was
// computed from. A new ingestion produces a new version, so stale entries are never read;
// Purge drops the superseded generations.
type VersionedCache struct {
	client    *Client
	namespace string
	ttl       time.Duration
}

// NewVersionedCache creates a cache under namespace with a safety TTL
func NewVersionedCache(client *Client, namespace string, ttl time.Duration) *VersionedCache {
	return &VersionedCache{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
	}
}

// Key builds the cache key for (query, data version)
func (c *VersionedCache) Key(queryHash, dataVersion string) string {
	return fmt.Sprintf("%s:%s:v:%s:q:%s", c.client.Prefix(), c.namespace, dataVersion, queryHash)
}

// Get retrieves a cached value; found is false on miss or when Redis is disabled
func (c *VersionedCache) Get(ctx context.Context, queryHash, dataVersion string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.Key(queryHash, dataVersion)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}
	return true, nil
}

// Set stores a value for (query, data version)
func (c *VersionedCache) Set(ctx context.Context, queryHash, dataVersion string, value interface{}) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.Key(queryHash, dataVersion), data, c.ttl).Err()
}

// Purge deletes every entry that does not belong to currentVersion and returns the count
func (c *VersionedCache) Purge(ctx context.Context, currentVersion string) (int, error) {
	if !c.client.Enabled() {
		return 0, nil
	}

	rdb := c.client.Redis()
	pattern := fmt.Sprintf("%s:%s:v:*", c.client.Prefix(), c.namespace)
	keep := fmt.Sprintf("%s:%s:v:%s:", c.client.Prefix(), c.namespace, currentVersion)

	deleted := 0
	iter := rdb.Scan(ctx, 0, pattern, 500).Iterator()
	var batch []string
	for iter.Next(ctx) {
		key := iter.Val()
		if len(key) >= len(keep) && key[:len(keep)] == keep {
			continue
		}
		batch = append(batch, key)
		if len(batch) == 500 {
			if err := rdb.Del(ctx, batch...).Err(); err != nil {
				return deleted, fmt.Errorf("cache purge failed: %w", err)
			}
			deleted += len(batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("cache scan failed: %w", err)
	}
	if len(batch) > 0 {
		if err := rdb.Del(ctx, batch...).Err(); err != nil {
			return deleted, fmt.Errorf("cache purge failed: %w", err)
		}
		deleted += len(batch)
	}

	return deleted, nil
}

// HashQuery returns a stable short hash of any JSON-serialisable query
func HashQuery(query interface{}) (string, error) {
	data, err := json.Marshal(query)
	if err != nil {
		return "", fmt.Errorf("hash query: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16]), nil
}
