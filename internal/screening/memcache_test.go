package screening

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-screener/pkg/logger"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	c := NewMemoryCache(time.Hour, logger.NewNop())
	c.now = func() time.Time { return now }

	type payload struct {
		IDs []string `json:"ids"`
	}

	var got payload
	hit, err := c.Get(ctx, "q1", "v1", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	stored := payload{IDs: []string{"7974"}}
	require.NoError(t, c.Set(ctx, "q1", "v1", stored))
	stored.IDs[0] = "mutated"

	hit, err = c.Get(ctx, "q1", "v1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"7974"}, got.IDs)

	hit, _ = c.Get(ctx, "q1", "v2", &got)
	assert.False(t, hit, "other data version")

	require.NoError(t, c.Set(ctx, "q2", "v2", payload{}))
	require.NoError(t, c.Set(ctx, "q3", "v2", payload{}))

	now = now.Add(2 * time.Hour)
	hit, _ = c.Get(ctx, "q1", "v1", &got)
	assert.False(t, hit, "expired")
	assert.Equal(t, 2, c.Len(), "expired entry evicted on read")

	require.NoError(t, c.Set(ctx, "q3", "v2", payload{}))
	require.NoError(t, c.Set(ctx, "q4", "v1", payload{}))

	n, err := c.Purge(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "v1 entry and expired q2")
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_CleanExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	c := NewMemoryCache(time.Hour, logger.NewNop())
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "old", "v1", []string{"a"}))
	now = now.Add(30 * time.Minute)
	require.NoError(t, c.Set(ctx, "fresh", "v1", []string{"b"}))
	now = now.Add(45 * time.Minute)

	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 0, c.CleanExpired())

	var got []string
	hit, err := c.Get(ctx, "fresh", "v1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestMemoryCache_StartCleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewMemoryCache(time.Millisecond, logger.NewNop())
	require.NoError(t, c.Set(ctx, "q", "v1", []string{"a"}))

	c.StartCleanup(ctx, 5*time.Millisecond)
	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}
