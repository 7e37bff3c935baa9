package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olyamironova/matching-engine/internal/domain"
)

// Runs against a live server when REDIS_TEST_ADDR is set.
func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	c := NewRedisCache(addr, "", 0, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Ping(ctx))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKey(t *testing.T) {
	assert.Equal(t, "ob:BTC-USD", key("BTC-USD"))
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	symbol := "TEST-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = c.Invalidate(context.Background(), symbol) })

	got, err := c.GetDepth(ctx, symbol)
	require.NoError(t, err)
	assert.Nil(t, got)

	snap := &domain.BookSnapshot{
		Symbol:    1,
		Bids:      []domain.DepthLevel{{Price: 100, Quantity: 5, Orders: 2}},
		Asks:      []domain.DepthLevel{},
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, c.SetDepth(ctx, symbol, snap))

	got, err = c.GetDepth(ctx, symbol)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap.Bids, got.Bids)
	assert.True(t, snap.Timestamp.Equal(got.Timestamp))

	require.NoError(t, c.Invalidate(ctx, symbol))
	got, err = c.GetDepth(ctx, symbol)
	require.NoError(t, err)
	assert.Nil(t, got)
}
