package cache

import (
	"context"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Total int64 `json:"total"`
}

func TestNoopReportCacheNeverHits(t *testing.T) {
	ctx := context.Background()
	var c ReportCache = NoopReportCache{}

	require.NoError(t, c.Set(ctx, "summary", payload{Total: 1}, time.Minute))
	var got payload
	hit, err := c.Get(ctx, "summary", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, c.Invalidate(ctx))
}

// REDIS_TEST_ADDR points at a disposable redis; the test flushes the selected db.
func TestRedisReportCache(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.FlushDB(ctx).Err())

	c := NewRedisReportCacheFromClient(client)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(ctx))

	require.NoError(t, c.Set(ctx, "summary:day", payload{Total: 4500}, time.Minute))
	require.NoError(t, c.Set(ctx, "dashboard", payload{Total: 9000}, time.Minute))

	var got payload
	hit, err := c.Get(ctx, "summary:day", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int64(4500), got.Total)

	require.NoError(t, c.Invalidate(ctx))
	hit, err = c.Get(ctx, "dashboard", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	hit, err = c.Get(ctx, "missing", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}
