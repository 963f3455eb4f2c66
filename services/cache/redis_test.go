package cachesvc

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/planner/core"
)

func TestConnect_disabled(t *testing.T) {
	assert.Nil(t, Connect(context.Background(), core.RedisConfig{}, core.NopLogger{}))
}

func TestUnreadCounter_unavailable(t *testing.T) {
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer func() { _ = rdb.Close() }()
	c := NewUnreadCounter(rdb, time.Minute, core.NopLogger{})

	c.SetUnreadCount(ctx, "u1", 3)
	_, ok := c.GetUnreadCount(ctx, "u1")
	assert.False(t, ok)
	c.Invalidate(ctx, "u1")
}

// TestUnreadCounter runs against a live redis when TEST_REDIS_ADDR is set.
func TestUnreadCounter(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := Connect(ctx, core.RedisConfig{Address: addr}, core.NopLogger{})
	if rdb == nil {
		t.Fatalf("Connect() failed")
	}
	defer func() { _ = rdb.Close() }()
	c := NewUnreadCounter(rdb, time.Minute, core.NopLogger{})

	c.Invalidate(ctx, "u1", "u2")
	_, ok := c.GetUnreadCount(ctx, "u1")
	assert.False(t, ok)

	c.SetUnreadCount(ctx, "u1", 3)
	n, ok := c.GetUnreadCount(ctx, "u1")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	c.Invalidate(ctx, "u1")
	_, ok = c.GetUnreadCount(ctx, "u1")
	assert.False(t, ok)
}
