package cachesvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/planner/core"
	"github.com/trezcool/planner/core/notification"
)

const unreadKeyPrefix = "notifications:unread:"

// Connect returns a client for conf, or nil when redis is not configured or unreachable.
func Connect(ctx context.Context, conf core.RedisConfig, logger core.Logger) *redis.Client {
	if conf.Address == "" {
		logger.Info("redis address not set; unread counters will not be cached")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Address,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error(fmt.Sprintf("connecting to redis: %v", err), errors.Wrap(err, "redis ping"))
		_ = rdb.Close()
		return nil
	}
	return rdb
}

// UnreadCounter caches unread notification counts. Redis failures are logged and treated as misses.
type UnreadCounter struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger core.Logger
}

var _ notification.Cache = (*UnreadCounter)(nil)

func NewUnreadCounter(rdb *redis.Client, ttl time.Duration, logger core.Logger) *UnreadCounter {
	return &UnreadCounter{rdb: rdb, ttl: ttl, logger: logger}
}

func unreadKey(userID string) string {
	return unreadKeyPrefix + userID
}

func (c *UnreadCounter) GetUnreadCount(ctx context.Context, userID string) (int, bool) {
	n, err := c.rdb.Get(ctx, unreadKey(userID)).Int()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn(fmt.Sprintf("redis GET %s: %v", unreadKey(userID), err), err)
		}
		return 0, false
	}
	return n, true
}

func (c *UnreadCounter) SetUnreadCount(ctx context.Context, userID string, n int) {
	if err := c.rdb.Set(ctx, unreadKey(userID), n, c.ttl).Err(); err != nil {
		c.logger.Warn(fmt.Sprintf("redis SET %s: %v", unreadKey(userID), err), err)
	}
}

func (c *UnreadCounter) Invalidate(ctx context.Context, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, unreadKey(id))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn(fmt.Sprintf("redis DEL %d keys: %v", len(keys), err), err)
	}
}
