package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JihoJu/one-bailey/internal/domain"
)

// CounterCache implements domain.CounterCache on Redis, used by the feed to
// keep short-lived reconnect counters visible across restarts.
type CounterCache struct {
	rdb *redis.Client
}

var _ domain.CounterCache = (*CounterCache)(nil)

// NewCounterCache creates a CounterCache backed by the given Client.
func NewCounterCache(c *Client) *CounterCache {
	return &CounterCache{rdb: c.Underlying()}
}

func counterKey(key string) string {
	return "counter:" + key
}

// Incr increments the counter and refreshes its TTL, returning the new
// value.
func (cc *CounterCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := cc.rdb.TxPipeline()
	incr := pipe.Incr(ctx, counterKey(key))
	pipe.Expire(ctx, counterKey(key), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis: incr counter %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Reset clears the counter.
func (cc *CounterCache) Reset(ctx context.Context, key string) error {
	if err := cc.rdb.Del(ctx, counterKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: reset counter %s: %w", key, err)
	}
	return nil
}
