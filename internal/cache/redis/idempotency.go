package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JihoJu/one-bailey/internal/domain"
)

// IdempotencyCache implements domain.IdempotencyCache on Redis string keys.
type IdempotencyCache struct {
	rdb *redis.Client
}

var _ domain.IdempotencyCache = (*IdempotencyCache)(nil)

// NewIdempotencyCache creates an IdempotencyCache backed by the given Client.
func NewIdempotencyCache(c *Client) *IdempotencyCache {
	return &IdempotencyCache{rdb: c.Underlying()}
}

func idempotencyKey(correlationID string) string {
	return "idem:" + correlationID
}

// Put records correlationID -> orderID with a TTL.
func (ic *IdempotencyCache) Put(ctx context.Context, correlationID, orderID string, ttl time.Duration) error {
	if err := ic.rdb.Set(ctx, idempotencyKey(correlationID), orderID, ttl).Err(); err != nil {
		return fmt.Errorf("redis: put idempotency key %s: %w", correlationID, err)
	}
	return nil
}

// Get returns the order id for correlationID, or domain.ErrNotFound.
func (ic *IdempotencyCache) Get(ctx context.Context, correlationID string) (string, error) {
	val, err := ic.rdb.Get(ctx, idempotencyKey(correlationID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("redis: idempotency key %s: %w", correlationID, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("redis: get idempotency key %s: %w", correlationID, err)
	}
	return val, nil
}
