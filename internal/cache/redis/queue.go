package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JihoJu/one-bailey/internal/domain"
)

// TaskQueue implements domain.TaskQueue as a Redis list: LPUSH to enqueue,
// BRPOP to dequeue, giving FIFO order per queue. The external scheduler
// pushes jobs here for the engine's command surface.
type TaskQueue struct {
	rdb *redis.Client
}

var _ domain.TaskQueue = (*TaskQueue)(nil)

// NewTaskQueue creates a TaskQueue backed by the given Client.
func NewTaskQueue(c *Client) *TaskQueue {
	return &TaskQueue{rdb: c.Underlying()}
}

func queueKey(queue string) string {
	return "queue:" + queue
}

// Enqueue appends one job.
func (q *TaskQueue) Enqueue(ctx context.Context, queue string, payload []byte) error {
	if err := q.rdb.LPush(ctx, queueKey(queue), payload).Err(); err != nil {
		return fmt.Errorf("redis: enqueue %s: %w", queue, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job, returning
// domain.ErrNotFound when the queue stays empty.
func (q *TaskQueue) Dequeue(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	res, err := q.rdb.BRPop(ctx, timeout, queueKey(queue)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: queue %s empty: %w", queue, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: dequeue %s: %w", queue, err)
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("redis: dequeue %s: unexpected reply length %d", queue, len(res))
	}
	return []byte(res[1]), nil
}
