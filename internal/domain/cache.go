package domain

import (
	"context"
	"time"
)

// IdempotencyCache is the fast lookup for correlation-id -> order-id used by
// the execution engine before falling back to the order store.
type IdempotencyCache interface {
	// Put records correlationID -> orderID with a TTL.
	Put(ctx context.Context, correlationID, orderID string, ttl time.Duration) error
	// Get returns the order id for correlationID, or ErrNotFound.
	Get(ctx context.Context, correlationID string) (string, error)
}

// TaskQueue is the transport between the external scheduler and the engine.
// Jobs are opaque payloads; ordering is FIFO per queue.
type TaskQueue interface {
	Enqueue(ctx context.Context, queue string, payload []byte) error
	// Dequeue blocks up to timeout for the next job. Returns ErrNotFound on
	// timeout with an empty queue.
	Dequeue(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
}

// LockManager provides distributed locks so only one engine instance trades
// a session at a time.
type LockManager interface {
	// Acquire returns an unlock function, or ErrLockHeld.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// CounterCache tracks short-lived counters (reconnect attempts per symbol).
type CounterCache interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Reset(ctx context.Context, key string) error
}
