package executor

import (
	"sync"
	"time"

	"github.com/JihoJu/one-bailey/internal/domain"
)

// dedupEntry pairs a remembered order with the time it was recorded.
type dedupEntry struct {
	order domain.Order
	seen  time.Time
}

// Dedup is the executor's first idempotency tier: an in-memory map from
// correlation id to the order it produced, bounded by a TTL. It answers
// repeat submissions without touching the store or the network. Safe for
// concurrent use.
type Dedup struct {
	seen map[string]dedupEntry
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup remembering orders for the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]dedupEntry),
		ttl:  ttl,
	}
}

// Lookup returns the remembered order for a correlation id, if any.
func (d *Dedup) Lookup(correlationID string) (domain.Order, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.seen[correlationID]
	if !ok || time.Since(entry.seen) >= d.ttl {
		return domain.Order{}, false
	}
	return entry.order, true
}

// Record remembers the order under its correlation id, refreshing the TTL.
func (d *Dedup) Record(order domain.Order) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[order.CorrelationID] = dedupEntry{order: order, seen: time.Now()}
}

// Cleanup removes expired entries. Called periodically to bound memory.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, entry := range d.seen {
		if now.Sub(entry.seen) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
