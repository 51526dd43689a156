// Package persist decouples the trading loop from durable storage. Writes
// are enqueued fire-and-forget, executed with bounded retry by a worker, and
// parked in an in-memory backlog when the store is down: trading continues,
// durability degrades to a warning, and the backlog drains once writes
// succeed again.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JihoJu/one-bailey/internal/domain"
	"github.com/JihoJu/one-bailey/pkg/retry"
)

const (
	queueDepth    = 512
	backlogLimit  = 4096
	backlogPeriod = 15 * time.Second
)

// Stores bundles the durable collections the coordinator writes to.
type Stores struct {
	Trades      domain.TradeStore
	Snapshots   domain.PortfolioStore
	Series      domain.SeriesStore
	Performance domain.PerformanceStore
}

// task is one pending write. The label keys log lines and failure
// accounting.
type task struct {
	label string
	run   func(ctx context.Context) error
}

// Coordinator accepts writes from the trading loop without blocking it.
type Coordinator struct {
	stores Stores
	queue  chan task
	logger *slog.Logger

	// onFailure observes each exhausted retry, nil-safe (metrics hook).
	onFailure func(label string)

	mu      sync.Mutex
	backlog []task

	retryCfg retry.Config
}

// New creates a Coordinator over the given stores. onFailure may be nil.
func New(stores Stores, onFailure func(label string), logger *slog.Logger) *Coordinator {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 3
	return &Coordinator{
		stores:    stores,
		queue:     make(chan task, queueDepth),
		logger:    logger.With(slog.String("component", "persist")),
		onFailure: onFailure,
		retryCfg:  cfg,
	}
}

// RecordTrade enqueues a terminal order for the trades collection.
func (c *Coordinator) RecordTrade(order domain.Order) {
	c.enqueue(task{
		label: "trade",
		run: func(ctx context.Context) error {
			return c.stores.Trades.Insert(ctx, order)
		},
	})
}

// RecordPortfolioSnapshot enqueues a portfolio snapshot.
func (c *Coordinator) RecordPortfolioSnapshot(pf domain.Portfolio) {
	rec := domain.PortfolioSnapshotRecord{
		Balance:     pf.Balance,
		Positions:   pf.Positions,
		RealizedPnL: pf.RealizedPnL,
		Timestamp:   pf.Timestamp,
	}
	c.enqueue(task{
		label: "portfolio_snapshot",
		run: func(ctx context.Context) error {
			return c.stores.Snapshots.Insert(ctx, rec)
		},
	})
}

// RecordSeries enqueues indicator/price time-series points for one symbol
// at one timestamp.
func (c *Coordinator) RecordSeries(symbol string, ts time.Time, fields map[string]float64) {
	points := make([]domain.SeriesPoint, 0, len(fields))
	for field, value := range fields {
		points = append(points, domain.SeriesPoint{
			Symbol:    symbol,
			Timestamp: ts,
			Field:     field,
			Value:     value,
		})
	}
	c.enqueue(task{
		label: "series",
		run: func(ctx context.Context) error {
			return c.stores.Series.InsertBatch(ctx, points)
		},
	})
}

// RecordDailyPerformance enqueues the day's rollup.
func (c *Coordinator) RecordDailyPerformance(perf domain.DailyPerformance) {
	c.enqueue(task{
		label: "daily_performance",
		run: func(ctx context.Context) error {
			return c.stores.Performance.Upsert(ctx, perf)
		},
	})
}

// enqueue never blocks the caller; a full queue spills to the backlog.
func (c *Coordinator) enqueue(t task) {
	select {
	case c.queue <- t:
	default:
		c.park(t)
	}
}

// Run executes queued writes until ctx is cancelled, retrying the backlog
// periodically.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(backlogPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-c.queue:
			c.execute(ctx, t)
		case <-ticker.C:
			c.drainBacklog(ctx)
		}
	}
}

// Flush synchronously attempts everything still pending. Used during
// shutdown after the trading loop has stopped producing.
func (c *Coordinator) Flush(ctx context.Context) error {
	for {
		select {
		case t := <-c.queue:
			c.execute(ctx, t)
		default:
			c.drainBacklog(ctx)
			c.mu.Lock()
			remaining := len(c.backlog)
			c.mu.Unlock()
			if remaining > 0 {
				return fmt.Errorf("persist: flush: %d writes still undurable", remaining)
			}
			return nil
		}
	}
}

func (c *Coordinator) execute(ctx context.Context, t task) {
	err := retry.Do(ctx, c.retryCfg, func() error { return t.run(ctx) })
	if err == nil {
		return
	}
	c.logger.Warn("write failed after retries, parking in backlog",
		slog.String("kind", t.label),
		slog.String("error", err.Error()))
	if c.onFailure != nil {
		c.onFailure(t.label)
	}
	c.park(t)
}

func (c *Coordinator) park(t task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.backlog) >= backlogLimit {
		// Oldest entry is sacrificed; losing one write beats unbounded
		// memory growth during a long outage.
		c.logger.Error("backlog full, dropping oldest write",
			slog.String("dropped", c.backlog[0].label))
		c.backlog = c.backlog[1:]
	}
	c.backlog = append(c.backlog, t)
}

// drainBacklog replays parked writes one attempt each, stopping at the
// first failure so a dead store is probed once per cycle, not hammered.
func (c *Coordinator) drainBacklog(ctx context.Context) {
	for {
		c.mu.Lock()
		if len(c.backlog) == 0 {
			c.mu.Unlock()
			return
		}
		t := c.backlog[0]
		c.backlog = c.backlog[1:]
		c.mu.Unlock()

		if err := t.run(ctx); err != nil {
			c.park(t)
			return
		}
		c.logger.Info("backlogged write recovered", slog.String("kind", t.label))
	}
}
