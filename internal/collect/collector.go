// Package collect samples market structure that never arrives on the trade
// stream: orderbook depth snapshots per tracked symbol and the market-wide
// crypto fear & greed index. Samples land in the time-series store through
// the persistence coordinator.
package collect

import (
	"context"
	"log/slog"
	"time"

	"github.com/JihoJu/one-bailey/internal/exchange"
)

// fearGreedSymbol keys the sentiment series; it is not a tradable market.
const fearGreedSymbol = "MARKET"

// Recorder receives sampled points. Recording is fire-and-forget; the
// coordinator batches and retries behind it.
type Recorder interface {
	RecordSeries(symbol string, ts time.Time, fields map[string]float64)
}

// Collector samples the orderbook for each tracked symbol plus the fear &
// greed index once per interval.
type Collector struct {
	books    exchange.OrderbookSource
	fng      *FearGreed
	rec      Recorder
	symbols  []string
	interval time.Duration
	logger   *slog.Logger
}

// New creates a collector. fng may be nil to skip the sentiment feed.
func New(books exchange.OrderbookSource, fng *FearGreed, rec Recorder, symbols []string, interval time.Duration, logger *slog.Logger) *Collector {
	return &Collector{
		books:    books,
		fng:      fng,
		rec:      rec,
		symbols:  symbols,
		interval: interval,
		logger:   logger.With(slog.String("component", "collect")),
	}
}

// Run samples immediately, then once per interval until the context is
// cancelled. A failed sample is logged and skipped; the cadence holds.
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.sample(ctx)
		}
	}
}

func (c *Collector) sample(ctx context.Context) {
	books, err := c.books.Orderbook(ctx, c.symbols)
	if err != nil {
		c.logger.Warn("orderbook sample failed", slog.String("error", err.Error()))
	}
	for _, book := range books {
		fields := map[string]float64{
			"best_bid": book.BestBid,
			"best_ask": book.BestAsk,
			"spread":   book.Spread(),
		}
		// Bid share of total depth; above 0.5 the book leans toward buyers.
		if depth := book.BidDepth + book.AskDepth; depth > 0 {
			fields["bid_depth_ratio"] = book.BidDepth / depth
		}
		c.rec.RecordSeries(book.Symbol, book.Timestamp, fields)
	}

	if c.fng == nil {
		return
	}
	idx, err := c.fng.Latest(ctx)
	if err != nil {
		c.logger.Warn("fear and greed fetch failed", slog.String("error", err.Error()))
		return
	}
	c.rec.RecordSeries(fearGreedSymbol, idx.Timestamp, map[string]float64{
		"fear_greed": idx.Value,
	})
}
