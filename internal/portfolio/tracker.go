// Package portfolio holds the authoritative local view of balances and
// positions. All mutations serialize through one writer: the tracker's Run
// loop applying executor fills, with reconciliation sharing the same lock.
// Readers only ever see deep copies.
package portfolio

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/JihoJu/one-bailey/internal/domain"
)

// Tracker applies terminal fill events to the session portfolio. Positions
// use volume-weighted average entry pricing; sells realize pnl against the
// average entry.
type Tracker struct {
	mu     sync.RWMutex
	pf     domain.Portfolio
	fills  <-chan domain.Fill
	onEach func(domain.Portfolio)
	logger *slog.Logger
}

// New creates a Tracker seeded with the starting balance. onEach, when not
// nil, receives a snapshot after every applied fill (persistence hook).
func New(initialBalance float64, fills <-chan domain.Fill, onEach func(domain.Portfolio), logger *slog.Logger) *Tracker {
	return &Tracker{
		pf: domain.Portfolio{
			Balance:   initialBalance,
			Positions: make(map[string]domain.Position),
			Timestamp: time.Now().UTC(),
		},
		fills:  fills,
		onEach: onEach,
		logger: logger.With(slog.String("component", "portfolio")),
	}
}

// Restore replaces the session state wholesale, used at startup to resume
// from the last persisted snapshot.
func (t *Tracker) Restore(pf domain.Portfolio) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pf = pf.Clone()
}

// Run consumes fills until the channel closes or ctx is cancelled. It is the
// portfolio's single logical writer. Fills already buffered when the context
// is cancelled are folded in before returning; a confirmed execution must
// reach the portfolio even during shutdown.
func (t *Tracker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case fill, ok := <-t.fills:
					if !ok {
						return nil
					}
					t.Apply(fill)
				default:
					return nil
				}
			}
		case fill, ok := <-t.fills:
			if !ok {
				return nil
			}
			t.Apply(fill)
		}
	}
}

// Apply folds one terminal fill into the portfolio.
func (t *Tracker) Apply(fill domain.Fill) {
	t.mu.Lock()

	switch fill.Side {
	case domain.SideBuy:
		pos := t.pf.Positions[fill.Symbol]
		newQty := pos.Quantity + fill.Quantity
		if newQty > 0 {
			pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Quantity + fill.Price*fill.Quantity) / newQty
		}
		pos.Symbol = fill.Symbol
		pos.Quantity = newQty
		t.pf.Positions[fill.Symbol] = pos
		t.pf.Balance -= fill.Quantity * fill.Price

	case domain.SideSell:
		pos := t.pf.Positions[fill.Symbol]
		qty := fill.Quantity
		if qty > pos.Quantity {
			// The store-side gate rejects oversells; a larger exchange fill
			// means drift, clamp and let reconciliation flag it.
			t.logger.Warn("sell fill exceeds tracked position",
				slog.String("symbol", fill.Symbol),
				slog.Float64("fill", qty),
				slog.Float64("held", pos.Quantity))
			qty = pos.Quantity
		}
		t.pf.RealizedPnL += (fill.Price - pos.AvgEntryPrice) * qty
		t.pf.Balance += fill.Quantity * fill.Price
		pos.Quantity -= qty
		if pos.Quantity <= 0 {
			delete(t.pf.Positions, fill.Symbol)
		} else {
			t.pf.Positions[fill.Symbol] = pos
		}
	}

	t.pf.Timestamp = fill.Timestamp
	snap := t.pf.Clone()
	t.mu.Unlock()

	t.logger.Info("fill applied",
		slog.String("symbol", fill.Symbol),
		slog.String("side", string(fill.Side)),
		slog.Float64("quantity", fill.Quantity),
		slog.Float64("price", fill.Price),
		slog.Float64("balance", snap.Balance))
	if t.onEach != nil {
		t.onEach(snap)
	}
}

// Snapshot returns a deep copy; the internal portfolio never escapes.
func (t *Tracker) Snapshot() domain.Portfolio {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pf.Clone()
}

// Reconcile compares the tracked cash balance with the exchange's confirmed
// balance. Drift beyond the relative tolerance flags the portfolio
// inconsistent, halting new order submission until a clean pass. The return
// value reports whether the portfolio is healthy.
func (t *Tracker) Reconcile(exchangeBalance, tolerance float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	ref := math.Max(math.Abs(exchangeBalance), 1)
	drift := math.Abs(t.pf.Balance-exchangeBalance) / ref

	if drift > tolerance {
		if !t.pf.Halted {
			t.logger.Error("portfolio reconciliation mismatch, halting submissions",
				slog.Float64("local", t.pf.Balance),
				slog.Float64("exchange", exchangeBalance),
				slog.Float64("drift", drift),
				slog.Float64("tolerance", tolerance))
		}
		t.pf.Halted = true
		return false
	}

	if t.pf.Halted {
		t.logger.Info("portfolio reconciled, resuming submissions",
			slog.Float64("drift", drift))
	}
	t.pf.Halted = false
	// Adopt the exchange-confirmed balance so small drift does not
	// accumulate across sessions.
	t.pf.Balance = exchangeBalance
	return true
}
