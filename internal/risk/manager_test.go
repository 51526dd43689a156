package risk

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JihoJu/one-bailey/internal/domain"
)

var testBudget = domain.RiskBudget{
	MaxPositions: 3,
	RiskPct:      0.02,
	PerSymbolCap: 1_000_000,
	MinOrderUnit: 0.0001,
	MinNotional:  5_000,
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	return New(testBudget, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func signal(dir domain.SignalDirection) domain.Signal {
	return domain.Signal{
		Symbol:     "KRW-BTC",
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Direction:  dir,
		Confidence: 1,
		Strategy:   "sma_cross",
	}
}

func snapshotAt(price float64, extra map[string]float64) domain.IndicatorSnapshot {
	values := map[string]float64{domain.IndicatorLastPrice: price}
	for k, v := range extra {
		values[k] = v
	}
	return domain.IndicatorSnapshot{
		Symbol:    "KRW-BTC",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Values:    values,
	}
}

func portfolio(balance float64) domain.Portfolio {
	return domain.Portfolio{
		Balance:   balance,
		Positions: make(map[string]domain.Position),
	}
}

func TestEvaluateSizing(t *testing.T) {
	m := newManager(t)

	// balance 1,000,000 at 2% risk sizes to 20,000 notional.
	intent, rej := m.Evaluate(signal(domain.SignalBuy), snapshotAt(100_000, nil), portfolio(1_000_000))
	require.Nil(t, rej)
	assert.InDelta(t, 0.2, intent.Quantity, 1e-9)
	assert.LessOrEqual(t, intent.Notional(), 0.02*1_000_000+1e-9, "notional never exceeds risk capital")
	assert.Equal(t, domain.SideBuy, intent.Side)
	assert.Equal(t, domain.CorrelationID("KRW-BTC", intent.CreatedAt, "sma_cross"), intent.CorrelationID)
}

func TestEvaluateStopDistanceTightensSize(t *testing.T) {
	m := newManager(t)

	// A wide stop (stddev 50,000 against price 100,000) halves the quantity
	// relative to fixed-fraction sizing, keeping notional under the cap.
	snap := snapshotAt(100_000, map[string]float64{domain.IndicatorStdDev: 50_000})
	intent, rej := m.Evaluate(signal(domain.SignalBuy), snap, portfolio(1_000_000))
	require.Nil(t, rej)
	assert.InDelta(t, 0.2, intent.Quantity, 1e-9, "stop wider capital still capped by risk pct")

	// Tighter stops never inflate notional past riskPct*balance.
	snap = snapshotAt(100_000, map[string]float64{domain.IndicatorStdDev: 1_000})
	intent, rej = m.Evaluate(signal(domain.SignalBuy), snap, portfolio(1_000_000))
	require.Nil(t, rej)
	assert.LessOrEqual(t, intent.Notional(), 0.02*1_000_000+1e-9)
}

func TestEvaluateRejections(t *testing.T) {
	m := newManager(t)

	t.Run("hold signal", func(t *testing.T) {
		_, rej := m.Evaluate(signal(domain.SignalHold), snapshotAt(100, nil), portfolio(1_000_000))
		require.NotNil(t, rej)
		assert.Equal(t, domain.RejectHold, rej.Reason)
	})

	t.Run("halted portfolio", func(t *testing.T) {
		pf := portfolio(1_000_000)
		pf.Halted = true
		_, rej := m.Evaluate(signal(domain.SignalBuy), snapshotAt(100, nil), pf)
		require.NotNil(t, rej)
		assert.Equal(t, domain.RejectPortfolioHalted, rej.Reason)
	})

	t.Run("max positions blocks new entries only", func(t *testing.T) {
		pf := portfolio(10_000_000)
		pf.Positions["KRW-ETH"] = domain.Position{Symbol: "KRW-ETH", Quantity: 1, AvgEntryPrice: 100}
		pf.Positions["KRW-XRP"] = domain.Position{Symbol: "KRW-XRP", Quantity: 1, AvgEntryPrice: 100}
		pf.Positions["KRW-SOL"] = domain.Position{Symbol: "KRW-SOL", Quantity: 1, AvgEntryPrice: 100}

		_, rej := m.Evaluate(signal(domain.SignalBuy), snapshotAt(100_000, nil), pf)
		require.NotNil(t, rej)
		assert.Equal(t, domain.RejectMaxPositions, rej.Reason)

		// Adding to an existing position is not a new entry.
		pf.Positions["KRW-BTC"] = domain.Position{Symbol: "KRW-BTC", Quantity: 0.1, AvgEntryPrice: 90_000}
		_, rej = m.Evaluate(signal(domain.SignalBuy), snapshotAt(100_000, nil), pf)
		assert.Nil(t, rej)
	})

	t.Run("below minimum notional", func(t *testing.T) {
		_, rej := m.Evaluate(signal(domain.SignalBuy), snapshotAt(100_000, nil), portfolio(100_000))
		require.NotNil(t, rej)
		assert.Equal(t, domain.RejectBelowMinOrder, rej.Reason, "2 percent of 100,000 is under the 5,000 minimum")
	})

	t.Run("per-symbol cap", func(t *testing.T) {
		pf := portfolio(100_000_000)
		pf.Positions["KRW-BTC"] = domain.Position{Symbol: "KRW-BTC", Quantity: 9.9, AvgEntryPrice: 100_000}
		_, rej := m.Evaluate(signal(domain.SignalBuy), snapshotAt(100_000, nil), pf)
		require.NotNil(t, rej)
		assert.Equal(t, domain.RejectPerSymbolCap, rej.Reason)
	})

	t.Run("zero cap means uncapped", func(t *testing.T) {
		budget := testBudget
		budget.PerSymbolCap = 0
		m := New(budget, slog.New(slog.NewTextHandler(io.Discard, nil)))

		pf := portfolio(1_000_000)
		pf.Positions["KRW-BTC"] = domain.Position{Symbol: "KRW-BTC", Quantity: 5, AvgEntryPrice: 100_000}
		intent, rej := m.Evaluate(signal(domain.SignalBuy), snapshotAt(100_000, nil), pf)
		require.Nil(t, rej)
		assert.Positive(t, intent.Quantity)
	})

	t.Run("sell without position", func(t *testing.T) {
		_, rej := m.Evaluate(signal(domain.SignalSell), snapshotAt(100_000, nil), portfolio(1_000_000))
		require.NotNil(t, rej)
		assert.Equal(t, domain.RejectInsufficientPosition, rej.Reason)
	})
}

func TestEvaluateSellClampsToPosition(t *testing.T) {
	m := newManager(t)

	pf := portfolio(10_000_000)
	pf.Positions["KRW-BTC"] = domain.Position{Symbol: "KRW-BTC", Quantity: 0.05, AvgEntryPrice: 90_000}

	// Fixed-fraction sizing would ask for 2.0 units; only 0.05 are held.
	intent, rej := m.Evaluate(signal(domain.SignalSell), snapshotAt(100_000, nil), pf)
	require.Nil(t, rej)
	assert.Equal(t, domain.SideSell, intent.Side)
	assert.InDelta(t, 0.05, intent.Quantity, 1e-9)
}

func TestEvaluateQuantityFlooredToUnit(t *testing.T) {
	m := newManager(t)

	// 20,000 / 33,333 = 0.60000600..., floored to 0.6000 at unit 0.0001.
	intent, rej := m.Evaluate(signal(domain.SignalBuy), snapshotAt(33_333, nil), portfolio(1_000_000))
	require.Nil(t, rej)
	rem := intent.Quantity / testBudget.MinOrderUnit
	assert.InDelta(t, rem, float64(int64(rem+0.5)), 1e-6, "quantity aligned to minimum unit")
}
