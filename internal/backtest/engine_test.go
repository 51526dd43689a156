package backtest

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JihoJu/one-bailey/internal/domain"
	"github.com/JihoJu/one-bailey/internal/indicator"
	"github.com/JihoJu/one-bailey/internal/strategy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() Options {
	return Options{
		InitialBalance: 1_000_000,
		Indicator:      indicator.Config{Period: 10, ShortPeriod: 3},
		Strategies:     []string{strategy.NameSMACross},
		Precedence:     []string{strategy.NameSMACross},
		Params: strategy.Params{
			ShortPeriod:   3,
			LongPeriod:    10,
			RSIOversold:   30,
			RSIOverbought: 70,
		},
		Budget: domain.RiskBudget{
			MaxPositions: 3,
			RiskPct:      0.02,
			PerSymbolCap: 1_000_000,
			MinOrderUnit: 0.0001,
			MinNotional:  1_000,
		},
	}
}

// waveEvents produces a deterministic oscillating price path that crosses
// the moving averages in both directions.
func waveEvents(n int) []domain.MarketEvent {
	out := make([]domain.MarketEvent, 0, n)
	for i := 0; i < n; i++ {
		price := 100_000 + 5_000*math.Sin(float64(i)/6)
		out = append(out, domain.MarketEvent{
			Symbol:    "KRW-BTC",
			Timestamp: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
			Price:     price,
			Volume:    1,
			Kind:      domain.EventCandle,
		})
	}
	return out
}

func TestRunProducesTrades(t *testing.T) {
	e, err := New(testOptions(), strategy.NewRegistry(), testLogger())
	require.NoError(t, err)

	out, err := e.Run(context.Background(), "KRW-BTC", waveEvents(200))
	require.NoError(t, err)

	assert.Greater(t, out.Result.Trades, 0, "oscillating prices produce crossovers")
	assert.NotEmpty(t, out.Signals)
	assert.Equal(t, "KRW-BTC", out.Result.Symbol)
	assert.Equal(t, 1_000_000.0, out.Result.InitialBalance)
	assert.InDelta(t, out.Final.Balance, out.Result.FinalBalance, 1e-9)
	assert.GreaterOrEqual(t, out.Result.WinRate, 0.0)
	assert.LessOrEqual(t, out.Result.WinRate, 1.0)
}

func TestRunDeterministic(t *testing.T) {
	events := waveEvents(300)

	run := func() Outcome {
		e, err := New(testOptions(), strategy.NewRegistry(), testLogger())
		require.NoError(t, err)
		out, err := e.Run(context.Background(), "KRW-BTC", events)
		require.NoError(t, err)
		return out
	}

	first := run()
	second := run()

	assert.Equal(t, first.Signals, second.Signals, "bit-identical signal sequence")
	assert.Equal(t, first.Final.Balance, second.Final.Balance)
	assert.Equal(t, first.Final.RealizedPnL, second.Final.RealizedPnL)
	assert.Equal(t, first.Final.Positions, second.Final.Positions)
	assert.Equal(t, first.Result.Trades, second.Result.Trades)
	assert.Equal(t, first.Result.WinRate, second.Result.WinRate)
}

func TestRunRespectsRiskGate(t *testing.T) {
	opts := testOptions()
	opts.Budget.MaxPositions = 1

	e, err := New(opts, strategy.NewRegistry(), testLogger())
	require.NoError(t, err)

	out, err := e.Run(context.Background(), "KRW-BTC", waveEvents(200))
	require.NoError(t, err)
	assert.LessOrEqual(t, out.Final.OpenPositions(), 1)

	for _, sig := range out.Signals {
		assert.Contains(t, []domain.SignalDirection{
			domain.SignalBuy, domain.SignalSell, domain.SignalHold,
		}, sig.Direction)
	}
}

func TestRunEmptyEvents(t *testing.T) {
	e, err := New(testOptions(), strategy.NewRegistry(), testLogger())
	require.NoError(t, err)
	_, err = e.Run(context.Background(), "KRW-BTC", nil)
	assert.Error(t, err)
}
