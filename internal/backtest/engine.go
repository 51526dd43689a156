// Package backtest replays historical market events through the same
// indicator, strategy, and risk components the live path runs, against a
// simulated execution engine that fills at the next bar's price. Replays are
// deterministic: identical input sequences produce identical signals and
// portfolio trajectories.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JihoJu/one-bailey/internal/domain"
	"github.com/JihoJu/one-bailey/internal/indicator"
	"github.com/JihoJu/one-bailey/internal/portfolio"
	"github.com/JihoJu/one-bailey/internal/risk"
	"github.com/JihoJu/one-bailey/internal/strategy"
)

// Options configure one replay.
type Options struct {
	InitialBalance float64
	Indicator      indicator.Config
	Strategies     []string
	Precedence     []string
	Params         strategy.Params
	Budget         domain.RiskBudget
}

// Outcome is the full result of a replay: the summary row persisted to the
// backtest_results collection plus the traces the equivalence tests compare.
type Outcome struct {
	Result  domain.BacktestResult
	Signals []domain.Signal
	Final   domain.Portfolio
}

// Engine replays event sequences. One Engine per replay; it carries replay
// state and is not reusable.
type Engine struct {
	opts     Options
	ind      *indicator.Engine
	resolver *strategy.Resolver
	risk     *risk.Manager
	tracker  *portfolio.Tracker
	logger   *slog.Logger

	// pending is the intent approved on the previous bar, filled at the
	// next bar's price.
	pending *domain.OrderIntent

	trades int
	wins   int
}

// New builds an engine from the registry's strategies.
func New(opts Options, registry *strategy.Registry, logger *slog.Logger) (*Engine, error) {
	strategies, err := registry.Build(opts.Strategies, opts.Params)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	logger = logger.With(slog.String("component", "backtest"))
	return &Engine{
		opts:     opts,
		ind:      indicator.New(opts.Indicator),
		resolver: strategy.NewResolver(strategies, opts.Precedence),
		risk:     risk.New(opts.Budget, logger),
		tracker:  portfolio.New(opts.InitialBalance, nil, nil, logger),
		logger:   logger,
	}, nil
}

// Run replays the events, oldest first, and returns the outcome. Events must
// belong to a single symbol with non-decreasing timestamps; violations are
// dropped by the indicator engine exactly as on the live path.
func (e *Engine) Run(ctx context.Context, symbol string, events []domain.MarketEvent) (Outcome, error) {
	if len(events) == 0 {
		return Outcome{}, fmt.Errorf("backtest: no events for %s", symbol)
	}

	var signals []domain.Signal
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		// Fill the previous bar's intent at this bar's price before any
		// new decision, mirroring next-bar-open execution.
		e.settle(ev)

		snap, ok := e.ind.Update(ev)
		if !ok {
			continue
		}

		sig := e.resolver.Resolve(snap)
		signals = append(signals, sig)
		if sig.Direction == domain.SignalHold {
			continue
		}

		intent, rejection := e.risk.Evaluate(sig, snap, e.tracker.Snapshot())
		if rejection != nil {
			continue
		}
		e.pending = &intent
	}

	final := e.tracker.Snapshot()
	result := domain.BacktestResult{
		ID:             uuid.NewString(),
		StrategyNames:  append([]string(nil), e.opts.Strategies...),
		Symbol:         symbol,
		Start:          events[0].Timestamp,
		End:            events[len(events)-1].Timestamp,
		InitialBalance: e.opts.InitialBalance,
		FinalBalance:   final.Balance,
		RealizedPnL:    final.RealizedPnL,
		Trades:         e.trades,
		WinRate:        e.winRate(),
		CreatedAt:      time.Now().UTC(),
	}

	e.logger.Info("replay finished",
		slog.String("symbol", symbol),
		slog.Int("events", len(events)),
		slog.Int("trades", e.trades),
		slog.Float64("pnl", result.RealizedPnL))
	return Outcome{Result: result, Signals: signals, Final: final}, nil
}

// settle executes the pending intent against the current bar. Sells count
// toward the win rate when they close above the average entry.
func (e *Engine) settle(ev domain.MarketEvent) {
	if e.pending == nil || ev.Gap {
		return
	}
	intent := *e.pending
	e.pending = nil

	if intent.Side == domain.SideSell {
		pos := e.tracker.Snapshot().Position(intent.Symbol)
		if ev.Price > pos.AvgEntryPrice {
			e.wins++
		}
	}
	e.tracker.Apply(domain.Fill{
		OrderID:       intent.CorrelationID,
		CorrelationID: intent.CorrelationID,
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		Quantity:      intent.Quantity,
		Price:         ev.Price,
		Timestamp:     ev.Timestamp,
	})
	e.trades++
}

func (e *Engine) winRate() float64 {
	if e.trades == 0 {
		return 0
	}
	return float64(e.wins) / float64(e.trades)
}
