package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JihoJu/one-bailey/internal/backtest"
	"github.com/JihoJu/one-bailey/internal/collect"
	"github.com/JihoJu/one-bailey/internal/domain"
	"github.com/JihoJu/one-bailey/internal/exchange"
	"github.com/JihoJu/one-bailey/internal/exchange/upbit"
	"github.com/JihoJu/one-bailey/internal/executor"
	"github.com/JihoJu/one-bailey/internal/feed"
	"github.com/JihoJu/one-bailey/internal/indicator"
	"github.com/JihoJu/one-bailey/internal/metrics"
	"github.com/JihoJu/one-bailey/internal/persist"
	"github.com/JihoJu/one-bailey/internal/portfolio"
	"github.com/JihoJu/one-bailey/internal/risk"
	"github.com/JihoJu/one-bailey/internal/strategy"
)

const (
	fillBuffer = 64
	// sessionLockTTL backstops a crashed holder; a clean shutdown releases
	// the lock immediately.
	sessionLockTTL  = 12 * time.Hour
	jobQueue        = "jobs"
	jobPollTimeout  = 5 * time.Second
	exchangeTimeout = 10 * time.Second
	shutdownBudget  = 30 * time.Second
)

// pipeline processes one symbol's ordered event stream: indicators, signal
// resolution, risk admission, and order submission. One pipeline per symbol;
// the indicator engine is owned exclusively by that symbol's goroutine.
type pipeline struct {
	ind      *indicator.Engine
	resolver *strategy.Resolver
	risk     *risk.Manager
	exec     *executor.Executor
	tracker  *portfolio.Tracker
	coord    *persist.Coordinator
	logger   *slog.Logger
}

func (p *pipeline) handle(ctx context.Context, ev domain.MarketEvent) {
	start := time.Now()
	metrics.EventsProcessed.WithLabelValues(ev.Symbol).Inc()

	snap, ok := p.ind.Update(ev)
	if !ok {
		return
	}
	p.coord.RecordSeries(snap.Symbol, snap.Timestamp, snap.Values)

	sig := p.resolver.Resolve(snap)
	metrics.SignalsGenerated.WithLabelValues(sig.Symbol, string(sig.Direction)).Inc()
	if sig.Direction == domain.SignalHold {
		return
	}

	intent, rejection := p.risk.Evaluate(sig, snap, p.tracker.Snapshot())
	if rejection != nil {
		metrics.OrdersSubmitted.WithLabelValues(sig.Symbol, "risk_rejected").Inc()
		return
	}

	order, err := p.exec.Submit(ctx, intent)
	if err != nil {
		metrics.OrdersSubmitted.WithLabelValues(sig.Symbol, "ambiguous").Inc()
		p.logger.Error("order submission unresolved",
			slog.String("symbol", sig.Symbol),
			slog.String("correlation_id", intent.CorrelationID),
			slog.String("error", err.Error()))
		return
	}
	metrics.OrdersSubmitted.WithLabelValues(sig.Symbol, string(order.Status)).Inc()
	metrics.TickToOrderLatency.WithLabelValues(sig.Symbol).
		Observe(float64(time.Since(start).Milliseconds()))
}

// reconnectCounter mirrors feed reconnect attempts into Prometheus alongside
// the shared Redis counter.
type reconnectCounter struct {
	inner domain.CounterCache
}

func (c reconnectCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	metrics.FeedReconnects.Inc()
	if c.inner == nil {
		return 0, nil
	}
	return c.inner.Incr(ctx, key, ttl)
}

// TradeMode runs the live trading session: market data feed, per-symbol
// pipelines, order execution, portfolio tracking, periodic reconciliation,
// and the persistence coordinator.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Any("symbols", a.cfg.Session.Symbols))

	// One live session per account. The lock is released on clean shutdown.
	unlock, err := deps.Locks.Acquire(ctx, "trade_session", sessionLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("trade mode: another session holds the trade lock: %w", err)
		}
		return fmt.Errorf("trade mode: acquire session lock: %w", err)
	}
	defer unlock()

	quote := quoteCurrency(a.cfg.Session.DefaultSymbol)
	startBalance, err := a.exchangeBalance(ctx, deps.Exchange, quote)
	if err != nil {
		return fmt.Errorf("trade mode: starting balance: %w", err)
	}

	coord := persist.New(persist.Stores{
		Trades:      deps.Trades,
		Snapshots:   deps.Portfolios,
		Series:      deps.Series,
		Performance: deps.Performance,
	}, func(label string) {
		metrics.PersistenceFailures.WithLabelValues(label).Inc()
	}, a.logger)

	execFills := make(chan domain.Fill, fillBuffer)
	trackerFills := make(chan domain.Fill, fillBuffer)

	tracker := portfolio.New(startBalance, trackerFills, func(pf domain.Portfolio) {
		metrics.PortfolioBalance.Set(pf.Balance)
		coord.RecordPortfolioSnapshot(pf)
	}, a.logger)

	// Resume from the last durable snapshot, then reconcile it against the
	// exchange before the first order.
	if rec, lerr := deps.Portfolios.Latest(ctx); lerr == nil {
		tracker.Restore(domain.Portfolio{
			Balance:     rec.Balance,
			Positions:   rec.Positions,
			RealizedPnL: rec.RealizedPnL,
			Timestamp:   rec.Timestamp,
		})
		a.logger.InfoContext(ctx, "portfolio restored from snapshot",
			slog.Time("as_of", rec.Timestamp),
			slog.Float64("balance", rec.Balance))
	} else if !errors.Is(lerr, domain.ErrNotFound) {
		a.logger.WarnContext(ctx, "portfolio snapshot unavailable, starting fresh",
			slog.String("error", lerr.Error()))
	}
	tracker.Reconcile(startBalance, a.cfg.Risk.ReconcileTolerance)
	metrics.PortfolioBalance.Set(tracker.Snapshot().Balance)

	exec := executor.New(deps.Exchange, deps.Orders, deps.Idempotency, execFills, executor.Options{}, a.logger)

	// Resume orders the previous session left non-terminal; any fill that
	// happened while the engine was down flows through the normal fill path.
	if recovered, rerr := exec.Recover(ctx); rerr != nil {
		return fmt.Errorf("trade mode: recover open orders: %w", rerr)
	} else if recovered > 0 {
		a.logger.InfoContext(ctx, "resumed open orders from previous session",
			slog.Int("count", recovered))
	}

	registry := strategy.NewRegistry()
	strategies, err := registry.Build(a.cfg.Strategy.Active, strategy.Params{
		ShortPeriod:   a.cfg.Strategy.ShortPeriod,
		LongPeriod:    a.cfg.Strategy.LongPeriod,
		RSIOversold:   a.cfg.Strategy.RSIOversold,
		RSIOverbought: a.cfg.Strategy.RSIOverbought,
	})
	if err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}
	resolver := strategy.NewResolver(strategies, a.cfg.Strategy.Precedence)

	riskMgr := risk.New(domain.RiskBudget{
		MaxPositions: a.cfg.Risk.MaxPositions,
		RiskPct:      a.cfg.Risk.RiskPct,
		PerSymbolCap: a.cfg.Risk.PerSymbolCap,
		MinOrderUnit: a.cfg.Risk.MinOrderUnit,
		MinNotional:  a.cfg.Risk.MinNotional,
	}, a.logger)

	dial := func() feed.Stream {
		return upbit.NewWSClient(a.cfg.Upbit.WsURL, a.cfg.Feed.PingInterval(), a.logger)
	}
	marketFeed := feed.New(dial, a.cfg.Session.Symbols, feed.Options{
		ReconnectDelay:    a.cfg.Feed.ReconnectDelay(),
		MaxReconnectDelay: a.cfg.Feed.MaxReconnectDelay(),
		MaxRetries:        a.cfg.Feed.MaxRetries,
	}, reconnectCounter{inner: deps.Counters}, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return marketFeed.Run(ctx) })
	g.Go(func() error { return exec.Run(ctx) })
	g.Go(func() error { return coord.Run(ctx) })
	g.Go(func() error { return tracker.Run(ctx) })

	// One ordered pipeline per symbol; symbols run fully parallel.
	for _, symbol := range a.cfg.Session.Symbols {
		events := marketFeed.Events(symbol)
		p := &pipeline{
			ind: indicator.New(indicator.Config{
				Period:      a.cfg.Indicator.Period,
				ShortPeriod: a.cfg.Strategy.ShortPeriod,
			}),
			resolver: resolver,
			risk:     riskMgr,
			exec:     exec,
			tracker:  tracker,
			coord:    coord,
			logger:   a.logger,
		}
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					p.handle(ctx, ev)
				}
			}
		})
	}

	// Fill forwarder: records each terminal order as a trade, then hands the
	// fill to the tracker's single consumer channel.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case fill := <-execFills:
				a.recordTrade(ctx, deps, coord, fill)
				select {
				case trackerFills <- fill:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	})

	// Periodic reconciliation and snapshot cadence.
	g.Go(func() error {
		interval := time.Duration(a.cfg.Risk.SnapshotIntervalSec) * time.Second
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				a.reconcileOnce(ctx, deps, tracker, coord, quote)
			}
		}
	})

	// Orderbook depth and market sentiment sampling.
	collector := collect.New(deps.Orderbooks, collect.NewFearGreed(""), coord,
		a.cfg.Session.Symbols,
		time.Duration(a.cfg.Session.CollectIntervalSec)*time.Second,
		a.logger)
	g.Go(func() error { return collector.Run(ctx) })

	// Scheduler jobs arrive on the Redis queue.
	g.Go(func() error {
		return a.consumeJobs(ctx, deps, tracker, coord)
	})

	if a.cfg.Metrics.Enabled {
		srv := metrics.NewServer(a.cfg.Metrics.Addr, a.logger)
		g.Go(func() error { return srv.Run(ctx) })
	}

	runErr := g.Wait()

	// Shutdown sequencing: signal generation has stopped with the group;
	// drain in-flight order reconciliation, fold any buffered fills, persist
	// the final snapshot, and flush pending writes.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
	defer cancel()

	if derr := exec.Drain(shutdownCtx); derr != nil {
		a.logger.Warn("order drain incomplete", slog.String("error", derr.Error()))
	}
drain:
	for {
		select {
		case fill := <-execFills:
			a.recordTrade(shutdownCtx, deps, coord, fill)
			tracker.Apply(fill)
		case fill := <-trackerFills:
			// Forwarded after the tracker loop exited; already recorded.
			tracker.Apply(fill)
		default:
			break drain
		}
	}
	coord.RecordPortfolioSnapshot(tracker.Snapshot())
	if ferr := coord.Flush(shutdownCtx); ferr != nil {
		a.logger.Warn("final flush incomplete", slog.String("error", ferr.Error()))
	}
	return runErr
}

// recordTrade looks the filled order up and enqueues it for the trades
// collection.
func (a *App) recordTrade(ctx context.Context, deps *Dependencies, coord *persist.Coordinator, fill domain.Fill) {
	order, err := deps.Orders.GetByID(ctx, fill.OrderID)
	if err != nil {
		a.logger.Warn("filled order not found for trade record",
			slog.String("order_id", fill.OrderID),
			slog.String("error", err.Error()))
		return
	}
	coord.RecordTrade(order)
}

// reconcileOnce compares the tracked balance against the exchange-confirmed
// balance and persists a snapshot regardless of outcome.
func (a *App) reconcileOnce(ctx context.Context, deps *Dependencies, tracker *portfolio.Tracker, coord *persist.Coordinator, quote string) {
	balance, err := a.exchangeBalance(ctx, deps.Exchange, quote)
	if err != nil {
		a.logger.Warn("balance fetch failed, skipping reconciliation",
			slog.String("error", err.Error()))
		return
	}
	tracker.Reconcile(balance, a.cfg.Risk.ReconcileTolerance)
	snap := tracker.Snapshot()
	metrics.PortfolioBalance.Set(snap.Balance)
	coord.RecordPortfolioSnapshot(snap)
}

// consumeJobs pulls scheduler commands off the Redis queue and executes
// them. An empty queue is polled again; transient dequeue failures back off.
func (a *App) consumeJobs(ctx context.Context, deps *Dependencies, tracker *portfolio.Tracker, coord *persist.Coordinator) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := deps.Jobs.Dequeue(ctx, jobQueue, jobPollTimeout)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("job dequeue failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jobPollTimeout):
			}
			continue
		}
		a.runJob(ctx, strings.TrimSpace(string(payload)), deps, tracker, coord)
	}
}

func (a *App) runJob(ctx context.Context, job string, deps *Dependencies, tracker *portfolio.Tracker, coord *persist.Coordinator) {
	switch job {
	case "snapshot":
		coord.RecordPortfolioSnapshot(tracker.Snapshot())
	case "daily_rollup":
		a.rollupDaily(ctx, deps, tracker, coord)
	default:
		a.logger.Warn("unknown job skipped", slog.String("job", job))
		return
	}
	a.logger.Info("job executed", slog.String("job", job))
}

// rollupDaily aggregates today's trades and portfolio state into one
// daily_performance row.
func (a *App) rollupDaily(ctx context.Context, deps *Dependencies, tracker *portfolio.Tracker, coord *persist.Coordinator) {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	trades := 0
	for _, symbol := range a.cfg.Session.Symbols {
		orders, err := deps.Trades.ListBySymbol(ctx, symbol, domain.ListOpts{Since: &midnight})
		if err != nil {
			a.logger.Warn("trade listing failed for rollup",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()))
			continue
		}
		trades += len(orders)
	}

	snap := tracker.Snapshot()
	coord.RecordDailyPerformance(domain.DailyPerformance{
		Date:          midnight,
		Trades:        trades,
		RealizedPnL:   snap.RealizedPnL,
		EndingBalance: snap.Balance,
	})
}

// exchangeBalance fetches the confirmed balance of the quote currency.
func (a *App) exchangeBalance(ctx context.Context, exch exchange.Exchange, quote string) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()
	balances, err := exch.Balances(callCtx)
	if err != nil {
		return 0, err
	}
	for _, b := range balances {
		if b.Currency == quote {
			return b.Total(), nil
		}
	}
	return 0, fmt.Errorf("no %s balance line in account", quote)
}

// quoteCurrency extracts the quote side of a market code like "KRW-BTC".
func quoteCurrency(symbol string) string {
	if i := strings.Index(symbol, "-"); i > 0 {
		return symbol[:i]
	}
	return symbol
}

// BacktestMode replays historical candles for the default symbol through the
// live decision components and persists the result.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	symbol := a.cfg.Session.DefaultSymbol
	bars := a.cfg.Backtest.LookbackDays * 24 * 60
	a.logger.InfoContext(ctx, "starting backtest mode",
		slog.String("symbol", symbol),
		slog.Int("lookback_days", a.cfg.Backtest.LookbackDays))

	candles, err := deps.Exchange.Candles(ctx, symbol, bars, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("backtest mode: load candles: %w", err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("backtest mode: no candles for %s", symbol)
	}

	events := make([]domain.MarketEvent, 0, len(candles))
	for _, c := range candles {
		events = append(events, domain.MarketEvent{
			Symbol:    c.Symbol,
			Timestamp: c.Timestamp,
			Price:     c.Close,
			Volume:    c.Volume,
			Kind:      domain.EventCandle,
		})
	}

	engine, err := backtest.New(backtest.Options{
		InitialBalance: a.cfg.Backtest.InitialBalance,
		Indicator: indicator.Config{
			Period:      a.cfg.Indicator.Period,
			ShortPeriod: a.cfg.Strategy.ShortPeriod,
		},
		Strategies: a.cfg.Strategy.Active,
		Precedence: a.cfg.Strategy.Precedence,
		Params: strategy.Params{
			ShortPeriod:   a.cfg.Strategy.ShortPeriod,
			LongPeriod:    a.cfg.Strategy.LongPeriod,
			RSIOversold:   a.cfg.Strategy.RSIOversold,
			RSIOverbought: a.cfg.Strategy.RSIOverbought,
		},
		Budget: domain.RiskBudget{
			MaxPositions: a.cfg.Risk.MaxPositions,
			RiskPct:      a.cfg.Risk.RiskPct,
			PerSymbolCap: a.cfg.Risk.PerSymbolCap,
			MinOrderUnit: a.cfg.Risk.MinOrderUnit,
			MinNotional:  a.cfg.Risk.MinNotional,
		},
	}, strategy.NewRegistry(), a.logger)
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}

	outcome, err := engine.Run(ctx, symbol, events)
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}

	if err := deps.Backtests.Insert(ctx, outcome.Result); err != nil {
		return fmt.Errorf("backtest mode: persist result: %w", err)
	}

	a.logger.InfoContext(ctx, "backtest complete",
		slog.String("id", outcome.Result.ID),
		slog.Int("trades", outcome.Result.Trades),
		slog.Float64("win_rate", outcome.Result.WinRate),
		slog.Float64("final_balance", outcome.Result.FinalBalance),
		slog.Float64("realized_pnl", outcome.Result.RealizedPnL))
	return nil
}

// InitDBMode applies migrations and seeds the default settings records.
func (a *App) InitDBMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting initdb mode")

	if err := deps.PG.RunMigrations(ctx); err != nil {
		return fmt.Errorf("initdb mode: %w", err)
	}

	seeds := []domain.Setting{
		{
			Category: "risk_management",
			Key:      "default",
			Value: map[string]any{
				"risk_pct":       a.cfg.Risk.RiskPct,
				"max_positions":  a.cfg.Risk.MaxPositions,
				"per_symbol_cap": a.cfg.Risk.PerSymbolCap,
				"min_notional":   a.cfg.Risk.MinNotional,
			},
			Description: "Session risk limits",
			IsActive:    true,
		},
		{
			Category: "watchlist",
			Key:      "symbols",
			Value: map[string]any{
				"symbols": a.cfg.Session.Symbols,
				"default": a.cfg.Session.DefaultSymbol,
			},
			Description: "Tracked markets",
			IsActive:    true,
		},
		{
			Category: "strategy",
			Key:      "active",
			Value: map[string]any{
				"active":     a.cfg.Strategy.Active,
				"precedence": a.cfg.Strategy.Precedence,
			},
			Description: "Enabled strategies and conflict precedence",
			IsActive:    true,
		},
	}
	for _, s := range seeds {
		if err := deps.Settings.Upsert(ctx, s); err != nil {
			return fmt.Errorf("initdb mode: seed %s/%s: %w", s.Category, s.Key, err)
		}
	}

	a.logger.InfoContext(ctx, "database initialized",
		slog.Int("settings_seeded", len(seeds)))
	return nil
}

// VerifyMode checks configuration and connectivity to every external system,
// returning an error when any check fails.
func (a *App) VerifyMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting verify mode")

	var problems []string
	check := func(name string, err error) {
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
			a.logger.Error("check failed",
				slog.String("check", name),
				slog.String("error", err.Error()))
			return
		}
		a.logger.Info("check passed", slog.String("check", name))
	}

	pingCtx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	check("postgres", deps.PG.Pool().Ping(pingCtx))
	check("redis", deps.Redis.Ping(pingCtx))

	if a.cfg.Upbit.AccessKey != "" && a.cfg.Upbit.SecretKey != "" {
		_, err := deps.Exchange.Balances(pingCtx)
		check("upbit_auth", err)
	} else {
		// No credentials configured; the public market data surface is
		// still reachable.
		_, err := deps.Exchange.Candles(pingCtx, a.cfg.Session.DefaultSymbol, 1, time.Time{})
		check("upbit_public", err)
	}

	if len(problems) > 0 {
		return fmt.Errorf("verify: %d checks failed: %s",
			len(problems), strings.Join(problems, "; "))
	}
	a.logger.InfoContext(ctx, "all checks passed")
	return nil
}
