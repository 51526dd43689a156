// Package executor owns the order lifecycle: it is the only component that
// submits to the exchange, and the only writer of order state. Submissions
// are idempotent on the correlation id across three tiers (in-memory TTL
// map, shared idempotency cache, durable order store), and ambiguous
// outcomes are resolved by querying the exchange before any retry.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JihoJu/one-bailey/internal/domain"
	"github.com/JihoJu/one-bailey/internal/exchange"
)

const (
	dedupTTL        = 2 * time.Minute
	cleanupInterval = 30 * time.Second
	idempotencyTTL  = 24 * time.Hour
)

// Options tune polling and reconciliation.
type Options struct {
	// PollInterval is the delay between order status polls while tracking
	// an open order to its terminal state.
	PollInterval time.Duration
	// ReconcileAttempts bounds status queries while resolving an ambiguous
	// submission.
	ReconcileAttempts int
	// ReconcileDelay is the initial backoff between reconcile attempts.
	ReconcileDelay time.Duration
}

func (o *Options) withDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.ReconcileAttempts <= 0 {
		o.ReconcileAttempts = 5
	}
	if o.ReconcileDelay <= 0 {
		o.ReconcileDelay = 500 * time.Millisecond
	}
}

// Executor submits admissible order intents and tracks them to a terminal
// state. Terminal fills are delivered on the fills channel for the portfolio
// tracker; rejections and cancellations are logged and recorded, never
// retried.
type Executor struct {
	exch   exchange.Exchange
	orders domain.OrderStore
	idem   domain.IdempotencyCache
	fills  chan<- domain.Fill
	opts   Options
	logger *slog.Logger

	dedup *Dedup
	wg    sync.WaitGroup
}

// New creates an Executor. idem may be nil when no shared cache is
// configured; the store tier still guarantees idempotency.
func New(exch exchange.Exchange, orders domain.OrderStore, idem domain.IdempotencyCache, fills chan<- domain.Fill, opts Options, logger *slog.Logger) *Executor {
	opts.withDefaults()
	return &Executor{
		exch:   exch,
		orders: orders,
		idem:   idem,
		fills:  fills,
		opts:   opts,
		logger: logger.With(slog.String("component", "executor")),
		dedup:  NewDedup(dedupTTL),
	}
}

// Run keeps the dedup map bounded until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.dedup.Cleanup()
		}
	}
}

// Submit places an intent, returning immediately once the order's initial
// state is durable. A correlation id that already produced an order in a
// non-rejected state returns that order instead of resubmitting.
func (e *Executor) Submit(ctx context.Context, intent domain.OrderIntent) (domain.Order, error) {
	if existing, ok := e.existing(ctx, intent.CorrelationID); ok {
		e.logger.Info("duplicate submission answered from existing order",
			slog.String("correlation_id", intent.CorrelationID),
			slog.String("order_id", existing.ID),
			slog.String("status", string(existing.Status)))
		return existing, nil
	}

	order := domain.Order{
		ID:            uuid.NewString(),
		CorrelationID: intent.CorrelationID,
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		Quantity:      intent.Quantity,
		Price:         intent.Price,
		Status:        domain.StatusPending,
		Strategy:      intent.Strategy,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := e.orders.Create(ctx, order); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Lost a race with a concurrent submission of the same intent.
			if existing, ok := e.existing(ctx, intent.CorrelationID); ok {
				return existing, nil
			}
		}
		return domain.Order{}, fmt.Errorf("executor: create order: %w", err)
	}
	e.dedup.Record(order)

	ack, err := e.exch.PlaceOrder(ctx, intent)
	switch {
	case err == nil:
		order.Status = domain.StatusSubmitted
		order.ExchangeOrderID = ack.ExchangeOrderID

	case domain.IsAmbiguous(err):
		e.logger.Warn("submission outcome unknown, reconciling",
			slog.String("correlation_id", intent.CorrelationID),
			slog.String("error", err.Error()))
		state, rerr := e.reconcile(ctx, intent)
		if rerr != nil {
			// Outcome still unknown; keep polling in the background until
			// the exchange answers rather than guessing terminal. The order
			// also stays pending in the store, so a restart resumes it
			// through Recover.
			order.Reason = rerr.Error()
			e.persistUpdate(ctx, &order)
			e.wg.Add(1)
			go e.track(ctx, order)
			return domain.Order{}, rerr
		}
		order = applyState(order, state)

	default:
		order.Status = domain.StatusRejected
		order.Reason = err.Error()
		e.persistUpdate(ctx, &order)
		e.logger.Warn("order rejected by exchange",
			slog.String("correlation_id", intent.CorrelationID),
			slog.String("error", err.Error()))
		return order, nil
	}

	e.persistUpdate(ctx, &order)
	e.rememberKey(ctx, order)

	if !order.Status.Terminal() {
		e.wg.Add(1)
		go e.track(ctx, order)
	} else if order.FilledQuantity > 0 {
		e.emitFill(ctx, order)
	}
	return order, nil
}

// Recover resumes tracking every order the store still holds in a
// non-terminal state, picking up where an earlier session (or an ambiguous
// submission whose reconcile budget ran out) left off. Orders that actually
// executed during the outage surface their fills through the normal track
// path; orders the exchange has no record of are closed as rejected.
func (e *Executor) Recover(ctx context.Context) (int, error) {
	open, err := e.orders.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("executor: recover: %w", err)
	}
	for _, order := range open {
		e.dedup.Record(order)
		e.logger.Info("resuming open order",
			slog.String("order_id", order.ID),
			slog.String("correlation_id", order.CorrelationID),
			slog.String("status", string(order.Status)))
		e.wg.Add(1)
		go e.track(ctx, order)
	}
	return len(open), nil
}

// Drain blocks until all in-flight order tracking and reconciliation
// finishes or ctx expires. Shutdown must not abandon an order whose outcome
// is unknown.
func (e *Executor) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor: drain: %w", ctx.Err())
	}
}

// existing looks a correlation id up across the idempotency tiers. Orders
// that ended rejected do not satisfy a resubmission.
func (e *Executor) existing(ctx context.Context, correlationID string) (domain.Order, bool) {
	if order, ok := e.dedup.Lookup(correlationID); ok && order.Status != domain.StatusRejected {
		return order, true
	}

	if e.idem != nil {
		if orderID, err := e.idem.Get(ctx, correlationID); err == nil && orderID != "" {
			if order, err := e.orders.GetByID(ctx, orderID); err == nil && order.Status != domain.StatusRejected {
				e.dedup.Record(order)
				return order, true
			}
		}
	}

	order, err := e.orders.GetByCorrelationID(ctx, correlationID)
	if err != nil || order.Status == domain.StatusRejected {
		return domain.Order{}, false
	}
	e.dedup.Record(order)
	return order, true
}

// track polls the exchange until the order reaches a terminal state, then
// feeds the result to the portfolio tracker. It uses a context detached from
// the session cancel so shutdown drains instead of abandoning the order.
func (e *Executor) track(ctx context.Context, order domain.Order) {
	defer e.wg.Done()

	pollCtx := context.WithoutCancel(ctx)
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	notFound := 0
	for {
		select {
		case <-pollCtx.Done():
			return
		case <-ticker.C:
		}

		callCtx, cancel := context.WithTimeout(pollCtx, 10*time.Second)
		state, err := e.exch.GetOrderByClientID(callCtx, order.CorrelationID)
		cancel()
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// The exchange has no record of the id. One miss can race
				// the exchange's own bookkeeping; a run of misses means the
				// submission never landed.
				notFound++
				if notFound >= e.opts.ReconcileAttempts {
					order.Status = domain.StatusRejected
					order.Reason = "no exchange record for submission"
					e.persistUpdate(pollCtx, &order)
					e.logger.Warn("open order closed, exchange has no record",
						slog.String("order_id", order.ID),
						slog.String("correlation_id", order.CorrelationID))
					return
				}
			} else {
				notFound = 0
			}
			e.logger.Warn("order status poll failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()))
			continue
		}
		notFound = 0

		order = applyState(order, state)
		e.persistUpdate(pollCtx, &order)

		if order.Status.Terminal() {
			if order.FilledQuantity > 0 {
				e.emitFill(pollCtx, order)
			}
			e.logger.Info("order terminal",
				slog.String("order_id", order.ID),
				slog.String("status", string(order.Status)),
				slog.Float64("filled", order.FilledQuantity))
			return
		}
	}
}

func (e *Executor) emitFill(ctx context.Context, order domain.Order) {
	fill := domain.Fill{
		OrderID:       order.ID,
		CorrelationID: order.CorrelationID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Quantity:      order.FilledQuantity,
		Price:         order.AvgFillPrice,
		Timestamp:     time.Now().UTC(),
	}
	if fill.Price == 0 {
		fill.Price = order.Price
	}
	select {
	case e.fills <- fill:
	case <-ctx.Done():
	}
}

func (e *Executor) persistUpdate(ctx context.Context, order *domain.Order) {
	order.UpdatedAt = time.Now().UTC()
	if err := e.orders.Update(ctx, *order); err != nil {
		e.logger.Warn("order update not persisted",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()))
	}
	e.dedup.Record(*order)
}

func (e *Executor) rememberKey(ctx context.Context, order domain.Order) {
	if e.idem == nil || order.Status == domain.StatusRejected {
		return
	}
	if err := e.idem.Put(ctx, order.CorrelationID, order.ID, idempotencyTTL); err != nil {
		e.logger.Debug("idempotency cache unavailable", slog.String("error", err.Error()))
	}
}

// applyState folds the exchange-authoritative view into the local order.
func applyState(order domain.Order, state exchange.OrderState) domain.Order {
	if state.ExchangeOrderID != "" {
		order.ExchangeOrderID = state.ExchangeOrderID
	}
	order.Status = state.Status
	order.FilledQuantity = state.ExecutedQuantity
	if state.AvgFillPrice > 0 {
		order.AvgFillPrice = state.AvgFillPrice
	}
	return order
}
