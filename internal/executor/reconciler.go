package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JihoJu/one-bailey/internal/domain"
	"github.com/JihoJu/one-bailey/internal/exchange"
	"github.com/JihoJu/one-bailey/pkg/retry"
)

// reconcile resolves an ambiguous submission by asking the exchange what it
// actually did with the client order id. Three outcomes:
//
//   - the order is found: its authoritative state is adopted;
//   - the order is never found within the retry budget: the request did not
//     land, and one resubmission is made under the same id, which the
//     exchange's identifier uniqueness makes safe;
//   - the exchange stays unreachable: the ambiguity is surfaced to the
//     caller rather than guessed at.
func (e *Executor) reconcile(ctx context.Context, intent domain.OrderIntent) (exchange.OrderState, error) {
	cfg := retry.Config{
		MaxAttempts:  e.opts.ReconcileAttempts,
		InitialDelay: e.opts.ReconcileDelay,
		MaxDelay:     e.opts.ReconcileDelay * 8,
		Multiplier:   2,
		JitterFactor: 0.1,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			e.logger.Debug("reconcile attempt",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("correlation_id", intent.CorrelationID),
				slog.String("error", err.Error()))
		},
	}

	state, err := retry.DoWithResult(ctx, cfg, func() (exchange.OrderState, error) {
		return e.exch.GetOrderByClientID(ctx, intent.CorrelationID)
	})
	if err == nil {
		e.logger.Info("ambiguous submission resolved",
			slog.String("correlation_id", intent.CorrelationID),
			slog.String("status", string(state.Status)))
		return state, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return exchange.OrderState{}, domain.WithKind(domain.KindAmbiguous,
			fmt.Errorf("executor: reconcile %s: %w", intent.CorrelationID, err))
	}

	// The exchange never saw the id, so the original request was lost in
	// transit and resubmitting cannot double-execute.
	e.logger.Info("lost submission confirmed absent, resubmitting",
		slog.String("correlation_id", intent.CorrelationID))
	ack, err := e.exch.PlaceOrder(ctx, intent)
	if err != nil {
		if domain.IsAmbiguous(err) {
			// Ambiguous twice in a row; leave resolution to the caller's
			// next reconciliation rather than risking a duplicate.
			return exchange.OrderState{}, domain.WithKind(domain.KindAmbiguous,
				fmt.Errorf("executor: resubmit %s: %w", intent.CorrelationID, err))
		}
		return exchange.OrderState{}, fmt.Errorf("executor: resubmit %s: %w", intent.CorrelationID, err)
	}
	return exchange.OrderState{
		ExchangeOrderID: ack.ExchangeOrderID,
		ClientOrderID:   intent.CorrelationID,
		Status:          domain.StatusSubmitted,
	}, nil
}
