package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JihoJu/one-bailey/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL. A trade is a
// terminal order with executed quantity; rewrites of the same correlation id
// are skipped so retried persistence never duplicates a trade.
type TradeStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradeStore = (*TradeStore)(nil)

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Insert records a terminal order as a trade.
func (s *TradeStore) Insert(ctx context.Context, order domain.Order) error {
	const query = `
		INSERT INTO trades (
			order_id, correlation_id, symbol, side, quantity, price,
			status, strategy, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (correlation_id) DO NOTHING`

	qty := order.FilledQuantity
	if qty == 0 {
		qty = order.Quantity
	}
	price := order.AvgFillPrice
	if price == 0 {
		price = order.Price
	}

	_, err := s.pool.Exec(ctx, query,
		order.ID, order.CorrelationID, order.Symbol, order.Side,
		qty, price, order.Status, order.Strategy, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", order.CorrelationID, err)
	}
	return nil
}

// GetByCorrelationID fetches one trade.
func (s *TradeStore) GetByCorrelationID(ctx context.Context, correlationID string) (domain.Order, error) {
	const query = `
		SELECT order_id, correlation_id, symbol, side, quantity, price, status, strategy, executed_at
		FROM trades WHERE correlation_id = $1`

	var o domain.Order
	err := s.pool.QueryRow(ctx, query, correlationID).Scan(
		&o.ID, &o.CorrelationID, &o.Symbol, &o.Side,
		&o.FilledQuantity, &o.AvgFillPrice, &o.Status, &o.Strategy, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("postgres: trade %s: %w", correlationID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: get trade %s: %w", correlationID, err)
	}
	o.Quantity = o.FilledQuantity
	o.Price = o.AvgFillPrice
	return o, nil
}

// ListBySymbol returns trades for a symbol, newest first.
func (s *TradeStore) ListBySymbol(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `
		SELECT order_id, correlation_id, symbol, side, quantity, price, status, strategy, executed_at
		FROM trades WHERE symbol = $1`
	args := []any{symbol}

	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND executed_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND executed_at < $%d", len(args))
	}
	query += " ORDER BY executed_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(
			&o.ID, &o.CorrelationID, &o.Symbol, &o.Side,
			&o.FilledQuantity, &o.AvgFillPrice, &o.Status, &o.Strategy, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		o.Quantity = o.FilledQuantity
		o.Price = o.AvgFillPrice
		out = append(out, o)
	}
	return out, rows.Err()
}
