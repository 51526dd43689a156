package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JihoJu/one-bailey/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

var _ domain.OrderStore = (*OrderStore)(nil)

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, correlation_id, symbol, side, quantity, price, status,
	COALESCE(exchange_order_id, ''), filled_quantity, avg_fill_price, strategy, reason,
	created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.CorrelationID, &o.Symbol, &o.Side, &o.Quantity, &o.Price,
		&o.Status, &o.ExchangeOrderID, &o.FilledQuantity, &o.AvgFillPrice,
		&o.Strategy, &o.Reason, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

// Create inserts a new order. A correlation id already present maps to
// domain.ErrAlreadyExists so the executor can answer idempotently.
func (s *OrderStore) Create(ctx context.Context, order domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, correlation_id, symbol, side, quantity, price, status,
			exchange_order_id, filled_quantity, avg_fill_price, strategy,
			reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.pool.Exec(ctx, query,
		order.ID, order.CorrelationID, order.Symbol, order.Side,
		order.Quantity, order.Price, order.Status,
		nullable(order.ExchangeOrderID), order.FilledQuantity, order.AvgFillPrice,
		order.Strategy, order.Reason, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: order %s: %w", order.CorrelationID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create order: %w", err)
	}
	return nil
}

// Update rewrites the mutable lifecycle fields.
func (s *OrderStore) Update(ctx context.Context, order domain.Order) error {
	const query = `
		UPDATE orders SET
			status = $2, exchange_order_id = $3, filled_quantity = $4,
			avg_fill_price = $5, reason = $6, updated_at = $7
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		order.ID, order.Status, nullable(order.ExchangeOrderID),
		order.FilledQuantity, order.AvgFillPrice, order.Reason, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", order.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update order %s: %w", order.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID fetches one order.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("postgres: order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// GetByCorrelationID fetches the order submitted under a correlation id.
func (s *OrderStore) GetByCorrelationID(ctx context.Context, correlationID string) (domain.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE correlation_id = $1`, correlationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("postgres: correlation %s: %w", correlationID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: get order by correlation %s: %w", correlationID, err)
	}
	return o, nil
}

// ListOpen returns orders that have not reached a terminal state, used by
// startup recovery to resume reconciliation.
func (s *OrderStore) ListOpen(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE status IN ($1, $2, $3)
		 ORDER BY created_at`,
		domain.StatusPending, domain.StatusSubmitted, domain.StatusPartiallyFilled,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
