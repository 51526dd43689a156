package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JihoJu/one-bailey/internal/domain"
)

// PerformanceStore implements domain.PerformanceStore using PostgreSQL.
type PerformanceStore struct {
	pool *pgxpool.Pool
}

var _ domain.PerformanceStore = (*PerformanceStore)(nil)

// NewPerformanceStore creates a PerformanceStore backed by the given pool.
func NewPerformanceStore(pool *pgxpool.Pool) *PerformanceStore {
	return &PerformanceStore{pool: pool}
}

// Upsert writes the day's rollup, replacing any earlier value for the date.
func (s *PerformanceStore) Upsert(ctx context.Context, p domain.DailyPerformance) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO daily_performance (trade_date, trades, realized_pnl, ending_balance)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (trade_date) DO UPDATE SET
			trades = EXCLUDED.trades,
			realized_pnl = EXCLUDED.realized_pnl,
			ending_balance = EXCLUDED.ending_balance`,
		p.Date, p.Trades, p.RealizedPnL, p.EndingBalance,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert daily performance %s: %w", p.Date.Format("2006-01-02"), err)
	}
	return nil
}

// Get fetches one day's rollup.
func (s *PerformanceStore) Get(ctx context.Context, date time.Time) (domain.DailyPerformance, error) {
	var p domain.DailyPerformance
	err := s.pool.QueryRow(ctx, `
		SELECT trade_date, trades, realized_pnl, ending_balance
		FROM daily_performance WHERE trade_date = $1`,
		date,
	).Scan(&p.Date, &p.Trades, &p.RealizedPnL, &p.EndingBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DailyPerformance{}, fmt.Errorf("postgres: daily performance: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.DailyPerformance{}, fmt.Errorf("postgres: get daily performance: %w", err)
	}
	return p, nil
}
