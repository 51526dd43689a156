package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JihoJu/one-bailey/internal/domain"
)

// BacktestStore implements domain.BacktestStore using PostgreSQL.
type BacktestStore struct {
	pool *pgxpool.Pool
}

var _ domain.BacktestStore = (*BacktestStore)(nil)

// NewBacktestStore creates a BacktestStore backed by the given pool.
func NewBacktestStore(pool *pgxpool.Pool) *BacktestStore {
	return &BacktestStore{pool: pool}
}

// Insert records one run's summary.
func (s *BacktestStore) Insert(ctx context.Context, res domain.BacktestResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO backtest_results (
			id, strategy_names, symbol, start_at, end_at,
			initial_balance, final_balance, realized_pnl, trades, win_rate, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		res.ID, res.StrategyNames, res.Symbol, res.Start, res.End,
		res.InitialBalance, res.FinalBalance, res.RealizedPnL,
		res.Trades, res.WinRate, res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert backtest result: %w", err)
	}
	return nil
}

// ListRecent returns the newest results, newest first.
func (s *BacktestStore) ListRecent(ctx context.Context, limit int) ([]domain.BacktestResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, strategy_names, symbol, start_at, end_at,
			initial_balance, final_balance, realized_pnl, trades, win_rate, created_at
		FROM backtest_results
		ORDER BY created_at DESC
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list backtest results: %w", err)
	}
	defer rows.Close()

	var out []domain.BacktestResult
	for rows.Next() {
		var res domain.BacktestResult
		if err := rows.Scan(
			&res.ID, &res.StrategyNames, &res.Symbol, &res.Start, &res.End,
			&res.InitialBalance, &res.FinalBalance, &res.RealizedPnL,
			&res.Trades, &res.WinRate, &res.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan backtest result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
