package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"

	"github.com/JihoJu/one-bailey/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PortfolioStore implements domain.PortfolioStore using PostgreSQL, with
// positions serialized as a JSONB document.
type PortfolioStore struct {
	pool *pgxpool.Pool
}

var _ domain.PortfolioStore = (*PortfolioStore)(nil)

// NewPortfolioStore creates a PortfolioStore backed by the given pool.
func NewPortfolioStore(pool *pgxpool.Pool) *PortfolioStore {
	return &PortfolioStore{pool: pool}
}

// Insert appends one snapshot.
func (s *PortfolioStore) Insert(ctx context.Context, snap domain.PortfolioSnapshotRecord) error {
	positions, err := json.Marshal(snap.Positions)
	if err != nil {
		return fmt.Errorf("postgres: marshal positions: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO portfolio_snapshots (balance, positions, realized_pnl, snapshot_at)
		VALUES ($1, $2, $3, $4)`,
		snap.Balance, positions, snap.RealizedPnL, snap.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert portfolio snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot, domain.ErrNotFound when none
// exists yet.
func (s *PortfolioStore) Latest(ctx context.Context) (domain.PortfolioSnapshotRecord, error) {
	var (
		rec domain.PortfolioSnapshotRecord
		raw []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, balance, positions, realized_pnl, snapshot_at
		FROM portfolio_snapshots
		ORDER BY snapshot_at DESC, id DESC
		LIMIT 1`,
	).Scan(&rec.ID, &rec.Balance, &raw, &rec.RealizedPnL, &rec.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PortfolioSnapshotRecord{}, fmt.Errorf("postgres: portfolio snapshot: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.PortfolioSnapshotRecord{}, fmt.Errorf("postgres: latest portfolio snapshot: %w", err)
	}

	rec.Positions = make(map[string]domain.Position)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rec.Positions); err != nil {
			return domain.PortfolioSnapshotRecord{}, fmt.Errorf("postgres: decode positions: %w", err)
		}
	}
	return rec, nil
}
