package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JihoJu/one-bailey/internal/domain"
)

// SeriesStore implements domain.SeriesStore using PostgreSQL. Points are
// keyed (symbol, timestamp, field); replays of the same point are no-ops so
// retried persistence stays idempotent.
type SeriesStore struct {
	pool *pgxpool.Pool
}

var _ domain.SeriesStore = (*SeriesStore)(nil)

// NewSeriesStore creates a SeriesStore backed by the given pool.
func NewSeriesStore(pool *pgxpool.Pool) *SeriesStore {
	return &SeriesStore{pool: pool}
}

// InsertBatch inserts points using a pgx batch.
func (s *SeriesStore) InsertBatch(ctx context.Context, points []domain.SeriesPoint) error {
	if len(points) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO series (symbol, ts, field, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, ts, field) DO NOTHING`
	for _, p := range points {
		batch.Queue(query, p.Symbol, p.Timestamp, p.Field, p.Value)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range points {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert series point %d: %w", i, err)
		}
	}
	return nil
}

// Range returns one field's points for a symbol in [since, until), oldest
// first.
func (s *SeriesStore) Range(ctx context.Context, symbol, field string, since, until time.Time) ([]domain.SeriesPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, ts, field, value FROM series
		WHERE symbol = $1 AND field = $2 AND ts >= $3 AND ts < $4
		ORDER BY ts`,
		symbol, field, since, until,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: series range %s/%s: %w", symbol, field, err)
	}
	defer rows.Close()

	var out []domain.SeriesPoint
	for rows.Next() {
		var p domain.SeriesPoint
		if err := rows.Scan(&p.Symbol, &p.Timestamp, &p.Field, &p.Value); err != nil {
			return nil, fmt.Errorf("postgres: scan series point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
