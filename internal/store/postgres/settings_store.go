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

// SettingsStore implements domain.SettingsStore using PostgreSQL, with the
// setting value held as a JSONB document.
type SettingsStore struct {
	pool *pgxpool.Pool
}

var _ domain.SettingsStore = (*SettingsStore)(nil)

// NewSettingsStore creates a SettingsStore backed by the given pool.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Upsert writes a setting, replacing any previous value for the same
// category and key.
func (s *SettingsStore) Upsert(ctx context.Context, setting domain.Setting) error {
	value, err := json.Marshal(setting.Value)
	if err != nil {
		return fmt.Errorf("postgres: marshal setting value: %w", err)
	}
	if setting.UpdatedAt.IsZero() {
		setting.UpdatedAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO settings (category, key, value, description, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (category, key) DO UPDATE SET
			value = EXCLUDED.value,
			description = EXCLUDED.description,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		setting.Category, setting.Key, value, setting.Description,
		setting.IsActive, setting.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert setting %s/%s: %w", setting.Category, setting.Key, err)
	}
	return nil
}

// Get fetches one setting.
func (s *SettingsStore) Get(ctx context.Context, category, key string) (domain.Setting, error) {
	setting, err := scanSetting(s.pool.QueryRow(ctx, `
		SELECT category, key, value, description, is_active, updated_at
		FROM settings WHERE category = $1 AND key = $2`,
		category, key,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Setting{}, fmt.Errorf("postgres: setting %s/%s: %w", category, key, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Setting{}, fmt.Errorf("postgres: get setting %s/%s: %w", category, key, err)
	}
	return setting, nil
}

// ListByCategory returns every setting in a category.
func (s *SettingsStore) ListByCategory(ctx context.Context, category string) ([]domain.Setting, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category, key, value, description, is_active, updated_at
		FROM settings WHERE category = $1 ORDER BY key`,
		category,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settings %s: %w", category, err)
	}
	defer rows.Close()

	var out []domain.Setting
	for rows.Next() {
		setting, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan setting: %w", err)
		}
		out = append(out, setting)
	}
	return out, rows.Err()
}

func scanSetting(row pgx.Row) (domain.Setting, error) {
	var (
		setting domain.Setting
		raw     []byte
	)
	if err := row.Scan(&setting.Category, &setting.Key, &raw,
		&setting.Description, &setting.IsActive, &setting.UpdatedAt); err != nil {
		return domain.Setting{}, err
	}
	setting.Value = make(map[string]any)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &setting.Value); err != nil {
			return domain.Setting{}, err
		}
	}
	return setting, nil
}
