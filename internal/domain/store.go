package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeStore persists terminal orders as trade records.
type TradeStore interface {
	Insert(ctx context.Context, order Order) error
	GetByCorrelationID(ctx context.Context, correlationID string) (Order, error)
	ListBySymbol(ctx context.Context, symbol string, opts ListOpts) ([]Order, error)
}

// OrderStore persists the full order lifecycle, keyed by correlation id for
// idempotent lookup.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	Update(ctx context.Context, order Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (Order, error)
	ListOpen(ctx context.Context) ([]Order, error)
}

// PortfolioSnapshotRecord is a durable point-in-time copy of the portfolio.
type PortfolioSnapshotRecord struct {
	ID          int64
	Balance     float64
	Positions   map[string]Position
	RealizedPnL float64
	Timestamp   time.Time
}

// PortfolioStore persists portfolio snapshots.
type PortfolioStore interface {
	Insert(ctx context.Context, snap PortfolioSnapshotRecord) error
	Latest(ctx context.Context) (PortfolioSnapshotRecord, error)
}

// Setting is one configuration record in the settings collection.
type Setting struct {
	Category    string
	Key         string
	Value       map[string]any
	Description string
	IsActive    bool
	UpdatedAt   time.Time
}

// SettingsStore persists operator-editable settings.
type SettingsStore interface {
	Upsert(ctx context.Context, s Setting) error
	Get(ctx context.Context, category, key string) (Setting, error)
	ListByCategory(ctx context.Context, category string) ([]Setting, error)
}

// BacktestResult summarizes one backtest run.
type BacktestResult struct {
	ID             string
	StrategyNames  []string
	Symbol         string
	Start          time.Time
	End            time.Time
	InitialBalance float64
	FinalBalance   float64
	RealizedPnL    float64
	Trades         int
	WinRate        float64
	CreatedAt      time.Time
}

// BacktestStore persists backtest results.
type BacktestStore interface {
	Insert(ctx context.Context, res BacktestResult) error
	ListRecent(ctx context.Context, limit int) ([]BacktestResult, error)
}

// DailyPerformance is the per-day trading rollup.
type DailyPerformance struct {
	Date          time.Time
	Trades        int
	RealizedPnL   float64
	EndingBalance float64
}

// PerformanceStore persists daily performance rollups.
type PerformanceStore interface {
	Upsert(ctx context.Context, p DailyPerformance) error
	Get(ctx context.Context, date time.Time) (DailyPerformance, error)
}

// SeriesPoint is one time-series observation keyed (symbol, timestamp, field).
type SeriesPoint struct {
	Symbol    string
	Timestamp time.Time
	Field     string
	Value     float64
}

// SeriesStore persists indicator and price time series and serves historical
// ranges back to the backtest engine.
type SeriesStore interface {
	InsertBatch(ctx context.Context, points []SeriesPoint) error
	Range(ctx context.Context, symbol, field string, since, until time.Time) ([]SeriesPoint, error)
}
