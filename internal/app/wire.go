package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JihoJu/one-bailey/internal/cache/redis"
	"github.com/JihoJu/one-bailey/internal/config"
	"github.com/JihoJu/one-bailey/internal/domain"
	"github.com/JihoJu/one-bailey/internal/exchange"
	"github.com/JihoJu/one-bailey/internal/exchange/upbit"
	"github.com/JihoJu/one-bailey/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Durable stores
	Orders      domain.OrderStore
	Trades      domain.TradeStore
	Portfolios  domain.PortfolioStore
	Settings    domain.SettingsStore
	Backtests   domain.BacktestStore
	Performance domain.PerformanceStore
	Series      domain.SeriesStore

	// Caches
	Idempotency domain.IdempotencyCache
	Jobs        domain.TaskQueue
	Locks       domain.LockManager
	Counters    domain.CounterCache

	// Exchange
	Exchange   exchange.Exchange
	Orderbooks exchange.OrderbookSource

	// Raw clients, for modes that need connectivity checks or migrations.
	PG    *postgres.Client
	Redis *redis.Client
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "trade", "backtest", "initdb", "verify":
		return true
	default:
		return false
	}
}

// needsRedis returns true for modes that require the cache layer.
func needsRedis(mode string) bool {
	switch mode {
	case "trade", "verify":
		return true
	default:
		return false
	}
}

// needsExchange returns true for modes that talk to the exchange REST API.
func needsExchange(mode string) bool {
	switch mode {
	case "trade", "backtest", "verify":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		deps.PG = pgClient

		// initdb runs migrations itself; the other modes follow the flag.
		if mode != "initdb" && cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Orders = postgres.NewOrderStore(pool)
		deps.Trades = postgres.NewTradeStore(pool)
		deps.Portfolios = postgres.NewPortfolioStore(pool)
		deps.Settings = postgres.NewSettingsStore(pool)
		deps.Backtests = postgres.NewBacktestStore(pool)
		deps.Performance = postgres.NewPerformanceStore(pool)
		deps.Series = postgres.NewSeriesStore(pool)
	}

	// --- Redis ---
	if needsRedis(mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Redis = redisClient

		deps.Idempotency = redis.NewIdempotencyCache(redisClient)
		deps.Jobs = redis.NewTaskQueue(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Counters = redis.NewCounterCache(redisClient)
	}

	// --- Exchange REST client ---
	if needsExchange(mode) {
		client := upbit.NewClient(
			cfg.Upbit.RestURL,
			cfg.Upbit.AccessKey,
			cfg.Upbit.SecretKey,
			logger,
		)
		deps.Exchange = client
		deps.Orderbooks = client
	}

	return deps, cleanup, nil
}
