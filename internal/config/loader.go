package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BAILEY_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
//
// A missing file is not an error: the defaults plus environment overrides
// form a complete configuration for container deployments.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BAILEY_* environment variables and
// overwrites the corresponding Config fields when a variable is set. Secrets
// are injected at deploy time this way instead of living in the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Upbit ──
	setStr(&cfg.Upbit.RestURL, "BAILEY_UPBIT_REST_URL")
	setStr(&cfg.Upbit.WsURL, "BAILEY_UPBIT_WS_URL")
	setStr(&cfg.Upbit.AccessKey, "BAILEY_UPBIT_ACCESS_KEY")
	setStr(&cfg.Upbit.SecretKey, "BAILEY_UPBIT_SECRET_KEY")
	setStr(&cfg.Upbit.AccessKey, "UPBIT_ACCESS_KEY") // deployment alias
	setStr(&cfg.Upbit.SecretKey, "UPBIT_SECRET_KEY") // deployment alias
	setInt(&cfg.Upbit.TimeoutSec, "BAILEY_UPBIT_TIMEOUT_SEC")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BAILEY_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BAILEY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BAILEY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BAILEY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BAILEY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BAILEY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BAILEY_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BAILEY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BAILEY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BAILEY_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BAILEY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BAILEY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BAILEY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BAILEY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BAILEY_REDIS_MAX_RETRIES")

	// ── Feed ──
	setInt(&cfg.Feed.ReconnectDelaySec, "BAILEY_FEED_RECONNECT_DELAY_SEC")
	setInt(&cfg.Feed.MaxReconnectDelaySec, "BAILEY_FEED_MAX_RECONNECT_DELAY_SEC")
	setInt(&cfg.Feed.PingIntervalSec, "BAILEY_FEED_PING_INTERVAL_SEC")
	setInt(&cfg.Feed.MaxRetries, "BAILEY_FEED_MAX_RETRIES")

	// ── Indicator / Strategy ──
	setInt(&cfg.Indicator.Period, "BAILEY_INDICATOR_PERIOD")
	setStringSlice(&cfg.Strategy.Active, "BAILEY_STRATEGY_ACTIVE")
	setStringSlice(&cfg.Strategy.Precedence, "BAILEY_STRATEGY_PRECEDENCE")
	setInt(&cfg.Strategy.ShortPeriod, "BAILEY_STRATEGY_SHORT_PERIOD")
	setInt(&cfg.Strategy.LongPeriod, "BAILEY_STRATEGY_LONG_PERIOD")
	setFloat64(&cfg.Strategy.RSIOversold, "BAILEY_STRATEGY_RSI_OVERSOLD")
	setFloat64(&cfg.Strategy.RSIOverbought, "BAILEY_STRATEGY_RSI_OVERBOUGHT")

	// ── Risk ──
	setFloat64(&cfg.Risk.RiskPct, "BAILEY_RISK_PCT")
	setInt(&cfg.Risk.MaxPositions, "BAILEY_RISK_MAX_POSITIONS")
	setFloat64(&cfg.Risk.PerSymbolCap, "BAILEY_RISK_PER_SYMBOL_CAP")
	setFloat64(&cfg.Risk.MinOrderUnit, "BAILEY_RISK_MIN_ORDER_UNIT")
	setFloat64(&cfg.Risk.MinNotional, "BAILEY_RISK_MIN_NOTIONAL")
	setFloat64(&cfg.Risk.ReconcileTolerance, "BAILEY_RISK_RECONCILE_TOLERANCE")
	setInt(&cfg.Risk.SnapshotIntervalSec, "BAILEY_RISK_SNAPSHOT_INTERVAL_SEC")

	// ── Backtest ──
	setInt(&cfg.Backtest.LookbackDays, "BAILEY_BACKTEST_LOOKBACK_DAYS")
	setFloat64(&cfg.Backtest.InitialBalance, "BAILEY_BACKTEST_INITIAL_BALANCE")

	// ── Session ──
	setStringSlice(&cfg.Session.Symbols, "BAILEY_SESSION_SYMBOLS")
	setStr(&cfg.Session.DefaultSymbol, "BAILEY_SESSION_DEFAULT_SYMBOL")
	setInt(&cfg.Session.CollectIntervalSec, "BAILEY_SESSION_COLLECT_INTERVAL_SEC")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "BAILEY_METRICS_ENABLED")
	setStr(&cfg.Metrics.Addr, "BAILEY_METRICS_ADDR")

	// ── Top-level ──
	setStr(&cfg.Mode, "BAILEY_MODE")
	setStr(&cfg.LogLevel, "BAILEY_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
