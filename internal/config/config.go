// Package config defines the top-level configuration for the trading engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by BAILEY_* environment variables.
type Config struct {
	Upbit     UpbitConfig     `toml:"upbit"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Feed      FeedConfig      `toml:"feed"`
	Indicator IndicatorConfig `toml:"indicator"`
	Strategy  StrategyConfig  `toml:"strategy"`
	Risk      RiskConfig      `toml:"risk"`
	Backtest  BacktestConfig  `toml:"backtest"`
	Session   SessionConfig   `toml:"session"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// UpbitConfig holds exchange endpoints and API credentials.
type UpbitConfig struct {
	RestURL   string `toml:"rest_url"`
	WsURL     string `toml:"ws_url"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	// TimeoutSec bounds every outbound REST call.
	TimeoutSec int `toml:"timeout_sec"`
}

// PostgresConfig holds connection parameters for the durable store.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds connection parameters for the cache/queue layer.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
}

// FeedConfig holds websocket feed tuning.
type FeedConfig struct {
	ReconnectDelaySec    int `toml:"reconnect_delay_sec"`
	MaxReconnectDelaySec int `toml:"max_reconnect_delay_sec"`
	PingIntervalSec      int `toml:"ping_interval_sec"`
	// MaxRetries is the consecutive reconnect ceiling before the
	// subscription is declared lost.
	MaxRetries int `toml:"max_retries"`
}

// IndicatorConfig holds rolling-window sizing.
type IndicatorConfig struct {
	// Period is the warm-up window in bars; snapshots are suppressed until
	// the buffer is full.
	Period int `toml:"period"`
}

// StrategyConfig holds signal-generation parameters.
type StrategyConfig struct {
	// Active lists the strategies to run; Precedence resolves disagreement
	// (first match wins, ties resolve to hold).
	Active     []string `toml:"active"`
	Precedence []string `toml:"precedence"`

	ShortPeriod   int     `toml:"short_period"`
	LongPeriod    int     `toml:"long_period"`
	RSIOversold   float64 `toml:"rsi_oversold"`
	RSIOverbought float64 `toml:"rsi_overbought"`
}

// RiskConfig holds the session risk budget.
type RiskConfig struct {
	RiskPct             float64 `toml:"risk_pct"`
	MaxPositions        int     `toml:"max_positions"`
	PerSymbolCap        float64 `toml:"per_symbol_cap"`
	MinOrderUnit        float64 `toml:"min_order_unit"`
	MinNotional         float64 `toml:"min_notional"`
	ReconcileTolerance  float64 `toml:"reconcile_tolerance"`
	SnapshotIntervalSec int     `toml:"snapshot_interval_sec"`
}

// BacktestConfig holds replay parameters.
type BacktestConfig struct {
	LookbackDays   int     `toml:"lookback_days"`
	InitialBalance float64 `toml:"initial_balance"`
}

// SessionConfig holds the tracked symbols and collection cadence.
type SessionConfig struct {
	Symbols            []string `toml:"symbols"`
	DefaultSymbol      string   `toml:"default_symbol"`
	CollectIntervalSec int      `toml:"collect_interval_sec"`
}

// MetricsConfig holds the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// ReconnectDelay returns the base reconnect delay as a duration.
func (f FeedConfig) ReconnectDelay() time.Duration {
	return time.Duration(f.ReconnectDelaySec) * time.Second
}

// MaxReconnectDelay returns the reconnect backoff cap as a duration.
func (f FeedConfig) MaxReconnectDelay() time.Duration {
	return time.Duration(f.MaxReconnectDelaySec) * time.Second
}

// PingInterval returns the websocket heartbeat interval as a duration.
func (f FeedConfig) PingInterval() time.Duration {
	return time.Duration(f.PingIntervalSec) * time.Second
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Upbit: UpbitConfig{
			RestURL:    "https://api.upbit.com",
			WsURL:      "wss://api.upbit.com/websocket/v1",
			TimeoutSec: 10,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "one_bailey",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Feed: FeedConfig{
			ReconnectDelaySec:    5,
			MaxReconnectDelaySec: 60,
			PingIntervalSec:      30,
			MaxRetries:           10,
		},
		Indicator: IndicatorConfig{
			Period: 20,
		},
		Strategy: StrategyConfig{
			Active:        []string{"sma_cross", "rsi_reversal"},
			Precedence:    []string{"sma_cross", "rsi_reversal"},
			ShortPeriod:   5,
			LongPeriod:    20,
			RSIOversold:   30,
			RSIOverbought: 70,
		},
		Risk: RiskConfig{
			RiskPct:             0.02,
			MaxPositions:        3,
			PerSymbolCap:        1_000_000,
			MinOrderUnit:        0.0001,
			MinNotional:         5_000,
			ReconcileTolerance:  0.001,
			SnapshotIntervalSec: 60,
		},
		Backtest: BacktestConfig{
			LookbackDays:   30,
			InitialBalance: 1_000_000,
		},
		Session: SessionConfig{
			Symbols:            []string{"KRW-BTC"},
			DefaultSymbol:      "KRW-BTC",
			CollectIntervalSec: 60,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9100",
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":    true,
	"backtest": true,
	"initdb":   true,
	"verify":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, backtest, initdb, verify)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Upbit; credentials are required for trading, not for backtests.
	if c.Upbit.RestURL == "" {
		errs = append(errs, "upbit: rest_url must not be empty")
	}
	if c.Upbit.WsURL == "" {
		errs = append(errs, "upbit: ws_url must not be empty")
	}
	if strings.ToLower(c.Mode) == "trade" {
		if c.Upbit.AccessKey == "" || c.Upbit.SecretKey == "" {
			errs = append(errs, "upbit: access_key and secret_key are required for mode trade")
		}
	}
	if c.Upbit.TimeoutSec <= 0 {
		errs = append(errs, "upbit: timeout_sec must be > 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be 0..pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Feed
	if c.Feed.ReconnectDelaySec <= 0 {
		errs = append(errs, "feed: reconnect_delay_sec must be > 0")
	}
	if c.Feed.MaxReconnectDelaySec < c.Feed.ReconnectDelaySec {
		errs = append(errs, "feed: max_reconnect_delay_sec must be >= reconnect_delay_sec")
	}
	if c.Feed.PingIntervalSec <= 0 {
		errs = append(errs, "feed: ping_interval_sec must be > 0")
	}
	if c.Feed.MaxRetries < 1 {
		errs = append(errs, "feed: max_retries must be >= 1")
	}

	// Indicator
	if c.Indicator.Period < 2 {
		errs = append(errs, "indicator: period must be >= 2")
	}

	// Strategy
	if len(c.Strategy.Active) == 0 {
		errs = append(errs, "strategy: active must list at least one strategy")
	}
	if c.Strategy.ShortPeriod <= 0 || c.Strategy.LongPeriod <= 0 {
		errs = append(errs, "strategy: short_period and long_period must be > 0")
	} else if c.Strategy.ShortPeriod >= c.Strategy.LongPeriod {
		errs = append(errs, "strategy: short_period must be less than long_period")
	}
	if c.Strategy.LongPeriod > c.Indicator.Period {
		errs = append(errs, "strategy: long_period must not exceed indicator.period")
	}
	if c.Strategy.RSIOversold <= 0 || c.Strategy.RSIOverbought >= 100 ||
		c.Strategy.RSIOversold >= c.Strategy.RSIOverbought {
		errs = append(errs, "strategy: rsi thresholds must satisfy 0 < oversold < overbought < 100")
	}

	// Risk
	if c.Risk.RiskPct <= 0 || c.Risk.RiskPct > 1 {
		errs = append(errs, fmt.Sprintf("risk: risk_pct must be in (0,1], got %g", c.Risk.RiskPct))
	}
	if c.Risk.MaxPositions < 1 {
		errs = append(errs, "risk: max_positions must be >= 1")
	}
	if c.Risk.MinOrderUnit <= 0 {
		errs = append(errs, "risk: min_order_unit must be > 0")
	}
	if c.Risk.ReconcileTolerance <= 0 {
		errs = append(errs, "risk: reconcile_tolerance must be > 0")
	}

	// Backtest
	if c.Backtest.LookbackDays < 1 {
		errs = append(errs, "backtest: lookback_days must be >= 1")
	}
	if c.Backtest.InitialBalance <= 0 {
		errs = append(errs, "backtest: initial_balance must be > 0")
	}

	// Session
	if len(c.Session.Symbols) == 0 {
		errs = append(errs, "session: symbols must list at least one symbol")
	}
	if c.Session.CollectIntervalSec <= 0 {
		errs = append(errs, "session: collect_interval_sec must be > 0")
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics: addr must not be empty when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
