// Package retry implements bounded exponential backoff with jitter for
// boundary operations (exchange calls, persistence writes, reconnects).
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config controls the backoff schedule:
//
//	delay(n) = min(InitialDelay * Multiplier^n, MaxDelay) ± JitterFactor
type Config struct {
	// MaxAttempts is the total number of attempts including the first.
	// Zero or negative means retry until the context is cancelled.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// JitterFactor in [0,1] randomizes each delay by up to ±factor to avoid
	// synchronized retries across connections.
	JitterFactor float64

	// RetryIf filters which errors are retried. Nil retries everything.
	RetryIf func(error) bool

	// OnRetry is called before each sleep, useful for logging.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig suits most exchange API calls: 4 attempts, 100ms initial
// delay doubling up to 30s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NetworkConfig suits reconnect loops: slower initial delay, more headroom.
func NetworkConfig() Config {
	return Config{
		MaxAttempts:  4,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

func (c *Config) normalize() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

// Delay returns the backoff delay for the given zero-based attempt.
func (c Config) Delay(attempt int) time.Duration {
	c.normalize()
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 {
		d += d * c.JitterFactor * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do runs op with retries per cfg. It returns nil on the first success, the
// last error when attempts are exhausted, or early when RetryIf declines or
// the context is cancelled.
func Do(ctx context.Context, cfg Config, op func() error) error {
	cfg.normalize()

	var lastErr error
	for attempt := 0; cfg.MaxAttempts <= 0 || attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts-1 {
			break
		}

		delay := cfg.Delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastErr
		}
	}
	return lastErr
}

// DoWithResult is Do for operations that return a value.
func DoWithResult[T any](ctx context.Context, cfg Config, op func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, func() error {
		var opErr error
		out, opErr = op()
		return opErr
	})
	return out, err
}

// PermanentError wraps an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable for NotPermanent filters.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// NotPermanent is a RetryIf that skips PermanentError and context errors.
func NotPermanent(err error) bool {
	var pe *PermanentError
	if errors.As(err, &pe) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
