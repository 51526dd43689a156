// Package indicator maintains per-symbol rolling windows of market events and
// derives technical indicator snapshots from them. Snapshot computation is a
// pure function of the window contents, so the live and backtest paths
// produce identical output for identical input sequences.
package indicator

import (
	"math"

	"github.com/JihoJu/one-bailey/internal/domain"
)

// Config sizes the rolling window and the derived indicators.
type Config struct {
	// Period is the window length in bars. Snapshots are suppressed until
	// the window is full.
	Period int
	// ShortPeriod is the short moving-average length, strictly less than
	// Period.
	ShortPeriod int
}

// Engine consumes normalized market events and emits indicator snapshots.
// It is not safe for concurrent use; each per-symbol pipeline owns its
// events' ordering, and the engine is called from that single goroutine.
type Engine struct {
	cfg     Config
	windows map[string]*window
}

// window is a fixed-size ring buffer of closing prices for one symbol.
type window struct {
	prices []float64
	head   int
	count  int
	lastTS int64 // UnixNano of the newest accepted event
}

// New creates an Engine with the given window configuration.
func New(cfg Config) *Engine {
	if cfg.Period < 2 {
		cfg.Period = 2
	}
	if cfg.ShortPeriod <= 0 || cfg.ShortPeriod >= cfg.Period {
		cfg.ShortPeriod = (cfg.Period + 1) / 2
	}
	return &Engine{
		cfg:     cfg,
		windows: make(map[string]*window),
	}
}

// Update feeds one event into the symbol's window. It returns the derived
// snapshot and true once the window is warm; before that (and for dropped
// events) it returns false.
//
// Duplicate events (same symbol+timestamp) and stale events (older than the
// newest accepted) are dropped. A gap marker resets the window so the warm-up
// restarts after a stream discontinuity.
func (e *Engine) Update(ev domain.MarketEvent) (domain.IndicatorSnapshot, bool) {
	w := e.windows[ev.Symbol]
	if w == nil {
		w = &window{prices: make([]float64, e.cfg.Period)}
		e.windows[ev.Symbol] = w
	}

	if ev.Gap {
		// Restart warm-up and clear the ordering watermark; the marker's
		// local-clock timestamp may sit ahead of exchange trade times.
		w.head = 0
		w.count = 0
		w.lastTS = 0
		return domain.IndicatorSnapshot{}, false
	}

	ts := ev.Timestamp.UnixNano()
	if w.count > 0 && ts <= w.lastTS {
		// duplicate or out-of-order, idempotently dropped
		return domain.IndicatorSnapshot{}, false
	}
	w.lastTS = ts

	w.prices[w.head] = ev.Price
	w.head = (w.head + 1) % e.cfg.Period
	if w.count < e.cfg.Period {
		w.count++
	}
	if w.count < e.cfg.Period {
		return domain.IndicatorSnapshot{}, false
	}

	return domain.IndicatorSnapshot{
		Symbol:    ev.Symbol,
		Timestamp: ev.Timestamp,
		Values:    compute(w.ordered(), e.cfg.ShortPeriod),
	}, true
}

// Reset clears the window for one symbol (subscription dropped or gap policy
// applied externally).
func (e *Engine) Reset(symbol string) {
	delete(e.windows, symbol)
}

// Warm reports whether the symbol's window is full.
func (e *Engine) Warm(symbol string) bool {
	w := e.windows[symbol]
	return w != nil && w.count == len(w.prices)
}

// ordered returns the window contents oldest-first. Only valid when full.
func (w *window) ordered() []float64 {
	n := len(w.prices)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = w.prices[(w.head+i)%n]
	}
	return out
}

// compute derives the indicator mapping from a full window, oldest-first.
// It is deterministic and side-effect free.
func compute(prices []float64, shortPeriod int) map[string]float64 {
	n := len(prices)
	last := prices[n-1]

	values := map[string]float64{
		domain.IndicatorLastPrice: last,
		domain.IndicatorSMALong:   sma(prices),
		domain.IndicatorSMAShort:  sma(prices[n-shortPeriod:]),
		domain.IndicatorEMA:       ema(prices),
		domain.IndicatorStdDev:    stddev(prices),
	}
	if rsi, ok := rsi(prices); ok {
		values[domain.IndicatorRSI] = rsi
	}
	return values
}

func sma(prices []float64) float64 {
	var sum float64
	for _, p := range prices {
		sum += p
	}
	return sum / float64(len(prices))
}

// ema computes an exponential moving average seeded with the first price,
// smoothing factor 2/(n+1).
func ema(prices []float64) float64 {
	k := 2.0 / float64(len(prices)+1)
	out := prices[0]
	for _, p := range prices[1:] {
		out = p*k + out*(1-k)
	}
	return out
}

func stddev(prices []float64) float64 {
	mean := sma(prices)
	var sum float64
	for _, p := range prices {
		d := p - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(prices)))
}

// rsi computes the simple-average RSI over the window's close-to-close
// moves. It returns false when the window moves in only one direction and
// the ratio is undefined in a way that a strategy should treat as
// indeterminate (all-flat window).
func rsi(prices []float64) (float64, bool) {
	var gains, losses float64
	for i := 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	if gains == 0 && losses == 0 {
		return 0, false
	}
	if losses == 0 {
		return 100, true
	}
	rs := gains / losses
	return 100 - 100/(1+rs), true
}
