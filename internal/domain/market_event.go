package domain

import "time"

// EventKind distinguishes raw trade ticks from aggregated candles.
type EventKind string

const (
	EventTick   EventKind = "tick"
	EventCandle EventKind = "candle"
)

// MarketEvent is the canonical, normalized market data event produced by the
// feed. Events are immutable and ordered by timestamp per symbol; duplicates
// (same symbol+timestamp) are dropped by the feed before delivery.
type MarketEvent struct {
	Symbol    string
	Timestamp time.Time
	Price     float64
	Volume    float64
	Kind      EventKind

	// Gap marks a discontinuity in the stream (reconnect without replay).
	// A gap event carries no price data; consumers must invalidate any
	// rolling state that spans the gap.
	Gap bool
}

// GapMarker returns a gap event for the given symbol at the given time.
func GapMarker(symbol string, ts time.Time) MarketEvent {
	return MarketEvent{Symbol: symbol, Timestamp: ts, Gap: true}
}
