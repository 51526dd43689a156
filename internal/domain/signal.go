package domain

import "time"

// SignalDirection is the trading action requested by a strategy.
type SignalDirection string

const (
	SignalBuy  SignalDirection = "buy"
	SignalSell SignalDirection = "sell"
	SignalHold SignalDirection = "hold"
)

// Signal is emitted by the signal generator for one indicator snapshot. It is
// ephemeral: consumed exactly once by the risk manager.
type Signal struct {
	Symbol     string
	Timestamp  time.Time
	Direction  SignalDirection
	Confidence float64 // 0..1
	Strategy   string
}

// Hold returns a hold signal for the given snapshot and strategy. Strategies
// use it for indeterminate or missing indicator values instead of erroring.
func Hold(symbol string, ts time.Time, strategy string) Signal {
	return Signal{Symbol: symbol, Timestamp: ts, Direction: SignalHold, Strategy: strategy}
}
