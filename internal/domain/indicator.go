package domain

import "time"

// Well-known indicator names emitted by the indicator engine.
const (
	IndicatorSMAShort  = "sma_short"
	IndicatorSMALong   = "sma_long"
	IndicatorEMA       = "ema"
	IndicatorRSI       = "rsi"
	IndicatorStdDev    = "stddev"
	IndicatorLastPrice = "last_price"
)

// IndicatorSnapshot is the per-symbol indicator state derived from a bounded
// window of prior MarketEvents. One snapshot supersedes the previous one;
// history is only retained through the persistence coordinator.
type IndicatorSnapshot struct {
	Symbol    string
	Timestamp time.Time
	Values    map[string]float64
}

// Value returns the named indicator value and whether it is present.
func (s IndicatorSnapshot) Value(name string) (float64, bool) {
	v, ok := s.Values[name]
	return v, ok
}
