package strategy

import (
	"math"

	"github.com/JihoJu/one-bailey/internal/domain"
)

// NameRSIReversal identifies the RSI mean-reversion strategy.
const NameRSIReversal = "rsi_reversal"

// RSIReversal buys oversold and sells overbought conditions. Between the
// two thresholds, and whenever the snapshot carries no RSI value, it holds.
type RSIReversal struct {
	params Params
}

// NewRSIReversal pins the given parameters.
func NewRSIReversal(p Params) *RSIReversal {
	return &RSIReversal{params: p}
}

var _ Strategy = (*RSIReversal)(nil)

func (s *RSIReversal) Name() string { return NameRSIReversal }

func (s *RSIReversal) Evaluate(snap domain.IndicatorSnapshot) domain.Signal {
	rsi, ok := snap.Value(domain.IndicatorRSI)
	if !ok {
		return domain.Hold(snap.Symbol, snap.Timestamp, s.Name())
	}

	var direction domain.SignalDirection
	var depth float64
	switch {
	case rsi <= s.params.RSIOversold:
		direction = domain.SignalBuy
		depth = s.params.RSIOversold - rsi
	case rsi >= s.params.RSIOverbought:
		direction = domain.SignalSell
		depth = rsi - s.params.RSIOverbought
	default:
		return domain.Hold(snap.Symbol, snap.Timestamp, s.Name())
	}

	// 10 RSI points past the threshold saturates confidence.
	confidence := math.Min(depth/10, 1)
	if confidence == 0 {
		confidence = 0.1
	}

	return domain.Signal{
		Symbol:     snap.Symbol,
		Timestamp:  snap.Timestamp,
		Direction:  direction,
		Confidence: confidence,
		Strategy:   s.Name(),
	}
}
