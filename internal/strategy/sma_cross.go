package strategy

import (
	"math"

	"github.com/JihoJu/one-bailey/internal/domain"
)

// NameSMACross identifies the moving-average crossover strategy.
const NameSMACross = "sma_cross"

// SMACross signals from the relation between the short and long simple
// moving averages: short above long reads bullish, short below long reads
// bearish. Confidence grows with the relative divergence between the two
// averages, capped at 1.
type SMACross struct {
	params Params
}

// NewSMACross pins the given parameters.
func NewSMACross(p Params) *SMACross {
	return &SMACross{params: p}
}

var _ Strategy = (*SMACross)(nil)

func (s *SMACross) Name() string { return NameSMACross }

func (s *SMACross) Evaluate(snap domain.IndicatorSnapshot) domain.Signal {
	short, okShort := snap.Value(domain.IndicatorSMAShort)
	long, okLong := snap.Value(domain.IndicatorSMALong)
	if !okShort || !okLong || long <= 0 {
		return domain.Hold(snap.Symbol, snap.Timestamp, s.Name())
	}

	divergence := (short - long) / long
	if divergence == 0 {
		return domain.Hold(snap.Symbol, snap.Timestamp, s.Name())
	}

	direction := domain.SignalBuy
	if divergence < 0 {
		direction = domain.SignalSell
	}
	// 1% divergence saturates confidence.
	confidence := math.Min(math.Abs(divergence)*100, 1)

	return domain.Signal{
		Symbol:     snap.Symbol,
		Timestamp:  snap.Timestamp,
		Direction:  direction,
		Confidence: confidence,
		Strategy:   s.Name(),
	}
}
