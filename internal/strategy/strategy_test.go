package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JihoJu/one-bailey/internal/domain"
)

var testParams = Params{
	ShortPeriod:   5,
	LongPeriod:    20,
	RSIOversold:   30,
	RSIOverbought: 70,
}

func snapshot(values map[string]float64) domain.IndicatorSnapshot {
	return domain.IndicatorSnapshot{
		Symbol:    "KRW-BTC",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Values:    values,
	}
}

func TestSMACross(t *testing.T) {
	s := NewSMACross(testParams)

	tests := []struct {
		name   string
		values map[string]float64
		want   domain.SignalDirection
	}{
		{
			name: "short above long is bullish",
			values: map[string]float64{
				domain.IndicatorSMAShort: 105,
				domain.IndicatorSMALong:  100,
			},
			want: domain.SignalBuy,
		},
		{
			name: "short below long is bearish",
			values: map[string]float64{
				domain.IndicatorSMAShort: 95,
				domain.IndicatorSMALong:  100,
			},
			want: domain.SignalSell,
		},
		{
			name: "equal averages hold",
			values: map[string]float64{
				domain.IndicatorSMAShort: 100,
				domain.IndicatorSMALong:  100,
			},
			want: domain.SignalHold,
		},
		{
			name:   "missing indicators hold",
			values: map[string]float64{domain.IndicatorSMAShort: 100},
			want:   domain.SignalHold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := s.Evaluate(snapshot(tt.values))
			assert.Equal(t, tt.want, sig.Direction)
			assert.Equal(t, NameSMACross, sig.Strategy)
		})
	}
}

func TestSMACrossConfidenceSaturates(t *testing.T) {
	s := NewSMACross(testParams)

	sig := s.Evaluate(snapshot(map[string]float64{
		domain.IndicatorSMAShort: 200,
		domain.IndicatorSMALong:  100,
	}))
	assert.Equal(t, 1.0, sig.Confidence)

	sig = s.Evaluate(snapshot(map[string]float64{
		domain.IndicatorSMAShort: 100.5,
		domain.IndicatorSMALong:  100,
	}))
	assert.InDelta(t, 0.5, sig.Confidence, 1e-9)
}

func TestRSIReversal(t *testing.T) {
	s := NewRSIReversal(testParams)

	tests := []struct {
		name string
		rsi  float64
		want domain.SignalDirection
	}{
		{"oversold buys", 25, domain.SignalBuy},
		{"overbought sells", 80, domain.SignalSell},
		{"neutral holds", 50, domain.SignalHold},
		{"exact threshold fires", 30, domain.SignalBuy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := s.Evaluate(snapshot(map[string]float64{domain.IndicatorRSI: tt.rsi}))
			assert.Equal(t, tt.want, sig.Direction)
		})
	}

	t.Run("missing rsi holds", func(t *testing.T) {
		sig := s.Evaluate(snapshot(map[string]float64{domain.IndicatorLastPrice: 100}))
		assert.Equal(t, domain.SignalHold, sig.Direction)
	})
}

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry()

	built, err := r.Build([]string{NameSMACross, NameRSIReversal}, testParams)
	require.NoError(t, err)
	require.Len(t, built, 2)
	assert.Equal(t, NameSMACross, built[0].Name())

	_, err = r.Build([]string{"momentum_breakout"}, testParams)
	assert.Error(t, err)
}

// fixed is a test strategy that always answers the same direction.
type fixed struct {
	name      string
	direction domain.SignalDirection
}

func (f fixed) Name() string { return f.name }

func (f fixed) Evaluate(snap domain.IndicatorSnapshot) domain.Signal {
	return domain.Signal{
		Symbol:     snap.Symbol,
		Timestamp:  snap.Timestamp,
		Direction:  f.direction,
		Confidence: 1,
		Strategy:   f.name,
	}
}

func TestResolverPrecedence(t *testing.T) {
	buy := fixed{name: "a", direction: domain.SignalBuy}
	sell := fixed{name: "b", direction: domain.SignalSell}
	hold := fixed{name: "c", direction: domain.SignalHold}

	t.Run("higher precedence wins disagreement", func(t *testing.T) {
		r := NewResolver([]Strategy{buy, sell}, []string{"b", "a"})
		sig := r.Resolve(snapshot(nil))
		assert.Equal(t, domain.SignalSell, sig.Direction)
		assert.Equal(t, "b", sig.Strategy)
	})

	t.Run("hold votes never outrank action", func(t *testing.T) {
		r := NewResolver([]Strategy{hold, buy}, []string{"c", "a"})
		sig := r.Resolve(snapshot(nil))
		assert.Equal(t, domain.SignalBuy, sig.Direction)
	})

	t.Run("unranked disagreement resolves to hold", func(t *testing.T) {
		r := NewResolver([]Strategy{buy, sell}, nil)
		sig := r.Resolve(snapshot(nil))
		assert.Equal(t, domain.SignalHold, sig.Direction)
	})

	t.Run("unranked agreement passes through", func(t *testing.T) {
		buy2 := fixed{name: "d", direction: domain.SignalBuy}
		r := NewResolver([]Strategy{buy, buy2}, nil)
		sig := r.Resolve(snapshot(nil))
		assert.Equal(t, domain.SignalBuy, sig.Direction)
	})

	t.Run("all hold resolves to hold", func(t *testing.T) {
		r := NewResolver([]Strategy{hold}, []string{"c"})
		sig := r.Resolve(snapshot(nil))
		assert.Equal(t, domain.SignalHold, sig.Direction)
	})
}
