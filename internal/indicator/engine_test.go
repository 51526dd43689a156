package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JihoJu/one-bailey/internal/domain"
)

func tick(symbol string, sec int, price float64) domain.MarketEvent {
	return domain.MarketEvent{
		Symbol:    symbol,
		Timestamp: time.Date(2026, 3, 1, 0, 0, sec, 0, time.UTC),
		Price:     price,
		Kind:      domain.EventTick,
	}
}

func TestEngineWarmup(t *testing.T) {
	e := New(Config{Period: 5, ShortPeriod: 2})

	for i := 0; i < 4; i++ {
		_, ok := e.Update(tick("KRW-BTC", i, 100+float64(i)))
		assert.False(t, ok, "no snapshot before window is full")
	}
	assert.False(t, e.Warm("KRW-BTC"))

	snap, ok := e.Update(tick("KRW-BTC", 4, 104))
	require.True(t, ok)
	assert.True(t, e.Warm("KRW-BTC"))
	assert.Equal(t, "KRW-BTC", snap.Symbol)

	last, ok := snap.Value(domain.IndicatorLastPrice)
	require.True(t, ok)
	assert.Equal(t, 104.0, last)

	smaLong, ok := snap.Value(domain.IndicatorSMALong)
	require.True(t, ok)
	assert.InDelta(t, 102.0, smaLong, 1e-9) // (100+101+102+103+104)/5

	smaShort, ok := snap.Value(domain.IndicatorSMAShort)
	require.True(t, ok)
	assert.InDelta(t, 103.5, smaShort, 1e-9) // (103+104)/2
}

func TestEngineRSI(t *testing.T) {
	e := New(Config{Period: 5, ShortPeriod: 2})

	// Rising window: RSI pegs at 100.
	var snap domain.IndicatorSnapshot
	var ok bool
	for i := 0; i < 5; i++ {
		snap, ok = e.Update(tick("KRW-ETH", i, 100+float64(i)))
	}
	require.True(t, ok)
	rsi, present := snap.Value(domain.IndicatorRSI)
	require.True(t, present)
	assert.Equal(t, 100.0, rsi)

	// Flat window: RSI is undefined and omitted.
	e.Reset("KRW-ETH")
	for i := 0; i < 5; i++ {
		snap, ok = e.Update(tick("KRW-ETH", i, 500))
	}
	require.True(t, ok)
	_, present = snap.Value(domain.IndicatorRSI)
	assert.False(t, present)
}

func TestEngineDropsDuplicatesAndStale(t *testing.T) {
	e := New(Config{Period: 3, ShortPeriod: 2})

	e.Update(tick("KRW-BTC", 0, 100))
	e.Update(tick("KRW-BTC", 1, 110))

	// Duplicate timestamp must not advance the window.
	_, ok := e.Update(tick("KRW-BTC", 1, 999))
	assert.False(t, ok)

	// Stale timestamp is dropped too.
	_, ok = e.Update(tick("KRW-BTC", 0, 999))
	assert.False(t, ok)

	snap, ok := e.Update(tick("KRW-BTC", 2, 120))
	require.True(t, ok)
	smaLong, _ := snap.Value(domain.IndicatorSMALong)
	assert.InDelta(t, 110.0, smaLong, 1e-9)
}

func TestEngineGapResetsWindow(t *testing.T) {
	e := New(Config{Period: 3, ShortPeriod: 2})

	for i := 0; i < 3; i++ {
		e.Update(tick("KRW-BTC", i, 100))
	}
	require.True(t, e.Warm("KRW-BTC"))

	_, ok := e.Update(domain.GapMarker("KRW-BTC", time.Date(2026, 3, 1, 0, 0, 10, 0, time.UTC)))
	assert.False(t, ok)
	assert.False(t, e.Warm("KRW-BTC"), "gap restarts warm-up")

	// Warm-up must take a full window again.
	for i := 11; i < 13; i++ {
		_, ok = e.Update(tick("KRW-BTC", i, 200))
		assert.False(t, ok)
	}
	_, ok = e.Update(tick("KRW-BTC", 13, 200))
	assert.True(t, ok)
}

func TestEngineDeterministicReplay(t *testing.T) {
	events := make([]domain.MarketEvent, 0, 40)
	price := 1000.0
	for i := 0; i < 40; i++ {
		if i%7 == 0 {
			price -= 3.5
		} else {
			price += 1.25
		}
		events = append(events, tick("KRW-BTC", i, price))
	}

	run := func() []domain.IndicatorSnapshot {
		e := New(Config{Period: 10, ShortPeriod: 4})
		var out []domain.IndicatorSnapshot
		for _, ev := range events {
			if snap, ok := e.Update(ev); ok {
				out = append(out, snap)
			}
		}
		return out
	}

	first := run()
	second := run()
	require.Equal(t, first, second, "replaying the same events yields identical snapshots")
	assert.Len(t, first, 31)
}
