package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JihoJu/one-bailey/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func event(sec int, price float64) domain.MarketEvent {
	return domain.MarketEvent{
		Symbol:    "KRW-BTC",
		Timestamp: time.Date(2026, 3, 1, 0, 0, sec, 0, time.UTC),
		Price:     price,
		Kind:      domain.EventTick,
	}
}

// fakeStream scripts one connection attempt: either a connect failure or a
// burst of events followed by a disconnect.
type fakeStream struct {
	connectErr error
	events     []domain.MarketEvent

	mu      sync.Mutex
	handler func(domain.MarketEvent)
	done    chan struct{}
	once    sync.Once
}

func newFakeStream(connectErr error, events ...domain.MarketEvent) *fakeStream {
	return &fakeStream{connectErr: connectErr, events: events, done: make(chan struct{})}
}

func (s *fakeStream) Connect(ctx context.Context) error { return s.connectErr }

func (s *fakeStream) Subscribe(symbols []string) error {
	go func() {
		s.mu.Lock()
		h := s.handler
		s.mu.Unlock()
		for _, ev := range s.events {
			h(ev)
		}
		s.once.Do(func() { close(s.done) })
	}()
	return nil
}

func (s *fakeStream) OnTicker(h func(domain.MarketEvent)) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *fakeStream) Done() <-chan struct{} { return s.done }

func (s *fakeStream) Close() { s.once.Do(func() { close(s.done) }) }

// scriptedDialer hands out the next stream per attempt, and keeps returning
// idle streams once the script runs out.
func scriptedDialer(streams ...*fakeStream) (Dialer, *int) {
	attempts := new(int)
	return func() Stream {
		i := *attempts
		*attempts++
		if i < len(streams) {
			return streams[i]
		}
		return newFakeStream(nil)
	}, attempts
}

func collect(t *testing.T, ch <-chan domain.MarketEvent, n int) []domain.MarketEvent {
	t.Helper()
	out := make([]domain.MarketEvent, 0, n)
	timeout := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "channel closed after %d events", len(out))
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestFeedReconnectsAfterFailures(t *testing.T) {
	boom := errors.New("connection refused")
	dial, attempts := scriptedDialer(
		newFakeStream(nil, event(1, 100), event(2, 101)),
		newFakeStream(boom),
		newFakeStream(boom),
		newFakeStream(boom),
		newFakeStream(nil, event(10, 105), event(11, 106)),
	)

	opts := Options{
		ReconnectDelay:    time.Millisecond,
		MaxReconnectDelay: 5 * time.Millisecond,
		MaxRetries:        10,
	}
	f := New(dial, []string{"KRW-BTC"}, opts, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- f.Run(ctx) }()

	got := collect(t, f.Events("KRW-BTC"), 5)
	cancel()
	<-runDone

	// Two events, a gap marker for the reconnect, then the resumed stream.
	assert.Equal(t, 100.0, got[0].Price)
	assert.Equal(t, 101.0, got[1].Price)
	assert.True(t, got[2].Gap, "reconnect emits a gap marker")
	assert.Equal(t, 105.0, got[3].Price)
	assert.Equal(t, 106.0, got[4].Price)
	assert.GreaterOrEqual(t, *attempts, 5, "three failed attempts before resuming")

	for i := 1; i < len(got); i++ {
		if got[i].Gap || got[i-1].Gap {
			continue
		}
		assert.True(t, got[i].Timestamp.After(got[i-1].Timestamp), "timestamps strictly increase")
	}
}

func TestFeedDropsDuplicateTimestamps(t *testing.T) {
	dial, _ := scriptedDialer(
		newFakeStream(nil, event(1, 100), event(1, 999), event(2, 101)),
	)
	f := New(dial, []string{"KRW-BTC"}, Options{ReconnectDelay: time.Millisecond, MaxRetries: 2}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	got := collect(t, f.Events("KRW-BTC"), 2)
	assert.Equal(t, 100.0, got[0].Price)
	assert.Equal(t, 101.0, got[1].Price, "duplicate timestamp dropped")
}

func TestFeedSaturatedSymbolDoesNotStallOthers(t *testing.T) {
	// KRW-BTC has a full one-slot buffer and no consumer; KRW-ETH delivery
	// must continue regardless.
	events := make([]domain.MarketEvent, 0, 6)
	for i := 1; i <= 5; i++ {
		events = append(events, event(i, 100+float64(i)))
	}
	events = append(events, domain.MarketEvent{
		Symbol:    "KRW-ETH",
		Timestamp: time.Date(2026, 3, 1, 0, 0, 9, 0, time.UTC),
		Price:     200,
		Kind:      domain.EventTick,
	})
	dial, _ := scriptedDialer(newFakeStream(nil, events...))
	f := New(dial, []string{"KRW-BTC", "KRW-ETH"}, Options{
		ReconnectDelay: time.Millisecond,
		MaxRetries:     2,
		Buffer:         1,
	}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	got := collect(t, f.Events("KRW-ETH"), 1)
	assert.Equal(t, 200.0, got[0].Price, "unrelated symbol keeps flowing past a saturated buffer")

	first := <-f.Events("KRW-BTC")
	assert.Equal(t, 101.0, first.Price, "saturated symbol retains the oldest buffered event")
}

func TestFeedUnsubscribeStopsDelivery(t *testing.T) {
	btc := event(1, 100)
	eth := domain.MarketEvent{
		Symbol:    "KRW-ETH",
		Timestamp: time.Date(2026, 3, 1, 0, 0, 1, 0, time.UTC),
		Price:     200,
		Kind:      domain.EventTick,
	}
	dial, _ := scriptedDialer(newFakeStream(nil, eth, btc))
	f := New(dial, []string{"KRW-BTC", "KRW-ETH"}, Options{ReconnectDelay: time.Millisecond, MaxRetries: 2}, nil, testLogger())

	ethEvents := f.Events("KRW-ETH")
	f.Unsubscribe("KRW-ETH")

	_, open := <-ethEvents
	assert.False(t, open, "unsubscribed channel closes")
	assert.Nil(t, f.Events("KRW-ETH"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	got := collect(t, f.Events("KRW-BTC"), 1)
	assert.Equal(t, 100.0, got[0].Price, "remaining symbols keep flowing")
}

func TestFeedSubscriptionLostAtCeiling(t *testing.T) {
	boom := errors.New("connection refused")
	dial, attempts := scriptedDialer(
		newFakeStream(boom), newFakeStream(boom), newFakeStream(boom),
	)
	f := New(dial, []string{"KRW-BTC"}, Options{
		ReconnectDelay: time.Millisecond,
		MaxRetries:     3,
	}, nil, testLogger())

	err := f.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSubscriptionLost)
	assert.Equal(t, 3, *attempts)

	_, open := <-f.Events("KRW-BTC")
	assert.False(t, open, "channels closed when the feed gives up")
}
