// Package feed maintains the live market data stream: it owns the websocket
// connection lifecycle, reconnects with backoff on disconnect, and demuxes
// normalized events into per-symbol channels with per-symbol ordering
// guarantees (duplicates dropped, timestamps strictly increasing).
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JihoJu/one-bailey/internal/domain"
	"github.com/JihoJu/one-bailey/pkg/retry"
)

// Stream is one websocket connection to the exchange. A fresh Stream is
// dialed per connection attempt.
type Stream interface {
	Connect(ctx context.Context) error
	Subscribe(symbols []string) error
	OnTicker(func(domain.MarketEvent))
	// Done is closed when the connection's read loop exits.
	Done() <-chan struct{}
	Close()
}

// Dialer produces a new Stream per connection attempt.
type Dialer func() Stream

// droppedLogEvery throttles the per-symbol saturation warning.
const droppedLogEvery = 100

// Options tune the reconnect policy.
type Options struct {
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	// MaxRetries is the ceiling on consecutive failed connection attempts
	// before the subscription is declared lost.
	MaxRetries int
	// Buffer is the per-symbol channel depth.
	Buffer int
}

// ReconnectCounter records reconnect attempts for operational visibility.
// Implementations live in the cache layer; a nil counter is skipped.
type ReconnectCounter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Feed owns the stream for a set of symbols and fans events out to one
// ordered channel per symbol.
type Feed struct {
	dial    Dialer
	opts    Options
	counter ReconnectCounter
	logger  *slog.Logger
	inbox   chan domain.MarketEvent

	// mu guards symbols and channels. Sends happen under the lock so
	// Unsubscribe can close a channel without racing the pump.
	mu       sync.Mutex
	symbols  []string
	channels map[string]chan domain.MarketEvent
	lastTS   map[string]int64
	dropped  map[string]uint64
}

// New creates a Feed for the given symbols. Channels are created up front so
// consumers can attach before Run starts.
func New(dial Dialer, symbols []string, opts Options, counter ReconnectCounter, logger *slog.Logger) *Feed {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	channels := make(map[string]chan domain.MarketEvent, len(symbols))
	for _, s := range symbols {
		channels[s] = make(chan domain.MarketEvent, opts.Buffer)
	}
	return &Feed{
		dial:     dial,
		symbols:  symbols,
		opts:     opts,
		counter:  counter,
		logger:   logger.With(slog.String("component", "feed")),
		inbox:    make(chan domain.MarketEvent, opts.Buffer),
		channels: channels,
		lastTS:   make(map[string]int64, len(symbols)),
		dropped:  make(map[string]uint64, len(symbols)),
	}
}

// Events returns the ordered event channel for one symbol. The channel is
// closed when Run returns or the symbol is unsubscribed.
func (f *Feed) Events(symbol string) <-chan domain.MarketEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[symbol]
}

// Unsubscribe stops delivery for one symbol and closes its channel. Events
// the stream still pushes for it are dropped; the upstream subscription
// narrows on the next reconnect.
func (f *Feed) Unsubscribe(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[symbol]
	if !ok {
		return
	}
	delete(f.channels, symbol)
	delete(f.lastTS, symbol)
	delete(f.dropped, symbol)
	for i, s := range f.symbols {
		if s == symbol {
			f.symbols = append(f.symbols[:i], f.symbols[i+1:]...)
			break
		}
	}
	close(ch)
	f.logger.Info("symbol unsubscribed", slog.String("symbol", symbol))
}

// Run connects and pumps events until ctx is cancelled or the retry ceiling
// is reached, in which case it returns domain.ErrSubscriptionLost. A
// successful connection resets the failure count. After a reconnect, a gap
// marker is emitted on every symbol channel so downstream windows restart
// their warm-up.
func (f *Feed) Run(ctx context.Context) error {
	defer func() {
		f.mu.Lock()
		for _, ch := range f.channels {
			close(ch)
		}
		f.mu.Unlock()
	}()

	backoff := retry.Config{
		MaxAttempts:  f.opts.MaxRetries,
		InitialDelay: f.opts.ReconnectDelay,
		MaxDelay:     f.opts.MaxReconnectDelay,
		Multiplier:   2,
		JitterFactor: 0.2,
	}

	failures := 0
	everConnected := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stream := f.dial()
		stream.OnTicker(func(ev domain.MarketEvent) {
			select {
			case f.inbox <- ev:
			case <-ctx.Done():
			}
		})

		err := f.connect(ctx, stream)
		if err == nil {
			if everConnected {
				f.emitGaps(ctx)
			}
			everConnected = true
			failures = 0
			f.pump(ctx, stream.Done())
			stream.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("stream disconnected, reconnecting")
			continue
		}

		stream.Close()
		failures++
		f.recordReconnect(ctx)
		if f.opts.MaxRetries > 0 && failures >= f.opts.MaxRetries {
			f.logger.Error("reconnect ceiling reached",
				slog.Int("failures", failures),
				slog.String("error", err.Error()))
			return fmt.Errorf("feed: %w", domain.ErrSubscriptionLost)
		}

		delay := backoff.Delay(failures)
		f.logger.Warn("connect failed, backing off",
			slog.Int("attempt", failures),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (f *Feed) connect(ctx context.Context, stream Stream) error {
	if err := stream.Connect(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	symbols := append([]string(nil), f.symbols...)
	f.mu.Unlock()
	if err := stream.Subscribe(symbols); err != nil {
		return err
	}
	f.logger.Info("stream connected", slog.Int("symbols", len(symbols)))
	return nil
}

// pump forwards inbox events to per-symbol channels until the connection
// drops or ctx is cancelled. It is the single goroutine touching lastTS, so
// the ordering check needs no locking.
func (f *Feed) pump(ctx context.Context, connDone <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-connDone:
			// Drain events the read loop delivered before exiting.
			for {
				select {
				case ev := <-f.inbox:
					f.forward(ev)
				default:
					return
				}
			}
		case ev := <-f.inbox:
			f.forward(ev)
		}
	}
}

// forward applies the per-symbol ordering guarantee and delivers the event.
// Duplicate and out-of-order timestamps are dropped. The send never blocks:
// one saturated consumer must not stall delivery to the other symbols, so an
// event with no buffer space is shed and the next tick carries a fresher
// price anyway.
func (f *Feed) forward(ev domain.MarketEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[ev.Symbol]
	if !ok {
		return
	}
	ts := ev.Timestamp.UnixNano()
	if last, seen := f.lastTS[ev.Symbol]; seen && ts <= last {
		return
	}
	f.lastTS[ev.Symbol] = ts

	select {
	case ch <- ev:
	default:
		f.dropped[ev.Symbol]++
		if n := f.dropped[ev.Symbol]; n == 1 || n%droppedLogEvery == 0 {
			f.logger.Warn("consumer saturated, shedding events",
				slog.String("symbol", ev.Symbol),
				slog.Uint64("dropped", n))
		}
	}
}

// emitGaps notifies every symbol pipeline that the stream was discontinuous.
func (f *Feed) emitGaps(ctx context.Context) {
	now := time.Now().UTC()
	f.mu.Lock()
	defer f.mu.Unlock()
	for symbol, ch := range f.channels {
		select {
		case ch <- domain.GapMarker(symbol, now):
		case <-ctx.Done():
			return
		}
	}
}

func (f *Feed) recordReconnect(ctx context.Context) {
	if f.counter == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if _, err := f.counter.Incr(cctx, "feed:reconnects", time.Hour); err != nil {
		f.logger.Debug("reconnect counter unavailable", slog.String("error", err.Error()))
	}
}
