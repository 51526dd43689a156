package collect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JihoJu/one-bailey/internal/exchange"
)

type fakeBooks struct {
	mu    sync.Mutex
	books []exchange.Orderbook
	err   error
	calls int
}

func (f *fakeBooks) Orderbook(ctx context.Context, symbols []string) ([]exchange.Orderbook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.books, f.err
}

type point struct {
	symbol string
	ts     time.Time
	fields map[string]float64
}

type fakeRecorder struct {
	mu     sync.Mutex
	points []point
}

func (f *fakeRecorder) RecordSeries(symbol string, ts time.Time, fields map[string]float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, point{symbol: symbol, ts: ts, fields: fields})
}

func (f *fakeRecorder) snapshot() []point {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]point, len(f.points))
	copy(out, f.points)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSampleRecordsBookFields(t *testing.T) {
	ts := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	books := &fakeBooks{books: []exchange.Orderbook{{
		Symbol:    "KRW-BTC",
		Timestamp: ts,
		BestBid:   99_000,
		BestAsk:   99_500,
		BidDepth:  3,
		AskDepth:  1,
	}}}
	rec := &fakeRecorder{}
	c := New(books, nil, rec, []string{"KRW-BTC"}, time.Minute, testLogger())

	c.sample(context.Background())

	pts := rec.snapshot()
	require.Len(t, pts, 1)
	assert.Equal(t, "KRW-BTC", pts[0].symbol)
	assert.Equal(t, ts, pts[0].ts)
	assert.InDelta(t, 99_000, pts[0].fields["best_bid"], 1e-9)
	assert.InDelta(t, 99_500, pts[0].fields["best_ask"], 1e-9)
	assert.InDelta(t, 500, pts[0].fields["spread"], 1e-9)
	assert.InDelta(t, 0.75, pts[0].fields["bid_depth_ratio"], 1e-9)
}

func TestSampleIncludesSentiment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fng/", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"value":"54","value_classification":"Neutral","timestamp":"1769900400"}]}`))
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	c := New(&fakeBooks{}, NewFearGreed(srv.URL), rec, nil, time.Minute, testLogger())

	c.sample(context.Background())

	pts := rec.snapshot()
	require.Len(t, pts, 1)
	assert.Equal(t, "MARKET", pts[0].symbol)
	assert.InDelta(t, 54, pts[0].fields["fear_greed"], 1e-9)
	assert.Equal(t, time.Unix(1769900400, 0).UTC(), pts[0].ts)
}

func TestSampleSkipsFailedBook(t *testing.T) {
	books := &fakeBooks{err: errors.New("gateway unreachable")}
	rec := &fakeRecorder{}
	c := New(books, nil, rec, []string{"KRW-BTC"}, time.Minute, testLogger())

	c.sample(context.Background())

	assert.Empty(t, rec.snapshot())
}

func TestRunSamplesOnCadence(t *testing.T) {
	books := &fakeBooks{books: []exchange.Orderbook{{
		Symbol:  "KRW-BTC",
		BestBid: 1,
		BestAsk: 2,
	}}}
	rec := &fakeRecorder{}
	c := New(books, nil, rec, []string{"KRW-BTC"}, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
