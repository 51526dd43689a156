package persist

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

// flakyTradeStore fails the first failures inserts, then accepts.
type flakyTradeStore struct {
	mu       sync.Mutex
	failures int
	inserted []domain.Order
}

func (s *flakyTradeStore) Insert(ctx context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("store down")
	}
	s.inserted = append(s.inserted, o)
	return nil
}

func (s *flakyTradeStore) GetByCorrelationID(ctx context.Context, corr string) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotFound
}

func (s *flakyTradeStore) ListBySymbol(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Order, error) {
	return nil, nil
}

func (s *flakyTradeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserted)
}

type memSeriesStore struct {
	mu     sync.Mutex
	points []domain.SeriesPoint
}

func (s *memSeriesStore) InsertBatch(ctx context.Context, pts []domain.SeriesPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, pts...)
	return nil
}

func (s *memSeriesStore) Range(ctx context.Context, symbol, field string, since, until time.Time) ([]domain.SeriesPoint, error) {
	return nil, nil
}

func quickRetry(c *Coordinator) {
	c.retryCfg.MaxAttempts = 2
	c.retryCfg.InitialDelay = time.Millisecond
	c.retryCfg.MaxDelay = 2 * time.Millisecond
}

func testOrder() domain.Order {
	return domain.Order{
		ID:            "o1",
		CorrelationID: "corr-1",
		Symbol:        "KRW-BTC",
		Side:          domain.SideBuy,
		Quantity:      0.1,
		Price:         100_000,
		Status:        domain.StatusFilled,
	}
}

func TestRecordTradeWritesThrough(t *testing.T) {
	trades := &flakyTradeStore{}
	c := New(Stores{Trades: trades}, nil, testLogger())
	quickRetry(c)

	c.RecordTrade(testOrder())
	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, 1, trades.count())
}

func TestFailedWriteParksAndRecovers(t *testing.T) {
	// Two failures exhaust the two retry attempts, so the write parks in
	// the backlog; the store recovers before the backlog drain.
	trades := &flakyTradeStore{failures: 2}
	var failed []string
	c := New(Stores{Trades: trades}, func(label string) { failed = append(failed, label) }, testLogger())
	quickRetry(c)

	c.RecordTrade(testOrder())

	ctx := context.Background()
	c.execute(ctx, <-c.queue)
	assert.Equal(t, []string{"trade"}, failed, "exhausted retries surface as a durability warning")
	assert.Equal(t, 0, trades.count())

	c.drainBacklog(ctx)
	assert.Equal(t, 1, trades.count(), "backlog drains once the store recovers")
}

func TestEnqueueNeverBlocks(t *testing.T) {
	trades := &flakyTradeStore{}
	c := New(Stores{Trades: trades}, nil, testLogger())
	quickRetry(c)

	// No worker running: fill the queue past its depth and spill to backlog.
	done := make(chan struct{})
	go func() {
		for i := 0; i < queueDepth+10; i++ {
			c.RecordTrade(testOrder())
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked the producer")
	}

	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, queueDepth+10, trades.count())
}

func TestRecordSeriesBatchesFields(t *testing.T) {
	series := &memSeriesStore{}
	c := New(Stores{Series: series}, nil, testLogger())
	quickRetry(c)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.RecordSeries("KRW-BTC", ts, map[string]float64{
		domain.IndicatorLastPrice: 100_000,
		domain.IndicatorRSI:       55,
	})
	require.NoError(t, c.Flush(context.Background()))

	require.Len(t, series.points, 2)
	for _, p := range series.points {
		assert.Equal(t, "KRW-BTC", p.Symbol)
		assert.Equal(t, ts, p.Timestamp)
	}
}

func TestRunProcessesQueue(t *testing.T) {
	trades := &flakyTradeStore{}
	c := New(Stores{Trades: trades}, nil, testLogger())
	quickRetry(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	c.RecordTrade(testOrder())
	assert.Eventually(t, func() bool { return trades.count() == 1 },
		2*time.Second, 5*time.Millisecond)
}
