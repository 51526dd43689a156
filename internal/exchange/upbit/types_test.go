package upbit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JihoJu/one-bailey/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		state    string
		executed float64
		want     domain.OrderStatus
	}{
		{"wait", 0, domain.StatusSubmitted},
		{"wait", 0.5, domain.StatusPartiallyFilled},
		{"watch", 0, domain.StatusSubmitted},
		{"done", 1, domain.StatusFilled},
		{"cancel", 0, domain.StatusCancelled},
		{"cancel", 0.4, domain.StatusCancelled},
		{"bogus", 0, domain.StatusRejected},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.state, tt.executed),
			"state=%s executed=%v", tt.state, tt.executed)
	}
}

func TestOrderbookResponseToOrderbook(t *testing.T) {
	resp := orderbookResponse{
		Market:      "KRW-BTC",
		TimestampMS: 1769900400000,
		Units: []struct {
			AskPrice float64 `json:"ask_price"`
			BidPrice float64 `json:"bid_price"`
			AskSize  float64 `json:"ask_size"`
			BidSize  float64 `json:"bid_size"`
		}{
			{AskPrice: 99_500, BidPrice: 99_000, AskSize: 0.4, BidSize: 1.1},
			{AskPrice: 99_600, BidPrice: 98_900, AskSize: 0.6, BidSize: 0.9},
		},
	}

	book := resp.toOrderbook()
	assert.Equal(t, "KRW-BTC", book.Symbol)
	assert.Equal(t, int64(1769900400), book.Timestamp.Unix())
	assert.InDelta(t, 99_000, book.BestBid, 1e-9, "best quote comes from the first unit")
	assert.InDelta(t, 99_500, book.BestAsk, 1e-9)
	assert.InDelta(t, 2.0, book.BidDepth, 1e-9, "depth sums across units")
	assert.InDelta(t, 1.0, book.AskDepth, 1e-9)
	assert.InDelta(t, 500, book.Spread(), 1e-9)
}

func TestOrderResponseToState(t *testing.T) {
	resp := orderResponse{
		UUID:            "uuid-1",
		Identifier:      "corr-1",
		State:           "done",
		Price:           "100000",
		Volume:          "0.5",
		ExecutedVolume:  "0.5",
		RemainingVolume: "0",
		Trades: []struct {
			Price  string `json:"price"`
			Volume string `json:"volume"`
			Funds  string `json:"funds"`
		}{
			{Price: "99000", Volume: "0.2", Funds: "19800"},
			{Price: "100000", Volume: "0.3", Funds: "30000"},
		},
	}

	state := resp.toState()
	assert.Equal(t, "uuid-1", state.ExchangeOrderID)
	assert.Equal(t, "corr-1", state.ClientOrderID)
	assert.Equal(t, domain.StatusFilled, state.Status)
	assert.InDelta(t, 0.5, state.ExecutedQuantity, 1e-9)
	assert.InDelta(t, 99600, state.AvgFillPrice, 1e-6, "volume-weighted across trades")
}
