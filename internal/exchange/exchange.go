// Package exchange defines the boundary to a spot exchange. The live
// implementation lives in the upbit subpackage; the backtest engine provides
// a simulated one. Credentials are always supplied through configuration.
package exchange

import (
	"context"
	"time"

	"github.com/JihoJu/one-bailey/internal/domain"
)

// Ack is the exchange's receipt for an accepted order submission.
type Ack struct {
	ExchangeOrderID string
}

// OrderState is the exchange-authoritative view of one order, used for
// reconciliation after ambiguous submissions.
type OrderState struct {
	ExchangeOrderID  string
	ClientOrderID    string
	Status           domain.OrderStatus
	ExecutedQuantity float64
	AvgFillPrice     float64
}

// Balance is one currency line of the exchange account.
type Balance struct {
	Currency    string
	Balance     float64
	Locked      float64
	AvgBuyPrice float64
}

// Total returns available plus locked funds.
func (b Balance) Total() float64 { return b.Balance + b.Locked }

// Candle is one aggregated historical bar.
type Candle struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Orderbook is a top-of-book summary for one market: the tightest quotes
// and the total resting size on each side.
type Orderbook struct {
	Symbol    string
	Timestamp time.Time
	BestBid   float64
	BestAsk   float64
	BidDepth  float64
	AskDepth  float64
}

// Spread returns the ask-bid distance, zero when either side is empty.
func (o Orderbook) Spread() float64 {
	if o.BestBid <= 0 || o.BestAsk <= 0 {
		return 0
	}
	return o.BestAsk - o.BestBid
}

// OrderbookSource is the market-depth surface. It is separate from Exchange
// because only data collection consumes it.
type OrderbookSource interface {
	// Orderbook returns the current book summary for each symbol.
	Orderbook(ctx context.Context, symbols []string) ([]Orderbook, error)
}

// Exchange is the REST-side trading surface. Every call carries a bounded
// timeout via ctx; a timeout on PlaceOrder means the outcome is ambiguous
// and must be reconciled through GetOrderByClientID, never treated as
// not-submitted.
type Exchange interface {
	// PlaceOrder submits the intent under its correlation id as the
	// client order id.
	PlaceOrder(ctx context.Context, intent domain.OrderIntent) (Ack, error)
	// GetOrderByClientID looks an order up by the client order id it was
	// submitted with. Returns domain.ErrNotFound when the exchange has
	// never seen the id.
	GetOrderByClientID(ctx context.Context, clientOrderID string) (OrderState, error)
	// CancelOrder cancels by exchange order id.
	CancelOrder(ctx context.Context, exchangeOrderID string) error
	// Balances returns the account's currency lines.
	Balances(ctx context.Context) ([]Balance, error)
	// Candles returns up to count bars for symbol ending at the given
	// time, oldest first.
	Candles(ctx context.Context, symbol string, count int, to time.Time) ([]Candle, error)
}
