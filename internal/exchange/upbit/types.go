package upbit

import (
	"strconv"
	"time"

	"github.com/JihoJu/one-bailey/internal/domain"
	"github.com/JihoJu/one-bailey/internal/exchange"
)

// placeOrderRequest is the body of POST /v1/orders. The identifier carries
// the correlation id so the order can be recovered after an ambiguous
// submission.
type placeOrderRequest struct {
	Market     string `json:"market"`
	Side       string `json:"side"`
	Volume     string `json:"volume,omitempty"`
	Price      string `json:"price,omitempty"`
	OrdType    string `json:"ord_type"`
	Identifier string `json:"identifier,omitempty"`
}

// orderResponse is the shape shared by POST /v1/orders, GET /v1/order and
// DELETE /v1/order. Numeric fields arrive as strings.
type orderResponse struct {
	UUID            string `json:"uuid"`
	Market          string `json:"market"`
	Side            string `json:"side"`
	OrdType         string `json:"ord_type"`
	State           string `json:"state"`
	Price           string `json:"price"`
	Volume          string `json:"volume"`
	RemainingVolume string `json:"remaining_volume"`
	ExecutedVolume  string `json:"executed_volume"`
	PaidFee         string `json:"paid_fee"`
	Identifier      string `json:"identifier"`
	TradesCount     int    `json:"trades_count"`
	Trades          []struct {
		Price  string `json:"price"`
		Volume string `json:"volume"`
		Funds  string `json:"funds"`
	} `json:"trades"`
}

// accountResponse is one line of GET /v1/accounts.
type accountResponse struct {
	Currency    string `json:"currency"`
	Balance     string `json:"balance"`
	Locked      string `json:"locked"`
	AvgBuyPrice string `json:"avg_buy_price"`
}

// candleResponse is one bar of GET /v1/candles/minutes/{unit}.
type candleResponse struct {
	Market        string  `json:"market"`
	CandleDateUTC string  `json:"candle_date_time_utc"`
	OpeningPrice  float64 `json:"opening_price"`
	HighPrice     float64 `json:"high_price"`
	LowPrice      float64 `json:"low_price"`
	TradePrice    float64 `json:"trade_price"`
	CandleVolume  float64 `json:"candle_acc_trade_volume"`
	TimestampMS   int64   `json:"timestamp"`
}

// orderbookResponse is one market of GET /v1/orderbook. Units arrive best
// quote first.
type orderbookResponse struct {
	Market      string `json:"market"`
	TimestampMS int64  `json:"timestamp"`
	Units       []struct {
		AskPrice float64 `json:"ask_price"`
		BidPrice float64 `json:"bid_price"`
		AskSize  float64 `json:"ask_size"`
		BidSize  float64 `json:"bid_size"`
	} `json:"orderbook_units"`
}

// tickerMessage is a websocket ticker frame.
type tickerMessage struct {
	Type           string  `json:"type"`
	Code           string  `json:"code"`
	TradePrice     float64 `json:"trade_price"`
	TradeVolume    float64 `json:"trade_volume"`
	TradeTimestamp int64   `json:"trade_timestamp"`
	StreamType     string  `json:"stream_type"`
}

// sideFor maps the domain order side onto Upbit's bid/ask vocabulary.
func sideFor(side domain.OrderSide) string {
	if side == domain.SideBuy {
		return "bid"
	}
	return "ask"
}

// statusFor maps an Upbit order state plus execution progress onto the
// domain lifecycle.
func statusFor(state string, executed float64) domain.OrderStatus {
	switch state {
	case "wait", "watch":
		if executed > 0 {
			return domain.StatusPartiallyFilled
		}
		return domain.StatusSubmitted
	case "done":
		return domain.StatusFilled
	case "cancel":
		// Terminal even when partially executed; the executed part is
		// reported through ExecutedQuantity and settles as a fill.
		return domain.StatusCancelled
	default:
		return domain.StatusRejected
	}
}

func (r orderResponse) toState() exchange.OrderState {
	executed := parseFloat(r.ExecutedVolume)

	state := exchange.OrderState{
		ExchangeOrderID:  r.UUID,
		ClientOrderID:    r.Identifier,
		Status:           statusFor(r.State, executed),
		ExecutedQuantity: executed,
	}
	if executed > 0 {
		var funds float64
		for _, t := range r.Trades {
			funds += parseFloat(t.Funds)
		}
		if funds > 0 {
			state.AvgFillPrice = funds / executed
		} else {
			state.AvgFillPrice = parseFloat(r.Price)
		}
	}
	return state
}

func (a accountResponse) toBalance() exchange.Balance {
	return exchange.Balance{
		Currency:    a.Currency,
		Balance:     parseFloat(a.Balance),
		Locked:      parseFloat(a.Locked),
		AvgBuyPrice: parseFloat(a.AvgBuyPrice),
	}
}

func (c candleResponse) toCandle() exchange.Candle {
	ts, err := time.Parse("2006-01-02T15:04:05", c.CandleDateUTC)
	if err != nil {
		ts = time.UnixMilli(c.TimestampMS).UTC()
	}
	return exchange.Candle{
		Symbol:    c.Market,
		Timestamp: ts.UTC(),
		Open:      c.OpeningPrice,
		High:      c.HighPrice,
		Low:       c.LowPrice,
		Close:     c.TradePrice,
		Volume:    c.CandleVolume,
	}
}

func (o orderbookResponse) toOrderbook() exchange.Orderbook {
	book := exchange.Orderbook{
		Symbol:    o.Market,
		Timestamp: time.UnixMilli(o.TimestampMS).UTC(),
	}
	for i, u := range o.Units {
		if i == 0 {
			book.BestBid = u.BidPrice
			book.BestAsk = u.AskPrice
		}
		book.BidDepth += u.BidSize
		book.AskDepth += u.AskSize
	}
	return book
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
