package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderStatus tracks the order lifecycle. Filled, cancelled and rejected are
// terminal; no transition leaves a terminal state.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusSubmitted       OrderStatus = "submitted"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRejected        OrderStatus = "rejected"
)

// Terminal reports whether no further transitions can occur from s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// OrderIntent is a risk-approved request to trade. CorrelationID is a
// deterministic idempotency key derived from symbol, signal timestamp and
// strategy, so a retried submission never creates a duplicate order.
type OrderIntent struct {
	Symbol        string
	Side          OrderSide
	Quantity      float64
	Price         float64 // limit price; ignored when Market is true
	Market        bool
	CorrelationID string
	Strategy      string
	CreatedAt     time.Time
}

// Notional returns the approximate value of the intent in quote currency.
func (i OrderIntent) Notional() float64 {
	return i.Quantity * i.Price
}

// CorrelationID derives the deterministic idempotency key for a signal.
// The same signal always maps to the same key regardless of retries.
func CorrelationID(symbol string, signalTS time.Time, strategy string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", symbol, signalTS.UnixNano(), strategy)))
	return hex.EncodeToString(sum[:16])
}

// Order is the execution engine's view of a submitted order. The execution
// engine is its sole owner; the portfolio tracker only reads terminal
// transitions.
type Order struct {
	ID              string
	CorrelationID   string
	Symbol          string
	Side            OrderSide
	Quantity        float64
	Price           float64
	Status          OrderStatus
	ExchangeOrderID string // empty until the exchange acknowledges
	FilledQuantity  float64
	AvgFillPrice    float64
	Strategy        string
	Reason          string // exchange-side reject/cancel reason, if any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Fill is a terminal fill event applied to the portfolio. Quantity and price
// reflect the total filled amount, volume-weighted.
type Fill struct {
	OrderID       string
	CorrelationID string
	Symbol        string
	Side          OrderSide
	Quantity      float64
	Price         float64
	Timestamp     time.Time
}
