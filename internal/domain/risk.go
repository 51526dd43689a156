package domain

// RiskBudget bounds position count and per-trade exposure. It is read-only to
// the risk manager during a session.
type RiskBudget struct {
	MaxPositions int
	RiskPct      float64 // fraction of balance risked per trade, e.g. 0.02
	PerSymbolCap float64 // max notional per symbol in quote currency; 0 = unlimited
	MinOrderUnit float64 // exchange minimum tradable quantity increment
	MinNotional  float64 // exchange minimum order value in quote currency
}

// RejectReason is a machine-readable code for a risk rejection.
type RejectReason string

const (
	RejectHold                 RejectReason = "hold"
	RejectMaxPositions         RejectReason = "max_positions"
	RejectPerSymbolCap         RejectReason = "per_symbol_cap"
	RejectInsufficientBalance  RejectReason = "insufficient_balance"
	RejectInsufficientPosition RejectReason = "insufficient_position"
	RejectBelowMinOrder        RejectReason = "below_min_order"
	RejectPortfolioHalted      RejectReason = "portfolio_halted"
)

// Rejection explains why a signal did not become an order. Rejections are
// reported, never silently dropped.
type Rejection struct {
	Reason RejectReason
	Detail string
}

func (r Rejection) String() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return string(r.Reason) + ": " + r.Detail
}
