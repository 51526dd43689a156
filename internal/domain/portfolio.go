package domain

import "time"

// Position is the local holding for one symbol. Quantity is never negative
// in the spot long-only model; sells that would exceed the held quantity are
// rejected by the risk manager before submission.
type Position struct {
	Symbol        string
	Quantity      float64
	AvgEntryPrice float64
}

// Notional returns the position value at the given reference price.
func (p Position) Notional(price float64) float64 {
	return p.Quantity * price
}

// Portfolio is the authoritative local view of holdings and balance for one
// trading session. It is mutated only by the portfolio tracker's single
// writer on confirmed fills.
type Portfolio struct {
	Balance     float64
	Positions   map[string]Position
	RealizedPnL float64
	Timestamp   time.Time

	// Halted is set when reconciliation against the exchange diverges beyond
	// tolerance. New order submission stops until it clears.
	Halted bool
}

// Clone returns a deep copy safe for read-only consumers.
func (p Portfolio) Clone() Portfolio {
	out := p
	out.Positions = make(map[string]Position, len(p.Positions))
	for sym, pos := range p.Positions {
		out.Positions[sym] = pos
	}
	return out
}

// OpenPositions returns the number of non-zero positions.
func (p Portfolio) OpenPositions() int {
	n := 0
	for _, pos := range p.Positions {
		if pos.Quantity > 0 {
			n++
		}
	}
	return n
}

// Position returns the position for symbol, zero-valued when absent.
func (p Portfolio) Position(symbol string) Position {
	if pos, ok := p.Positions[symbol]; ok {
		return pos
	}
	return Position{Symbol: symbol}
}
