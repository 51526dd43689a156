// Package risk is the sole gate between signals and orders. Every signal
// passes through Evaluate, which either sizes an admissible order intent or
// rejects with a specific reason code.
package risk

import (
	"log/slog"
	"math"

	"github.com/JihoJu/one-bailey/internal/domain"
)

// Manager applies a session-pinned risk budget to incoming signals. The
// budget is read-only for the session lifetime, so Manager is safe for
// concurrent use by per-symbol pipelines.
type Manager struct {
	budget domain.RiskBudget
	logger *slog.Logger
}

// New creates a Manager with the given budget.
func New(budget domain.RiskBudget, logger *slog.Logger) *Manager {
	return &Manager{
		budget: budget,
		logger: logger.With(slog.String("component", "risk")),
	}
}

// Budget returns the session budget.
func (m *Manager) Budget() domain.RiskBudget { return m.budget }

// Evaluate turns a signal into an order intent, or rejects it. The snapshot
// supplies the reference price and the volatility-derived stop distance used
// for sizing. Checks run in a fixed order so rejection reasons are
// deterministic:
//
//  1. portfolio halted
//  2. hold signal
//  3. new-entry buy against a full position book
//  4. sizing below the exchange minimum
//  5. per-symbol notional cap (buys)
//  6. balance / held-position sufficiency
func (m *Manager) Evaluate(sig domain.Signal, snap domain.IndicatorSnapshot, pf domain.Portfolio) (domain.OrderIntent, *domain.Rejection) {
	if pf.Halted {
		return m.reject(sig, domain.RejectPortfolioHalted, "portfolio flagged inconsistent")
	}
	if sig.Direction == domain.SignalHold {
		return m.reject(sig, domain.RejectHold, "")
	}

	price, ok := snap.Value(domain.IndicatorLastPrice)
	if !ok || price <= 0 {
		return m.reject(sig, domain.RejectHold, "no reference price in snapshot")
	}

	pos := pf.Position(sig.Symbol)

	switch sig.Direction {
	case domain.SignalBuy:
		if pos.Quantity == 0 && pf.OpenPositions() >= m.budget.MaxPositions {
			return m.reject(sig, domain.RejectMaxPositions, "open position limit reached")
		}

		qty := m.size(pf.Balance, price, snap)
		notional := qty * price
		if qty <= 0 || notional < m.budget.MinNotional {
			return m.reject(sig, domain.RejectBelowMinOrder, "sized below exchange minimum")
		}
		// A non-positive cap means uncapped.
		if m.budget.PerSymbolCap > 0 && pos.Notional(price)+notional > m.budget.PerSymbolCap {
			return m.reject(sig, domain.RejectPerSymbolCap, "per-symbol notional cap exceeded")
		}
		if notional > pf.Balance {
			return m.reject(sig, domain.RejectInsufficientBalance, "order notional exceeds free balance")
		}
		return m.intent(sig, domain.SideBuy, qty, price), nil

	case domain.SignalSell:
		if pos.Quantity <= 0 {
			return m.reject(sig, domain.RejectInsufficientPosition, "no position to sell")
		}
		qty := math.Min(m.size(pf.Balance, price, snap), pos.Quantity)
		qty = m.floorToUnit(qty)
		if qty <= 0 || qty*price < m.budget.MinNotional {
			// A dust position below the minimum order is liquidated whole.
			qty = m.floorToUnit(pos.Quantity)
			if qty <= 0 || qty*price < m.budget.MinNotional {
				return m.reject(sig, domain.RejectBelowMinOrder, "position below exchange minimum")
			}
		}
		return m.intent(sig, domain.SideSell, qty, price), nil
	}

	return m.reject(sig, domain.RejectHold, "unknown direction")
}

// size computes the order quantity. With a usable stop distance the position
// risks riskPct of balance against the stop; without one it falls back to a
// fixed fraction of balance. Either way the resulting notional never exceeds
// riskPct of balance, and quantity is floored to the minimum tradable unit.
func (m *Manager) size(balance, price float64, snap domain.IndicatorSnapshot) float64 {
	riskCapital := m.budget.RiskPct * balance

	qty := riskCapital / price
	if stop, ok := snap.Value(domain.IndicatorStdDev); ok && stop > 0 && stop < price {
		stopQty := riskCapital / stop
		if stopQty < qty {
			qty = stopQty
		}
	}
	return m.floorToUnit(qty)
}

func (m *Manager) floorToUnit(qty float64) float64 {
	unit := m.budget.MinOrderUnit
	if unit <= 0 {
		return qty
	}
	return math.Floor(qty/unit) * unit
}

func (m *Manager) intent(sig domain.Signal, side domain.OrderSide, qty, price float64) domain.OrderIntent {
	return domain.OrderIntent{
		Symbol:        sig.Symbol,
		Side:          side,
		Quantity:      qty,
		Price:         price,
		CorrelationID: domain.CorrelationID(sig.Symbol, sig.Timestamp, sig.Strategy),
		Strategy:      sig.Strategy,
		CreatedAt:     sig.Timestamp,
	}
}

func (m *Manager) reject(sig domain.Signal, reason domain.RejectReason, detail string) (domain.OrderIntent, *domain.Rejection) {
	if reason != domain.RejectHold {
		m.logger.Warn("signal rejected",
			slog.String("symbol", sig.Symbol),
			slog.String("direction", string(sig.Direction)),
			slog.String("strategy", sig.Strategy),
			slog.String("reason", string(reason)),
			slog.String("detail", detail))
	}
	return domain.OrderIntent{}, &domain.Rejection{Reason: reason, Detail: detail}
}
