package strategy

import (
	"github.com/JihoJu/one-bailey/internal/domain"
)

// Resolver combines the signals of several strategies into one. A configured
// precedence list settles disagreement deterministically: the highest-ranked
// strategy emitting a non-hold signal wins. Strategies absent from the
// precedence list share the lowest rank, and a disagreement among them
// resolves to hold.
type Resolver struct {
	strategies []Strategy
	rank       map[string]int
}

// NewResolver builds a resolver over the given strategies with the given
// precedence order (strategy names, highest priority first).
func NewResolver(strategies []Strategy, precedence []string) *Resolver {
	rank := make(map[string]int, len(precedence))
	for i, name := range precedence {
		rank[name] = i
	}
	return &Resolver{strategies: strategies, rank: rank}
}

// Resolve evaluates every strategy against the snapshot and returns the
// combined signal. With no non-hold votes it returns hold.
func (r *Resolver) Resolve(snap domain.IndicatorSnapshot) domain.Signal {
	unranked := len(r.rank)
	best := domain.Hold(snap.Symbol, snap.Timestamp, "resolver")
	bestRank := unranked + 1
	conflict := false

	for _, s := range r.strategies {
		sig := s.Evaluate(snap)
		if sig.Direction == domain.SignalHold {
			continue
		}
		rank, ok := r.rank[s.Name()]
		if !ok {
			rank = unranked
		}
		switch {
		case rank < bestRank:
			best = sig
			bestRank = rank
			conflict = false
		case rank == bestRank && sig.Direction != best.Direction:
			conflict = true
		}
	}

	if conflict {
		return domain.Hold(snap.Symbol, snap.Timestamp, "resolver")
	}
	return best
}
