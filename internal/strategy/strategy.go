// Package strategy turns indicator snapshots into trading signals. Each
// strategy is a pure rule over a single snapshot plus pinned configuration;
// disagreement between strategies is settled by a configured precedence
// order.
package strategy

import (
	"fmt"
	"sort"

	"github.com/JihoJu/one-bailey/internal/domain"
)

// Strategy evaluates one indicator snapshot into a signal. Implementations
// must be deterministic, keep no per-invocation state beyond their pinned
// configuration, and return hold rather than an error when a required
// indicator is missing or indeterminate.
type Strategy interface {
	Name() string
	Evaluate(snap domain.IndicatorSnapshot) domain.Signal
}

// Registry maps strategy names to constructors so the active set is chosen
// by configuration at session start.
type Registry struct {
	builders map[string]func(Params) Strategy
}

// Params carries the tunables shared across built-in strategies.
type Params struct {
	ShortPeriod   int
	LongPeriod    int
	RSIOversold   float64
	RSIOverbought float64
}

// NewRegistry returns a registry with all built-in strategies registered.
func NewRegistry() *Registry {
	r := &Registry{builders: make(map[string]func(Params) Strategy)}
	r.Register(NameSMACross, func(p Params) Strategy { return NewSMACross(p) })
	r.Register(NameRSIReversal, func(p Params) Strategy { return NewRSIReversal(p) })
	return r
}

// Register adds a constructor under a name, replacing any previous entry.
func (r *Registry) Register(name string, build func(Params) Strategy) {
	r.builders[name] = build
}

// Build instantiates the named strategies in the given order.
func (r *Registry) Build(names []string, p Params) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		build, ok := r.builders[name]
		if !ok {
			return nil, fmt.Errorf("strategy: unknown strategy %q (known: %v)", name, r.Known())
		}
		out = append(out, build(p))
	}
	return out, nil
}

// Known returns the registered strategy names, sorted.
func (r *Registry) Known() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
