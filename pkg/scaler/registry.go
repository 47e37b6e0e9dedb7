package scaler

import (
	"sync"

	"github.com/vpsie/resource-cluster-autoscaler/internal/clock"
)

// RuleRegistry is the in-memory mapping from SkuID to live ScaleRule for one
// cluster. Mutation (Replace) happens only inside the owning ScalerLoop's
// serialized context; Snapshot is safe for concurrent external readers and
// returns an immutable copy.
type RuleRegistry struct {
	clock clock.Clock

	mu    sync.RWMutex
	rules map[SkuID]*ScaleRule
}

// NewRuleRegistry creates an empty RuleRegistry.
func NewRuleRegistry(clk clock.Clock) *RuleRegistry {
	return &RuleRegistry{
		clock: clk,
		rules: make(map[SkuID]*ScaleRule),
	}
}

// Get returns the ScaleRule for skuID, or (nil, false) if none is
// registered.
func (r *RuleRegistry) Get(skuID SkuID) (*ScaleRule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[skuID]
	return rule, ok
}

// Len reports how many rules are currently registered.
func (r *RuleRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Snapshot returns an immutable copy of the SkuID -> ScaleSpec mapping
// backing the registry, safe for an external observer to read without
// synchronizing with the owning ScalerLoop.
func (r *RuleRegistry) Snapshot() map[SkuID]ScaleSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[SkuID]ScaleSpec, len(r.rules))
	for id, rule := range r.rules {
		out[id] = rule.Spec()
	}
	return out
}

// All returns a shallow copy of the SkuID -> *ScaleRule map: the map itself
// is a fresh copy safe to range over without holding the registry lock, but
// each *ScaleRule pointer is shared and guards its own state with its own
// mutex. Used by the ScalerLoop to evaluate every rule on a usage tick.
func (r *RuleRegistry) All() map[SkuID]*ScaleRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[SkuID]*ScaleRule, len(r.rules))
	for id, rule := range r.rules {
		out[id] = rule
	}
	return out
}

// Replace performs an atomic whole-set update: for each key present in
// fetched, insert a fresh ScaleRule or update the existing one in place
// (preserving lastActionInstant so cooldown isn't reset by a routine
// refresh); for each key absent from fetched but present in the registry,
// remove it. After Replace, Snapshot().keys() == the keys of fetched.
func (r *RuleRegistry) Replace(fetched map[SkuID]ScaleSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, spec := range fetched {
		if existing, ok := r.rules[id]; ok {
			existing.UpdateSpec(spec)
			continue
		}
		r.rules[id] = NewScaleRule(spec, r.clock)
	}

	for id := range r.rules {
		if _, ok := fetched[id]; !ok {
			delete(r.rules, id)
		}
	}
}
