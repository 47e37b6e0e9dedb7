package scaler

import (
	"sync"
	"time"

	"github.com/vpsie/resource-cluster-autoscaler/internal/clock"
)

// ScaleRule wraps a ScaleSpec with the mutable cooldown state needed to
// evaluate one SKU's usage against it. A ScaleRule is owned exclusively by
// its RuleRegistry entry; Apply is only ever called from the owning
// ScalerLoop's serialized context. The mutex guards spec and
// lastActionInstant, which Apply's cooldown gate, UpdateSpec and the
// read-only accessors (Spec, used by the GetRuleSet snapshot, and
// LastActionInstant) may touch from different goroutines.
type ScaleRule struct {
	spec  ScaleSpec
	clock clock.Clock

	mu                sync.Mutex
	lastActionInstant time.Time // zero value behaves as -infinity
}

// NewScaleRule creates a fresh ScaleRule with no prior action recorded.
func NewScaleRule(spec ScaleSpec, clk clock.Clock) *ScaleRule {
	return &ScaleRule{spec: spec, clock: clk}
}

// Spec returns the rule's current ScaleSpec.
func (r *ScaleRule) Spec() ScaleSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spec
}

// UpdateSpec replaces the rule's ScaleSpec in place, preserving
// lastActionInstant so an in-flight cooldown is not reset by a rule refresh
// that simply reapplies an unchanged (or updated) spec.
func (r *ScaleRule) UpdateSpec(spec ScaleSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spec = spec
}

// LastActionInstant returns the last time this rule's cooldown gate was
// charged, for observability and tests.
func (r *ScaleRule) LastActionInstant() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActionInstant
}

// Apply evaluates usage against this rule's bounds and returns the resulting
// decision, or (zero value, false) when no action is warranted.
//
// Cooldown is charged on every evaluation that passes the gate, regardless
// of whether a decision is produced below (spec open question: this is
// intentional throttling of a chattier usage feed, not a bug we silently
// work around). All time reads for one call use a single clock.Now()
// snapshot so the decision is internally consistent.
func (r *ScaleRule) Apply(usage UsageByMachineDefinition) (ScaleDecision, bool) {
	now := r.clock.Now()

	r.mu.Lock()
	spec := r.spec
	if !r.lastActionInstant.IsZero() {
		gateUntil := r.lastActionInstant.Add(time.Duration(spec.CoolDownSecs) * time.Second)
		if now.Before(gateUntil) {
			r.mu.Unlock()
			return ScaleDecision{}, false
		}
	}
	r.lastActionInstant = now
	r.mu.Unlock()

	switch {
	case usage.IdleCount > spec.MaxIdleToKeep:
		step := usage.IdleCount - spec.MaxIdleToKeep
		newSize := usage.TotalCount - step
		if newSize < spec.MinSize {
			newSize = spec.MinSize
		}
		t := ScaleDown
		if newSize == usage.TotalCount {
			t = NoOpReachMin
		}
		return ScaleDecision{
			SkuID:      spec.SkuID,
			ClusterID:  spec.ClusterID,
			DesireSize: newSize,
			MinSize:    spec.MinSize,
			MaxSize:    spec.MaxSize,
			Type:       t,
		}, true

	case usage.IdleCount < spec.MinIdleToKeep:
		step := spec.MinIdleToKeep - usage.IdleCount
		newSize := usage.TotalCount + step
		if newSize > spec.MaxSize {
			newSize = spec.MaxSize
		}
		t := ScaleUp
		if newSize == usage.TotalCount {
			t = NoOpReachMax
		}
		return ScaleDecision{
			SkuID:      spec.SkuID,
			ClusterID:  spec.ClusterID,
			DesireSize: newSize,
			MinSize:    spec.MinSize,
			MaxSize:    spec.MaxSize,
			Type:       t,
		}, true

	default:
		return ScaleDecision{}, false
	}
}
