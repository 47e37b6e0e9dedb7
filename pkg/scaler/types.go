// Package scaler implements the per-SKU scaling decision engine: the
// ScaleRule that turns a usage snapshot into a scale decision, and the
// RuleRegistry that holds the live rule set for a cluster.
package scaler

import "fmt"

// ClusterID identifies one cluster. Opaque and immutable for the life of a
// ScalerLoop instance.
type ClusterID string

// SkuID identifies one machine-definition class within a cluster. Used as
// the rule-lookup key in a RuleRegistry.
type SkuID string

// InstanceID identifies one worker-execution agent instance.
type InstanceID string

// MachineDefinition is an opaque descriptor carrying at minimum a
// DefinitionID equal to some SkuID.
type MachineDefinition struct {
	DefinitionID SkuID
}

// Empty reports whether this MachineDefinition carries no usable SKU
// identity. A usage entry whose MachineDefinition is Empty is legacy and
// must be ignored by the caller (logged at debug, not an error).
func (m MachineDefinition) Empty() bool {
	return m.DefinitionID == ""
}

// UsageByMachineDefinition is a single SKU's usage snapshot within a
// cluster, as reported by the cluster-state authority.
type UsageByMachineDefinition struct {
	Def        MachineDefinition
	TotalCount int
	IdleCount  int
}

// UsageResponse is the cluster-state authority's reply to GetClusterUsage.
// Entry order is not semantically meaningful.
type UsageResponse struct {
	ClusterID ClusterID
	Usages    []UsageByMachineDefinition
}

// ScaleSpec is the durable, storage-provided configuration for one SKU's
// scaling rule.
type ScaleSpec struct {
	ClusterID     ClusterID
	SkuID         SkuID
	MinSize       int
	MaxSize       int
	MinIdleToKeep int
	MaxIdleToKeep int
	CoolDownSecs  int
}

// Validate checks the ScaleSpec invariants from the data model. A malformed
// spec must be dropped at ingest time with a warning, not treated as fatal.
func (s ScaleSpec) Validate() error {
	if s.MinSize < 0 {
		return fmt.Errorf("minSize must be >= 0, got %d", s.MinSize)
	}
	if s.MinSize > s.MaxSize {
		return fmt.Errorf("minSize (%d) must be <= maxSize (%d)", s.MinSize, s.MaxSize)
	}
	if s.MinIdleToKeep < 0 {
		return fmt.Errorf("minIdleToKeep must be >= 0, got %d", s.MinIdleToKeep)
	}
	if s.MinIdleToKeep > s.MaxIdleToKeep {
		return fmt.Errorf("minIdleToKeep (%d) must be <= maxIdleToKeep (%d)", s.MinIdleToKeep, s.MaxIdleToKeep)
	}
	if s.CoolDownSecs < 0 {
		return fmt.Errorf("coolDownSecs must be >= 0, got %d", s.CoolDownSecs)
	}
	return nil
}

// ScaleType classifies the outcome of a ScaleRule evaluation.
type ScaleType string

const (
	ScaleUp      ScaleType = "ScaleUp"
	ScaleDown    ScaleType = "ScaleDown"
	NoOpReachMax ScaleType = "NoOpReachMax"
	NoOpReachMin ScaleType = "NoOpReachMin"
)

// ScaleDecision is the outcome of evaluating a ScaleRule against a usage
// snapshot. DesireSize is the target total instance count after the action.
type ScaleDecision struct {
	SkuID      SkuID
	ClusterID  ClusterID
	DesireSize int
	MinSize    int
	MaxSize    int
	Type       ScaleType
}

// Actionable reports whether this decision should be forwarded to the
// provisioner. NoOp* decisions only advance counters.
func (d ScaleDecision) Actionable() bool {
	return d.Type == ScaleUp || d.Type == ScaleDown
}

// IdleInstancesRequest asks the cluster-state authority which specific
// instances of a SKU are idle, up to MaxInstanceCount.
type IdleInstancesRequest struct {
	ClusterID        ClusterID
	SkuID            SkuID
	Def              MachineDefinition
	DesireSize       int
	MaxInstanceCount int
}

// IdleInstancesResponse is the cluster-state authority's reply to
// GetClusterIdleInstances. len(Instances) <= the requested cap.
type IdleInstancesResponse struct {
	SkuID      SkuID
	DesireSize int
	Instances  []InstanceID
}

// ScaleRequest is the envelope forwarded to the provisioner.
// IdleInstances is empty for ScaleUp and non-empty for ScaleDown.
type ScaleRequest struct {
	ClusterID     ClusterID
	SkuID         SkuID
	Region        string
	EnvType       string
	DesireSize    int
	IdleInstances []InstanceID
}

// IdempotencyKey derives the provisioner's dedup key for this request:
// clusterId-region-envType-skuId-desireSize, missing optional fields
// rendered as empty string.
func (r ScaleRequest) IdempotencyKey() string {
	return fmt.Sprintf("%s-%s-%s-%s-%d", r.ClusterID, r.Region, r.EnvType, r.SkuID, r.DesireSize)
}
