// Package collaborator defines the three external boundaries the scaling
// core depends on and provides reference HTTP-based production
// implementations plus the shared resilience helpers (rate limiting,
// circuit breaking, retry-with-backoff) that wrap them.
package collaborator

import (
	"context"

	"github.com/vpsie/resource-cluster-autoscaler/pkg/scaler"
)

// ClusterStateClient is the cluster-state authority boundary: it tracks
// live agents and their usage, and can name which specific instances of a
// SKU are idle.
type ClusterStateClient interface {
	// GetClusterUsage returns the current per-SKU usage snapshot for a
	// cluster. The response's Usages slice may be empty.
	GetClusterUsage(ctx context.Context, clusterID scaler.ClusterID) (scaler.UsageResponse, error)

	// GetClusterIdleInstances returns up to req.MaxInstanceCount idle
	// instance identifiers for one SKU.
	GetClusterIdleInstances(ctx context.Context, req scaler.IdleInstancesRequest) (scaler.IdleInstancesResponse, error)
}

// ProvisionerClient is the boundary that actually launches or terminates
// instances. Scale is fire-and-forget at this layer: the core does not wait
// for provisioning to complete and does not deduplicate; the provisioner is
// expected to dedupe on ScaleRequest.IdempotencyKey() within a short window.
type ProvisionerClient interface {
	Scale(ctx context.Context, req scaler.ScaleRequest) error
}

// RuleStorageClient is the rule storage provider boundary: the durable
// source of truth for each cluster's ScaleSpec set.
type RuleStorageClient interface {
	// GetScaleRules returns the current rule set for clusterID. The
	// returned map may be empty.
	GetScaleRules(ctx context.Context, clusterID scaler.ClusterID) (map[scaler.SkuID]scaler.ScaleSpec, error)
}
