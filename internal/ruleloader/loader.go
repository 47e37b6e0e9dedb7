// Package ruleloader pulls the current rule set for one cluster from the
// rule storage collaborator, validates each entry, and hands the survivors
// back to the caller (the ScalerLoop) to install into its RuleRegistry.
package ruleloader

import (
	"context"

	"go.uber.org/zap"

	"github.com/vpsie/resource-cluster-autoscaler/internal/collaborator"
	"github.com/vpsie/resource-cluster-autoscaler/pkg/scaler"
)

// Loader fetches and validates a cluster's scale rule set.
type Loader struct {
	storage collaborator.RuleStorageClient
	logger  *zap.Logger
}

// New creates a Loader backed by storage.
func New(storage collaborator.RuleStorageClient, logger *zap.Logger) *Loader {
	return &Loader{storage: storage, logger: logger}
}

// Fetch pulls the current rule set for clusterID and drops any entry that
// fails ScaleSpec.Validate(), logging a warning per dropped entry: a
// malformed spec is dropped, not fatal, and other rules are unaffected. A
// storage error is returned unchanged; the caller (ScalerLoop) is
// responsible for logging it and retaining its existing registry contents.
func (l *Loader) Fetch(ctx context.Context, clusterID scaler.ClusterID) (map[scaler.SkuID]scaler.ScaleSpec, error) {
	fetched, err := l.storage.GetScaleRules(ctx, clusterID)
	if err != nil {
		return nil, err
	}

	valid := make(map[scaler.SkuID]scaler.ScaleSpec, len(fetched))
	for skuID, spec := range fetched {
		if err := spec.Validate(); err != nil {
			if l.logger != nil {
				l.logger.Warn("dropping malformed scale rule",
					zap.String("clusterId", string(clusterID)),
					zap.String("skuId", string(skuID)),
					zap.Error(err))
			}
			continue
		}
		valid[skuID] = spec
	}

	return valid, nil
}
