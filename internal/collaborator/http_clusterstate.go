package collaborator

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vpsie/resource-cluster-autoscaler/pkg/scaler"
)

// HTTPClusterStateClient is the reference production ClusterStateClient,
// talking to the cluster-state authority over HTTP/JSON.
type HTTPClusterStateClient struct {
	transport *httpTransport
}

// NewHTTPClusterStateClient creates an HTTPClusterStateClient against
// baseURL (e.g. "https://cluster-state.internal").
func NewHTTPClusterStateClient(baseURL string, logger *zap.Logger) *HTTPClusterStateClient {
	return &HTTPClusterStateClient{
		transport: newHTTPTransport(TransportOptions{
			Name:       "cluster-state-authority",
			BaseURL:    baseURL,
			RateLimit:  rate.Limit(50),
			RateBurst:  10,
			CircuitCfg: DefaultCircuitBreakerConfig(),
			RetryCfg:   DefaultRetryConfig(),
			Logger:     logger,
		}),
	}
}

type usageWire struct {
	ClusterID scaler.ClusterID `json:"clusterId"`
	Usages    []usageEntryWire `json:"usages"`
}

type usageEntryWire struct {
	DefinitionID scaler.SkuID `json:"definitionId"`
	TotalCount   int          `json:"totalCount"`
	IdleCount    int          `json:"idleCount"`
}

// GetClusterUsage implements collaborator.ClusterStateClient.
func (c *HTTPClusterStateClient) GetClusterUsage(ctx context.Context, clusterID scaler.ClusterID) (scaler.UsageResponse, error) {
	var wire usageWire
	path := fmt.Sprintf("/v1/clusters/%s/usage", clusterID)
	if err := c.transport.doJSON(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return scaler.UsageResponse{}, &scaler.TransientCollaboratorError{Collaborator: "cluster-state-authority", Err: err}
	}

	out := scaler.UsageResponse{ClusterID: wire.ClusterID, Usages: make([]scaler.UsageByMachineDefinition, 0, len(wire.Usages))}
	for _, u := range wire.Usages {
		out.Usages = append(out.Usages, scaler.UsageByMachineDefinition{
			Def:        scaler.MachineDefinition{DefinitionID: u.DefinitionID},
			TotalCount: u.TotalCount,
			IdleCount:  u.IdleCount,
		})
	}
	return out, nil
}

type idleInstancesRequestWire struct {
	ClusterID        scaler.ClusterID `json:"clusterId"`
	SkuID            scaler.SkuID     `json:"skuId"`
	DesireSize       int              `json:"desireSize"`
	MaxInstanceCount int              `json:"maxInstanceCount"`
}

type idleInstancesResponseWire struct {
	SkuID       scaler.SkuID `json:"skuId"`
	DesireSize  int          `json:"desireSize"`
	InstanceIDs []string     `json:"instanceIds"`
}

// GetClusterIdleInstances implements collaborator.ClusterStateClient.
func (c *HTTPClusterStateClient) GetClusterIdleInstances(ctx context.Context, req scaler.IdleInstancesRequest) (scaler.IdleInstancesResponse, error) {
	wireReq := idleInstancesRequestWire{
		ClusterID:        req.ClusterID,
		SkuID:            req.SkuID,
		DesireSize:       req.DesireSize,
		MaxInstanceCount: req.MaxInstanceCount,
	}

	var wireResp idleInstancesResponseWire
	path := fmt.Sprintf("/v1/clusters/%s/idle-instances", req.ClusterID)
	if err := c.transport.doJSON(ctx, http.MethodPost, path, wireReq, &wireResp); err != nil {
		return scaler.IdleInstancesResponse{}, &scaler.TransientCollaboratorError{Collaborator: "cluster-state-authority", Err: err}
	}

	instances := make([]scaler.InstanceID, 0, len(wireResp.InstanceIDs))
	for _, id := range wireResp.InstanceIDs {
		instances = append(instances, scaler.InstanceID(id))
	}

	return scaler.IdleInstancesResponse{
		SkuID:      wireResp.SkuID,
		DesireSize: wireResp.DesireSize,
		Instances:  instances,
	}, nil
}
