package collaborator

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vpsie/resource-cluster-autoscaler/pkg/scaler"
)

// HTTPProvisionerClient is the reference production ProvisionerClient,
// forwarding ScaleRequests to the provisioner over HTTP/JSON.
type HTTPProvisionerClient struct {
	transport *httpTransport
}

// NewHTTPProvisionerClient creates an HTTPProvisionerClient against baseURL.
func NewHTTPProvisionerClient(baseURL string, logger *zap.Logger) *HTTPProvisionerClient {
	return &HTTPProvisionerClient{
		transport: newHTTPTransport(TransportOptions{
			Name:       "provisioner",
			BaseURL:    baseURL,
			RateLimit:  rate.Limit(20),
			RateBurst:  5,
			CircuitCfg: DefaultCircuitBreakerConfig(),
			RetryCfg:   DefaultRetryConfig(),
			Logger:     logger,
		}),
	}
}

type scaleRequestWire struct {
	ClusterID      scaler.ClusterID `json:"clusterId"`
	SkuID          scaler.SkuID     `json:"skuId"`
	Region         string           `json:"region,omitempty"`
	EnvType        string           `json:"envType,omitempty"`
	DesireSize     int              `json:"desireSize"`
	IdleInstances  []string         `json:"idleInstances"`
	IdempotencyKey string           `json:"idempotencyKey"`
}

// Scale implements collaborator.ProvisionerClient. It is fire-and-forget at
// this layer: the core does not wait for the provisioner to act and does
// not deduplicate; IdempotencyKey is forwarded so the provisioner can.
func (p *HTTPProvisionerClient) Scale(ctx context.Context, req scaler.ScaleRequest) error {
	idle := make([]string, 0, len(req.IdleInstances))
	for _, id := range req.IdleInstances {
		idle = append(idle, string(id))
	}

	wire := scaleRequestWire{
		ClusterID:      req.ClusterID,
		SkuID:          req.SkuID,
		Region:         req.Region,
		EnvType:        req.EnvType,
		DesireSize:     req.DesireSize,
		IdleInstances:  idle,
		IdempotencyKey: req.IdempotencyKey(),
	}

	if err := p.transport.doJSON(ctx, http.MethodPost, "/v1/scale-requests", wire, nil); err != nil {
		return &scaler.TransientCollaboratorError{Collaborator: "provisioner", Err: err}
	}
	return nil
}
