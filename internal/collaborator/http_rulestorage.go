package collaborator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/vpsie/resource-cluster-autoscaler/pkg/scaler"
)

// HTTPRuleStorageClient is the reference production RuleStorageClient,
// fetching a cluster's rule set as a YAML document (the rule storage
// provider in the wider platform is a config/document store, not a
// database, so this is the natural wire format for GetScaleRules).
type HTTPRuleStorageClient struct {
	transport *httpTransport
}

// NewHTTPRuleStorageClient creates an HTTPRuleStorageClient against baseURL.
func NewHTTPRuleStorageClient(baseURL string, logger *zap.Logger) *HTTPRuleStorageClient {
	return &HTTPRuleStorageClient{
		transport: newHTTPTransport(TransportOptions{
			Name:       "rule-storage",
			BaseURL:    baseURL,
			RateLimit:  rate.Limit(5),
			RateBurst:  2,
			CircuitCfg: DefaultCircuitBreakerConfig(),
			RetryCfg:   DefaultRetryConfig(),
			Logger:     logger,
			RequestTO:  10 * time.Second,
		}),
	}
}

type scaleSpecWire struct {
	SkuID         scaler.SkuID `yaml:"skuId"`
	MinSize       int          `yaml:"minSize"`
	MaxSize       int          `yaml:"maxSize"`
	MinIdleToKeep int          `yaml:"minIdleToKeep"`
	MaxIdleToKeep int          `yaml:"maxIdleToKeep"`
	CoolDownSecs  int          `yaml:"coolDownSecs"`
}

type scaleRulesWire struct {
	ScaleRules []scaleSpecWire `yaml:"scaleRules"`
}

// GetScaleRules implements collaborator.RuleStorageClient. Because the
// storage provider replies with a body, not JSON-over-GET-with-headers, the
// response is read as raw bytes and decoded as YAML independent of the
// transport's default JSON codec.
func (c *HTTPRuleStorageClient) GetScaleRules(ctx context.Context, clusterID scaler.ClusterID) (map[scaler.SkuID]scaler.ScaleSpec, error) {
	var raw []byte
	path := fmt.Sprintf("/v1/clusters/%s/scale-rules", clusterID)
	if err := c.transport.doRaw(ctx, http.MethodGet, path, &raw); err != nil {
		return nil, &scaler.TransientCollaboratorError{Collaborator: "rule-storage", Err: err}
	}

	if len(raw) == 0 {
		return map[scaler.SkuID]scaler.ScaleSpec{}, nil
	}

	var wire scaleRulesWire
	if err := yaml.Unmarshal(raw, &wire); err != nil {
		return nil, &scaler.TransientCollaboratorError{Collaborator: "rule-storage", Err: fmt.Errorf("decode scale rules: %w", err)}
	}

	out := make(map[scaler.SkuID]scaler.ScaleSpec, len(wire.ScaleRules))
	for _, w := range wire.ScaleRules {
		out[w.SkuID] = scaler.ScaleSpec{
			ClusterID:     clusterID,
			SkuID:         w.SkuID,
			MinSize:       w.MinSize,
			MaxSize:       w.MaxSize,
			MinIdleToKeep: w.MinIdleToKeep,
			MaxIdleToKeep: w.MaxIdleToKeep,
			CoolDownSecs:  w.CoolDownSecs,
		}
	}
	return out, nil
}
