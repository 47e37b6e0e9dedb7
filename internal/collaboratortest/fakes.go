// Package collaboratortest provides in-memory fakes for the three
// collaborator interfaces, shared across pkg/loop and internal/ruleloader
// tests so each test package doesn't reinvent its own mock, grounded on the
// mock server pattern in test/integration/mock_vpsie_server.go.
package collaboratortest

import (
	"context"
	"sync"

	"github.com/vpsie/resource-cluster-autoscaler/pkg/scaler"
)

// FakeClusterStateClient is a scriptable ClusterStateClient. GetClusterUsage
// returns the queued UsageResponses in order, repeating the last one once the
// queue has drained, and counts every call. GetClusterIdleInstances records
// every request in IdleRequests and returns IdleResponses[i] for the i-th
// call, or an empty response echoing the request's SkuID and DesireSize once
// IdleResponses runs out.
type FakeClusterStateClient struct {
	mu sync.Mutex

	UsageResponses []scaler.UsageResponse
	UsageErr       error
	usageCalls     int

	IdleResponses []scaler.IdleInstancesResponse
	IdleErr       error
	IdleRequests  []scaler.IdleInstancesRequest
}

func (f *FakeClusterStateClient) GetClusterUsage(ctx context.Context, clusterID scaler.ClusterID) (scaler.UsageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.usageCalls
	f.usageCalls++
	if f.UsageErr != nil {
		return scaler.UsageResponse{}, f.UsageErr
	}
	if len(f.UsageResponses) == 0 {
		return scaler.UsageResponse{ClusterID: clusterID}, nil
	}
	if idx >= len(f.UsageResponses) {
		idx = len(f.UsageResponses) - 1
	}
	return f.UsageResponses[idx], nil
}

func (f *FakeClusterStateClient) GetClusterIdleInstances(ctx context.Context, req scaler.IdleInstancesRequest) (scaler.IdleInstancesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.IdleRequests = append(f.IdleRequests, req)
	if f.IdleErr != nil {
		return scaler.IdleInstancesResponse{}, f.IdleErr
	}
	idx := len(f.IdleRequests) - 1
	if idx < len(f.IdleResponses) {
		return f.IdleResponses[idx], nil
	}
	return scaler.IdleInstancesResponse{SkuID: req.SkuID, DesireSize: req.DesireSize}, nil
}

// CallCount reports how many times GetClusterUsage has been called so far.
func (f *FakeClusterStateClient) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usageCalls
}

// FakeProvisionerClient records every ScaleRequest it is asked to forward.
type FakeProvisionerClient struct {
	mu sync.Mutex

	Requests []scaler.ScaleRequest
	Err      error
}

func (f *FakeProvisionerClient) Scale(ctx context.Context, req scaler.ScaleRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	return f.Err
}

// Snapshot returns a copy of the requests recorded so far.
func (f *FakeProvisionerClient) Snapshot() []scaler.ScaleRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]scaler.ScaleRequest, len(f.Requests))
	copy(out, f.Requests)
	return out
}

// FakeRuleStorageClient returns a fixed rule set (or error) on every fetch.
type FakeRuleStorageClient struct {
	mu sync.Mutex

	Specs map[scaler.SkuID]scaler.ScaleSpec
	Err   error
	calls int
}

func (f *FakeRuleStorageClient) GetScaleRules(ctx context.Context, clusterID scaler.ClusterID) (map[scaler.SkuID]scaler.ScaleSpec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Err != nil {
		return nil, f.Err
	}
	out := make(map[scaler.SkuID]scaler.ScaleSpec, len(f.Specs))
	for k, v := range f.Specs {
		out[k] = v
	}
	return out, nil
}

// Calls reports how many times GetScaleRules has been called so far.
func (f *FakeRuleStorageClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
