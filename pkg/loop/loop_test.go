package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vpsie/resource-cluster-autoscaler/internal/clock"
	"github.com/vpsie/resource-cluster-autoscaler/internal/collaboratortest"
	"github.com/vpsie/resource-cluster-autoscaler/pkg/metrics"
	"github.com/vpsie/resource-cluster-autoscaler/pkg/scaler"
)

// newTestLoop builds a ScalerLoop wired to fakes, with its timers never
// started: tests drive the inbox by hand so cooldown math stays
// deterministic against the fake clock instead of real wall time.
func newTestLoop(t *testing.T, clk clock.Clock) (*ScalerLoop, *collaboratortest.FakeClusterStateClient, *collaboratortest.FakeProvisionerClient, *collaboratortest.FakeRuleStorageClient) {
	t.Helper()
	cs := &collaboratortest.FakeClusterStateClient{}
	prov := &collaboratortest.FakeProvisionerClient{}
	storage := &collaboratortest.FakeRuleStorageClient{}

	cfg := DefaultConfig("cluster-1")
	l := New(cfg, clk, cs, prov, storage, metrics.NewRecorder(nil), zaptest.NewLogger(t))
	return l, cs, prov, storage
}

// recvEvent waits up to 2s for an event posted onto the loop's own inbox by
// an async collaborator goroutine, then returns it without handing it back
// to handle (so the test can inspect it before applying).
func recvEvent(t *testing.T, l *ScalerLoop) event {
	t.Helper()
	select {
	case ev := <-l.inbox:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbox event")
		return nil
	}
}

func TestScalerLoop_RuleRefresh_PopulatesRegistry(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	l, _, _, storage := newTestLoop(t, clk)
	storage.Specs = map[scaler.SkuID]scaler.ScaleSpec{
		"sku-a": {SkuID: "sku-a", ClusterID: "cluster-1", MinSize: 1, MaxSize: 5, MinIdleToKeep: 1, MaxIdleToKeep: 2, CoolDownSecs: 30},
	}

	ctx := context.Background()
	l.onTickRuleRefresh(ctx)
	ev := recvEvent(t, l)
	l.handle(ctx, ev)

	assert.Equal(t, 1, l.registry.Len())
	assert.Contains(t, l.GetRuleSet(), scaler.SkuID("sku-a"))
}

func TestScalerLoop_RuleRefresh_StaleSequenceDiscarded(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	l, _, _, _ := newTestLoop(t, clk)

	// Simulate a late-arriving result from an older fetch after a newer one
	// has already been applied.
	l.handle(context.Background(), ruleFetchCompletedEvent{
		seq:   2,
		specs: map[scaler.SkuID]scaler.ScaleSpec{"sku-new": {SkuID: "sku-new", MaxSize: 5}},
	})
	require.Equal(t, uint64(2), l.lastAppliedSeq)

	l.handle(context.Background(), ruleFetchCompletedEvent{
		seq:   1,
		specs: map[scaler.SkuID]scaler.ScaleSpec{"sku-stale": {SkuID: "sku-stale", MaxSize: 5}},
	})

	assert.Contains(t, l.GetRuleSet(), scaler.SkuID("sku-new"))
	assert.NotContains(t, l.GetRuleSet(), scaler.SkuID("sku-stale"))
}

func TestScalerLoop_UsageTick_EmptyRegistryIsNoOp(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	l, cs, _, _ := newTestLoop(t, clk)

	l.onTickUsage(context.Background())

	select {
	case <-l.inbox:
		t.Fatal("expected no usage request to be issued against an empty registry")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 0, cs.CallCount())
}

func TestScalerLoop_ScaleUp_ForwardsDirectlyNoIdlePhase(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	l, cs, prov, _ := newTestLoop(t, clk)
	l.registry.Replace(map[scaler.SkuID]scaler.ScaleSpec{
		"sku-a": {SkuID: "sku-a", ClusterID: "cluster-1", MinSize: 1, MaxSize: 10, MinIdleToKeep: 2, MaxIdleToKeep: 4, CoolDownSecs: 30},
	})
	cs.UsageResponses = []scaler.UsageResponse{{
		ClusterID: "cluster-1",
		Usages: []scaler.UsageByMachineDefinition{
			{Def: scaler.MachineDefinition{DefinitionID: "sku-a"}, TotalCount: 4, IdleCount: 0},
		},
	}}

	ctx := context.Background()
	l.onTickUsage(ctx)
	ev := recvEvent(t, l)
	l.handle(ctx, ev)

	require.Eventually(t, func() bool { return len(prov.Snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	reqs := prov.Snapshot()
	assert.Equal(t, scaler.SkuID("sku-a"), reqs[0].SkuID)
	assert.Equal(t, 6, reqs[0].DesireSize)
	assert.Empty(t, reqs[0].IdleInstances)
}

func TestScalerLoop_ScaleDown_TwoPhaseFlow(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	l, cs, prov, _ := newTestLoop(t, clk)
	l.registry.Replace(map[scaler.SkuID]scaler.ScaleSpec{
		"sku-a": {SkuID: "sku-a", ClusterID: "cluster-1", MinSize: 1, MaxSize: 10, MinIdleToKeep: 1, MaxIdleToKeep: 2, CoolDownSecs: 30},
	})
	cs.UsageResponses = []scaler.UsageResponse{{
		ClusterID: "cluster-1",
		Usages: []scaler.UsageByMachineDefinition{
			{Def: scaler.MachineDefinition{DefinitionID: "sku-a"}, TotalCount: 8, IdleCount: 5},
		},
	}}
	cs.IdleResponses = []scaler.IdleInstancesResponse{{
		SkuID:      "sku-a",
		DesireSize: 5,
		Instances:  []scaler.InstanceID{"i-1", "i-2"},
	}}

	ctx := context.Background()
	l.onTickUsage(ctx)
	ev := recvEvent(t, l) // usageResponseEvent
	l.handle(ctx, ev)     // dispatches decision, issues async idle-instances request

	ev2 := recvEvent(t, l) // idleInstancesResponseEvent
	_, isIdleResp := ev2.(idleInstancesResponseEvent)
	require.True(t, isIdleResp)
	l.handle(ctx, ev2) // forwards the ScaleRequest

	require.Eventually(t, func() bool { return len(prov.Snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	reqs := prov.Snapshot()
	assert.Equal(t, scaler.SkuID("sku-a"), reqs[0].SkuID)
	assert.Equal(t, 5, reqs[0].DesireSize)
	assert.Equal(t, []scaler.InstanceID{"i-1", "i-2"}, reqs[0].IdleInstances)

	require.Len(t, cs.IdleRequests, 1)
	assert.Equal(t, 3, cs.IdleRequests[0].MaxInstanceCount) // totalCount(8) - desireSize(5)
}

func TestScalerLoop_UsageEntryWithUnknownSku_Ignored(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	l, cs, prov, _ := newTestLoop(t, clk)
	l.registry.Replace(map[scaler.SkuID]scaler.ScaleSpec{
		"sku-a": {SkuID: "sku-a", ClusterID: "cluster-1", MinSize: 1, MaxSize: 10, MinIdleToKeep: 1, MaxIdleToKeep: 2, CoolDownSecs: 30},
	})
	cs.UsageResponses = []scaler.UsageResponse{{
		ClusterID: "cluster-1",
		Usages: []scaler.UsageByMachineDefinition{
			{Def: scaler.MachineDefinition{DefinitionID: "sku-unknown"}, TotalCount: 8, IdleCount: 5},
		},
	}}

	ctx := context.Background()
	l.onTickUsage(ctx)
	ev := recvEvent(t, l)
	l.handle(ctx, ev)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, prov.Snapshot())
}

func TestScalerLoop_CollaboratorError_LogsAndContinues(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	l, _, _, _ := newTestLoop(t, clk)

	assert.NotPanics(t, func() {
		l.handle(context.Background(), usageResponseEvent{err: assertError("boom")})
	})
}

func TestScalerLoop_UnknownEventType_LoggedNotPanicked(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	l, _, _, _ := newTestLoop(t, clk)

	assert.NotPanics(t, func() {
		l.handle(context.Background(), panickyEvent{})
	})
}

func TestScalerLoop_Healthy_TrueBeforeFirstTick(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	l, _, _, _ := newTestLoop(t, clk)
	assert.True(t, l.Healthy())
}

func TestScalerLoop_Healthy_FalseWhenTicksAreStale(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	l, _, _, _ := newTestLoop(t, clk)

	l.onTickUsage(context.Background())
	clk.Advance(10 * time.Minute)

	assert.False(t, l.Healthy())
}

// panickyEvent is a test-only event type that doesn't match any case in
// handle's type switch, exercising the default branch; it is never
// produced by the real loop.
type panickyEvent struct{}

func (panickyEvent) isEvent() {}

type assertError string

func (e assertError) Error() string { return string(e) }
