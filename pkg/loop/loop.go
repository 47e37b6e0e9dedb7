// Package loop implements the ScalerLoop: the single owning goroutine that
// serializes rule mutation and scale-decision evaluation for one cluster
// against its two asynchronous timers and three collaborator boundaries.
// All state mutation happens on the loop's goroutine; every other goroutine
// only ever posts events onto its inbox.
package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vpsie/resource-cluster-autoscaler/internal/clock"
	"github.com/vpsie/resource-cluster-autoscaler/internal/collaborator"
	"github.com/vpsie/resource-cluster-autoscaler/internal/logging"
	"github.com/vpsie/resource-cluster-autoscaler/internal/ruleloader"
	"github.com/vpsie/resource-cluster-autoscaler/internal/tracing"
	"github.com/vpsie/resource-cluster-autoscaler/pkg/metrics"
	"github.com/vpsie/resource-cluster-autoscaler/pkg/scaler"
)

// Config configures one ScalerLoop instance. Region and EnvType are carried
// here, not derived from any collaborator response, because nothing on the
// GetClusterUsage/GetClusterIdleInstances boundary supplies them; they are
// stamped onto every outbound ScaleRequest for this cluster unchanged.
type Config struct {
	ClusterID         scaler.ClusterID
	Region            string
	EnvType           string
	UsagePeriod       time.Duration
	RuleRefreshPeriod time.Duration
	InboxBufferSize   int
}

// DefaultConfig returns a Config with reasonable defaults: a 30s usage pull
// and a 5m rule refresh.
func DefaultConfig(clusterID scaler.ClusterID) Config {
	return Config{
		ClusterID:         clusterID,
		UsagePeriod:       30 * time.Second,
		RuleRefreshPeriod: 5 * time.Minute,
		InboxBufferSize:   64,
	}
}

// ScalerLoop owns one cluster's RuleRegistry and drives it through periodic
// usage pulls and rule refreshes, issuing scale decisions to the
// provisioner via a two-phase scale-down (request idle instances, then
// forward the ScaleRequest once they're known).
type ScalerLoop struct {
	cfg      Config
	clock    clock.Clock
	registry *scaler.RuleRegistry
	loader   *ruleloader.Loader

	clusterState collaborator.ClusterStateClient
	provisioner  collaborator.ProvisionerClient

	recorder *metrics.Recorder
	logger   *zap.Logger
	tracer   *tracing.Tracer

	inbox  chan event
	cancel context.CancelFunc
	wg     sync.WaitGroup

	fetchSeq       uint64
	lastAppliedSeq uint64

	lastTickAt atomic.Value // time.Time
	healthy    atomic.Bool
}

// New creates a ScalerLoop. It does not start the loop; call Start.
func New(
	cfg Config,
	clk clock.Clock,
	clusterState collaborator.ClusterStateClient,
	provisioner collaborator.ProvisionerClient,
	storage collaborator.RuleStorageClient,
	recorder *metrics.Recorder,
	logger *zap.Logger,
) *ScalerLoop {
	if cfg.InboxBufferSize <= 0 {
		cfg.InboxBufferSize = 64
	}
	l := &ScalerLoop{
		cfg:          cfg,
		clock:        clk,
		registry:     scaler.NewRuleRegistry(clk),
		loader:       ruleloader.New(storage, logger),
		clusterState: clusterState,
		provisioner:  provisioner,
		recorder:     recorder,
		logger:       logger,
		inbox:        make(chan event, cfg.InboxBufferSize),
	}
	l.healthy.Store(true)
	return l
}

// SetTracer attaches a Sentry tracer used to report collaborator failures
// and internal invariant violations. Optional; a nil or disabled tracer
// leaves CaptureError a no-op.
func (l *ScalerLoop) SetTracer(t *tracing.Tracer) {
	l.tracer = t
}

// GetRuleSet returns an immutable snapshot of the cluster's current rule
// set, safe to call from any goroutine.
func (l *ScalerLoop) GetRuleSet() map[scaler.SkuID]scaler.ScaleSpec {
	return l.registry.Snapshot()
}

// Healthy reports whether the loop is alive and has processed a tick
// recently enough not to be considered stuck. A loop that has never ticked
// yet (just started) is reported healthy.
func (l *ScalerLoop) Healthy() bool {
	if !l.healthy.Load() {
		return false
	}
	v := l.lastTickAt.Load()
	if v == nil {
		return true
	}
	last := v.(time.Time)
	stale := l.cfg.UsagePeriod*3 + 30*time.Second
	return l.clock.Now().Sub(last) < stale
}

// Start launches the owning goroutine plus the two timer goroutines. It
// returns immediately; call Stop to shut down.
func (l *ScalerLoop) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	l.wg.Add(3)
	go l.runUsageTicker(ctx)
	go l.runRuleRefreshTicker(ctx)
	go l.run(ctx)
}

// Stop cancels the loop's context and waits for all of its goroutines to
// exit.
func (l *ScalerLoop) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

// TriggerRuleRefresh posts an immediate rule-refresh event, bypassing the
// timer. Used at startup so a freshly created loop doesn't wait a full
// RuleRefreshPeriod before it has any rules loaded.
func (l *ScalerLoop) TriggerRuleRefresh() {
	select {
	case l.inbox <- tickRuleRefreshEvent{}:
	default:
		l.logger.Warn("inbox full, dropping manual rule refresh trigger",
			zap.String("clusterId", string(l.cfg.ClusterID)))
	}
}

func (l *ScalerLoop) runUsageTicker(ctx context.Context) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.UsagePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case l.inbox <- tickUsageEvent{}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (l *ScalerLoop) runRuleRefreshTicker(ctx context.Context) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.RuleRefreshPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case l.inbox <- tickRuleRefreshEvent{}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// run is the single owning goroutine: every mutation of registry state and
// every decision to call out to a collaborator happens here, one event at a
// time, never concurrently with itself.
func (l *ScalerLoop) run(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-l.inbox:
			l.handle(ctx, ev)
		}
	}
}

// handle dispatches one inbox event. A panic surfaced while handling an
// event is recovered and converted into an InternalInvariantViolation log
// entry so one malformed event can never take down the whole loop: a bug in
// decision logic must not silently corrupt state or crash the process.
func (l *ScalerLoop) handle(ctx context.Context, ev event) {
	defer func() {
		if r := recover(); r != nil {
			err := &scaler.InternalInvariantViolation{Context: "ScalerLoop.handle"}
			l.logger.Error("recovered panic handling inbox event",
				zap.String("clusterId", string(l.cfg.ClusterID)),
				zap.Any("panic", r),
				zap.Error(err))
			l.tracer.CaptureError(ctx, err, string(l.cfg.ClusterID), "")
		}
	}()

	switch e := ev.(type) {
	case tickUsageEvent:
		l.onTickUsage(ctx)
	case tickRuleRefreshEvent:
		l.onTickRuleRefresh(ctx)
	case usageResponseEvent:
		l.onUsageResponse(ctx, e)
	case idleInstancesResponseEvent:
		l.onIdleInstancesResponse(ctx, e)
	case ruleFetchCompletedEvent:
		l.onRuleFetchCompleted(e)
	case ackEvent:
		close(e.done)
	default:
		l.logger.Error("unknown inbox event type",
			zap.String("clusterId", string(l.cfg.ClusterID)))
	}
}

// onTickUsage issues an async GetClusterUsage call if the registry has any
// rules to evaluate; an empty registry means nothing to scale, so the call
// is skipped and the tick is a no-op.
func (l *ScalerLoop) onTickUsage(ctx context.Context) {
	l.lastTickAt.Store(l.clock.Now())

	if l.registry.Len() == 0 {
		return
	}

	clusterID := l.cfg.ClusterID
	go func() {
		resp, err := l.clusterState.GetClusterUsage(ctx, clusterID)
		l.post(usageResponseEvent{resp: resp, err: err})
	}()
}

// onTickRuleRefresh issues an async rule fetch, tagging it with a fresh
// sequence number so a reply that arrives after a newer fetch has already
// been applied can be discarded: last-issued-wins, not last-arrived-wins.
func (l *ScalerLoop) onTickRuleRefresh(ctx context.Context) {
	seq := atomic.AddUint64(&l.fetchSeq, 1)
	clusterID := l.cfg.ClusterID
	go func() {
		specs, err := l.loader.Fetch(ctx, clusterID)
		l.post(ruleFetchCompletedEvent{seq: seq, specs: specs, err: err})
	}()
}

func (l *ScalerLoop) onRuleFetchCompleted(e ruleFetchCompletedEvent) {
	if e.err != nil {
		logging.LogRuleRefresh(l.logger, string(l.cfg.ClusterID), 0, e.err)
		return
	}
	if e.seq <= l.lastAppliedSeq {
		l.logger.Debug("discarding stale rule fetch result",
			zap.String("clusterId", string(l.cfg.ClusterID)),
			zap.Uint64("seq", e.seq),
			zap.Uint64("lastApplied", l.lastAppliedSeq))
		return
	}
	l.lastAppliedSeq = e.seq
	l.registry.Replace(e.specs)
	logging.LogRuleRefresh(l.logger, string(l.cfg.ClusterID), len(e.specs), nil)
}

// onUsageResponse evaluates every registered ScaleRule against the
// corresponding SKU's usage entry. Actionable ScaleDown decisions trigger a
// GetClusterIdleInstances request instead of an immediate ScaleRequest
// (two-phase scale-down); actionable ScaleUp decisions forward a
// ScaleRequest directly with no idle-instance list.
func (l *ScalerLoop) onUsageResponse(ctx context.Context, e usageResponseEvent) {
	if e.err != nil {
		logging.LogCollaboratorError(l.logger, "cluster-state-authority", string(l.cfg.ClusterID), e.err)
		l.tracer.CaptureError(ctx, e.err, string(l.cfg.ClusterID), "")
		return
	}

	l.recorder.IncScaleRuleTrigger(string(l.cfg.ClusterID))

	rules := l.registry.All()
	for _, usage := range e.resp.Usages {
		if usage.Def.Empty() {
			l.logger.Debug("ignoring usage entry with empty machine definition",
				zap.String("clusterId", string(l.cfg.ClusterID)))
			continue
		}

		skuID := usage.Def.DefinitionID
		rule, ok := rules[skuID]
		if !ok {
			l.logger.Debug("no scale rule for sku, ignoring usage entry",
				zap.String("clusterId", string(l.cfg.ClusterID)),
				zap.String("skuId", string(skuID)))
			continue
		}

		decision, applied := rule.Apply(usage)
		if !applied {
			continue
		}
		logging.LogScaleDecision(l.logger, string(decision.ClusterID), string(decision.SkuID), string(decision.Type), usage.TotalCount, decision.DesireSize)
		l.dispatchDecision(ctx, decision, usage)
	}
}

func (l *ScalerLoop) dispatchDecision(ctx context.Context, decision scaler.ScaleDecision, usage scaler.UsageByMachineDefinition) {
	switch decision.Type {
	case scaler.NoOpReachMax:
		l.recorder.IncReachScaleMaxLimit(string(l.cfg.ClusterID))
		return
	case scaler.NoOpReachMin:
		l.recorder.IncReachScaleMinLimit(string(l.cfg.ClusterID))
		return
	case scaler.ScaleUp:
		l.recorder.IncScaleUp(string(l.cfg.ClusterID))
		l.forwardScaleRequest(ctx, scaler.ScaleRequest{
			ClusterID:  decision.ClusterID,
			SkuID:      decision.SkuID,
			Region:     l.cfg.Region,
			EnvType:    l.cfg.EnvType,
			DesireSize: decision.DesireSize,
		})
	case scaler.ScaleDown:
		l.recorder.IncScaleDown(string(l.cfg.ClusterID))
		maxInstanceCount := usage.TotalCount - decision.DesireSize
		if maxInstanceCount < 0 {
			maxInstanceCount = 0
		}
		req := scaler.IdleInstancesRequest{
			ClusterID:        decision.ClusterID,
			SkuID:            decision.SkuID,
			Def:              usage.Def,
			DesireSize:       decision.DesireSize,
			MaxInstanceCount: maxInstanceCount,
		}
		skuID := decision.SkuID
		go func() {
			resp, err := l.clusterState.GetClusterIdleInstances(ctx, req)
			l.post(idleInstancesResponseEvent{skuID: skuID, resp: resp, err: err})
		}()
	default:
		// Recovered and logged by handle; the loop keeps running.
		panic(&scaler.InternalInvariantViolation{Context: "unknown ScaleType " + string(decision.Type)})
	}
}

// onIdleInstancesResponse completes the second phase of a scale-down: the
// idle instance list is now known, so the ScaleRequest can finally be
// forwarded to the provisioner.
func (l *ScalerLoop) onIdleInstancesResponse(ctx context.Context, e idleInstancesResponseEvent) {
	if e.err != nil {
		logging.LogCollaboratorError(l.logger, "cluster-state-authority", string(l.cfg.ClusterID), e.err)
		l.tracer.CaptureError(ctx, e.err, string(l.cfg.ClusterID), string(e.skuID))
		return
	}

	l.forwardScaleRequest(ctx, scaler.ScaleRequest{
		ClusterID:     l.cfg.ClusterID,
		SkuID:         e.skuID,
		Region:        l.cfg.Region,
		EnvType:       l.cfg.EnvType,
		DesireSize:    e.resp.DesireSize,
		IdleInstances: e.resp.Instances,
	})
}

func (l *ScalerLoop) forwardScaleRequest(ctx context.Context, req scaler.ScaleRequest) {
	go func() {
		if err := l.provisioner.Scale(ctx, req); err != nil {
			l.logger.Error("forwarding scale request to provisioner failed",
				zap.String("clusterId", string(req.ClusterID)),
				zap.String("skuId", string(req.SkuID)),
				zap.Error(err))
		}
	}()
}

// post delivers an event to the inbox, never blocking forever: if the loop
// has already stopped and the inbox is unbuffered-full, the event is
// dropped rather than leaking the posting goroutine.
func (l *ScalerLoop) post(ev event) {
	select {
	case l.inbox <- ev:
	case <-time.After(5 * time.Second):
		l.logger.Warn("inbox send timed out, dropping event",
			zap.String("clusterId", string(l.cfg.ClusterID)))
	}
}
