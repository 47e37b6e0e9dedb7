package loop

import "github.com/vpsie/resource-cluster-autoscaler/pkg/scaler"

// event is the closed sum of inbox event types the ScalerLoop's single
// owning goroutine processes one at a time. Every event type below
// implements event, and handle in loop.go has one case per type. Go does not
// check a type switch for exhaustiveness: an event type without a case falls
// into handle's default branch, which logs it as unknown.
type event interface {
	isEvent()
}

// tickUsageEvent fires on the usage-pull timer.
type tickUsageEvent struct{}

func (tickUsageEvent) isEvent() {}

// tickRuleRefreshEvent fires on the rule-refresh timer.
type tickRuleRefreshEvent struct{}

func (tickRuleRefreshEvent) isEvent() {}

// usageResponseEvent carries the cluster-state authority's reply to a
// GetClusterUsage request, or the error from issuing it.
type usageResponseEvent struct {
	resp scaler.UsageResponse
	err  error
}

func (usageResponseEvent) isEvent() {}

// idleInstancesResponseEvent carries the cluster-state authority's reply to
// a GetClusterIdleInstances request, or the error from issuing it, along
// with the SkuID it was issued for (defense against a response arriving
// without perfectly round-tripped fields).
type idleInstancesResponseEvent struct {
	skuID scaler.SkuID
	resp  scaler.IdleInstancesResponse
	err   error
}

func (idleInstancesResponseEvent) isEvent() {}

// ruleFetchCompletedEvent carries the result of a rule storage fetch issued
// by a TickRuleRefresh. seq ties the result back to the tick that issued it
// so a stale, out-of-order completion can be discarded: any fetch whose
// issue time precedes the latest applied fetch is ignored.
type ruleFetchCompletedEvent struct {
	seq   uint64
	specs map[scaler.SkuID]scaler.ScaleSpec
	err   error
}

func (ruleFetchCompletedEvent) isEvent() {}

// ackEvent carries a done channel that handle closes when it reaches the
// event, so a poster can wait until every event queued ahead of it has been
// processed. Nothing in this package posts one.
type ackEvent struct {
	done chan struct{}
}

func (ackEvent) isEvent() {}
