// Package metrics exposes the passive, injectable observability facet of
// the autoscaler core. Recorder takes a prometheus.Registerer at
// construction so multiple ScalerLoop-hosting tests in the same process
// don't collide on global collector registration.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Namespace is the metrics namespace for the autoscaler core.
const Namespace = "resource_cluster_autoscaler"

// Recorder tallies five monotonically non-decreasing counters, each tagged
// with cluster_id.
type Recorder struct {
	numScaleRuleTrigger   *prometheus.CounterVec
	numScaleUp            *prometheus.CounterVec
	numScaleDown          *prometheus.CounterVec
	numReachScaleMaxLimit *prometheus.CounterVec
	numReachScaleMinLimit *prometheus.CounterVec
}

// NewRecorder creates a Recorder and registers its collectors with reg. If
// reg is nil, the collectors are created but never registered, which is
// useful for unit tests that only care about counter values and not
// exposition.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		numScaleRuleTrigger: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scale_rule_trigger_total",
			Help:      "Total number of UsageResponse events processed, one increment per response.",
		}, []string{"cluster_id"}),
		numScaleUp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scale_up_total",
			Help:      "Total number of ScaleUp decisions forwarded to the provisioner.",
		}, []string{"cluster_id"}),
		numScaleDown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scale_down_total",
			Help:      "Total number of ScaleDown decisions, counted when the idle-instance lookup is issued.",
		}, []string{"cluster_id"}),
		numReachScaleMaxLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reach_scale_max_limit_total",
			Help:      "Total number of NoOpReachMax decisions (rule pinned at maxSize).",
		}, []string{"cluster_id"}),
		numReachScaleMinLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reach_scale_min_limit_total",
			Help:      "Total number of NoOpReachMin decisions (rule pinned at minSize).",
		}, []string{"cluster_id"}),
	}

	if reg != nil {
		reg.MustRegister(
			r.numScaleRuleTrigger,
			r.numScaleUp,
			r.numScaleDown,
			r.numReachScaleMaxLimit,
			r.numReachScaleMinLimit,
		)
	}

	return r
}

// IncScaleRuleTrigger records one UsageResponse having been processed.
func (r *Recorder) IncScaleRuleTrigger(clusterID string) {
	r.numScaleRuleTrigger.WithLabelValues(SanitizeLabel(clusterID)).Inc()
}

// IncScaleUp records one ScaleUp decision.
func (r *Recorder) IncScaleUp(clusterID string) {
	r.numScaleUp.WithLabelValues(SanitizeLabel(clusterID)).Inc()
}

// IncScaleDown records one ScaleDown decision.
func (r *Recorder) IncScaleDown(clusterID string) {
	r.numScaleDown.WithLabelValues(SanitizeLabel(clusterID)).Inc()
}

// IncReachScaleMaxLimit records one NoOpReachMax decision.
func (r *Recorder) IncReachScaleMaxLimit(clusterID string) {
	r.numReachScaleMaxLimit.WithLabelValues(SanitizeLabel(clusterID)).Inc()
}

// IncReachScaleMinLimit records one NoOpReachMin decision.
func (r *Recorder) IncReachScaleMinLimit(clusterID string) {
	r.numReachScaleMinLimit.WithLabelValues(SanitizeLabel(clusterID)).Inc()
}
