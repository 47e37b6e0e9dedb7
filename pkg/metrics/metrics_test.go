package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labelValues ...string) float64 {
	t.Helper()
	c, err := vec.GetMetricWithLabelValues(labelValues...)
	require.NoError(t, err)
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestRecorder_IncrementsAreIndependentPerCounter(t *testing.T) {
	r := NewRecorder(nil)

	r.IncScaleRuleTrigger("cluster-1")
	r.IncScaleUp("cluster-1")
	r.IncScaleUp("cluster-1")
	r.IncScaleDown("cluster-1")
	r.IncReachScaleMaxLimit("cluster-1")
	r.IncReachScaleMinLimit("cluster-1")

	assert.Equal(t, float64(1), counterValue(t, r.numScaleRuleTrigger, "cluster-1"))
	assert.Equal(t, float64(2), counterValue(t, r.numScaleUp, "cluster-1"))
	assert.Equal(t, float64(1), counterValue(t, r.numScaleDown, "cluster-1"))
	assert.Equal(t, float64(1), counterValue(t, r.numReachScaleMaxLimit, "cluster-1"))
	assert.Equal(t, float64(1), counterValue(t, r.numReachScaleMinLimit, "cluster-1"))
}

func TestRecorder_SanitizesLabelsBeforeRecording(t *testing.T) {
	r := NewRecorder(nil)

	r.IncScaleUp("cluster/with spaces")

	assert.Equal(t, float64(1), counterValue(t, r.numScaleUp, SanitizeLabel("cluster/with spaces")))
}

func TestNewRecorder_RegistersWithNonNilRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)
	require.NotNil(t, r)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families, "no counters have been incremented yet, so nothing is exported")

	r.IncScaleUp("cluster-1")
	families, err = reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
