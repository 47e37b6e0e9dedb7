package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewTracer_EmptyDSNIsDisabled(t *testing.T) {
	tr, err := NewTracer(DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.False(t, tr.IsEnabled())
}

func TestTracer_CaptureError_DisabledIsNoOp(t *testing.T) {
	tr, err := NewTracer(DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		tr.CaptureError(context.Background(), errors.New("boom"), "cluster-1", "sku-a")
	})
}

func TestTracer_CaptureError_NilTracerIsNoOp(t *testing.T) {
	var tr *Tracer

	assert.NotPanics(t, func() {
		tr.CaptureError(context.Background(), errors.New("boom"), "cluster-1", "sku-a")
	})
}

func TestTracer_CaptureError_NilErrIsNoOp(t *testing.T) {
	tr, err := NewTracer(DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		tr.CaptureError(context.Background(), nil, "cluster-1", "sku-a")
	})
}

func TestTracer_Close_DisabledIsNoOp(t *testing.T) {
	tr, err := NewTracer(DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		tr.Close()
	})
}

func TestTracer_Close_NilTracerIsNoOp(t *testing.T) {
	var tr *Tracer

	assert.NotPanics(t, func() {
		tr.Close()
	})
}
