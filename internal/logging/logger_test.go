package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		development bool
	}{
		{name: "production logger", development: false},
		{name: "development logger", development: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.development)
			require.NoError(t, err)
			require.NotNil(t, logger)

			logger.Info("test info message")
			logger.Warn("test warn message", zap.String("key", "value"))
		})
	}
}

func TestWithRequestID_GetRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background())
	id := GetRequestID(ctx)

	assert.NotEmpty(t, id)
	assert.Len(t, id, 36, "expected a canonical UUID string")
}

func TestGetRequestID_AbsentReturnsEmpty(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestWithRequestID_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := GetRequestID(WithRequestID(context.Background()))
		require.False(t, seen[id], "request ID should be unique, got duplicate: %s", id)
		seen[id] = true
	}
}

func TestWithRequestIDField(t *testing.T) {
	logger, err := New(false)
	require.NoError(t, err)

	t.Run("context with request ID attaches field", func(t *testing.T) {
		ctx := WithRequestID(context.Background())
		enriched := WithRequestIDField(ctx, logger)
		assert.NotNil(t, enriched)
	})

	t.Run("context without request ID returns original logger", func(t *testing.T) {
		enriched := WithRequestIDField(context.Background(), logger)
		assert.Same(t, logger, enriched)
	})
}

func TestLogScaleDecision_DoesNotPanic(t *testing.T) {
	logger, err := New(false)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		LogScaleDecision(logger, "cluster-1", "sku-a", "ScaleUp", 4, 6)
	})
}

func TestLogCollaboratorError_DoesNotPanic(t *testing.T) {
	logger, err := New(false)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		LogCollaboratorError(logger, "provisioner", "cluster-1", errors.New("boom"))
	})
}

func TestLogRuleRefresh_DoesNotPanic(t *testing.T) {
	logger, err := New(false)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		LogRuleRefresh(logger, "cluster-1", 3, nil)
		LogRuleRefresh(logger, "cluster-1", 0, errors.New("storage unavailable"))
	})
}
