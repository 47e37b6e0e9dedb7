package ruleloader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vpsie/resource-cluster-autoscaler/internal/collaboratortest"
	"github.com/vpsie/resource-cluster-autoscaler/pkg/scaler"
)

func TestLoader_Fetch_DropsMalformedSpecs(t *testing.T) {
	storage := &collaboratortest.FakeRuleStorageClient{
		Specs: map[scaler.SkuID]scaler.ScaleSpec{
			"sku-good": {SkuID: "sku-good", ClusterID: "c1", MinSize: 1, MaxSize: 5, MinIdleToKeep: 1, MaxIdleToKeep: 2, CoolDownSecs: 30},
			"sku-bad":  {SkuID: "sku-bad", ClusterID: "c1", MinSize: 5, MaxSize: 1},
		},
	}
	loader := New(storage, zaptest.NewLogger(t))

	specs, err := loader.Fetch(context.Background(), "c1")
	require.NoError(t, err)

	assert.Len(t, specs, 1)
	assert.Contains(t, specs, scaler.SkuID("sku-good"))
	assert.NotContains(t, specs, scaler.SkuID("sku-bad"))
}

func TestLoader_Fetch_PropagatesStorageError(t *testing.T) {
	wantErr := errors.New("storage unavailable")
	storage := &collaboratortest.FakeRuleStorageClient{Err: wantErr}
	loader := New(storage, zaptest.NewLogger(t))

	_, err := loader.Fetch(context.Background(), "c1")
	assert.ErrorIs(t, err, wantErr)
}

func TestLoader_Fetch_EmptyRuleSetIsNotAnError(t *testing.T) {
	storage := &collaboratortest.FakeRuleStorageClient{Specs: map[scaler.SkuID]scaler.ScaleSpec{}}
	loader := New(storage, zaptest.NewLogger(t))

	specs, err := loader.Fetch(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, specs)
}
