// Package logging provides the structured zap logger construction and
// per-decision logging helpers shared by cmd/autoscaler and pkg/loop.
package logging

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextKey is the type for context keys this package defines.
type ContextKey string

// RequestIDKey is the context key for a correlation ID.
const RequestIDKey ContextKey = "requestID"

// New creates a structured logger: development mode gets a colorized
// console encoder, production mode gets JSON. Both always use ISO8601
// timestamps and attach caller + stacktrace-on-error.
func New(development bool) (*zap.Logger, error) {
	var config zap.Config
	if development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

// WithRequestID stamps a fresh correlation ID onto ctx so log lines emitted
// through a logger from WithRequestIDField(ctx, ...) can be joined back
// together. The ScalerLoop does not stamp one onto its ticks.
func WithRequestID(ctx context.Context) context.Context {
	return context.WithValue(ctx, RequestIDKey, uuid.New().String())
}

// GetRequestID retrieves the correlation ID stamped by WithRequestID, or
// "" if none is present.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestIDField returns logger enriched with ctx's correlation ID, if
// any.
func WithRequestIDField(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := GetRequestID(ctx); id != "" {
		return logger.With(zap.String("requestId", id))
	}
	return logger
}

// LogScaleDecision logs one applied ScaleRule evaluation with the fields an
// operator needs to audit why a cluster's SKU count changed.
func LogScaleDecision(logger *zap.Logger, clusterID, skuID string, scaleType string, totalBefore, desireSize int) {
	logger.Info("scale decision applied",
		zap.String("clusterId", clusterID),
		zap.String("skuId", skuID),
		zap.String("type", scaleType),
		zap.Int("totalBefore", totalBefore),
		zap.Int("desireSize", desireSize),
	)
}

// LogCollaboratorError logs a TransientCollaboratorError-class failure at
// the boundary that produced it.
func LogCollaboratorError(logger *zap.Logger, collaborator, clusterID string, err error) {
	logger.Warn("collaborator call failed",
		zap.String("collaborator", collaborator),
		zap.String("clusterId", clusterID),
		zap.Error(err),
	)
}

// LogRuleRefresh logs the outcome of a rule storage fetch.
func LogRuleRefresh(logger *zap.Logger, clusterID string, ruleCount int, err error) {
	if err != nil {
		logger.Warn("rule refresh failed",
			zap.String("clusterId", clusterID),
			zap.Error(err),
		)
		return
	}
	logger.Info("rule refresh applied",
		zap.String("clusterId", clusterID),
		zap.Int("ruleCount", ruleCount),
	)
}
