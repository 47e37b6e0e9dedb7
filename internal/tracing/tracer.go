// Package tracing provides Sentry-based error reporting, scoped to
// capturing TransientCollaboratorError and InternalInvariantViolation
// occurrences for off-box alerting. It has no reconcile-loop or
// HTTP-round-tripper tracing: the outbound collaborator HTTP calls made by
// internal/collaborator are not traced.
package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// Config holds Sentry configuration. An empty DSN disables reporting
// entirely; CaptureError then becomes a no-op rather than an error.
type Config struct {
	DSN             string
	Environment     string
	Release         string
	ErrorSampleRate float64
	ServerName      string
}

// DefaultConfig returns a disabled Tracer config (no DSN).
func DefaultConfig() Config {
	return Config{
		Environment:     "development",
		Release:         "unknown",
		ErrorSampleRate: 1.0,
	}
}

// Tracer wraps the Sentry SDK for error capture.
type Tracer struct {
	cfg     Config
	logger  *zap.Logger
	enabled bool
}

// NewTracer initializes Sentry if cfg.DSN is non-empty; otherwise it returns
// a disabled Tracer whose CaptureError calls are no-ops.
func NewTracer(cfg Config, logger *zap.Logger) (*Tracer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{cfg: cfg, logger: logger, enabled: cfg.DSN != ""}
	if !t.enabled {
		logger.Info("sentry error reporting disabled (no DSN configured)")
		return t, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		ServerName:       cfg.ServerName,
		SampleRate:       cfg.ErrorSampleRate,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			event.Tags["service"] = "resource-cluster-autoscaler"
			return event
		},
	})
	if err != nil {
		return nil, fmt.Errorf("initialize sentry: %w", err)
	}

	logger.Info("sentry error reporting initialized",
		zap.String("environment", cfg.Environment),
		zap.String("release", cfg.Release))
	return t, nil
}

// IsEnabled reports whether this Tracer actually reports to Sentry.
func (t *Tracer) IsEnabled() bool {
	return t != nil && t.enabled
}

// Close flushes pending events with a 5s timeout.
func (t *Tracer) Close() {
	if t == nil || !t.enabled {
		return
	}
	sentry.Flush(5 * time.Second)
}

// CaptureError reports err to Sentry tagged with clusterId/skuId context, if
// present. A nil Tracer, a disabled Tracer, and a nil err are all safe
// no-ops so call sites never need a nil check.
func (t *Tracer) CaptureError(ctx context.Context, err error, clusterID, skuID string) {
	if t == nil || !t.enabled || err == nil {
		return
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		if clusterID != "" {
			scope.SetTag("clusterId", clusterID)
		}
		if skuID != "" {
			scope.SetTag("skuId", skuID)
		}
		hub.CaptureException(err)
	})
}
