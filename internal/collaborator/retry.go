package collaborator

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff with jitter for a single
// collaborator call.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	JitterFactor      float64
}

// DefaultRetryConfig returns sane defaults for a collaborator HTTP call:
// 3 retries, 100ms initial backoff doubling up to 30s, with up to 20% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFactor:      0.2,
	}
}

// Do invokes fn, retrying on error up to cfg.MaxRetries times with
// exponential backoff and jitter between attempts. It returns the last
// error if every attempt fails, or nil as soon as one succeeds. A
// cancelled context aborts retrying immediately.
func Do(ctx context.Context, cfg RetryConfig, fn func() error) error {
	backoff := cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxRetries {
			break
		}

		wait := backoff
		if cfg.JitterFactor > 0 {
			jitter := time.Duration(rand.Float64() * cfg.JitterFactor * float64(wait))
			wait += jitter
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return lastErr
}
