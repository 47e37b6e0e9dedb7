package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MaxResponseBodySize caps how much of a collaborator's HTTP response body
// is read, guarding against a misbehaving collaborator returning an
// unbounded body.
const MaxResponseBodySize = 10 * 1024 * 1024

// httpTransport is the shared request/response plumbing used by all three
// production collaborator clients: a rate limiter paces outbound calls, a
// circuit breaker isolates a down collaborator, and Do retries transient
// failures with backoff. It is a reusable building block shared by any of
// the external collaborator boundaries rather than a single API-specific
// client.
type httpTransport struct {
	name           string
	baseURL        string
	httpClient     *http.Client
	rateLimiter    *rate.Limiter
	circuitBreaker *CircuitBreaker
	retryConfig    RetryConfig
	logger         *zap.Logger
}

// TransportOptions configures a new httpTransport.
type TransportOptions struct {
	Name       string
	BaseURL    string
	HTTPClient *http.Client
	RateLimit  rate.Limit // requests per second; 0 disables limiting
	RateBurst  int
	CircuitCfg CircuitBreakerConfig
	RetryCfg   RetryConfig
	Logger     *zap.Logger
	RequestTO  time.Duration
}

func newHTTPTransport(opts TransportOptions) *httpTransport {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.RequestTO
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.RateLimit, burst)
	}

	return &httpTransport{
		name:           opts.Name,
		baseURL:        opts.BaseURL,
		httpClient:     client,
		rateLimiter:    limiter,
		circuitBreaker: NewCircuitBreaker(opts.Name, opts.CircuitCfg, opts.Logger),
		retryConfig:    opts.RetryCfg,
		logger:         opts.Logger,
	}
}

// doJSON performs method/path with an optional JSON-encoded body, decoding
// the JSON response into out (if non-nil), subject to rate limiting, retry
// with backoff, and circuit breaking. Any failure is wrapped in a
// scaler.TransientCollaboratorError-compatible form by the caller.
func (t *httpTransport) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	if t.rateLimiter != nil {
		if err := t.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limiter wait: %w", t.name, err)
		}
	}

	return Do(ctx, t.retryConfig, func() error {
		return t.circuitBreaker.Call(func() error {
			return t.doOnce(ctx, method, path, body, out)
		})
	})
}

// doRaw performs method/path and hands back the raw response body, subject
// to the same rate limiting, retry, and circuit breaking as doJSON. Used by
// collaborators whose wire format isn't JSON (e.g. rule storage's YAML
// documents).
func (t *httpTransport) doRaw(ctx context.Context, method, path string, out *[]byte) error {
	if t.rateLimiter != nil {
		if err := t.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limiter wait: %w", t.name, err)
		}
	}

	return Do(ctx, t.retryConfig, func() error {
		return t.circuitBreaker.Call(func() error {
			body, err := t.fetchRaw(ctx, method, path)
			if err != nil {
				return err
			}
			*out = body
			return nil
		})
	})
}

func (t *httpTransport) fetchRaw(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", t.name, err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", t.name, err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, MaxResponseBodySize)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", t.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: unexpected status %d: %s", t.name, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (t *httpTransport) doOnce(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", t.name, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", t.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", t.name, err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, MaxResponseBodySize)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", t.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d: %s", t.name, resp.StatusCode, string(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", t.name, err)
	}
	return nil
}
