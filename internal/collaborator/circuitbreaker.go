package collaborator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when the circuit breaker is open and a call is
// rejected without being attempted.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState is one of closed, open, half-open.
type CircuitBreakerState string

const (
	StateClosed   CircuitBreakerState = "closed"
	StateOpen     CircuitBreakerState = "open"
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig configures the circuit breaker behavior wrapping a
// single collaborator (cluster-state authority, provisioner, or rule
// storage).
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes in half-open
	// needed to close again.
	SuccessThreshold int

	// Timeout is how long to stay open before trying a half-open probe.
	Timeout time.Duration

	// MaxHalfOpenRequests caps concurrent probe requests while half-open.
	MaxHalfOpenRequests int
}

// DefaultCircuitBreakerConfig returns sane defaults for a collaborator HTTP
// client: open after 5 consecutive failures, probe after 30s, close after
// 2 consecutive probe successes.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// CircuitBreaker implements the circuit breaker pattern around a
// collaborator call, isolating a failing cluster-state authority or
// provisioner from being hammered by every ScalerLoop tick while it is down.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger *zap.Logger

	mu               sync.Mutex
	state            CircuitBreakerState
	failureCount     int
	successCount     int
	lastStateChange  time.Time
	halfOpenRequests int
}

// NewCircuitBreaker creates a circuit breaker named for the collaborator it
// guards (used only in log lines).
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logger,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Call executes fn with circuit breaker protection, returning ErrCircuitOpen
// without invoking fn if the circuit is currently open.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn()
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if now.Sub(cb.lastStateChange) >= cb.config.Timeout {
			cb.transitionTo(StateHalfOpen, "timeout elapsed")
			cb.halfOpenRequests++
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.config.MaxHalfOpenRequests {
			return ErrCircuitOpen
		}
		cb.halfOpenRequests++
		return nil

	default:
		return fmt.Errorf("unknown circuit breaker state: %s", cb.state)
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		if err != nil {
			cb.failureCount++
			cb.successCount = 0
			if cb.failureCount >= cb.config.FailureThreshold {
				cb.transitionTo(StateOpen, fmt.Sprintf("failure threshold reached (%d failures)", cb.failureCount))
			}
		} else {
			cb.failureCount = 0
		}

	case StateHalfOpen:
		cb.halfOpenRequests--
		if err != nil {
			cb.failureCount++
			cb.successCount = 0
			cb.transitionTo(StateOpen, "failure in half-open state")
		} else {
			cb.successCount++
			if cb.successCount >= cb.config.SuccessThreshold {
				cb.transitionTo(StateClosed, fmt.Sprintf("success threshold reached (%d successes)", cb.successCount))
			}
		}

	case StateOpen:
		// Can't happen: beforeCall never lets fn run while open.
	}
}

func (cb *CircuitBreaker) transitionTo(newState CircuitBreakerState, reason string) {
	oldState := cb.state
	if newState == oldState {
		return
	}
	cb.state = newState
	cb.lastStateChange = time.Now()
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenRequests = 0

	if cb.logger != nil {
		cb.logger.Info("circuit breaker state changed",
			zap.String("collaborator", cb.name),
			zap.String("from", string(oldState)),
			zap.String("to", string(newState)),
			zap.String("reason", reason))
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
