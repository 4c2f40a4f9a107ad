package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures before the circuit trips.
	Threshold int
	// ResetAfter is how long an open circuit waits before letting a trial request through.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig trips after 5 consecutive failures and tries again after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// CircuitBreaker stops calling a provider that keeps failing.
type CircuitBreaker struct {
	mu               sync.Mutex
	consecutiveFails int
	threshold        int
	resetAfter       time.Duration
	lastFailure      time.Time
	state            CircuitState
	now              func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Threshold <= 0 {
		config.Threshold = DefaultCircuitBreakerConfig().Threshold
	}
	return &CircuitBreaker{
		threshold:  config.Threshold,
		resetAfter: config.ResetAfter,
		state:      CircuitClosed,
		now:        time.Now,
	}
}

// Allow returns nil if a request may proceed. An open circuit becomes
// half-open once ResetAfter has elapsed and admits exactly one trial request.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		since := cb.now().Sub(cb.lastFailure)
		if since > cb.resetAfter {
			cb.state = CircuitHalfOpen
			return nil
		}
		return NewError(ErrorTypeUnavailable,
			fmt.Sprintf("circuit breaker open: provider failed %d times, last failure %v ago",
				cb.consecutiveFails, since.Round(time.Second)), false, nil)
	default:
		return NewError(ErrorTypeUnavailable, "circuit breaker half-open: waiting on trial request", false, nil)
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure increments the failure count and trips the circuit if threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.now()

	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the current count of consecutive failures.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFails
}

// record updates the breaker from a call outcome. Cancellations say nothing
// about provider health and are ignored.
func (cb *CircuitBreaker) record(err error) {
	switch {
	case err == nil:
		cb.RecordSuccess()
	case GetErrorType(err) == ErrorTypeCanceled:
		cb.mu.Lock()
		if cb.state == CircuitHalfOpen {
			cb.state = CircuitOpen
		}
		cb.mu.Unlock()
	default:
		cb.RecordFailure()
	}
}

// guardedProvider routes calls through a circuit breaker.
type guardedProvider struct {
	inner   TextCompletionProvider
	breaker *CircuitBreaker
}

// guardedStreamingProvider additionally guards stream creation.
type guardedStreamingProvider struct {
	guardedProvider
	streamer StreamingProvider
}

// WithCircuitBreaker wraps p so that calls fail fast while the breaker is
// open. Streaming capability is preserved.
func WithCircuitBreaker(p TextCompletionProvider, breaker *CircuitBreaker) TextCompletionProvider {
	g := guardedProvider{inner: p, breaker: breaker}
	if sp, ok := p.(StreamingProvider); ok {
		return &guardedStreamingProvider{guardedProvider: g, streamer: sp}
	}
	return &g
}

func (g *guardedProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if err := g.breaker.Allow(); err != nil {
		return "", err
	}
	out, err := g.inner.Complete(ctx, prompt)
	if err != nil {
		err = ClassifyError(err)
	}
	g.breaker.record(err)
	return out, err
}

func (g *guardedStreamingProvider) Stream(ctx context.Context, prompt string) (TokenStream, error) {
	if err := g.breaker.Allow(); err != nil {
		return nil, err
	}
	stream, err := g.streamer.Stream(ctx, prompt)
	if err != nil {
		err = ClassifyError(err)
	}
	g.breaker.record(err)
	return stream, err
}
