// Package retry runs operations with bounded attempts and jittered
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior. MaxAttempts counts the first call.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0, +/- fraction applied to each delay
}

// DefaultConfig returns 3 attempts starting at 200ms, doubling, capped at 2s, 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// ExhaustedError is returned when every attempt failed. It wraps the last error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// backoff tracks the delay between attempts.
type backoff struct {
	cfg   *Config
	delay time.Duration
}

// wait sleeps for the current delay, or returns ctx.Err() if cancelled first.
func (b *backoff) wait(ctx context.Context) error {
	t := time.NewTimer(applyJitter(b.delay, b.cfg.JitterFactor))
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.delay = time.Duration(float64(b.delay) * b.cfg.Multiplier)
	if b.delay > b.cfg.MaxDelay {
		b.delay = b.cfg.MaxDelay
	}
	return nil
}

func normalize(cfg *Config) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	if cfg.MaxAttempts <= 0 {
		c := *cfg
		c.MaxAttempts = 1
		return &c
	}
	return cfg
}

// Do calls fn until it succeeds or MaxAttempts is reached, retrying every error.
// fn receives the 1-based attempt number.
func Do(ctx context.Context, cfg *Config, fn func(attempt int) error) error {
	_, err := DoWithResult(ctx, cfg, func(attempt int) (struct{}, error) {
		return struct{}{}, fn(attempt)
	})
	return err
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func(attempt int) (T, error)) (T, error) {
	return run(ctx, normalize(cfg), fn, func(error) bool { return true })
}

// DoIfRetryable retries only errors for which IsRetryable returns true;
// any other error is returned immediately.
func DoIfRetryable[T any](ctx context.Context, cfg *Config, fn func(attempt int) (T, error)) (T, error) {
	return run(ctx, normalize(cfg), fn, IsRetryable)
}

func run[T any](ctx context.Context, cfg *Config, fn func(attempt int) (T, error), retryable func(error) bool) (T, error) {
	var zero T
	b := &backoff{cfg: cfg, delay: cfg.InitialDelay}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := fn(attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable(err) {
			return zero, err
		}
		if attempt < cfg.MaxAttempts {
			if werr := b.wait(ctx); werr != nil {
				return zero, werr
			}
		}
	}
	return zero, &ExhaustedError{Attempts: cfg.MaxAttempts, Last: lastErr}
}

// RetryableError is implemented by errors that declare their own retryability.
type RetryableError interface {
	error
	IsRetryable() bool
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"i/o timeout",
	"network is unreachable",
	"unexpected eof",
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"overloaded",
	"service unavailable",
	"too many requests",
}

// IsRetryable reports whether err is transient. Errors implementing
// RetryableError anywhere in their chain decide for themselves; otherwise the
// message is matched against known transient failures. Context cancellation
// is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
