package llm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, resetAfter time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: threshold, ResetAfter: resetAfter})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second)

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_ZeroThresholdUsesDefault(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	for i := 0; i < DefaultCircuitBreakerConfig().Threshold-1; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, CircuitClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
	require.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, 3, cb.ConsecutiveFailures())

	err := cb.Allow()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, ErrorTypeUnavailable, GetErrorType(err))
	assert.False(t, IsRetryable(err))
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	assert.Equal(t, 0, cb.ConsecutiveFailures())
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	cb, now := newTestBreaker(2, 10*time.Second)
	cb.RecordFailure()
	cb.RecordFailure()
	require.Error(t, cb.Allow())

	*now = now.Add(11 * time.Second)

	// One trial request is admitted; concurrent callers are held back until it reports.
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())
	err := cb.Allow()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "half-open")

	t.Run("trial failure reopens", func(t *testing.T) {
		cb.RecordFailure()
		assert.Equal(t, CircuitOpen, cb.State())
		require.Error(t, cb.Allow())
	})

	t.Run("trial success closes", func(t *testing.T) {
		*now = now.Add(11 * time.Second)
		require.NoError(t, cb.Allow())
		cb.RecordSuccess()
		assert.Equal(t, CircuitClosed, cb.State())
		assert.NoError(t, cb.Allow())
	})
}

func TestCircuitState_String(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestWithCircuitBreaker_FailsFastWhenOpen(t *testing.T) {
	mock := NewMockProvider()
	mock.Errors = []error{errors.New("status code: 503, service unavailable")}
	cb, _ := newTestBreaker(2, time.Minute)
	p := WithCircuitBreaker(mock, cb)

	for i := 0; i < 2; i++ {
		_, err := p.Complete(context.Background(), "q")
		require.Error(t, err)
		assert.Equal(t, ErrorTypeEndpoint, GetErrorType(err))
		assert.True(t, IsRetryable(err))
	}

	_, err := p.Complete(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeUnavailable, GetErrorType(err))
	assert.Equal(t, 2, mock.Calls(), "open circuit must not reach the provider")
}

func TestWithCircuitBreaker_CancellationNotCounted(t *testing.T) {
	mock := NewMockProvider("SELECT 1")
	cb, _ := newTestBreaker(1, time.Minute)
	p := WithCircuitBreaker(mock, cb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Complete(ctx, "q")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCanceled, GetErrorType(err))
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())

	out, err := p.Complete(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", out)
}

func TestWithCircuitBreaker_PreservesStreaming(t *testing.T) {
	mock := NewMockStreamingProvider("The north region leads.")
	p := WithCircuitBreaker(mock, NewCircuitBreaker(DefaultCircuitBreakerConfig()))

	sp, ok := p.(StreamingProvider)
	require.True(t, ok)

	stream, err := sp.Stream(context.Background(), "summarize")
	require.NoError(t, err)
	defer stream.Close()

	var got string
	for {
		tok, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got += tok
	}
	assert.Equal(t, "The north region leads.", got)

	_, ok = WithCircuitBreaker(NewMockProvider(), defaultBreaker()).(StreamingProvider)
	assert.False(t, ok)
}

func defaultBreaker() *CircuitBreaker {
	return NewCircuitBreaker(DefaultCircuitBreakerConfig())
}
