package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-ask/pkg/retry"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
		status    int
	}{
		{"canceled", context.Canceled, ErrorTypeCanceled, false, 0},
		{"wrapped canceled", fmt.Errorf("stream: %w", context.Canceled), ErrorTypeCanceled, false, 0},
		{"deadline", context.DeadlineExceeded, ErrorTypeEndpoint, true, 0},
		{"openai 401", &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}, ErrorTypeAuth, false, 401},
		{"openai 429", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, ErrorTypeRateLimit, true, 429},
		{"request error 502", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, ErrorTypeEndpoint, true, 502},
		{"model missing", errors.New("The model `gpt-9` does not exist"), ErrorTypeModel, false, 0},
		{"plain 404", errors.New("error, status code: 404, message: nope"), ErrorTypeEndpoint, false, 404},
		{"connection refused", errors.New("dial tcp 127.0.0.1:8080: connection refused"), ErrorTypeEndpoint, true, 0},
		{"overloaded", errors.New("anthropic: overloaded_error"), ErrorTypeEndpoint, true, 0},
		{"invalid x-api-key", errors.New("authentication_error: invalid x-api-key"), ErrorTypeAuth, false, 0},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.Equal(t, tt.status, got.StatusCode)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyError_PassesThroughStructured(t *testing.T) {
	assert.Nil(t, ClassifyError(nil))

	orig := NewError(ErrorTypeExtraction, "no sql", true, nil)
	wrapped := fmt.Errorf("attempt 2: %w", orig)
	assert.Same(t, orig, ClassifyError(wrapped))
}

func TestError_Message(t *testing.T) {
	e := NewError(ErrorTypeRateLimit, "rate limited", true, errors.New("429 too many"))
	e.Provider = "openai"
	e.StatusCode = 429
	assert.Equal(t, "rate_limit openai HTTP 429 rate limited: 429 too many", e.Error())

	assert.Equal(t, "auth bad key", NewError(ErrorTypeAuth, "bad key", false, nil).Error())
}

func TestError_DrivesRetryDecision(t *testing.T) {
	assert.True(t, retry.IsRetryable(NewError(ErrorTypeRateLimit, "x", true, nil)))
	assert.False(t, retry.IsRetryable(NewError(ErrorTypeAuth, "x", false, nil)))
	assert.True(t, retry.IsRetryable(ErrNoStatement))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(errors.New("plain")))
}
