package llm

import (
	"context"
	"sync"
)

// MockProvider is a deterministic provider for tests. Responses and Errors
// are consumed in call order; once exhausted the last entry repeats.
type MockProvider struct {
	mu sync.Mutex

	Responses []string
	Errors    []error

	// StreamFunc, when set, serves Stream calls.
	StreamFunc func(ctx context.Context, prompt string) (TokenStream, error)

	// Prompts records every prompt received, in order.
	Prompts []string

	CompleteCalls int
	StreamCalls   int
}

// NewMockProvider returns a mock that answers with the given responses in order.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{Responses: responses}
}

func (m *MockProvider) next() (string, error) {
	i := m.CompleteCalls + m.StreamCalls - 1
	var resp string
	var err error
	if len(m.Errors) > 0 {
		err = m.Errors[min(i, len(m.Errors)-1)]
	}
	if len(m.Responses) > 0 {
		resp = m.Responses[min(i, len(m.Responses)-1)]
	}
	return resp, err
}

// Complete implements TextCompletionProvider. It honors ctx cancellation.
func (m *MockProvider) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompleteCalls++
	m.Prompts = append(m.Prompts, prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.next()
}

// Calls returns the total number of provider calls.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompleteCalls + m.StreamCalls
}

// MockStreamingProvider adds Stream to MockProvider, replaying the next
// response split into words unless StreamFunc is set.
type MockStreamingProvider struct {
	*MockProvider
}

// NewMockStreamingProvider returns a streaming mock over the given responses.
func NewMockStreamingProvider(responses ...string) *MockStreamingProvider {
	return &MockStreamingProvider{MockProvider: NewMockProvider(responses...)}
}

// Stream implements StreamingProvider.
func (m *MockStreamingProvider) Stream(ctx context.Context, prompt string) (TokenStream, error) {
	m.mu.Lock()
	m.StreamCalls++
	m.Prompts = append(m.Prompts, prompt)
	fn := m.StreamFunc
	resp, err := m.next()
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}
	return NewSliceStream(SplitWords(resp)), nil
}
