package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewAnthropicProvider creates a provider for the Anthropic Messages API.
func NewAnthropicProvider(cfg Config, logger *zap.Logger) (*AnthropicProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	var opts []anthropic.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.Endpoint))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, anthropic.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicProvider{
		client:    anthropic.NewClient(cfg.APIKey, opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
		logger:    logger.Named("llm").With(zap.String("provider", "anthropic")),
	}, nil
}

func (p *AnthropicProvider) request(prompt string) anthropic.MessagesRequest {
	return anthropic.MessagesRequest{
		Model:     anthropic.Model(p.model),
		Messages:  []anthropic.Message{anthropic.NewUserTextMessage(prompt)},
		MaxTokens: p.maxTokens,
	}
}

// Complete implements TextCompletionProvider.
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string) (string, error) {
	p.logger.Debug("LLM request",
		zap.String("model", p.model),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()
	resp, err := p.client.CreateMessages(ctx, p.request(prompt))
	if err != nil {
		p.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", p.classify(err)
	}

	var text string
	for _, block := range resp.Content {
		text += block.GetText()
	}

	p.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.InputTokens),
		zap.Int("completion_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return text, nil
}

// Stream implements StreamingProvider. The SDK delivers deltas through a
// callback, so the request runs in a goroutine feeding a channel until the
// stream is closed or ctx is done.
func (p *AnthropicProvider) Stream(ctx context.Context, prompt string) (TokenStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &anthropicStream{
		tokens: make(chan string),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(s.done)
		_, err := p.client.CreateMessagesStream(ctx, anthropic.MessagesStreamRequest{
			MessagesRequest: p.request(prompt),
			OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
				text := data.Delta.GetText()
				if text == "" {
					return
				}
				select {
				case s.tokens <- text:
				case <-ctx.Done():
				}
			},
		})
		if err != nil && ctx.Err() == nil {
			p.logger.Error("Stream failed", zap.Error(err))
			s.setErr(p.classify(err))
		}
	}()

	return s, nil
}

func (p *AnthropicProvider) classify(err error) error {
	e := ClassifyError(err)
	e.Provider = "anthropic"
	return e
}

type anthropicStream struct {
	tokens chan string
	done   chan struct{}
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (s *anthropicStream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *anthropicStream) Recv() (string, error) {
	select {
	case tok := <-s.tokens:
		return tok, nil
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
}

func (s *anthropicStream) Close() error {
	s.cancel()
	<-s.done
	return nil
}
