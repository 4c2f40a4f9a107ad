package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIProvider calls OpenAI-compatible chat completion endpoints.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible endpoint.
func NewOpenAIProvider(cfg Config, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		logger:      logger.Named("llm").With(zap.String("provider", "openai")),
	}, nil
}

func (p *OpenAIProvider) request(prompt string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:         p.temperature,
		MaxCompletionTokens: p.maxTokens,
		Stream:              stream,
	}
}

// Complete implements TextCompletionProvider.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	p.logger.Debug("LLM request",
		zap.String("model", p.model),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, p.request(prompt, false))
	if err != nil {
		p.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", NewError(ErrorTypeUnknown, "no choices in response", true, nil)
	}

	p.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

// Stream implements StreamingProvider.
func (p *OpenAIProvider) Stream(ctx context.Context, prompt string) (TokenStream, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.request(prompt, true))
	if err != nil {
		p.logger.Error("Failed to create stream", zap.Error(err))
		return nil, p.classify(err)
	}
	return &openAIStream{stream: stream, provider: p}, nil
}

func (p *OpenAIProvider) classify(err error) error {
	e := ClassifyError(err)
	e.Provider = "openai"
	return e
}

type openAIStream struct {
	stream   *openai.ChatCompletionStream
	provider *OpenAIProvider
}

func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", s.provider.classify(err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}
