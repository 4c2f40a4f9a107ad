package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// NewProvider builds the configured provider wrapped in a circuit breaker.
func NewProvider(cfg Config, breaker CircuitBreakerConfig, logger *zap.Logger) (TextCompletionProvider, error) {
	var (
		p   TextCompletionProvider
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		p, err = NewOpenAIProvider(cfg, logger)
	case "anthropic":
		p, err = NewAnthropicProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", cfg.Provider, err)
	}
	return WithCircuitBreaker(p, NewCircuitBreaker(breaker)), nil
}
