// Package llm talks to text-completion providers.
//
// The pipeline treats every provider as untrusted: output is text that still
// has to be extracted, classified and validated before anything acts on it.
package llm

import (
	"context"
	"io"
	"time"
)

// TextCompletionProvider turns a prompt into raw completion text.
type TextCompletionProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// StreamingProvider is a provider that can also deliver its completion incrementally.
type StreamingProvider interface {
	TextCompletionProvider
	Stream(ctx context.Context, prompt string) (TokenStream, error)
}

// TokenStream yields completion fragments. Recv returns io.EOF after the last
// fragment. Close releases the underlying connection and may be called at any time.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// Config holds provider settings shared by all implementations.
type Config struct {
	Provider    string  // "openai" or "anthropic"
	Endpoint    string  // Base URL; empty uses the provider default
	Model       string  // Model name, e.g. "gpt-4o"
	APIKey      string  // Optional for local OpenAI-compatible endpoints
	Temperature float64 // Sampling temperature for SQL generation
	MaxTokens   int
	Timeout     time.Duration // Per HTTP call, streams included; zero means none
}

// sliceStream replays pre-split tokens as a TokenStream.
type sliceStream struct {
	tokens []string
	pos    int
	closed bool
}

// NewSliceStream returns a TokenStream over fixed tokens.
func NewSliceStream(tokens []string) TokenStream {
	return &sliceStream{tokens: tokens}
}

func (s *sliceStream) Recv() (string, error) {
	if s.closed || s.pos >= len(s.tokens) {
		return "", io.EOF
	}
	tok := s.tokens[s.pos]
	s.pos++
	return tok, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

// SplitWords splits text into tokens that concatenate back to text: each
// token is a word plus the whitespace that follows it.
func SplitWords(text string) []string {
	var tokens []string
	start := 0
	inSpace := false
	for i, r := range text {
		isSpace := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if inSpace && !isSpace {
			tokens = append(tokens, text[start:i])
			start = i
		}
		inSpace = isSpace
	}
	if start < len(text) {
		tokens = append(tokens, text[start:])
	}
	return tokens
}
