package services

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ask/pkg/llm"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// brokenStream yields its tokens and then fails.
type brokenStream struct {
	tokens []string
	closed bool
}

func (s *brokenStream) Recv() (string, error) {
	if len(s.tokens) == 0 {
		return "", errors.New("stream reset: 503 overloaded")
	}
	tok := s.tokens[0]
	s.tokens = s.tokens[1:]
	return tok, nil
}

func (s *brokenStream) Close() error {
	s.closed = true
	return nil
}

var regionRows = models.RowsResult([]string{"region", "total"}, [][]any{{"north", 150.0}, {"south", 70.0}})

func newTestSynthesizer(t *testing.T, provider llm.TextCompletionProvider) ResponseSynthesizer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return NewResponseSynthesizer(NewSQLGenerator(provider, GeneratorConfig{}, logger), logger)
}

func TestAnswerStream_Streams(t *testing.T) {
	provider := llm.NewMockStreamingProvider("North leads with 150.")
	stream, err := newTestSynthesizer(t, provider).Synthesize(context.Background(), "q", regionRows)
	require.NoError(t, err)

	assert.Equal(t, 0, provider.Calls(), "nothing is requested before the first Next")

	tokens := slices.Collect(stream.Tokens())
	assert.Equal(t, []string{"North ", "leads ", "with ", "150."}, tokens)
	assert.True(t, stream.Done())
	assert.NoError(t, stream.Err())
	assert.Equal(t, "North leads with 150.", stream.Answer().Text)
	assert.False(t, stream.Answer().Degraded)
}

func TestAnswerStream_DegradesMidStream(t *testing.T) {
	provider := llm.NewMockStreamingProvider()
	broken := &brokenStream{tokens: []string{"North ", "leads"}}
	provider.StreamFunc = func(context.Context, string) (llm.TokenStream, error) {
		return broken, nil
	}

	stream, err := newTestSynthesizer(t, provider).Synthesize(context.Background(), "q", regionRows)
	require.NoError(t, err)

	answer, err := stream.Collect()
	require.NoError(t, err)
	assert.True(t, answer.Degraded)
	assert.True(t, broken.closed)
	assert.Equal(t, "North leads\n\n"+DegradedText, answer.Text)
	assert.Contains(t, answer.Table, "north")
	assert.Contains(t, answer.Table, "south")
}

func TestAnswerStream_DegradesWhenOpenFails(t *testing.T) {
	provider := llm.NewMockStreamingProvider("")
	provider.Errors = []error{errors.New("status code: 500")}

	stream, err := newTestSynthesizer(t, provider).Synthesize(context.Background(), "q", regionRows)
	require.NoError(t, err)

	var tokens []string
	for tok := range stream.Tokens() {
		tokens = append(tokens, tok)
	}
	require.NotEmpty(t, tokens)
	assert.Equal(t, stream.Answer().Table, tokens[len(tokens)-1], "the table is the final token")
	assert.Equal(t, DegradedText, stream.Answer().Text)
}

func TestAnswerStream_Cancel(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		want  error
	}{
		{name: "no cause", cause: nil, want: context.Canceled},
		{name: "superseded", cause: apperrors.ErrSuperseded, want: apperrors.ErrSuperseded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := llm.NewMockStreamingProvider("North leads with 150.")
			stream, err := newTestSynthesizer(t, provider).Synthesize(context.Background(), "q", regionRows)
			require.NoError(t, err)

			released := 0
			stream.onFinish(func() { released++ })

			tok, ok := stream.Next()
			require.True(t, ok)
			assert.Equal(t, "North ", tok)

			stream.Cancel(tt.cause)
			_, ok = stream.Next()
			assert.False(t, ok)
			assert.ErrorIs(t, stream.Err(), tt.want)
			assert.False(t, stream.Answer().Degraded)
			assert.Equal(t, 1, released)
		})
	}
}

func TestAnswerStream_BreakCancels(t *testing.T) {
	provider := llm.NewMockStreamingProvider("North leads with 150.")
	stream, err := newTestSynthesizer(t, provider).Synthesize(context.Background(), "q", regionRows)
	require.NoError(t, err)

	for range stream.Tokens() {
		break
	}
	assert.True(t, stream.Done())
	assert.ErrorIs(t, stream.Err(), context.Canceled)
}

func TestAnswerStream_EmptyResult(t *testing.T) {
	provider := llm.NewMockStreamingProvider("unused")
	stream, err := newTestSynthesizer(t, provider).Synthesize(context.Background(), "q", models.EmptyResult([]string{"region"}))
	require.NoError(t, err)

	answer, err := stream.Collect()
	require.NoError(t, err)
	assert.True(t, answer.NoData)
	assert.Equal(t, NoDataText, answer.Text)
	assert.Equal(t, 0, provider.Calls())
}

func TestSynthesize_RefusesFailedResult(t *testing.T) {
	_, err := newTestSynthesizer(t, llm.NewMockProvider()).Synthesize(context.Background(), "q", models.FailedResult("boom"))
	assert.Error(t, err)
}

func TestRenderTable(t *testing.T) {
	t.Run("all rows", func(t *testing.T) {
		out := RenderTable(regionRows, 10)
		assert.Contains(t, out, "region")
		assert.Contains(t, out, "north")
		assert.Contains(t, out, "150")
		assert.NotContains(t, out, "showing")
	})

	t.Run("capped", func(t *testing.T) {
		out := RenderTable(regionRows, 1)
		assert.Contains(t, out, "north")
		assert.NotContains(t, out, "south")
		assert.Contains(t, out, "(showing 1 of 2 rows)")
	})

	t.Run("backend truncated", func(t *testing.T) {
		res := regionRows
		res.Truncated = true
		assert.Contains(t, RenderTable(res, 10), "(showing 2 of more than 2 rows)")
	})
}
