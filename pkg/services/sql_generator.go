package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ask/pkg/llm"
	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/prompts"
	"github.com/ekaya-inc/ekaya-ask/pkg/retry"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

// NoDataText is the fixed answer for an Empty result.
const NoDataText = "No data matched your question."

// Defaults for GeneratorConfig.
const (
	DefaultGenerationAttempts = 3
	DefaultAnswerMaxRows      = 50
	DefaultAnswerMaxBytes     = 8 * 1024
)

// SQLGenerator turns prompts into candidate statements and result sets into
// answers, both through the text-completion provider.
type SQLGenerator interface {
	// GenerateSQL returns one candidate statement. Transport failures and
	// responses holding no parseable statement are retried; after the last
	// attempt the error wraps ErrGenerationFailed.
	GenerateSQL(ctx context.Context, prompt models.Prompt) (models.GeneratedSQL, error)

	// SynthesizeAnswer summarizes result for question. Empty results and
	// writes without returned rows are answered without calling the provider.
	SynthesizeAnswer(ctx context.Context, question string, result models.ExecutionResult) (models.Answer, error)

	// StreamAnswer is SynthesizeAnswer delivered incrementally. Fixed answers
	// are replayed word by word.
	StreamAnswer(ctx context.Context, question string, result models.ExecutionResult) (llm.TokenStream, error)
}

// GeneratorConfig bounds generation retries and the answer prompt size.
type GeneratorConfig struct {
	MaxAttempts    int
	RetryDelay     time.Duration // first backoff delay; doubles per attempt
	AnswerMaxRows  int
	AnswerMaxBytes int
}

type sqlGenerator struct {
	provider llm.TextCompletionProvider
	cfg      GeneratorConfig
	retry    *retry.Config
	logger   *zap.Logger
}

var _ SQLGenerator = (*sqlGenerator)(nil)

// NewSQLGenerator creates a generator over provider.
func NewSQLGenerator(provider llm.TextCompletionProvider, cfg GeneratorConfig, logger *zap.Logger) SQLGenerator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultGenerationAttempts
	}
	if cfg.AnswerMaxRows <= 0 {
		cfg.AnswerMaxRows = DefaultAnswerMaxRows
	}
	if cfg.AnswerMaxBytes <= 0 {
		cfg.AnswerMaxBytes = DefaultAnswerMaxBytes
	}
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.MaxAttempts
	if cfg.RetryDelay > 0 {
		retryCfg.InitialDelay = cfg.RetryDelay
	}
	return &sqlGenerator{
		provider: provider,
		cfg:      cfg,
		retry:    retryCfg,
		logger:   logger.Named("llm"),
	}
}

func (g *sqlGenerator) GenerateSQL(ctx context.Context, prompt models.Prompt) (models.GeneratedSQL, error) {
	start := time.Now()
	attempts := 0

	gen, err := retry.DoIfRetryable(ctx, g.retry, func(attempt int) (models.GeneratedSQL, error) {
		attempts = attempt
		raw, err := g.provider.Complete(ctx, prompt.Text)
		if err != nil {
			g.logger.Warn("provider call failed",
				zap.Int("attempt", attempt),
				zap.String("error_type", string(llm.GetErrorType(err))),
				zap.String("error", logging.SanitizeError(err)),
			)
			return models.GeneratedSQL{}, err
		}
		return g.candidate(raw, attempt)
	})
	if err != nil {
		g.logger.Error("sql generation failed",
			zap.Int("attempts", attempts),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return models.GeneratedSQL{}, fmt.Errorf("%w: %w", apperrors.ErrGenerationFailed, err)
	}

	gen.Attempts = attempts
	g.logger.Info("generated sql",
		zap.String("statement_kind", string(gen.Kind)),
		zap.String("operation", gen.Operation),
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("sql", logging.SanitizeQuery(gen.SQL)),
	)
	return gen, nil
}

// candidate extracts and classifies one statement from raw provider output.
// Text the lexer cannot read counts as no statement and is retried; a
// multi-statement candidate is passed on for the validator to reject.
func (g *sqlGenerator) candidate(raw string, attempt int) (models.GeneratedSQL, error) {
	text, err := llm.ExtractSQL(raw)
	if err != nil {
		g.logger.Warn("no statement in provider response",
			zap.Int("attempt", attempt),
			zap.Int("response_length", len(raw)),
		)
		return models.GeneratedSQL{}, err
	}

	kind, op, err := sql.Classify(text, sql.DialectAny)
	if err != nil {
		var perr *sql.ParseError
		if !errors.As(err, &perr) || perr.Reason == models.ReasonUnparseable {
			g.logger.Warn("candidate statement does not parse",
				zap.Int("attempt", attempt),
				zap.String("error", err.Error()),
			)
			return models.GeneratedSQL{}, llm.NewError(llm.ErrorTypeExtraction, "candidate statement does not parse", true, err)
		}
		kind = models.KindUnknown
	}
	return models.GeneratedSQL{SQL: text, Kind: kind, Operation: op}, nil
}

// fixedAnswer returns the answer for results that need no provider call.
func fixedAnswer(result models.ExecutionResult) (models.Answer, bool) {
	switch {
	case result.IsEmpty():
		return models.Answer{Text: NoDataText, NoData: true}, true
	case result.IsRows() && isAffectedOnly(result):
		return models.Answer{Text: affectedText(result.RowsAffected)}, true
	}
	return models.Answer{}, false
}

// isAffectedOnly reports whether result is the count summary of a write.
// A SELECT aliasing a column to rows_affected still goes to the provider.
func isAffectedOnly(result models.ExecutionResult) bool {
	return result.Write && len(result.Columns) == 1 && result.Columns[0] == RowsAffectedColumn
}

func affectedText(n int64) string {
	noun := "row"
	if n != 1 {
		noun = inflection.Plural(noun)
	}
	return fmt.Sprintf("The statement changed %s %s.", humanize.Comma(n), noun)
}

func (g *sqlGenerator) answerPrompt(question string, result models.ExecutionResult) string {
	rows, dropped := prompts.CompactRows(result.Rows, g.cfg.AnswerMaxRows, g.cfg.AnswerMaxBytes)
	return prompts.BuildAnswerPrompt(question, prompts.ResultSet{
		Columns:   result.Columns,
		Rows:      rows,
		TotalRows: len(result.Rows),
		Truncated: dropped || result.Truncated,
	})
}

func (g *sqlGenerator) SynthesizeAnswer(ctx context.Context, question string, result models.ExecutionResult) (models.Answer, error) {
	if result.IsFailed() {
		return models.Answer{}, fmt.Errorf("%w: no answer for a failed result", apperrors.ErrExecutionFailed)
	}
	if answer, ok := fixedAnswer(result); ok {
		return answer, nil
	}

	text, err := g.provider.Complete(ctx, g.answerPrompt(question, result))
	if err != nil {
		return models.Answer{}, fmt.Errorf("failed to synthesize answer: %w", err)
	}
	return models.Answer{Text: strings.TrimSpace(text)}, nil
}

func (g *sqlGenerator) StreamAnswer(ctx context.Context, question string, result models.ExecutionResult) (llm.TokenStream, error) {
	if result.IsFailed() {
		return nil, fmt.Errorf("%w: no answer for a failed result", apperrors.ErrExecutionFailed)
	}
	if answer, ok := fixedAnswer(result); ok {
		return llm.NewSliceStream(llm.SplitWords(answer.Text)), nil
	}

	prompt := g.answerPrompt(question, result)
	if sp, ok := g.provider.(llm.StreamingProvider); ok {
		stream, err := sp.Stream(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("failed to stream answer: %w", err)
		}
		return stream, nil
	}

	text, err := g.provider.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize answer: %w", err)
	}
	return llm.NewSliceStream(llm.SplitWords(strings.TrimSpace(text))), nil
}
