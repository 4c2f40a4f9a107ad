package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/jinzhu/inflection"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/llm"
	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/metrics"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/prompts"
)

// DegradedText introduces the raw table shown when synthesis fails.
const DegradedText = "A written answer is unavailable, so here is the raw result."

const degradedTableRows = 50

// ResponseSynthesizer turns an execution result into a streamed answer.
type ResponseSynthesizer interface {
	// Synthesize returns a lazy token stream. Nothing is requested from the
	// provider until the first Next. Provider failure degrades the answer to
	// the raw table and is never an error.
	Synthesize(ctx context.Context, question string, result models.ExecutionResult) (*AnswerStream, error)
}

type responseSynthesizer struct {
	generator SQLGenerator
	logger    *zap.Logger
}

var _ ResponseSynthesizer = (*responseSynthesizer)(nil)

func NewResponseSynthesizer(generator SQLGenerator, logger *zap.Logger) ResponseSynthesizer {
	return &responseSynthesizer{generator: generator, logger: logger.Named("synthesizer")}
}

func (s *responseSynthesizer) Synthesize(ctx context.Context, question string, result models.ExecutionResult) (*AnswerStream, error) {
	if result.IsFailed() {
		return nil, fmt.Errorf("cannot synthesize an answer: %s", result.Message)
	}
	ctx, cancel := context.WithCancelCause(ctx)
	return &AnswerStream{
		ctx:    ctx,
		cancel: cancel,
		open: func(ctx context.Context) (llm.TokenStream, error) {
			return s.generator.StreamAnswer(ctx, question, result)
		},
		result: result,
		logger: s.logger,
	}, nil
}

// AnswerStream is a finite, cancellable sequence of answer tokens. It is
// consumed by one goroutine; Cancel may be called from any goroutine.
type AnswerStream struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	open   func(ctx context.Context) (llm.TokenStream, error)
	result models.ExecutionResult
	logger *zap.Logger

	stream   llm.TokenStream
	fallback []string // degraded tokens still to emit; the last one is the table
	text     strings.Builder
	answer   models.Answer
	done     bool
	err      error

	releaseOnce sync.Once
	release     func()
}

// Next returns the next token, or false once the stream has ended. After
// false, Answer holds the assembled result and Err reports cancellation.
func (a *AnswerStream) Next() (string, bool) {
	if a.done {
		return "", false
	}
	if a.ctx.Err() != nil {
		a.finish(context.Cause(a.ctx))
		return "", false
	}

	if a.answer.Degraded {
		if len(a.fallback) == 0 {
			a.finish(nil)
			return "", false
		}
		tok := a.fallback[0]
		a.fallback = a.fallback[1:]
		if len(a.fallback) > 0 {
			a.text.WriteString(tok)
		}
		return tok, true
	}

	if a.stream == nil {
		stream, err := a.open(a.ctx)
		if err != nil {
			a.degrade(err)
			return a.Next()
		}
		a.stream = stream
	}

	tok, err := a.stream.Recv()
	switch {
	case err == nil:
		a.text.WriteString(tok)
		return tok, true
	case errors.Is(err, io.EOF):
		a.finish(nil)
		return "", false
	default:
		a.degrade(err)
		return a.Next()
	}
}

// degrade switches to the raw-table fallback. A failure caused by the
// stream's own cancellation is not degradation.
func (a *AnswerStream) degrade(err error) {
	a.closeStream()
	if a.ctx.Err() != nil {
		a.finish(context.Cause(a.ctx))
		return
	}

	a.logger.Warn("answer synthesis degraded",
		zap.String("error_type", string(llm.GetErrorType(err))),
		zap.String("error", logging.SanitizeError(err)),
	)
	metrics.RecordDegradedAnswer()

	table := RenderTable(a.result, degradedTableRows)
	a.answer.Degraded = true
	a.answer.Table = table

	prefix := ""
	if a.text.Len() > 0 {
		prefix = "\n\n"
	}
	a.fallback = append(llm.SplitWords(prefix+DegradedText+"\n\n"), table)
}

func (a *AnswerStream) finish(err error) {
	a.done = true
	a.err = err
	a.closeStream()
	a.answer.Text = strings.TrimSpace(a.text.String())
	a.answer.NoData = a.result.IsEmpty()
	a.cancel(nil)
	a.runRelease()
}

func (a *AnswerStream) runRelease() {
	a.releaseOnce.Do(func() {
		if a.release != nil {
			a.release()
		}
	})
}

func (a *AnswerStream) closeStream() {
	if a.stream != nil {
		_ = a.stream.Close()
		a.stream = nil
	}
}

// Err returns the cancellation cause if the stream was cancelled before it
// completed, and nil otherwise. Provider failures are not errors.
func (a *AnswerStream) Err() error {
	return a.err
}

// Cancel stops the stream. The next call to Next returns false and Err
// returns cause, or context.Canceled when cause is nil.
func (a *AnswerStream) Cancel(cause error) {
	a.cancel(cause)
	a.runRelease()
}

// Answer returns the assembled answer. It is complete once Next has returned false.
func (a *AnswerStream) Answer() models.Answer {
	return a.answer
}

// Done reports whether the stream has ended.
func (a *AnswerStream) Done() bool {
	return a.done
}

// Tokens adapts the stream to a range-over-func sequence. Stopping the range
// early cancels the stream.
func (a *AnswerStream) Tokens() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			tok, ok := a.Next()
			if !ok {
				return
			}
			if !yield(tok) {
				a.Cancel(nil)
				a.Next()
				return
			}
		}
	}
}

// Collect drains the stream and returns the assembled answer.
func (a *AnswerStream) Collect() (models.Answer, error) {
	for range a.Tokens() {
	}
	return a.Answer(), a.Err()
}

// onFinish registers fn to run once when the stream ends or is cancelled.
func (a *AnswerStream) onFinish(fn func()) {
	a.release = fn
}

// RenderTable draws result as a plain-text table of at most maxRows rows.
func RenderTable(result models.ExecutionResult, maxRows int) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader(result.Columns)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	for i, row := range result.Rows {
		if i >= maxRows {
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = prompts.FormatValue(v)
		}
		table.Append(cells)
	}
	table.Render()

	if n := len(result.Rows); n > maxRows || result.Truncated {
		fmt.Fprintf(&buf, "(showing %s of %s%s %s)\n",
			humanize.Comma(int64(min(n, maxRows))),
			moreMarker(result.Truncated),
			humanize.Comma(int64(n)),
			inflection.Plural("row"))
	}
	return buf.String()
}

func moreMarker(truncated bool) string {
	if truncated {
		return "more than "
	}
	return ""
}
