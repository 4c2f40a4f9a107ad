package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/audit"
	"github.com/ekaya-inc/ekaya-ask/pkg/metrics"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// Submission is everything one request produced. Stages that did not run
// leave their fields zero: a rejected statement has no Execution, and a
// Failed execution has no Answer.
type Submission struct {
	RequestID    uuid.UUID               `json:"request_id"`
	GeneratedSQL models.GeneratedSQL     `json:"generated_sql"`
	Validation   models.ValidationResult `json:"validation"`
	Execution    *models.ExecutionResult `json:"execution,omitempty"`
	Answer       *AnswerStream           `json:"-"`
}

// Pipeline runs prompt assembly, generation, validation, execution and
// answer synthesis strictly in order.
type Pipeline struct {
	builder     PromptBuilder
	generator   SQLGenerator
	validator   SQLValidator
	executor    QueryExecutor
	synthesizer ResponseSynthesizer
	auditor     audit.Auditor
	sessions    *SessionManager
	logger      *zap.Logger
}

func NewPipeline(
	builder PromptBuilder,
	generator SQLGenerator,
	validator SQLValidator,
	executor QueryExecutor,
	synthesizer ResponseSynthesizer,
	auditor audit.Auditor,
	sessions *SessionManager,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		builder:     builder,
		generator:   generator,
		validator:   validator,
		executor:    executor,
		synthesizer: synthesizer,
		auditor:     auditor,
		sessions:    sessions,
		logger:      logger.Named("pipeline"),
	}
}

// Submit runs q through the pipeline. Rejections and Failed executions are
// results, not errors; errors report a missing schema, failed generation or
// a request cancelled or superseded before execution started.
//
// When the returned Submission carries an Answer, the caller must drain or
// Cancel it.
func (p *Pipeline) Submit(ctx context.Context, q models.UserQuery) (*Submission, error) {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	logger := p.logger.With(
		zap.String("request_id", q.ID.String()),
		zap.String("role", q.Role.Name),
		zap.String("target", q.TargetDB),
	)

	ctx, release := p.sessions.Begin(ctx, q.SessionID, q.ID)
	streaming := false
	defer func() {
		if !streaming {
			release()
		}
	}()

	sub := &Submission{RequestID: q.ID}

	start := time.Now()
	prompt, err := p.builder.Build(ctx, q.Question, q.Role, q.TargetDB)
	metrics.ObserveStage(metrics.StagePrompt, time.Since(start))
	if err != nil {
		metrics.RecordRequest("error")
		return nil, p.interrupted(ctx, err)
	}

	start = time.Now()
	gen, err := p.generator.GenerateSQL(ctx, prompt)
	metrics.ObserveStage(metrics.StageGenerate, time.Since(start))
	if err != nil {
		metrics.RecordRequest("error")
		return nil, p.interrupted(ctx, err)
	}
	metrics.RecordGenerationAttempts(gen.Attempts)
	sub.GeneratedSQL = gen

	start = time.Now()
	sub.Validation = p.validator.Validate(gen.SQL, q.Role, q.TargetDB)
	metrics.ObserveStage(metrics.StageValidate, time.Since(start))
	if !sub.Validation.Valid {
		metrics.RecordRejection(string(sub.Validation.Reason))
		metrics.RecordRequest(models.AuditOutcomeRejected)
		_ = p.auditor.RecordRejection(ctx, models.AuditRecord{
			RequestID: q.ID,
			RoleName:  q.Role.Name,
			UserID:    q.UserID,
			TargetDB:  q.TargetDB,
			Kind:      sub.Validation.Kind,
			Reason:    sub.Validation.Reason,
		}, sub.Validation.Detail)
		logger.Info("request rejected", zap.String("reason", string(sub.Validation.Reason)))
		return sub, nil
	}

	// A request superseded before execution never reaches the database.
	if ctx.Err() != nil {
		metrics.RecordRequest("error")
		return nil, p.interrupted(ctx, ctx.Err())
	}

	start = time.Now()
	result, err := p.executor.Execute(ctx, ExecuteRequest{
		RequestID:  q.ID,
		SQL:        gen,
		Validation: sub.Validation,
		TargetDB:   q.TargetDB,
		Role:       q.Role,
		UserID:     q.UserID,
		Question:   q.Question,
	})
	metrics.ObserveStage(metrics.StageExecute, time.Since(start))
	if err != nil {
		metrics.RecordRequest("error")
		return nil, err
	}
	sub.Execution = &result

	if result.IsFailed() {
		metrics.RecordRequest(models.AuditOutcomeFailed)
		logger.Info("execution failed", zap.String("message", result.Message))
		return sub, nil
	}

	answer, err := p.synthesizer.Synthesize(ctx, q.Question, result)
	if err != nil {
		metrics.RecordRequest("error")
		return nil, err
	}
	synthStart := time.Now()
	answer.onFinish(func() {
		metrics.ObserveStage(metrics.StageSynthesize, time.Since(synthStart))
		release()
	})
	streaming = true
	sub.Answer = answer

	if result.IsEmpty() {
		metrics.RecordRequest(models.AuditOutcomeEmpty)
	} else {
		metrics.RecordRequest(models.AuditOutcomeSucceeded)
	}
	return sub, nil
}

// interrupted reports the cancellation cause, such as ErrSuperseded, in
// place of whatever error the cancelled stage returned.
func (p *Pipeline) interrupted(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return err
	}
	cause := context.Cause(ctx)
	return fmt.Errorf("request cancelled: %w", cause)
}

// Validate runs only the validator, for callers checking a statement they
// wrote. targetDB selects the dialect and may be empty.
func (p *Pipeline) Validate(statement string, role models.Role, targetDB string) models.ValidationResult {
	return p.validator.Validate(statement, role, targetDB)
}
