package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ask/pkg/audit"
	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/schema"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

// RowsAffectedColumn is the single column of a write result without RETURNING rows.
const RowsAffectedColumn = "rows_affected"

// Defaults for ExecutorConfig.
const (
	DefaultExecutionTimeout = 30 * time.Second
	DefaultMaxRows          = 1000
)

// ExecuteRequest is one validated statement bound for a target.
type ExecuteRequest struct {
	RequestID  uuid.UUID
	SQL        models.GeneratedSQL
	Validation models.ValidationResult
	TargetDB   string
	Role       models.Role
	UserID     string
	Question   string
}

// QueryExecutor runs validated statements against target databases.
type QueryExecutor interface {
	// Execute returns a Rows, Empty or Failed result and audits the call.
	// Backend errors become Failed results, never errors; an error is
	// returned only when the request does not carry a Valid result for its
	// statement and role.
	Execute(ctx context.Context, req ExecuteRequest) (models.ExecutionResult, error)
}

// ExecutorConfig bounds execution.
type ExecutorConfig struct {
	Timeout time.Duration
	MaxRows int
}

type queryExecutor struct {
	targets  schema.TargetResolver
	adapters datasource.AdapterFactory
	auditor  audit.Auditor
	cfg      ExecutorConfig
	logger   *zap.Logger
	now      func() time.Time
}

var _ QueryExecutor = (*queryExecutor)(nil)

// NewQueryExecutor creates an executor resolving targets through targets and
// opening pooled connections through adapters.
func NewQueryExecutor(
	targets schema.TargetResolver,
	adapters datasource.AdapterFactory,
	auditor audit.Auditor,
	cfg ExecutorConfig,
	logger *zap.Logger,
) QueryExecutor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExecutionTimeout
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	return &queryExecutor{
		targets:  targets,
		adapters: adapters,
		auditor:  auditor,
		cfg:      cfg,
		logger:   logger.Named("executor"),
		now:      time.Now,
	}
}

func (e *queryExecutor) Execute(ctx context.Context, req ExecuteRequest) (result models.ExecutionResult, err error) {
	start := e.now()
	rec := models.AuditRecord{
		RequestID: req.RequestID,
		RoleName:  req.Role.Name,
		UserID:    req.UserID,
		TargetDB:  req.TargetDB,
		Kind:      req.SQL.Kind,
	}
	defer func() {
		rec.DurationMs = e.now().Sub(start).Milliseconds()
		switch {
		case err != nil || result.IsFailed():
			rec.Outcome = models.AuditOutcomeFailed
		case result.IsEmpty():
			rec.Outcome = models.AuditOutcomeEmpty
		default:
			rec.Outcome = models.AuditOutcomeSucceeded
		}
		// Audit failures are logged by the auditor and never change the result.
		_ = e.auditor.Record(ctx, rec)
	}()

	if err := e.checkValidated(req); err != nil {
		e.logger.Error("refusing to execute unvalidated statement",
			zap.String("request_id", req.RequestID.String()),
			zap.String("role", req.Role.Name),
			zap.Error(err),
		)
		return models.FailedResult("statement was not validated"), err
	}

	result = e.run(ctx, req)
	result.TargetDB = req.TargetDB
	result.RoleName = req.Role.Name

	e.logger.Info("statement executed",
		zap.String("request_id", req.RequestID.String()),
		zap.String("target", req.TargetDB),
		zap.String("role", req.Role.Name),
		zap.String("statement_kind", string(req.SQL.Kind)),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("rows", len(result.Rows)),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("elapsed", e.now().Sub(start)),
	)
	return result, nil
}

// checkValidated re-runs the validator under the target's dialect. It is
// pure and cheap, and makes a forged or stale ValidationResult useless.
func (e *queryExecutor) checkValidated(req ExecuteRequest) error {
	if !req.Validation.Valid {
		return fmt.Errorf("%w: validation result is %s", apperrors.ErrNotValidated, req.Validation.Reason)
	}
	check := sql.Validate(req.SQL.SQL, req.Role, targetDialect(e.targets, req.TargetDB))
	if !check.Valid || check.Kind != req.SQL.Kind {
		return fmt.Errorf("%w: statement does not validate for role %q", apperrors.ErrNotValidated, req.Role.Name)
	}
	return nil
}

func (e *queryExecutor) run(ctx context.Context, req ExecuteRequest) models.ExecutionResult {
	target, err := e.targets.Get(req.TargetDB)
	if err != nil {
		return e.failed(req, "resolve target", err)
	}

	// Database work is detached from request cancellation: a started
	// statement runs to completion or to the execution timeout.
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.Timeout)
	defer cancel()

	conn, err := e.adapters.Open(execCtx, target)
	if err != nil {
		return e.failed(req, "open connection", err)
	}
	defer conn.Close()

	dialect := sql.DialectOf(target.Kind)
	statement := sql.Normalize(req.SQL.SQL, dialect)

	if !req.SQL.Kind.IsWrite() {
		res, err := conn.Query(execCtx, statement, e.cfg.MaxRows)
		if err != nil {
			return e.failed(req, "query", err)
		}
		if len(res.Rows) == 0 {
			return models.EmptyResult(res.ColumnNames())
		}
		out := models.RowsResult(res.ColumnNames(), res.Rows)
		out.Truncated = res.Truncated
		return out
	}

	res, err := conn.Execute(execCtx, statement, sql.ReturnsRows(statement, dialect))
	if err != nil {
		return e.failed(req, "execute", err)
	}
	if len(res.Columns) > 0 && len(res.Rows) > 0 {
		out := models.RowsResult(res.Columns, res.Rows)
		out.RowsAffected = res.RowsAffected
		out.Write = true
		return out
	}
	return models.WriteResult(RowsAffectedColumn, res.RowsAffected)
}

func (e *queryExecutor) failed(req ExecuteRequest, step string, err error) models.ExecutionResult {
	e.logger.Error("execution failed",
		zap.String("request_id", req.RequestID.String()),
		zap.String("target", req.TargetDB),
		zap.String("step", step),
		zap.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
		zap.String("error", logging.SanitizeError(err)),
		zap.String("sql", logging.SanitizeQuery(req.SQL.SQL)),
	)
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FailedResult(fmt.Sprintf("execution exceeded the %s timeout", e.cfg.Timeout))
	}
	if errors.Is(err, apperrors.ErrUnknownTarget) {
		return models.FailedResult(fmt.Sprintf("unknown target database %q", req.TargetDB))
	}
	return models.FailedResult(logging.ClientMessage(err))
}
