package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// MaxQuestionLength bounds the question accepted by ask_database.
const MaxQuestionLength = 4000

type askResult struct {
	RequestID string               `json:"request_id"`
	SQL       string               `json:"sql"`
	Kind      models.StatementKind `json:"statement_kind"`
	TargetDB  string               `json:"target_db"`
	Columns   []string             `json:"columns,omitempty"`
	Rows      [][]any              `json:"rows,omitempty"`
	Truncated bool                 `json:"truncated,omitempty"`
	Answer    string               `json:"answer"`
	NoData    bool                 `json:"no_data,omitempty"`
	Degraded  bool                 `json:"degraded,omitempty"`
}

type targetInfo struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name,omitempty"`
}

// RegisterQueryTools adds ask_database, validate_sql and list_targets.
func RegisterQueryTools(s *server.MCPServer, deps *ToolDeps) {
	registerAskDatabaseTool(s, deps)
	registerValidateSQLTool(s, deps)
	registerListTargetsTool(s, deps)
}

func registerAskDatabaseTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"ask_database",
		mcp.WithDescription(
			"Answer a natural-language question from a target database. "+
				"The question is translated to one SQL statement, checked against the caller's role and run. "+
				"Returns the statement, the rows and a plain-language answer. "+
				"Use list_targets to see the available databases.",
		),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The question to answer, e.g. 'total sales by region last month'"),
		),
		mcp.WithString(
			"target_db",
			mcp.Description("Target database id; the configured default is used when omitted"),
		),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, role, err := acquireRole(ctx, deps, "ask_database")
		if err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}

		question, err := req.RequireString("question")
		if err != nil {
			return nil, err
		}
		question = strings.TrimSpace(question)
		switch {
		case question == "":
			return NewErrorResult("invalid_parameters", "parameter 'question' cannot be empty"), nil
		case len(question) > MaxQuestionLength:
			return NewErrorResult("invalid_parameters", fmt.Sprintf("parameter 'question' exceeds %d characters", MaxQuestionLength)), nil
		}

		target := strings.TrimSpace(req.GetString("target_db", ""))
		if target == "" {
			target = deps.DefaultTarget
		}
		if target == "" {
			return NewErrorResult("invalid_parameters", "parameter 'target_db' is required"), nil
		}

		sub, err := deps.Pipeline.Submit(ctx, models.UserQuery{
			ID:        uuid.New(),
			Question:  question,
			Role:      role,
			TargetDB:  target,
			UserID:    id.UserID,
			SessionID: uuid.NewString(),
		})
		if err != nil {
			if result := pipelineErrorResult(err); result != nil {
				return result, nil
			}
			return nil, fmt.Errorf("failed to answer question: %w", err)
		}

		details := map[string]any{
			"request_id":     sub.RequestID.String(),
			"sql":            sub.GeneratedSQL.SQL,
			"statement_kind": sub.GeneratedSQL.Kind,
		}
		if !sub.Validation.Valid {
			return NewErrorResultWithDetails(string(sub.Validation.Reason), sub.Validation.Detail, details), nil
		}
		if sub.Execution.IsFailed() {
			return NewErrorResultWithDetails("execution_failed", sub.Execution.Message, details), nil
		}

		answer, err := sub.Answer.Collect()
		if err != nil {
			deps.Logger.Warn("Answer stream ended early",
				zap.String("request_id", sub.RequestID.String()),
				zap.Error(err))
			if result := pipelineErrorResult(err); result != nil {
				return result, nil
			}
			return nil, fmt.Errorf("failed to collect answer: %w", err)
		}

		return jsonResult(askResult{
			RequestID: sub.RequestID.String(),
			SQL:       sub.GeneratedSQL.SQL,
			Kind:      sub.GeneratedSQL.Kind,
			TargetDB:  target,
			Columns:   sub.Execution.Columns,
			Rows:      sub.Execution.Rows,
			Truncated: sub.Execution.Truncated,
			Answer:    answer.Text,
			NoData:    answer.NoData,
			Degraded:  answer.Degraded,
		})
	})
}

// pipelineErrorResult turns pipeline errors the caller can act on into
// tool results. It returns nil for system failures.
func pipelineErrorResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperrors.ErrUnknownTarget):
		return NewErrorResult("unknown_target", "unknown target database; call list_targets")
	case errors.Is(err, apperrors.ErrGenerationFailed):
		return NewErrorResult("generation_failed", "could not generate a SQL statement for the question; try rephrasing")
	case errors.Is(err, apperrors.ErrSchemaUnavailable):
		return NewErrorResult("schema_unavailable", "schema metadata is unavailable for the target database")
	case errors.Is(err, apperrors.ErrSuperseded):
		return NewErrorResult("superseded", "request was superseded")
	}
	return nil
}

func registerValidateSQLTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"validate_sql",
		mcp.WithDescription(
			"Check whether a SQL statement would be accepted for the caller's role without running it. "+
				"Returns valid, the statement kind and, when rejected, a reason code and detail.",
		),
		mcp.WithString(
			"sql",
			mcp.Required(),
			mcp.Description("A single SQL statement"),
		),
		mcp.WithString(
			"target_db",
			mcp.Description("Target database whose SQL dialect applies; the configured default is used when omitted"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		_, role, err := acquireRole(ctx, deps, "validate_sql")
		if err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}

		statement, err := req.RequireString("sql")
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(statement) == "" {
			return NewErrorResult("invalid_parameters", "parameter 'sql' cannot be empty"), nil
		}

		target := strings.TrimSpace(req.GetString("target_db", ""))
		if target == "" {
			target = deps.DefaultTarget
		}
		return jsonResult(deps.Pipeline.Validate(statement, role, target))
	})
}

func registerListTargetsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_targets",
		mcp.WithDescription("List the target databases ask_database can query"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if _, _, err := acquireRole(ctx, deps, "list_targets"); err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}

		targets := deps.Targets.List()
		out := make([]targetInfo, len(targets))
		for i, t := range targets {
			out[i] = targetInfo{ID: t.ID, Kind: t.Kind, DisplayName: t.DisplayName}
		}
		return jsonResult(out)
	})
}
