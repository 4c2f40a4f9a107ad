package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/auth"
	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/metrics"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// Security levels attached to tool call events.
const (
	SecurityNormal   = "normal"
	SecurityWarning  = "warning"
	SecurityCritical = "critical"
)

// ToolEvent is one audited MCP tool call.
type ToolEvent struct {
	Tool          string
	UserID        string
	RoleName      string
	Successful    bool
	ErrorCode     string
	Duration      time.Duration
	SecurityLevel string
}

// AuditLogger records MCP tool calls in the security log and the tool call
// metrics. Pipeline outcomes are persisted by the pipeline's own auditor.
type AuditLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewAuditLogger creates an AuditLogger.
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.Named("mcp_audit")}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (a *AuditLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *AuditLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *AuditLogger) afterCallTool(ctx context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	event := a.buildEvent(ctx, id, req)
	event.Successful = true
	if result != nil && result.IsError {
		event.Successful = false
		event.ErrorCode = resultErrorCode(result)
	}
	event.SecurityLevel = classify(event.ErrorCode)

	outcome := "ok"
	if !event.Successful {
		outcome = "tool_error"
	}
	metrics.RecordToolCall(event.Tool, outcome)
	a.log(event)
}

func (a *AuditLogger) onError(ctx context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	event := a.buildEvent(ctx, id, req)
	event.ErrorCode = "internal_error"
	event.SecurityLevel = SecurityNormal
	metrics.RecordToolCall(event.Tool, "error")
	a.log(event, zap.String("error", logging.SanitizeError(err)))
}

func (a *AuditLogger) buildEvent(ctx context.Context, id any, req *mcplib.CallToolRequest) ToolEvent {
	event := ToolEvent{Tool: req.Params.Name, Duration: a.elapsed(id)}
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		event.UserID = identity.UserID
		event.RoleName = identity.RoleName
	}
	return event
}

func (a *AuditLogger) elapsed(id any) time.Duration {
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		return time.Since(v.(time.Time))
	}
	return 0
}

func (a *AuditLogger) log(event ToolEvent, extra ...zap.Field) {
	fields := append([]zap.Field{
		zap.String("tool", event.Tool),
		zap.String("user_id", event.UserID),
		zap.String("role", event.RoleName),
		zap.Bool("successful", event.Successful),
		zap.String("error_code", event.ErrorCode),
		zap.Duration("duration", event.Duration),
		zap.String("security_level", event.SecurityLevel),
	}, extra...)

	switch event.SecurityLevel {
	case SecurityCritical:
		a.logger.Error("MCP tool call", fields...)
	case SecurityWarning:
		a.logger.Warn("MCP tool call", fields...)
	default:
		a.logger.Info("MCP tool call", fields...)
	}
}

// classify maps a tool error code to a security level.
func classify(code string) string {
	switch code {
	case string(models.ReasonInjectionSuspected), string(models.ReasonMultipleStatements):
		return SecurityCritical
	case "unauthorized", "unknown_role",
		string(models.ReasonDMLNotPermitted), string(models.ReasonObjectNotPermitted):
		return SecurityWarning
	}
	return SecurityNormal
}

// resultErrorCode reads the code of a structured error result.
func resultErrorCode(result *mcplib.CallToolResult) string {
	for _, c := range result.Content {
		tc, ok := c.(mcplib.TextContent)
		if !ok {
			continue
		}
		var body struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal([]byte(tc.Text), &body); err == nil && body.Code != "" {
			return body.Code
		}
	}
	return "unknown"
}
