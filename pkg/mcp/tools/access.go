// Package tools provides the MCP tools of ekaya-ask.
package tools

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/auth"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/services"
)

// Asker is the part of the pipeline the tools drive.
type Asker interface {
	Submit(ctx context.Context, q models.UserQuery) (*services.Submission, error)
	Validate(statement string, role models.Role, targetDB string) models.ValidationResult
}

// RoleResolver looks up a role by name.
type RoleResolver interface {
	Get(name string) (models.Role, error)
}

// TargetLister lists the configured target databases.
type TargetLister interface {
	List() []models.TargetDescriptor
}

// ToolDeps contains the dependencies shared by the query tools.
type ToolDeps struct {
	Pipeline      Asker
	Roles         RoleResolver
	Targets       TargetLister
	DefaultTarget string
	Logger        *zap.Logger
}

// ToolAccessError is an actionable error returned to the MCP client as a
// tool result rather than a protocol error.
type ToolAccessError struct {
	Code    string
	Message string
	// MCPResult contains the pre-built MCP response for this error
	MCPResult *mcp.CallToolResult
}

func (e *ToolAccessError) Error() string {
	return e.Message
}

// AsToolAccessResult returns the tool result carried by a ToolAccessError,
// or nil for any other error.
func AsToolAccessResult(err error) *mcp.CallToolResult {
	var accessErr *ToolAccessError
	if errors.As(err, &accessErr) {
		return accessErr.MCPResult
	}
	return nil
}

func newToolAccessError(code, message string) *ToolAccessError {
	return &ToolAccessError{
		Code:      code,
		Message:   message,
		MCPResult: NewErrorResult(code, message),
	}
}

// acquireRole resolves the caller placed in ctx by the auth middleware.
func acquireRole(ctx context.Context, deps *ToolDeps, toolName string) (auth.Identity, models.Role, error) {
	id, err := auth.RequireIdentity(ctx)
	if err != nil {
		return auth.Identity{}, models.Role{}, newToolAccessError("unauthorized", "authentication required")
	}
	role, err := deps.Roles.Get(id.RoleName)
	if err != nil {
		deps.Logger.Warn("Tool call with unconfigured role",
			zap.String("tool", toolName),
			zap.String("user_id", id.UserID),
			zap.String("role", id.RoleName))
		return auth.Identity{}, models.Role{}, newToolAccessError("unknown_role", "role "+id.RoleName+" is not configured")
	}
	return id, role, nil
}
