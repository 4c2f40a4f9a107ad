// Package mcp exposes the question-answering pipeline as MCP tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/mcp/tools"
)

// ServerName is the MCP server name reported to clients.
const ServerName = "ekaya-ask"

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates an MCP server. hooks may be nil.
func NewServer(name, version string, hooks *server.Hooks, logger *zap.Logger) *Server {
	opts := []server.ServerOption{server.WithToolCapabilities(true)}
	if hooks != nil {
		opts = append(opts, server.WithHooks(hooks))
	}
	return &Server{
		mcp:    server.NewMCPServer(name, version, opts...),
		logger: logger,
	}
}

// NewAskServer creates the ekaya-ask MCP server with every tool registered
// and tool calls audited.
func NewAskServer(version string, deps *tools.ToolDeps) *Server {
	audit := NewAuditLogger(deps.Logger)
	s := NewServer(ServerName, version, audit.Hooks(), deps.Logger)
	tools.RegisterQueryTools(s.mcp, deps)
	tools.RegisterHealthTool(s.mcp, version, deps.Targets)
	return s
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}
