package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type healthResult struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Targets int    `json:"targets"`
}

// RegisterHealthTool adds a health check tool reporting the server version
// and how many target databases are configured.
func RegisterHealthTool(s *server.MCPServer, version string, targets TargetLister) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(healthResult{Status: "ok", Version: version, Targets: len(targets.List())})
	})
}
