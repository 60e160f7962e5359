package mcp

import (
	"github.com/localrivet/meosbackup/internal/mcp/tools"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer creates an MCP server with the backup tools registered.
func NewServer(toolCtx *tools.ToolContext) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "meosbackup",
		Version: "1.0.0",
	}, nil)

	tools.RegisterBackupTools(server, toolCtx)

	return server
}
