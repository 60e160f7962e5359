package tools

import (
	"log/slog"

	"github.com/localrivet/meosbackup/internal/backup"
	"github.com/localrivet/meosbackup/internal/config"
	"github.com/localrivet/meosbackup/internal/storage"
)

// ToolContext carries context for all MCP tools.
type ToolContext struct {
	Config    *config.Config
	Engine    *backup.Engine
	Scheduler *backup.Scheduler // nil outside the daemon
	Dumps     storage.Backend   // the output folder
	Logger    *slog.Logger
}
