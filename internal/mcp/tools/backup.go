package tools

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/localrivet/meosbackup/pkg/naming"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type EmptyInput struct{}

type BackupStatusOutput struct {
	Status       string   `json:"status"`
	DryRun       bool     `json:"dry_run"`
	Folder       string   `json:"folder"`
	LastRun      string   `json:"last_run,omitempty"`
	NextRun      string   `json:"next_run,omitempty"`
	MainOK       bool     `json:"main_ok"`
	Events       int      `json:"events"`
	FailedEvents []string `json:"failed_events,omitempty"`
	DurationMs   int64    `json:"duration_ms"`
	LastError    string   `json:"last_error,omitempty"`
}

type ListActiveEventsInput struct {
	RecencyDays int `json:"recency_days,omitempty" jsonschema:"Only events dated within this many days (default: configured recency window)"`
}

type EventItem struct {
	Name       string `json:"name"`
	Annotation string `json:"annotation,omitempty"`
	Database   string `json:"database"`
	Label      string `json:"label"`
	Separator  bool   `json:"separator"`
}

type ListActiveEventsOutput struct {
	RecencyDays int         `json:"recency_days"`
	Count       int         `json:"count"`
	Events      []EventItem `json:"events"`
}

type ListDumpsInput struct {
	Label string `json:"label,omitempty" jsonschema:"Only dumps whose file name contains this label"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of dumps to return (default: 20)"`
}

type DumpItem struct {
	File      string `json:"file"`
	SizeBytes int64  `json:"size_bytes"`
	Modified  string `json:"modified"`
}

type ListDumpsOutput struct {
	Count int        `json:"count"`
	Dumps []DumpItem `json:"dumps"`
}

// RegisterBackupTools registers the read-only backup tools. Cycles are
// only ever started by the scheduler.
func RegisterBackupTools(server *mcp.Server, toolCtx *ToolContext) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "backup_status",
		Description: "Get the outcome of the last backup cycle and when the next one is due",
	}, toolCtx.backupStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_active_events",
		Description: "List the MeOS events the next backup cycle would dump",
	}, toolCtx.listActiveEvents)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_dumps",
		Description: "List dump files in the backup folder, newest first",
	}, toolCtx.listDumps)
}

func (tc *ToolContext) backupStatus(ctx context.Context, req *mcp.CallToolRequest, input EmptyInput) (*mcp.CallToolResult, BackupStatusOutput, error) {
	report := tc.Engine.LastReport()
	lastErr := tc.Engine.LastError()

	output := BackupStatusOutput{
		Status: "healthy",
		DryRun: tc.Config.DryRun,
		Folder: tc.Config.OutputFolder,
	}

	switch {
	case report == nil:
		output.Status = "waiting for first cycle"
	case lastErr != nil:
		output.Status = "failing"
		output.LastError = lastErr.Error()
	case report.Degraded():
		output.Status = "degraded"
	}

	if report != nil {
		output.LastRun = report.StartedAt.Format(time.RFC3339)
		output.MainOK = report.MainOK()
		output.Events = len(report.Events)
		output.DurationMs = report.Duration().Milliseconds()
		for _, f := range report.Failed() {
			output.FailedEvents = append(output.FailedEvents, f.Target.Label)
		}
	}
	if tc.Scheduler != nil {
		if next := tc.Scheduler.NextRun(); !next.IsZero() {
			output.NextRun = next.Format(time.RFC3339)
		}
	}

	return nil, output, nil
}

func (tc *ToolContext) listActiveEvents(ctx context.Context, req *mcp.CallToolRequest, input ListActiveEventsInput) (*mcp.CallToolResult, ListActiveEventsOutput, error) {
	days := input.RecencyDays
	if days <= 0 {
		days = tc.Config.RecencyDays
	}

	catalog, err := tc.Engine.Connect(ctx)
	if err != nil {
		return nil, ListActiveEventsOutput{}, err
	}
	defer catalog.Close()

	events, err := catalog.ListActiveEvents(ctx, days)
	if err != nil {
		return nil, ListActiveEventsOutput{}, err
	}

	items := make([]EventItem, len(events))
	for i, ev := range events {
		items[i] = EventItem{
			Name:       ev.Name,
			Annotation: ev.Annotation,
			Database:   ev.NameID,
			Label:      naming.Label(ev.Name, ev.Annotation),
			Separator:  naming.IsSeparator(ev.Name),
		}
	}

	return nil, ListActiveEventsOutput{
		RecencyDays: days,
		Count:       len(items),
		Events:      items,
	}, nil
}

func (tc *ToolContext) listDumps(ctx context.Context, req *mcp.CallToolRequest, input ListDumpsInput) (*mcp.CallToolResult, ListDumpsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	if tc.Dumps == nil {
		return nil, ListDumpsOutput{}, errors.New("output folder is not available")
	}

	files, err := tc.Dumps.List(ctx, "")
	if err != nil {
		return nil, ListDumpsOutput{}, err
	}

	items := []DumpItem{}
	for _, f := range files {
		if !strings.HasSuffix(f.Path, naming.DumpSuffix) {
			continue
		}
		if input.Label != "" && !strings.Contains(f.Path, input.Label) {
			continue
		}
		items = append(items, DumpItem{
			File:      f.Path,
			SizeBytes: f.Size,
			Modified:  f.LastModified.Format(time.RFC3339),
		})
		if len(items) == limit {
			break
		}
	}

	return nil, ListDumpsOutput{
		Count: len(items),
		Dumps: items,
	}, nil
}
