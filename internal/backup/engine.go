package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/localrivet/meosbackup/internal/config"
	"github.com/localrivet/meosbackup/internal/guide"
	"github.com/localrivet/meosbackup/internal/metrics"
	"github.com/localrivet/meosbackup/internal/notify"
	"github.com/localrivet/meosbackup/internal/storage"
	"github.com/localrivet/meosbackup/pkg/meos"
	"github.com/localrivet/meosbackup/pkg/mysqldump"
	"github.com/localrivet/meosbackup/pkg/naming"
)

// Catalog is an open session on the meosmain database.
type Catalog interface {
	Endpoint() meos.Endpoint
	ListActiveEvents(ctx context.Context, recencyDays int) ([]meos.Event, error)
	Close() error
}

// Connector opens a new catalog session. Each cycle uses its own.
type Connector func(ctx context.Context) (Catalog, error)

// Dumper dumps one database to a file.
type Dumper interface {
	Dump(ctx context.Context, opts mysqldump.Options) error
	RestoreCommand(user, path string) string
	DryRun() bool
}

// MeosConnector connects to the MeOS server described by cfg.
func MeosConnector(cfg *config.Config) Connector {
	endpoint := cfg.MeosEndpoint()
	return func(ctx context.Context) (Catalog, error) {
		client, err := meos.Connect(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

type Engine struct {
	cfg      *config.Config
	connect  Connector
	dumper   Dumper
	mirror   storage.Backend
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.RWMutex
	lastRun    time.Time
	lastReport *Report
	lastError  error
}

func NewEngine(cfg *config.Config, connect Connector, dumper Dumper, notifier *notify.Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		connect:  connect,
		dumper:   dumper,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// SetMirror copies the guide and every successful dump to store after each
// cycle.
func (e *Engine) SetMirror(store storage.Backend) {
	e.mirror = store
}

func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Run performs one backup cycle: meosmain first, then every active event.
// A failed event dump is recorded in the report and does not stop the
// cycle; any other failure aborts it. The catalog session is closed and the
// restore guide finalized on every path.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	folder := e.cfg.OutputFolder
	report := &Report{
		StartedAt: e.now(),
		Folder:    folder,
		GuidePath: naming.GuidePath(folder),
		DryRun:    e.dumper.DryRun(),
	}

	e.logger.Info("starting backup cycle", "folder", folder, "dry_run", report.DryRun)

	err := e.run(ctx, report)
	report.FinishedAt = e.now()

	e.complete(ctx, report, err)
	return report, err
}

func (e *Engine) run(ctx context.Context, report *Report) error {
	if err := os.MkdirAll(report.Folder, 0755); err != nil {
		return &FilesystemError{Path: report.Folder, Err: err}
	}

	g, err := guide.Create(report.Folder)
	if err != nil {
		return &FilesystemError{Path: report.GuidePath, Err: err}
	}

	return e.cycle(ctx, g, report)
}

func (e *Engine) cycle(ctx context.Context, g *guide.Guide, report *Report) (err error) {
	defer func() {
		if cerr := g.Close(); cerr != nil && err == nil {
			err = &FilesystemError{Path: g.Path(), Err: cerr}
		}
	}()

	catalog, err := e.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := catalog.Close(); cerr != nil {
			e.logger.Warn("failed to close meos connection", "error", cerr)
		}
		e.logger.Debug("disconnected from meos database", "addr", catalog.Endpoint().Addr())
	}()

	endpoint := catalog.Endpoint()
	e.logger.Info("connected to meos database", "addr", endpoint.Addr())

	mainTarget := Target{
		Kind:     KindMain,
		Name:     naming.MainDatabase,
		Database: naming.MainDatabase,
		Label:    naming.MainDatabase,
	}
	mainTarget.Path = naming.BuildFileName(mainTarget.Label, report.Folder, e.now())

	res := e.dump(ctx, endpoint, mainTarget)
	report.Main = &res
	if !res.OK {
		return fmt.Errorf("dump of %s failed: %w", naming.MainDatabase, res.Err)
	}
	if err := g.AddMain(e.dumper.RestoreCommand(endpoint.User, mainTarget.Path)); err != nil {
		return &FilesystemError{Path: g.Path(), Err: err}
	}

	events, err := catalog.ListActiveEvents(ctx, e.cfg.RecencyDays)
	if err != nil {
		return err
	}
	if len(events) == meos.MaxActiveEvents {
		e.logger.Warn("active event list hit the row limit, later events are not backed up",
			"limit", meos.MaxActiveEvents)
	}
	e.metrics.SetActiveEvents(len(events))

	for _, ev := range events {
		if naming.IsSeparator(ev.Name) {
			report.Skipped++
			e.logger.Debug("skipping separator event", "name", ev.Name)
			continue
		}

		t := Target{
			Kind:       KindEvent,
			Name:       ev.Name,
			Annotation: ev.Annotation,
			Database:   ev.NameID,
			Label:      naming.Label(ev.Name, ev.Annotation),
		}
		t.Path = naming.BuildFileName(t.Label, report.Folder, e.now())

		res := e.dump(ctx, endpoint, t)
		report.Events = append(report.Events, res)
		if !res.OK {
			continue
		}
		if err := g.AddEvent(ev.Name, e.dumper.RestoreCommand(endpoint.User, t.Path)); err != nil {
			return &FilesystemError{Path: g.Path(), Err: err}
		}
	}

	return nil
}

func (e *Engine) dump(ctx context.Context, endpoint meos.Endpoint, t Target) TargetResult {
	if t.Database == "" {
		err := errors.New("event has no database name")
		e.logger.Error("backup failed", "name", t.Name, "error", err)
		e.metrics.RecordDump(t.Kind, false)
		return TargetResult{Target: t, Err: err}
	}

	e.logger.Debug("backing up database", "name", t.Name, "annotation", t.Annotation, "path", t.Path)

	err := e.dumper.Dump(ctx, mysqldump.Options{
		Host:       endpoint.Host,
		Port:       endpoint.Port,
		User:       endpoint.User,
		Password:   endpoint.Password,
		Database:   t.Database,
		OutputPath: t.Path,
	})
	e.metrics.RecordDump(t.Kind, err == nil)
	if err != nil {
		e.logger.Error("backup failed", "name", t.Name, "database", t.Database, "error", err)
		return TargetResult{Target: t, Err: err}
	}

	e.logger.Info("backup done", "name", t.Name, "database", t.Database, "path", t.Path)
	return TargetResult{Target: t, OK: true}
}

// complete records the cycle outcome and runs the post-cycle side effects.
func (e *Engine) complete(ctx context.Context, report *Report, err error) {
	failed := report.Failed()

	e.mu.Lock()
	e.lastRun = report.StartedAt
	e.lastReport = report
	e.lastError = err
	e.mu.Unlock()

	e.metrics.RecordCycle(report.Duration(), report.MainOK(), len(failed), err != nil)

	switch {
	case err != nil:
		e.logger.Error("backup cycle failed", "folder", report.Folder, "error", err)
	case len(failed) > 0:
		e.logger.Warn("backup cycle completed with failures",
			"events", len(report.Events),
			"failed", len(failed),
			"duration", report.Duration(),
		)
	default:
		e.logger.Info("backup cycle completed",
			"events", len(report.Events),
			"skipped", report.Skipped,
			"duration", report.Duration(),
		)
	}

	if report.MainOK() {
		e.mirrorArtifacts(ctx, report)
	}

	if err != nil || len(failed) > 0 {
		labels := make([]string, 0, len(failed))
		for _, f := range failed {
			labels = append(labels, f.Target.Label)
		}
		e.notifier.NotifyCycle(notify.CycleSummary{
			Folder:       report.Folder,
			Events:       len(report.Events),
			FailedEvents: labels,
			Duration:     report.Duration(),
			Err:          err,
		})
	}
}

// mirrorArtifacts uploads the guide and the dumps of this cycle. Mirror
// failures are logged only.
func (e *Engine) mirrorArtifacts(ctx context.Context, report *Report) {
	if e.mirror == nil {
		return
	}

	paths := []string{report.GuidePath}
	if !report.DryRun {
		for _, t := range report.Succeeded() {
			paths = append(paths, t.Path)
		}
	}

	for _, p := range paths {
		if err := e.upload(ctx, p); err != nil {
			e.logger.Warn("failed to mirror backup file", "path", p, "error", err)
			continue
		}
		e.logger.Debug("mirrored backup file", "path", p)
	}
}

func (e *Engine) upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return e.mirror.Write(ctx, filepath.Base(path), f)
}

func (e *Engine) LastRun() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRun
}

// LastReport returns the report of the most recent cycle, nil before the
// first one.
func (e *Engine) LastReport() *Report {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastReport
}

func (e *Engine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastError
}

// Connect opens a catalog session outside of a cycle, for listing events.
func (e *Engine) Connect(ctx context.Context) (Catalog, error) {
	return e.connect(ctx)
}

func (e *Engine) Config() *config.Config {
	return e.cfg
}
