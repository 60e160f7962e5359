package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/localrivet/meosbackup/internal/backup"
	"github.com/localrivet/meosbackup/internal/config"
	"github.com/localrivet/meosbackup/internal/mcp"
	"github.com/localrivet/meosbackup/internal/mcp/tools"
	"github.com/localrivet/meosbackup/internal/metrics"
	"github.com/localrivet/meosbackup/internal/notify"
	"github.com/localrivet/meosbackup/internal/storage"
	"github.com/localrivet/meosbackup/pkg/meos"
	"github.com/localrivet/meosbackup/pkg/mysqldump"
	"github.com/localrivet/meosbackup/pkg/naming"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var (
	version  = "0.1.0"
	cfgFile  string
	dryRun   bool
	logLevel string
	logger   *slog.Logger
	cfg      *config.Config
	notifier *notify.Notifier
)

func main() {
	_ = godotenv.Load() // best-effort

	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	rootCmd := &cobra.Command{
		Use:     "meosbackup",
		Short:   "Periodic backups of MeOS event databases",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}

			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if cmd.Flags().Changed("dry-run") {
				cfg.DryRun = dryRun
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger = newLogger(cfg, os.Stdout)
			notifier = notify.NewNotifier(cfg.Monitoring.WebhookURL, logger)

			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "log what would be done without running mysqldump or mysql")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(backupCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(restoreCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Back up forever on the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched, err := cfg.CycleSchedule()
			if err != nil {
				return err
			}

			engine, err := newEngine()
			if err != nil {
				return err
			}
			engine.SetMetrics(metrics.New("meosbackup"))

			scheduler := backup.NewScheduler(engine, sched, logger)

			var servers []*http.Server

			mcpHandler := mcp.NewHandler(&tools.ToolContext{
				Config:    cfg,
				Engine:    engine,
				Scheduler: scheduler,
				Dumps:     dumpFolder(),
				Logger:    logger,
			}, logger)

			if cfg.Monitoring.HealthPort > 0 {
				mux := http.NewServeMux()
				mux.HandleFunc("/health", healthHandler(scheduler))
				if mcpHandler.Enabled() && cfg.Monitoring.MCPPort == 0 {
					mux.Handle("/mcp", mcpHandler)
					logger.Info("MCP endpoint enabled", "path", "/mcp", "port", cfg.Monitoring.HealthPort)
				}
				servers = append(servers, serve("health", cfg.Monitoring.HealthPort, mux))
			}

			if cfg.Monitoring.MCPPort > 0 && mcpHandler.Enabled() {
				mux := http.NewServeMux()
				mux.Handle("/mcp", mcpHandler)
				servers = append(servers, serve("mcp", cfg.Monitoring.MCPPort, mux))
			}

			if cfg.Monitoring.MetricsPort > 0 {
				servers = append(servers, serve("metrics", cfg.Monitoring.MetricsPort, metrics.Handler()))
			}

			go stallMonitor(ctx, scheduler, sched)

			logger.Info("starting meosbackup daemon",
				"version", version,
				"folder", cfg.OutputFolder,
				"host", cfg.Database.Host,
				"recency_days", cfg.RecencyDays,
				"dry_run", cfg.DryRun,
			)

			if err := scheduler.Run(ctx); err != nil {
				return err
			}

			logger.Info("interrupted, shutting down")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			for _, srv := range servers {
				srv.Shutdown(shutdownCtx)
			}

			return nil
		},
	}
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Run one backup cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}

			report, err := engine.Run(context.Background())
			printReport(cmd, report)
			if err != nil {
				return err
			}
			if failed := report.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d of %d events could not be backed up", len(failed), len(report.Events))
			}

			return nil
		},
	}
}

func listCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the active events the next cycle would back up",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if days < 0 {
				days = cfg.RecencyDays
			}

			client, err := meos.Connect(ctx, cfg.MeosEndpoint())
			if err != nil {
				return err
			}
			defer client.Close()

			out := cmd.OutOrStdout()
			if v, err := client.Version(ctx); err == nil {
				fmt.Fprintf(out, "MeOS server %s (MySQL %s)\n\n", client.Endpoint().Addr(), v)
			}

			events, err := client.ListActiveEvents(ctx, days)
			if err != nil {
				return err
			}

			if len(events) == 0 {
				fmt.Fprintf(out, "No events in the last %d days\n", days)
				return nil
			}

			fmt.Fprintf(out, "%-30s %-20s %-30s %s\n", "NAME", "ANNOTATION", "DATABASE", "LABEL")
			for _, ev := range events {
				label := naming.Label(ev.Name, ev.Annotation)
				if naming.IsSeparator(ev.Name) {
					label = "(separator, skipped)"
				}
				fmt.Fprintf(out, "%-30s %-20s %-30s %s\n", ev.Name, ev.Annotation, ev.NameID, label)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", -1, "recency window in days (default: recency_days from config)")

	return cmd
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <dump-file>",
		Short: "Load a dump back into the MeOS server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveDump(cfg.OutputFolder, args[0])
			if err != nil {
				return err
			}

			runner := mysqldump.New(cfg.Tools.Mysqldump, cfg.Tools.Mysql, cfg.DryRun, logger)
			err = runner.Restore(context.Background(), mysqldump.Options{
				Host:     cfg.Database.Host,
				Port:     cfg.Database.Port,
				User:     cfg.Database.User,
				Password: cfg.Database.Password,
				Database: filepath.Base(path),
			}, path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cfg.DryRun {
				fmt.Fprintln(out, "Dry run completed - no changes made")
			} else {
				fmt.Fprintf(out, "Restored %s\n", path)
			}

			return nil
		},
	}
}

func newLogger(c *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel()}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newEngine() (*backup.Engine, error) {
	runner := mysqldump.New(cfg.Tools.Mysqldump, cfg.Tools.Mysql, cfg.DryRun, logger)
	engine := backup.NewEngine(cfg, backup.MeosConnector(cfg), runner, notifier, logger)

	if cfg.MirrorEnabled() {
		var s3Cfg *storage.S3Config
		if cfg.Mirror.Backend == "s3" {
			s3Cfg = &storage.S3Config{
				Bucket:    cfg.Mirror.S3.Bucket,
				Endpoint:  cfg.Mirror.S3.Endpoint,
				Region:    cfg.Mirror.S3.Region,
				AccessKey: cfg.Mirror.S3.AccessKey,
				SecretKey: cfg.Mirror.S3.SecretKey,
				UseSSL:    cfg.Mirror.S3.UseSSL,
			}
		}

		mirror, err := storage.NewFactory().Create(cfg.Mirror.Backend, cfg.Mirror.Path, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create mirror backend: %w", err)
		}
		engine.SetMirror(mirror)
	}

	return engine, nil
}

// dumpFolder lists the output folder for the MCP tools. It is created
// lazily by the first cycle, so a failure here is not fatal.
func dumpFolder() storage.Backend {
	store, err := storage.NewLocalStorage(cfg.OutputFolder)
	if err != nil {
		logger.Warn("cannot open output folder", "folder", cfg.OutputFolder, "error", err)
		return nil
	}
	return store
}

func serve(name string, port int, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	go func() {
		logger.Info(name+" server starting", "port", port)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error(name+" server error", "error", err)
		}
	}()

	return srv
}

func printReport(cmd *cobra.Command, report *backup.Report) {
	out := cmd.OutOrStdout()

	if report.MainOK() {
		fmt.Fprintf(out, "Backed up %s to %s\n", naming.MainDatabase, report.Main.Target.Path)
	}
	for _, res := range report.Events {
		if res.OK {
			fmt.Fprintf(out, "Backed up '%s' to %s\n", res.Target.Name, res.Target.Path)
		} else {
			fmt.Fprintf(out, "FAILED '%s': %v\n", res.Target.Name, res.Err)
		}
	}
	if report.DryRun {
		fmt.Fprintln(out, "Dry run - no dump was written")
	}
	fmt.Fprintf(out, "Restore guide: %s\n", report.GuidePath)
	fmt.Fprintf(out, "Duration: %s\n", report.Duration().Round(time.Millisecond))
}

// stallMonitor alerts once per cycle when no cycle has started long after
// one was due, which happens when a dump hangs.
func stallMonitor(ctx context.Context, scheduler *backup.Scheduler, sched cron.Schedule) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var alerted time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lastRun := scheduler.Engine().LastRun()
			if lastRun.IsZero() || lastRun.Equal(alerted) {
				continue
			}
			if overdue(lastRun, sched, time.Now()) {
				alerted = lastRun
				logger.Warn("backup cycle overdue", "last_cycle", lastRun, "due", sched.Next(lastRun))
				notifier.NotifyAlert(fmt.Sprintf(
					"No backup cycle started since %s; a dump may be hanging",
					lastRun.Format(time.RFC3339),
				))
			}
		}
	}
}

const stallGrace = 10 * time.Minute

func overdue(lastRun time.Time, sched cron.Schedule, now time.Time) bool {
	return now.Sub(sched.Next(lastRun)) > stallGrace
}
