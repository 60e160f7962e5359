package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/localrivet/meosbackup/internal/backup"
)

func healthHandler(scheduler *backup.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine := scheduler.Engine()

		report := engine.LastReport()
		lastErr := engine.LastError()
		nextRun := scheduler.NextRun()

		status := "healthy"
		switch {
		case report == nil:
			status = "starting"
		case lastErr != nil:
			status = "unhealthy"
		case report.Degraded():
			status = "degraded"
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if lastErr != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		fmt.Fprintf(w, "status: %s\n", status)
		if report != nil {
			fmt.Fprintf(w, "last_cycle: %s\n", report.StartedAt.Format(time.RFC3339))
			fmt.Fprintf(w, "events: %d\n", len(report.Events))
			for _, f := range report.Failed() {
				fmt.Fprintf(w, "failed_event: %s\n", f.Target.Label)
			}
		}
		if lastErr != nil {
			fmt.Fprintf(w, "last_error: %s\n", lastErr.Error())
		}
		if !nextRun.IsZero() {
			fmt.Fprintf(w, "next_cycle: %s\n", nextRun.Format(time.RFC3339))
		}
	}
}

// resolveDump accepts a dump path or a bare file name from the output
// folder.
func resolveDump(folder, arg string) (string, error) {
	if _, err := os.Stat(arg); err == nil {
		return arg, nil
	}

	candidate := filepath.Join(folder, filepath.Base(arg))
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}

	return "", fmt.Errorf("dump file %q not found", arg)
}
