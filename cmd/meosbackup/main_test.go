package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/localrivet/meosbackup/internal/backup"
	"github.com/localrivet/meosbackup/internal/config"
	"github.com/localrivet/meosbackup/pkg/meos"
	"github.com/localrivet/meosbackup/pkg/mysqldump"
	"github.com/robfig/cron/v3"
)

type emptyCatalog struct{}

func (emptyCatalog) Endpoint() meos.Endpoint {
	return meos.Endpoint{Host: "localhost", Port: 3306, User: "meos"}
}

func (emptyCatalog) ListActiveEvents(ctx context.Context, recencyDays int) ([]meos.Event, error) {
	return nil, nil
}

func (emptyCatalog) Close() error { return nil }

func testScheduler(t *testing.T, connect backup.Connector) *backup.Scheduler {
	t.Helper()
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := &config.Config{
		Database:     config.DatabaseConfig{Host: "localhost", Port: 3306, User: "meos"},
		OutputFolder: t.TempDir(),
	}
	engine := backup.NewEngine(c, connect, mysqldump.New("", "", true, l), nil, l)
	return backup.NewScheduler(engine, cron.Every(time.Minute), l)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		connect    backup.Connector
		run        bool
		wantCode   int
		wantStatus string
	}{
		{
			name:       "before first cycle",
			connect:    func(ctx context.Context) (backup.Catalog, error) { return emptyCatalog{}, nil },
			wantCode:   http.StatusOK,
			wantStatus: "status: starting",
		},
		{
			name:       "healthy",
			connect:    func(ctx context.Context) (backup.Catalog, error) { return emptyCatalog{}, nil },
			run:        true,
			wantCode:   http.StatusOK,
			wantStatus: "status: healthy",
		},
		{
			name: "unhealthy",
			connect: func(ctx context.Context) (backup.Catalog, error) {
				return nil, &meos.ConnectionError{Addr: "localhost:3306", Err: errors.New("refused")}
			},
			run:        true,
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "status: unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testScheduler(t, tt.connect)
			if tt.run {
				s.RunNow(context.Background())
			}

			w := httptest.NewRecorder()
			healthHandler(s)(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			if !strings.Contains(w.Body.String(), tt.wantStatus) {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantStatus)
			}
		})
	}
}

func TestResolveDump(t *testing.T) {
	folder := t.TempDir()
	name := "2024-05-17_10-00-00___meosmain.dump.sql"
	full := filepath.Join(folder, name)
	if err := os.WriteFile(full, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if got, err := resolveDump(folder, full); err != nil || got != full {
		t.Errorf("resolveDump(full) = %v, %v", got, err)
	}
	if got, err := resolveDump(folder, name); err != nil || got != full {
		t.Errorf("resolveDump(name) = %v, %v", got, err)
	}
	if _, err := resolveDump(folder, "missing.dump.sql"); err == nil {
		t.Error("resolveDump(missing) should fail")
	}
}

func TestOverdue(t *testing.T) {
	sched := cron.Every(time.Minute)
	last := time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)

	if overdue(last, sched, last.Add(5*time.Minute)) {
		t.Error("5 minutes after the last start is within the grace period")
	}
	if !overdue(last, sched, last.Add(time.Minute+stallGrace+time.Second)) {
		t.Error("expected overdue past the grace period")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	c := &config.Config{Log: config.LogConfig{Level: "warn", Format: "json"}}

	l := newLogger(c, &buf)
	l.Info("hidden")
	l.Warn("shown", "folder", "/b")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message logged at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected JSON output, got %q", out)
	}
}
