package mcp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/localrivet/meosbackup/internal/backup"
	"github.com/localrivet/meosbackup/internal/config"
	"github.com/localrivet/meosbackup/internal/mcp/mcpauth"
	"github.com/localrivet/meosbackup/internal/mcp/tools"
	"github.com/localrivet/meosbackup/pkg/meos"
)

func testToolContext(t *testing.T) *tools.ToolContext {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{OutputFolder: t.TempDir(), RecencyDays: 3}
	connect := func(ctx context.Context) (backup.Catalog, error) {
		return nil, &meos.ConnectionError{Addr: "localhost:3306", Err: io.EOF}
	}
	return &tools.ToolContext{
		Config: cfg,
		Engine: backup.NewEngine(cfg, connect, nil, nil, logger),
		Logger: logger,
	}
}

func TestHandler_NotConfigured(t *testing.T) {
	t.Setenv(mcpauth.APIKeyEnv, "")
	h := NewHandler(testToolContext(t), slog.New(slog.NewTextHandler(io.Discard, nil)))

	if h.Enabled() {
		t.Error("Enabled() = true without an API key")
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}")))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestHandler_Unauthorized(t *testing.T) {
	t.Setenv(mcpauth.APIKeyEnv, "meos-key")
	h := NewHandler(testToolContext(t), slog.New(slog.NewTextHandler(io.Discard, nil)))

	for _, header := range []string{"", "Bearer wrong", "meos-key"} {
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}"))
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Authorization %q: status = %d, want 401", header, w.Code)
		}
		if !strings.HasPrefix(w.Header().Get("WWW-Authenticate"), "Bearer ") {
			t.Errorf("Authorization %q: missing bearer challenge", header)
		}
	}
}

func TestHandler_AuthorizedReachesServer(t *testing.T) {
	t.Setenv(mcpauth.APIKeyEnv, "meos-key")
	h := NewHandler(testToolContext(t), slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	req.Header.Set("Authorization", "Bearer meos-key")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code == http.StatusUnauthorized || w.Code == http.StatusServiceUnavailable {
		t.Errorf("status = %d, request did not pass authentication", w.Code)
	}
}

func TestNewServer(t *testing.T) {
	if NewServer(testToolContext(t)) == nil {
		t.Fatal("NewServer() returned nil")
	}
}
