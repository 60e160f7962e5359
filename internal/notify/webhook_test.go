package notify

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// capture starts a webhook receiver and returns a pointer to the last
// payload it decoded.
func capture(t *testing.T) (*httptest.Server, *WebhookPayload) {
	t.Helper()
	var received WebhookPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("User-Agent") != "meosbackup/1.0" {
			t.Errorf("Expected User-Agent meosbackup/1.0, got %s", r.Header.Get("User-Agent"))
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("Failed to read body: %v", err)
			return
		}
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("Failed to unmarshal payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	return server, &received
}

func TestNewNotifier_EmptyURL(t *testing.T) {
	if n := NewNotifier("", discardLogger()); n != nil {
		t.Error("NewNotifier with empty URL should return nil")
	}
}

func TestNewNotifier_ValidURL(t *testing.T) {
	if n := NewNotifier("https://example.com/webhook", discardLogger()); n == nil {
		t.Error("NewNotifier with valid URL should not return nil")
	}
}

func TestNotifier_NotifyCycle(t *testing.T) {
	tests := []struct {
		name       string
		summary    CycleSummary
		wantEvent  string
		wantStatus string
	}{
		{
			name:       "completed",
			summary:    CycleSummary{Folder: "/b", Events: 3, Duration: 2 * time.Second},
			wantEvent:  "cycle.completed",
			wantStatus: "success",
		},
		{
			name:       "degraded",
			summary:    CycleSummary{Folder: "/b", Events: 3, FailedEvents: []string{"Relay_Race"}},
			wantEvent:  "cycle.degraded",
			wantStatus: "degraded",
		},
		{
			name:       "failed",
			summary:    CycleSummary{Folder: "/b", Err: errors.New("connect to meos database localhost:3306: refused")},
			wantEvent:  "cycle.failed",
			wantStatus: "failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, received := capture(t)
			n := NewNotifier(server.URL, discardLogger())

			n.NotifyCycle(tt.summary)

			if received.Event != tt.wantEvent {
				t.Errorf("event = %s, want %s", received.Event, tt.wantEvent)
			}
			if received.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", received.Status, tt.wantStatus)
			}
			if received.Details.Folder != "/b" {
				t.Errorf("folder = %s, want /b", received.Details.Folder)
			}
			if tt.summary.Err != nil && received.Details.Error != tt.summary.Err.Error() {
				t.Errorf("error = %q, want %q", received.Details.Error, tt.summary.Err.Error())
			}
			if len(received.Details.FailedEvents) != len(tt.summary.FailedEvents) {
				t.Errorf("failed_events = %v, want %v", received.Details.FailedEvents, tt.summary.FailedEvents)
			}
		})
	}
}

func TestNotifier_NotifyAlert(t *testing.T) {
	server, received := capture(t)
	n := NewNotifier(server.URL, discardLogger())

	n.NotifyAlert("main database dump failed twice in a row")

	if received.Event != "backup.alert" {
		t.Errorf("Expected event backup.alert, got %s", received.Event)
	}
	if received.Message != "main database dump failed twice in a row" {
		t.Errorf("Unexpected message: %s", received.Message)
	}
}

func TestNotifier_NilSafe(t *testing.T) {
	var n *Notifier

	n.NotifyCycle(CycleSummary{})
	n.NotifyAlert("test")
}

func TestNotifier_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewNotifier(server.URL, discardLogger())

	// Must not panic; the failure is only logged.
	n.NotifyCycle(CycleSummary{Events: 1})
}

func TestNotifier_Unreachable(t *testing.T) {
	n := NewNotifier("http://127.0.0.1:1/webhook", discardLogger())

	n.NotifyCycle(CycleSummary{Err: errors.New("boom")})
}
