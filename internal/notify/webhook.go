package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type Notifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewNotifier returns nil when no webhook is configured; every method of
// a nil *Notifier is a no-op.
func NewNotifier(webhookURL string, logger *slog.Logger) *Notifier {
	if webhookURL == "" {
		return nil
	}

	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type WebhookPayload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Details   Details   `json:"details,omitempty"`
}

type Details struct {
	Folder       string   `json:"folder,omitempty"`
	Events       int      `json:"events,omitempty"`
	FailedEvents []string `json:"failed_events,omitempty"`
	Duration     int64    `json:"duration_ms,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// CycleSummary is what a webhook needs to know about one backup cycle.
type CycleSummary struct {
	Folder       string
	Events       int
	FailedEvents []string
	Duration     time.Duration
	Err          error
}

// NotifyCycle reports the outcome of a cycle. Aborted cycles are sent as
// cycle.failed, cycles with failed event dumps as cycle.degraded.
func (n *Notifier) NotifyCycle(s CycleSummary) {
	if n == nil {
		return
	}

	payload := WebhookPayload{
		Event:     "cycle.completed",
		Timestamp: time.Now().UTC(),
		Status:    "success",
		Message:   fmt.Sprintf("Backed up meosmain and %d races", s.Events),
		Details: Details{
			Folder:       s.Folder,
			Events:       s.Events,
			FailedEvents: s.FailedEvents,
			Duration:     s.Duration.Milliseconds(),
		},
	}

	switch {
	case s.Err != nil:
		payload.Event = "cycle.failed"
		payload.Status = "failure"
		payload.Message = "Backup cycle aborted"
		payload.Details.Error = s.Err.Error()
	case len(s.FailedEvents) > 0:
		payload.Event = "cycle.degraded"
		payload.Status = "degraded"
		payload.Message = fmt.Sprintf("%d of %d races could not be backed up", len(s.FailedEvents), s.Events)
	}

	n.send(payload)
}

func (n *Notifier) NotifyAlert(message string) {
	if n == nil {
		return
	}

	payload := WebhookPayload{
		Event:     "backup.alert",
		Timestamp: time.Now().UTC(),
		Status:    "alert",
		Message:   message,
	}

	n.send(payload)
}

func (n *Notifier) send(payload WebhookPayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("failed to marshal webhook payload", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		n.logger.Error("failed to create webhook request", "error", err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "meosbackup/1.0")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Error("failed to send webhook", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		n.logger.Warn("webhook returned error status", "status", resp.StatusCode)
	} else {
		n.logger.Debug("webhook sent successfully", "event", payload.Event)
	}
}
