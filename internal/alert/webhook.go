// Package alert sends best-effort operational notifications to a
// Discord-style webhook. Alert delivery never blocks or fails the job
// whose failure it is reporting.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"contract-analyzer/internal/retry"
	"contract-analyzer/internal/telemetry"
)

const (
	maxAttempts    = 3
	requestTimeout = 5 * time.Second
)

// attemptBackoff is a variable so tests can shorten it.
var attemptBackoff = time.Second

// Webhook posts alerts to a single configured URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook builds an alert channel. An empty URL disables delivery;
// alerts are then logged only.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: requestTimeout},
	}
}

// Send delivers one alert message with bounded retry. Failures are
// logged and counted, never returned: an alerting outage must not mask
// the job failure being reported.
func (w *Webhook) Send(ctx context.Context, message string) {
	if w.url == "" {
		log.Printf("alert webhook not configured, dropping alert: %s", message)
		return
	}

	err := retry.Do(ctx, "send alert", "alert", maxAttempts, attemptBackoff, func() error {
		return w.post(ctx, message)
	})
	if err != nil {
		telemetry.AlertFailures.Inc()
		log.Printf("failed to send alert after %d attempts: %v", maxAttempts, err)
	}
}

func (w *Webhook) post(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}
