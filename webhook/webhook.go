// Package webhook notifies an external endpoint when a batch finishes,
// so downstream consumers (e.g. the extraction stage) can start without
// polling the output tree.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/pagesnap/models"
)

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string              `json:"type"` // "batch.completed"
	Timestamp int64               `json:"timestamp"`
	Report    *models.BatchReport `json:"report"`
}

// Deliver sends a webhook event synchronously. The body is signed with
// HMAC-SHA256 when secret is non-empty, carried in X-Pagesnap-Signature.
func Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Pagesnap-Webhook/1.0")

	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		sig := hex.EncodeToString(mac.Sum(nil))
		req.Header.Set("X-Pagesnap-Signature", "sha256="+sig)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// NotifyCompleted delivers a batch.completed event with up to 3
// attempts and exponential backoff. Failures are logged, never fatal:
// the report on disk is the source of truth either way.
func NotifyCompleted(ctx context.Context, url, secret string, rep *models.BatchReport) {
	if url == "" {
		return
	}
	event := &Event{
		Type:      "batch.completed",
		Timestamp: time.Now().Unix(),
		Report:    rep,
	}

	backoff := time.Second
	for attempt := 1; attempt <= 3; attempt++ {
		err := Deliver(ctx, url, secret, event)
		if err == nil {
			slog.Info("webhook delivered", "url", url, "attempt", attempt)
			return
		}
		slog.Warn("webhook delivery failed", "url", url, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}
