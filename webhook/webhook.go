// Package webhook delivers objective lifecycle events to caller-supplied
// endpoints, with HMAC signing and retry backoff.
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

	"github.com/use-agent/webpilot/config"
	"github.com/use-agent/webpilot/models"
)

// Event types.
const (
	EventObjectiveCompleted = "objective.completed"
	EventObjectiveFailed    = "objective.failed"
)

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	RunID     string `json:"run_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Completed builds the event for a successfully finished objective run.
func Completed(job *models.ObjectiveJob) *Event {
	return &Event{
		Type:      EventObjectiveCompleted,
		RunID:     job.ID,
		Timestamp: time.Now().Unix(),
		Data:      job,
	}
}

// Failed builds the event for a failed objective run.
func Failed(job *models.ObjectiveJob) *Event {
	return &Event{
		Type:      EventObjectiveFailed,
		RunID:     job.ID,
		Timestamp: time.Now().Unix(),
		Data:      job,
	}
}

// Notifier posts events to webhook URLs. A zero secret disables signing.
type Notifier struct {
	secret string
	client *http.Client

	// delays precede each delivery attempt; len(delays) is the attempt
	// budget.
	delays []time.Duration
}

// NewNotifier creates a notifier from configuration.
func NewNotifier(cfg config.WebhookConfig) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		secret: cfg.Secret,
		client: &http.Client{Timeout: timeout},
		delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// Deliver sends one event synchronously. The request body is signed with
// HMAC-SHA256 when a secret is configured.
// Header: X-Webpilot-Signature: sha256=<hex>
func (n *Notifier) Deliver(ctx context.Context, url string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Webpilot-Webhook/1.0")

	if n.secret != "" {
		mac := hmac.New(sha256.New, []byte(n.secret))
		mac.Write(body)
		sig := hex.EncodeToString(mac.Sum(nil))
		req.Header.Set("X-Webpilot-Signature", "sha256="+sig)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAsync sends an event in the background, retrying on failure.
// Retry intervals: 1s, 5s, 30s.
func (n *Notifier) DeliverAsync(url string, event *Event) {
	go func() {
		for attempt, delay := range n.delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
			err := n.Deliver(ctx, url, event)
			cancel()
			if err == nil {
				slog.Info("webhook delivered",
					"url", url,
					"event", event.Type,
					"run_id", event.RunID,
					"attempt", attempt+1,
				)
				return
			}
			slog.Warn("webhook delivery failed",
				"url", url,
				"event", event.Type,
				"run_id", event.RunID,
				"attempt", attempt+1,
				"error", err,
			)
		}
		slog.Error("webhook delivery exhausted all retries",
			"url", url,
			"event", event.Type,
			"run_id", event.RunID,
		)
	}()
}
