package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/use-agent/strata/config"
)

// Event types.
const (
	RefreshCompleted = "refresh.completed"
	RefreshFailed    = "refresh.failed"
)

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ, jobID string, data any) *Event {
	return &Event{Type: typ, JobID: jobID, Timestamp: time.Now().Unix(), Data: data}
}

// DefaultDelays are the waits before each delivery attempt.
var DefaultDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// Sign returns the signature header value for body: sha256=<hex hmac>.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Notifier posts events to one endpoint.
type Notifier struct {
	url    string
	secret string
	client *resty.Client
	delays []time.Duration
	wg     sync.WaitGroup
}

// New returns a notifier for cfg, or nil when no URL is configured. A nil
// *Notifier drops every event.
func New(cfg config.WebhookConfig) *Notifier {
	if cfg.URL == "" {
		return nil
	}
	return &Notifier{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: resty.New().
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json").
			SetHeader("User-Agent", "Strata-Webhook/1.0"),
		delays: DefaultDelays,
	}
}

// Deliver sends event once. The body is signed with HMAC-SHA256 when a
// secret is set (header X-Strata-Signature); every delivery carries a
// unique X-Strata-Delivery id.
func (n *Notifier) Deliver(ctx context.Context, event *Event) error {
	if n == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req := n.client.R().
		SetContext(ctx).
		SetHeader("X-Strata-Delivery", uuid.NewString()).
		SetBody(body)
	if n.secret != "" {
		req.SetHeader("X-Strata-Signature", Sign(n.secret, body))
	}
	resp, err := req.Post(n.url)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode())
	}
	return nil
}

// DeliverAsync sends event in the background, retrying after each of the
// configured delays.
func (n *Notifier) DeliverAsync(event *Event) {
	if n == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for attempt, delay := range n.delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := n.Deliver(ctx, event)
			cancel()
			if err == nil {
				slog.Info("webhook delivered",
					"url", n.url,
					"event", event.Type,
					"job_id", event.JobID,
					"attempt", attempt+1,
				)
				return
			}
			slog.Warn("webhook delivery failed",
				"url", n.url,
				"event", event.Type,
				"job_id", event.JobID,
				"attempt", attempt+1,
				"error", err,
			)
		}
		slog.Error("webhook delivery exhausted all retries",
			"url", n.url,
			"event", event.Type,
			"job_id", event.JobID,
		)
	}()
}

// Wait blocks until background deliveries finish.
func (n *Notifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}
