// Package unlocker wraps the paid last-resort collaborators: an external
// web unlocker API and a CAPTCHA solver.
package unlocker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/use-agent/strata/config"
	"github.com/use-agent/strata/models"
)

// placeholderKeys are sample values that mean "not configured".
var placeholderKeys = map[string]struct{}{
	"":              {},
	"your_key_here": {},
	"your-api-key":  {},
}

func usableKey(k string) bool {
	_, placeholder := placeholderKeys[strings.TrimSpace(k)]
	return !placeholder
}

// Unlocker posts target URLs to a web unlocker service that renders the
// page on its own infrastructure.
type Unlocker struct {
	client   *resty.Client
	endpoint string
	enabled  bool
}

// New builds an Unlocker. It is inert unless the config enables it with a
// real key and an endpoint.
func New(cfg config.UnlockerConfig) *Unlocker {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetAuthToken(strings.TrimSpace(cfg.APIKey)).
		SetHeader("Content-Type", "application/json")
	return &Unlocker{
		client:   client,
		endpoint: cfg.Endpoint,
		enabled:  cfg.Enabled && usableKey(cfg.APIKey) && cfg.Endpoint != "",
	}
}

// Enabled reports whether Fetch will contact the service.
func (u *Unlocker) Enabled() bool {
	return u != nil && u.enabled
}

// Fetch asks the service for target. JSON answers are returned decoded;
// anything else comes back as {"html": body}. ok is false when the
// unlocker is disabled or the call fails.
func (u *Unlocker) Fetch(ctx context.Context, target string) (data any, ok bool) {
	if !u.Enabled() {
		return nil, false
	}
	slog.Info("using web unlocker", "url", target)

	resp, err := u.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"url": target}).
		Post(u.endpoint)
	if err != nil {
		slog.Error("web unlocker request failed", "url", target, "error", err)
		return nil, false
	}
	if resp.StatusCode() != 200 {
		slog.Error("web unlocker answered with an error",
			"url", target, "status", resp.StatusCode(), "body", truncate(resp.String(), 200))
		return nil, false
	}

	body := resp.Body()
	if strings.Contains(strings.ToLower(resp.Header().Get("Content-Type")), "application/json") {
		if err := json.Unmarshal(body, &data); err == nil {
			return data, !models.IsEmptyPayload(data)
		}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, false
	}
	return map[string]any{"html": string(body)}, true
}

// Solver is the CAPTCHA solving hook. No provider is integrated: Solve
// records the vendor and reports the challenge as unsolved so the
// pipeline carries on with its remaining strategies.
type Solver struct {
	apiKey string
}

// NewSolver builds a Solver from the unlocker config.
func NewSolver(cfg config.UnlockerConfig) *Solver {
	return &Solver{apiKey: cfg.CaptchaAPIKey}
}

// Solve always returns false.
func (s *Solver) Solve(ctx context.Context, target, vendor string) bool {
	slog.Warn("captcha solver not integrated, continuing without a token",
		"url", target, "vendor", vendor, "key_configured", s != nil && usableKey(s.apiKey))
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
