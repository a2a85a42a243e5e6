// Package llm is a small OpenAI-compatible chat completions client used by
// the structuring fallback. OpenRouter is the default provider.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/strata/config"
	"github.com/use-agent/strata/models"
)

// placeholderKeys are values shipped in sample configs that must never be
// sent to a provider.
var placeholderKeys = map[string]struct{}{
	"":                  {},
	"your-api-key":      {},
	"YOUR_API_KEY":      {},
	"sk-or-v1-xxxxxxxx": {},
}

// Client talks to an OpenAI-compatible chat completions endpoint. Calls are
// paced by a token bucket so free-tier quotas are not burned by bursts.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
}

// NewClient builds a client from the LLM config. Pass nil httpClient to use
// a default one.
func NewClient(cfg config.LLMConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rpm/60), 1),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		timeout:    timeout,
	}
}

// Configured reports whether the client has a usable API key.
func (c *Client) Configured() bool {
	if c == nil {
		return false
	}
	_, placeholder := placeholderKeys[c.apiKey]
	return !placeholder
}

// Model returns the model identifier sent with each request.
func (c *Client) Model() string { return c.model }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Complete sends one user message and returns the trimmed reply text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if !c.Configured() {
		return "", models.NewScrapeError(models.ErrCodeLLMDisabled, "no LLM API key configured", nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", models.NewScrapeError(models.ErrCodeLLMRateLimited, "waiting for LLM quota", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/use-agent/strata")
	req.Header.Set("X-Title", "strata")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeLLMFailure, "LLM request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeLLMFailure, "failed to read LLM response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyLLMError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", models.NewScrapeError(models.ErrCodeLLMFailure, "failed to parse LLM response", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", models.NewScrapeError(models.ErrCodeLLMFailure, "LLM returned no choices", nil)
	}

	slog.Debug("llm completion done",
		"model", c.model,
		"prompt_tokens", chatResp.Usage.PromptTokens,
		"completion_tokens", chatResp.Usage.CompletionTokens,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// classifyLLMError maps HTTP status codes to error codes.
func classifyLLMError(statusCode int, body []byte) *models.ScrapeError {
	var errResp chatErrorResponse
	msg := "LLM API error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return models.NewScrapeError(models.ErrCodeLLMAuthFailure, msg, nil)
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return models.NewScrapeError(models.ErrCodeLLMRateLimited, msg, nil)
	default:
		return models.NewScrapeError(models.ErrCodeLLMFailure, fmt.Sprintf("LLM API returned %d: %s", statusCode, msg), nil)
	}
}
