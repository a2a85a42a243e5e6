package sites

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/use-agent/strata/models"
)

// DefaultUserAgent is sent by the HTML client when none is configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// HTMLClient fetches static pages for the plug-ins with colly. Each call
// builds its own collector, so a client is safe for concurrent use.
type HTMLClient struct {
	UserAgent string
	Headers   map[string]string
	// Timeout is the first attempt's timeout; attempt n waits Timeout*n.
	Timeout  time.Duration
	Attempts int
	// Pause is the wait between attempts.
	Pause time.Duration
}

// NewHTMLClient returns a client with three attempts starting at 15 s.
func NewHTMLClient() *HTMLClient {
	return &HTMLClient{
		UserAgent: DefaultUserAgent,
		Headers:   map[string]string{"Accept-Language": "id-ID,id;q=0.9,en;q=0.8"},
		Timeout:   15 * time.Second,
		Attempts:  3,
		Pause:     2 * time.Second,
	}
}

// Get returns the body of target.
func (h *HTMLClient) Get(ctx context.Context, target string) ([]byte, error) {
	return h.do(ctx, http.MethodGet, target, nil, nil)
}

// Document GETs target and parses it.
func (h *HTMLClient) Document(ctx context.Context, target string) (*goquery.Document, error) {
	body, err := h.Get(ctx, target)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeNoData, "parse html", err)
	}
	return doc, nil
}

// PostForm posts a url-encoded form once, without retries, and returns
// the body.
func (h *HTMLClient) PostForm(ctx context.Context, target string, form, headers map[string]string) ([]byte, error) {
	single := *h
	single.Attempts = 1
	return single.do(ctx, http.MethodPost, target, form, headers)
}

func (h *HTMLClient) do(ctx context.Context, method, target string, form, headers map[string]string) ([]byte, error) {
	attempts := h.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	base := h.Timeout
	if base <= 0 {
		base = 15 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return nil, models.NewScrapeError(models.ErrCodeTimeout, "request canceled", ctx.Err())
		}
		body, status, err := h.once(ctx, method, target, form, headers, base*time.Duration(attempt))
		if err == nil {
			return body, nil
		}
		lastErr = classify(target, status, err)
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			break
		}
		slog.Debug("html fetch failed", "url", target, "attempt", attempt, "status", status, "error", err)
		if attempt < attempts && h.Pause > 0 {
			t := time.NewTimer(h.Pause)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
			}
		}
	}
	return nil, lastErr
}

func (h *HTMLClient) once(ctx context.Context, method, target string, form, headers map[string]string, timeout time.Duration) ([]byte, int, error) {
	c := colly.NewCollector(colly.StdlibContext(ctx), colly.AllowURLRevisit())
	if h.UserAgent != "" {
		c.UserAgent = h.UserAgent
	}
	c.SetRequestTimeout(timeout)

	var (
		body   []byte
		status int
	)
	c.OnRequest(func(r *colly.Request) {
		for k, v := range h.Headers {
			r.Headers.Set(k, v)
		}
		for k, v := range headers {
			r.Headers.Set(k, v)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	var err error
	if method == http.MethodPost {
		err = c.Post(target, form)
	} else {
		err = c.Visit(target)
	}
	if err != nil {
		return nil, status, err
	}
	if body == nil {
		return nil, status, errors.New("empty response")
	}
	return body, status, nil
}

func classify(target string, status int, err error) error {
	switch {
	case status >= 400:
		return models.NewScrapeError(models.ErrCodeHTTPStatus, fmt.Sprintf("%s answered %d", target, status),
			&models.HTTPStatusError{URL: target, StatusCode: status})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request timed out", err)
	default:
		return models.NewScrapeError(models.ErrCodeNetwork, "request failed", err)
	}
}
