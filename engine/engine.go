package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/use-agent/strata/models"
)

// Engine is the interface that all plain fetch engines must implement.
type Engine interface {
	// Name returns the engine identifier (e.g. "http").
	Name() string

	// Fetch retrieves the resource for the given request. A non-2xx answer
	// returns both the result and an HTTP_STATUS error.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// Capturer turns a URL into a PageCapture without a browser.
type Capturer interface {
	Capture(ctx context.Context, url string) (*models.PageCapture, error)
}

// FetchRequest contains everything an engine needs to fetch a resource.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Cookies []http.Cookie
	Timeout time.Duration

	// Proxy overrides the rotator for this request.
	Proxy string

	// Accept overrides the default browser Accept header.
	Accept string
}

// FetchResult is the output of an engine fetch.
type FetchResult struct {
	Body        []byte
	Title       string
	StatusCode  int
	ContentType string
	Header      http.Header
	FinalURL    string
	EngineName  string
}

// Text returns the body as a string.
func (r *FetchResult) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// Record converts the result into a network response record.
func (r *FetchResult) Record() models.ResponseRecord {
	return models.ResponseRecord{
		URL:         r.FinalURL,
		Status:      r.StatusCode,
		ContentType: r.ContentType,
		Body:        string(r.Body),
	}
}
