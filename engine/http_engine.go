package engine

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/html"
	"golang.org/x/net/proxy"

	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/rotation"
)

const (
	defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	defaultUA     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// maxBody caps how much of a response is read.
	maxBody = 10 << 20
)

// HTTPEngine is the plain fetch adapter. It speaks HTTP/1.1 over a
// Chrome-like TLS fingerprint and never runs JavaScript.
type HTTPEngine struct {
	proxies    *rotation.ProxyRotator
	userAgents *rotation.UserAgents
	timeout    time.Duration

	// InsecureSkipVerify mirrors the permissive TLS of quick scrapers.
	insecure bool

	mu         sync.Mutex
	transports map[string]*http.Transport
}

// HTTPOption configures an HTTPEngine.
type HTTPOption func(*HTTPEngine)

// WithProxies routes requests through the rotator's proxies.
func WithProxies(r *rotation.ProxyRotator) HTTPOption {
	return func(e *HTTPEngine) { e.proxies = r }
}

// WithUserAgents sets the user agent source.
func WithUserAgents(u *rotation.UserAgents) HTTPOption {
	return func(e *HTTPEngine) { e.userAgents = u }
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(e *HTTPEngine) { e.timeout = d }
}

// WithInsecureTLS disables certificate verification.
func WithInsecureTLS() HTTPOption {
	return func(e *HTTPEngine) { e.insecure = true }
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Replace h2 with http/1.1 in the ALPN extension so the server never
	// negotiates HTTP/2, which http.Transport cannot speak over utls.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPEngine creates an HTTPEngine with a Chrome-like TLS fingerprint.
func NewHTTPEngine(opts ...HTTPOption) *HTTPEngine {
	e := &HTTPEngine{
		timeout:    15 * time.Second,
		transports: make(map[string]*http.Transport),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *HTTPEngine) Name() string { return "http" }

// transportFor returns a transport bound to proxyURL ("" for direct).
func (e *HTTPEngine) transportFor(proxyURL string) *http.Transport {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.transports[proxyURL]; ok {
		return t
	}

	base := &net.Dialer{Timeout: 10 * time.Second}
	dial := base.DialContext

	t := &http.Transport{ForceAttemptHTTP2: false, MaxIdleConnsPerHost: 4}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			switch u.Scheme {
			case "http", "https":
				t.Proxy = http.ProxyURL(u)
			case "socks5", "socks5h":
				if d, err := proxy.FromURL(u, base); err == nil {
					if cd, ok := d.(proxy.ContextDialer); ok {
						dial = cd.DialContext
					}
				}
			}
		}
	}
	t.DialContext = dial

	// A custom TLS dial only applies to direct and SOCKS connections; the
	// transport handles CONNECT tunnels for HTTP proxies itself.
	if t.Proxy == nil {
		insecure := e.insecure
		t.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dial(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host, InsecureSkipVerify: insecure}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		}
	}
	e.transports[proxyURL] = t
	return t
}

// Fetch issues a GET. Transport failures return NETWORK_ERROR or TIMEOUT;
// a non-2xx status returns the result together with an HTTP_STATUS error.
func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "build request", err)
	}

	ua := e.userAgents.Next()
	if ua == "" {
		ua = defaultUA
	}
	accept := req.Accept
	if accept == "" {
		accept = defaultAccept
	}
	httpReq.Header.Set("User-Agent", ua)
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("Accept-Language", "id-ID,id;q=0.9,en-US;q=0.8,en;q=0.7")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for i := range req.Cookies {
		httpReq.AddCookie(&req.Cookies[i])
	}

	proxyURL := req.Proxy
	if proxyURL == "" {
		proxyURL = e.proxies.Next()
	}
	client := &http.Client{
		Transport: e.transportFor(proxyURL),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	body, err := decodeBody(resp.Header.Get("Content-Encoding"), raw)
	if err != nil {
		slog.Debug("http_engine: decode failed, keeping raw body", "url", req.URL, "error", err)
		body = raw
	}

	ct := resp.Header.Get("Content-Type")
	result := &FetchResult{
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: ct,
		Header:      resp.Header,
		FinalURL:    resp.Request.URL.String(),
		EngineName:  e.Name(),
	}
	if isHTMLContentType(ct) {
		result.Title = extractTitle(string(body))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, models.NewScrapeError(models.ErrCodeHTTPStatus, "non-2xx response",
			&models.HTTPStatusError{URL: req.URL, StatusCode: resp.StatusCode})
	}
	return result, nil
}

// FetchWithRetry retries transient failures (network errors, timeouts and
// 5xx answers) up to attempts times. The timeout grows linearly per attempt.
func (e *HTTPEngine) FetchWithRetry(ctx context.Context, req *FetchRequest, attempts int) (*FetchResult, error) {
	if attempts <= 0 {
		attempts = 1
	}
	base := req.Timeout
	if base <= 0 {
		base = e.timeout
	}

	var (
		res *FetchResult
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		r := *req
		r.Timeout = base * time.Duration(attempt)
		res, err = e.Fetch(ctx, &r)
		if err == nil || !IsTransient(err) || ctx.Err() != nil {
			return res, err
		}
		slog.Debug("http_engine: retrying", "url", req.URL, "attempt", attempt, "error", err)
	}
	return res, err
}

// GetJSON fetches target with a JSON Accept header and parses the body
// strictly. ok is false on any transport error, non-2xx status or a body
// that is not JSON.
func (e *HTTPEngine) GetJSON(ctx context.Context, target string, timeout time.Duration) (v any, ok bool) {
	res, err := e.Fetch(ctx, &FetchRequest{
		URL:     target,
		Timeout: timeout,
		Accept:  "application/json, text/plain, */*",
	})
	if err != nil || res == nil {
		return nil, false
	}
	body := bytes.TrimSpace(res.Body)
	if len(body) == 0 {
		return nil, false
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, false
	}
	return v, true
}

// Capture performs a plain GET and wraps it as a PageCapture whose only
// network response is the page itself.
func (e *HTTPEngine) Capture(ctx context.Context, target string) (*models.PageCapture, error) {
	res, err := e.Fetch(ctx, &FetchRequest{URL: target})
	if res == nil {
		return nil, err
	}
	return &models.PageCapture{
		URL:              target,
		FinalURL:         res.FinalURL,
		Title:            res.Title,
		StatusCode:       res.StatusCode,
		FinalHTML:        res.Text(),
		NetworkResponses: []models.ResponseRecord{res.Record()},
		WebSocketFrames:  []models.WebSocketFrame{},
		Engine:           e.Name(),
	}, err
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var se *models.ScrapeError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case models.ErrCodeNetwork, models.ErrCodeTimeout:
		return true
	case models.ErrCodeHTTPStatus:
		var he *models.HTTPStatusError
		return errors.As(err, &he) && he.StatusCode >= 500
	}
	return false
}

// StatusCode extracts the HTTP status from an HTTP_STATUS error, or 0.
func StatusCode(err error) int {
	var he *models.HTTPStatusError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewScrapeError(models.ErrCodeTimeout, "request timed out", err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return models.NewScrapeError(models.ErrCodeTimeout, "request timed out", err)
	}
	return models.NewScrapeError(models.ErrCodeNetwork, "request failed", err)
}

// decodeBody undoes Content-Encoding. Setting Accept-Encoding by hand turns
// off the transport's transparent gzip, so every encoding is handled here.
func decodeBody(encoding string, body []byte) ([]byte, error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "gzip":
		gr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		r = gr
	case "deflate":
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			// Some servers send raw deflate without the zlib wrapper.
			fr := flate.NewReader(bytes.NewReader(body))
			defer fr.Close()
			r = fr
		} else {
			defer zr.Close()
			r = zr
		}
	case "br":
		r = brotli.NewReader(bytes.NewReader(body))
	default:
		return nil, fmt.Errorf("unsupported content-encoding %q", encoding)
	}
	return io.ReadAll(io.LimitReader(r, maxBody))
}

// isHTMLContentType returns true if the content-type header looks like HTML.
func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// extractTitle uses the Go HTML tokenizer to find the first <title> element.
func extractTitle(htmlStr string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	inTitle := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
