package scraper

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/use-agent/strata/models"
)

// maxCapturedBody caps a single captured response body.
const maxCapturedBody = 5 << 20

// CaptureOptions tunes one browser capture.
type CaptureOptions struct {
	// Interact scrolls, moves the mouse and clicks load-more buttons
	// before the page is read.
	Interact bool
}

// stateScriptsJS reads framework state from the live page. Values are
// serialised so they survive the CDP round trip unchanged.
const stateScriptsJS = `() => {
	const out = {};
	const text = id => { const el = document.getElementById(id); return el ? el.textContent : ''; };
	const next = text('__NEXT_DATA__');
	if (next) out['__NEXT_DATA__'] = next;
	const nuxtData = text('__NUXT_DATA__');
	if (nuxtData) out['__NUXT_DATA__'] = nuxtData;
	for (const name of ['__NUXT__', '__INITIAL_STATE__', '__APOLLO_STATE__']) {
		try { if (window[name]) out[name] = JSON.stringify(window[name]); } catch (e) {}
	}
	return out;
}`

// readReserve is held back from the capture deadline for reading the page
// after loading and interaction.
const readReserve = 5 * time.Second

// Capture loads target in a pooled page and records everything a
// strategy may inspect: the final DOM, JSON-ish network responses,
// WebSocket frames and framework state.
//
// Lifecycle:
//
//  1. Timeout guard and page acquisition (released on return)
//  2. User agent, Referer and session state
//  3. Response and WebSocket listeners
//  4. Navigate, wait for idle, settle, optional interaction
//  5. Read status, state scripts, HTML, title
//  6. Remember session state, write the HAR sidecar
//
// Loading stops readReserve before the deadline so pages that never go
// idle are still read. A navigation failure keeps whatever traffic was
// recorded; the capture is then marked Partial and only an empty one is
// an error.
func (s *Scraper) Capture(ctx context.Context, target string, opts CaptureOptions) (*models.PageCapture, error) {
	timeout := s.scraperCfg.TechniqueTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	healthy := false
	defer func() { release(healthy) }()

	if ua := s.userAgent(); ua != "" {
		_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua, AcceptLanguage: "id-ID,id;q=0.9,en-US;q=0.8"})
	}
	if u, parseErr := url.Parse(target); parseErr == nil {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{
				"Referer": "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname()),
			}),
		}.Call(page)
	}
	removeSeed := s.restoreSession(page, target)
	defer removeSeed()

	started := time.Now()
	col := newCollector()
	evCtx, stopEvents := context.WithCancel(ctx)
	defer stopEvents()
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		slog.Debug("network domain enable failed", "error", err)
	}
	listen := page.Context(evCtx).EachEvent(
		func(e *proto.NetworkResponseReceived) { col.onResponse(e) },
		func(e *proto.NetworkLoadingFinished) { col.onFinished(page, e) },
		func(e *proto.NetworkWebSocketCreated) { col.onSocket(e) },
		func(e *proto.NetworkWebSocketFrameReceived) {
			col.onFrame(e.RequestID, models.FrameReceived, e.Response)
		},
		func(e *proto.NetworkWebSocketFrameSent) {
			col.onFrame(e.RequestID, models.FrameSent, e.Response)
		},
	)
	listenDone := make(chan struct{})
	go func() {
		listen()
		close(listenDone)
	}()

	loadCtx, cancelLoad := context.WithTimeout(ctx, loadBudget(timeout))
	cause := s.load(loadCtx, page, target, opts)
	cancelLoad()
	if cause == nil && ctx.Err() != nil {
		cause = categorizeError(ctx.Err(), "capture deadline reached")
	}

	p := page.Context(ctx)
	state := readPage(p, target)
	s.saveSession(p, target)

	stopEvents()
	<-listenDone

	capture, err := assemble(target, state, col, cause)
	if err != nil {
		return nil, err
	}
	healthy = models.ErrorCode(cause) != models.ErrCodeNavigation
	if capture.Partial {
		slog.Warn("browser capture incomplete, keeping partial result",
			"url", target,
			"responses", len(capture.NetworkResponses),
			"has_html", capture.FinalHTML != "",
			"error", cause,
		)
	}

	if s.browserCfg.SaveHAR && s.storeCfg.HARDir != "" {
		if path, harErr := writeHAR(s.storeCfg.HARDir, capture, started); harErr != nil {
			slog.Warn("writing HAR failed", "url", target, "error", harErr)
		} else {
			capture.HARFilePath = path
		}
	}

	slog.Info("browser capture done",
		"url", target,
		"status", capture.StatusCode,
		"responses", len(capture.NetworkResponses),
		"ws_frames", len(capture.WebSocketFrames),
		"interact", opts.Interact,
		"partial", capture.Partial,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return capture, nil
}

// loadBudget is the part of the capture timeout available to loading and
// interaction.
func loadBudget(timeout time.Duration) time.Duration {
	if timeout > 2*readReserve {
		return timeout - readReserve
	}
	return timeout / 2
}

// load navigates, waits for the page to settle and optionally interacts.
// Only a failed navigation is an error; running out of ctx just ends the
// waits early.
func (s *Scraper) load(ctx context.Context, page *rod.Page, target string, opts CaptureOptions) error {
	p := page.Context(ctx)
	waitIdle := s.idleWaiter(ctx, page)

	if err := p.Navigate(target); err != nil {
		return categorizeError(err, "navigation to target URL failed")
	}
	if err := p.WaitLoad(); err != nil {
		slog.Debug("load event not observed, continuing", "url", target, "error", err)
	}
	waitIdle()
	sleepCtx(ctx, s.scraperCfg.SettleDelay)

	if opts.Interact {
		interact(ctx, p)
		s.idleWaiter(ctx, page)()
	}
	return nil
}

// idleWaiter must be created before the navigation it waits for. The
// wait gives up after idleLimit because pages that poll or hold sockets
// open never go fully idle.
func (s *Scraper) idleWaiter(ctx context.Context, page *rod.Page) func() {
	idleCtx, cancel := context.WithTimeout(ctx, idleLimit(ctx, s.scraperCfg.NavigationTimeout))
	wait := page.Context(idleCtx).WaitRequestIdle(500*time.Millisecond, nil, nil,
		[]proto.NetworkResourceType{proto.NetworkResourceTypeWebSocket, proto.NetworkResourceTypeEventSource})
	return func() {
		defer cancel()
		wait()
	}
}

// idleLimit is the navigation timeout, cut to the time left before ctx's
// deadline.
func idleLimit(ctx context.Context, nav time.Duration) time.Duration {
	if nav <= 0 {
		nav = 40 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < nav {
			return max(left, 0)
		}
	}
	return nav
}

const navigationStatusJS = `() => {
	try {
		const entries = performance.getEntriesByType("navigation");
		if (entries.length > 0) return entries[0].responseStatus || 0;
	} catch(e) {}
	return 0;
}`

// pageReader is the part of a page read after loading.
type pageReader interface {
	Eval(js string, args ...interface{}) (*proto.RuntimeRemoteObject, error)
	HTML() (string, error)
}

// pageState is what could be read from the page. Every field is best
// effort: a page whose navigation failed may yield none of them.
type pageState struct {
	status   int
	states   map[string]string
	html     string
	title    string
	finalURL string
}

func readPage(p pageReader, target string) pageState {
	st := pageState{states: make(map[string]string), finalURL: target}
	if res, err := p.Eval(navigationStatusJS); err == nil {
		st.status = res.Value.Int()
	}
	if res, err := p.Eval(stateScriptsJS); err == nil {
		for k, v := range res.Value.Map() {
			if str := jsonStr(v); str != "" {
				st.states[k] = str
			}
		}
	}
	if html, err := p.HTML(); err == nil {
		st.html = html
	} else {
		slog.Debug("page HTML unavailable", "url", target, "error", err)
	}
	st.title = evalStringOrEmpty(p, `() => document.title`)
	if u := evalStringOrEmpty(p, `() => window.location.href`); u != "" && u != "about:blank" {
		st.finalURL = u
	}
	return st
}

// assemble builds the capture from what was read and recorded. cause is
// the error that cut loading short: the capture survives it, marked
// Partial, unless it holds nothing a strategy could inspect.
func assemble(target string, st pageState, col *collector, cause error) (*models.PageCapture, error) {
	responses, frames := col.snapshot()
	capture := &models.PageCapture{
		URL:              target,
		FinalURL:         st.finalURL,
		Title:            st.title,
		StatusCode:       st.status,
		FinalHTML:        st.html,
		NetworkResponses: responses,
		WebSocketFrames:  frames,
		StateScripts:     st.states,
		Engine:           "browser",
		Partial:          cause != nil,
	}
	if capture.FinalURL == "" {
		capture.FinalURL = target
	}
	if cause != nil && capture.Empty() && len(capture.StateScripts) == 0 {
		return nil, cause
	}
	return capture, nil
}

// collector accumulates network traffic from CDP events.
type collector struct {
	mu        sync.Mutex
	pending   map[proto.NetworkRequestID]models.ResponseRecord
	responses []models.ResponseRecord
	sockets   map[proto.NetworkRequestID]string
	frames    []models.WebSocketFrame
}

func newCollector() *collector {
	return &collector{
		pending: make(map[proto.NetworkRequestID]models.ResponseRecord),
		sockets: make(map[proto.NetworkRequestID]string),
	}
}

// capturable reports whether a response is worth keeping: XHR, fetch or
// document traffic with a JSON or text body, not served by an ad host.
func capturable(resourceType proto.NetworkResourceType, mime, rawURL string) bool {
	switch resourceType {
	case proto.NetworkResourceTypeXHR, proto.NetworkResourceTypeFetch, proto.NetworkResourceTypeDocument:
	default:
		return false
	}
	mime = strings.ToLower(mime)
	if !strings.Contains(mime, "json") && !strings.Contains(mime, "text") && !strings.Contains(mime, "javascript") {
		return false
	}
	return !fromAdDomain(rawURL)
}

func (c *collector) onResponse(e *proto.NetworkResponseReceived) {
	if e.Response == nil || !capturable(e.Type, e.Response.MIMEType, e.Response.URL) {
		return
	}
	c.mu.Lock()
	c.pending[e.RequestID] = models.ResponseRecord{
		URL:          e.Response.URL,
		Status:       e.Response.Status,
		ContentType:  e.Response.MIMEType,
		ResourceType: string(e.Type),
	}
	c.mu.Unlock()
}

func (c *collector) onFinished(page *rod.Page, e *proto.NetworkLoadingFinished) {
	c.mu.Lock()
	rec, ok := c.pending[e.RequestID]
	delete(c.pending, e.RequestID)
	c.mu.Unlock()
	if !ok {
		return
	}

	body, err := proto.NetworkGetResponseBody{RequestID: e.RequestID}.Call(page)
	if err != nil {
		slog.Debug("response body unavailable", "url", rec.URL, "error", err)
		return
	}
	text := body.Body
	if body.Base64Encoded {
		raw, decErr := base64.StdEncoding.DecodeString(text)
		if decErr != nil {
			return
		}
		text = string(raw)
	}
	if len(text) > maxCapturedBody {
		text = text[:maxCapturedBody]
	}
	rec.Body = text

	c.mu.Lock()
	c.responses = append(c.responses, rec)
	c.mu.Unlock()
}

func (c *collector) onSocket(e *proto.NetworkWebSocketCreated) {
	c.mu.Lock()
	c.sockets[e.RequestID] = e.URL
	c.mu.Unlock()
}

func (c *collector) onFrame(id proto.NetworkRequestID, dir models.FrameDirection, f *proto.NetworkWebSocketFrame) {
	if f == nil || f.PayloadData == "" {
		return
	}
	c.mu.Lock()
	c.frames = append(c.frames, models.WebSocketFrame{
		URL:       c.sockets[id],
		Direction: dir,
		Payload:   f.PayloadData,
	})
	c.mu.Unlock()
}

// snapshot returns copies in arrival order.
func (c *collector) snapshot() ([]models.ResponseRecord, []models.WebSocketFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	responses := append([]models.ResponseRecord{}, c.responses...)
	frames := append([]models.WebSocketFrame{}, c.frames...)
	return responses, frames
}

// nativeFetchJS issues a same-origin fetch from inside the page so cookies,
// tokens and the page's own TLS session are reused.
const nativeFetchJS = `async (u) => {
	try {
		const r = await fetch(u, {credentials: 'include', headers: {'Accept': 'application/json, text/plain, */*'}});
		const body = await r.text();
		return {status: r.status, body: body};
	} catch (e) {
		return {error: String(e)};
	}
}`

// NativeFetch opens pageURL and replays each endpoint with the page's own
// fetch. It returns the endpoints whose body parsed as JSON, keyed by
// endpoint. Failed or non-JSON replays are skipped.
func (s *Scraper) NativeFetch(ctx context.Context, pageURL string, endpoints []string) (map[string]any, error) {
	out := make(map[string]any)
	if len(endpoints) == 0 {
		return out, nil
	}
	timeout := s.scraperCfg.TechniqueTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, release, err := s.acquire()
	if err != nil {
		return out, err
	}
	defer func() { release(err == nil) }()

	// Replays need the cookies and storage the capture ended with.
	removeSeed := s.restoreSession(page, pageURL)
	defer removeSeed()
	if ua := s.userAgent(); ua != "" {
		_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua})
	}

	p := page.Context(ctx)
	if err = p.Navigate(pageURL); err != nil {
		return out, categorizeError(err, "navigation for native fetch failed")
	}
	_ = p.WaitLoad()

	for _, ep := range endpoints {
		res, evalErr := p.Eval(nativeFetchJS, ep)
		if evalErr != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		m := res.Value.Map()
		if v, ok := decodeFetched(jsonStr(m["body"]), jsonStr(m["error"])); ok {
			out[ep] = v
		}
	}
	slog.Info("native fetch replay done", "page", pageURL, "tried", len(endpoints), "recovered", len(out))
	return out, nil
}

// decodeFetched accepts a replayed body when the fetch did not report an
// error and the body is JSON.
func decodeFetched(body, fetchErr string) (any, bool) {
	if fetchErr != "" {
		return nil, false
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, false
	}
	return v, true
}

// jsonStr is gson's Str without the "<nil>" rendering of missing values.
func jsonStr(j gson.JSON) string {
	if j.Nil() {
		return ""
	}
	return j.Str()
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page pageReader, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed ScrapeErrors so callers can
// tell timeouts from navigation failures.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
