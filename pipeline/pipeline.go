// Package pipeline runs the extraction state machine for one target URL:
// cheap plain-HTTP strategies first, then browser capture and its
// candidate chain, then progressively heavier fallbacks. The first accepted
// candidate is normalized, persisted and ends the run.
package pipeline

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/strata/cache"
	"github.com/use-agent/strata/cleaner"
	"github.com/use-agent/strata/detect"
	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/normalize"
	"github.com/use-agent/strata/scraper"
	"github.com/use-agent/strata/store"
	"github.com/use-agent/strata/strategy"
)

// Fetcher is the plain HTTP adapter.
type Fetcher interface {
	strategy.ScriptFetcher
	Capture(ctx context.Context, target string) (*models.PageCapture, error)
}

// Browser is the browser-driven adapter.
type Browser interface {
	strategy.PageFetcher
	Capture(ctx context.Context, target string, opts scraper.CaptureOptions) (*models.PageCapture, error)
}

// Unlocker is the external web unlocker.
type Unlocker interface {
	Enabled() bool
	Fetch(ctx context.Context, target string) (any, bool)
}

// Solver is the external CAPTCHA solver.
type Solver interface {
	Solve(ctx context.Context, target, vendor string) bool
}

// Persister writes the final result.
type Persister interface {
	Save(label, method string, result *models.NormalizedResult) (string, error)
}

// Outcome reports how a run ended. Success is false only when every state
// was exhausted without an accepted candidate; no file is written then.
type Outcome struct {
	URL       string                   `json:"url"`
	State     State                    `json:"state"`
	Success   bool                     `json:"success"`
	Technique models.Technique         `json:"technique,omitempty"`
	Path      string                   `json:"path,omitempty"`
	Result    *models.NormalizedResult `json:"result,omitempty"`
	Trace     []Attempt                `json:"trace"`
	Elapsed   time.Duration            `json:"elapsed"`
}

// Orchestrator drives the state machine. It holds no per-run state and is
// safe for concurrent Run calls when its collaborators are.
type Orchestrator struct {
	fetcher   Fetcher
	browser   Browser
	llm       strategy.Completer
	llmOpts   strategy.LLMOptions
	cleaner   *cleaner.Cleaner
	unlocker  Unlocker
	solver    Solver
	persister Persister
	cache     *cache.Cache

	keywords       strategy.Keywords
	requestTimeout time.Duration
	now            func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBrowser enables the browser-driven states.
func WithBrowser(b Browser) Option {
	return func(o *Orchestrator) { o.browser = b }
}

// WithLLM enables the LLM structuring fallback.
func WithLLM(c strategy.Completer, opts strategy.LLMOptions) Option {
	return func(o *Orchestrator) {
		o.llm = c
		o.llmOpts = opts
	}
}

// WithUnlocker enables the external unlocker state.
func WithUnlocker(u Unlocker) Option {
	return func(o *Orchestrator) { o.unlocker = u }
}

// WithSolver sets the CAPTCHA solver hook.
func WithSolver(s Solver) Option {
	return func(o *Orchestrator) { o.solver = s }
}

// WithCache invalidates c after every successful save.
func WithCache(c *cache.Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithKeywords sets the relevance gate.
func WithKeywords(list []string) Option {
	return func(o *Orchestrator) { o.keywords = strategy.NewKeywords(list) }
}

// WithRequestTimeout bounds each probe and script download.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.requestTimeout = d }
}

// New builds an Orchestrator around the plain fetcher and the persister.
func New(fetcher Fetcher, persister Persister, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:        fetcher,
		persister:      persister,
		cleaner:        cleaner.New(),
		requestTimeout: 15 * time.Second,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the per-target state between steps.
type run struct {
	target  string
	trace   []Attempt
	plain   *models.PageCapture
	browser *models.PageCapture
	interac *models.PageCapture
}

// latestCapture is the most complete capture seen so far.
func (r *run) latestCapture() *models.PageCapture {
	for _, c := range []*models.PageCapture{r.interac, r.browser, r.plain} {
		if !c.Empty() {
			return c
		}
	}
	return nil
}

// step is one strategy inside a state.
type step struct {
	name string
	fn   func() (*models.ExtractionCandidate, string)
}

// Run extracts data from target. The error is non-nil only for invalid
// input, cancellation or a failure to persist the result; "no data" is an
// Outcome with Success false.
func (o *Orchestrator) Run(ctx context.Context, target string) (Outcome, error) {
	started := o.now()
	target = strings.TrimSpace(target)
	if err := validateURL(target); err != nil {
		return Outcome{URL: target, State: StateIdle}, err
	}

	r := &run{target: target}
	slog.Info("pipeline start", "url", target, "state", StateIdle)

	for _, state := range sequence {
		if err := ctx.Err(); err != nil {
			return o.outcome(r, state, started), models.NewScrapeError(models.ErrCodeTimeout, "pipeline cancelled", err)
		}
		slog.Info("pipeline state", "url", target, "state", state)
		cand := o.runState(ctx, r, state)
		if cand == nil {
			continue
		}
		return o.finish(ctx, r, state, cand, started)
	}

	out := o.outcome(r, StateExhausted, started)
	slog.Warn("pipeline exhausted, no data found", "url", target, "attempts", len(r.trace), "elapsed", out.Elapsed)
	return out, nil
}

func (o *Orchestrator) runState(ctx context.Context, r *run, state State) *models.ExtractionCandidate {
	switch state {
	case StateTryingDirect:
		return o.tryDirect(ctx, r)
	case StateTryingBrowserCapture:
		return o.tryBrowser(ctx, r)
	case StateCheckingCaptcha:
		o.checkCaptcha(ctx, r)
		return nil
	case StateCheckingEncryption:
		return o.checkEncryption(r)
	case StateTryingInteractionLayer:
		return o.tryInteraction(ctx, r)
	case StateTryingJsExtractedEndpoints:
		return o.tryJSEndpoints(ctx, r)
	case StateTryingExternalUnlocker:
		return o.tryUnlocker(ctx, r)
	}
	return nil
}

// attempt runs steps in order and returns the first accepted candidate.
func (o *Orchestrator) attempt(r *run, state State, steps ...step) *models.ExtractionCandidate {
	for _, s := range steps {
		t0 := time.Now()
		cand, reason := s.fn()
		a := Attempt{State: state, Strategy: s.name, Accepted: cand != nil, Reason: reason, Elapsed: time.Since(t0)}
		r.trace = append(r.trace, a)
		if cand != nil {
			slog.Info("candidate accepted", "url", r.target, "state", state, "strategy", s.name, "technique", cand.Technique)
			return cand
		}
		slog.Debug("strategy found nothing", "url", r.target, "state", state, "strategy", s.name, "reason", reason)
	}
	return nil
}

func (o *Orchestrator) skip(r *run, state State, name, reason string) {
	r.trace = append(r.trace, Attempt{State: state, Strategy: name, Reason: reason})
	slog.Debug("strategy skipped", "url", r.target, "state", state, "strategy", name, "reason", reason)
}

// tryDirect probes JSON endpoints, then parses SSR state out of a plain
// fetch of the page.
func (o *Orchestrator) tryDirect(ctx context.Context, r *run) *models.ExtractionCandidate {
	return o.attempt(r, StateTryingDirect,
		step{"direct", func() (*models.ExtractionCandidate, string) {
			return strategy.Direct(ctx, o.fetcher, r.target, o.requestTimeout)
		}},
		step{"ssr", func() (*models.ExtractionCandidate, string) {
			c, err := o.fetcher.Capture(ctx, r.target)
			if err != nil && c.Empty() {
				return nil, "plain fetch failed: " + models.ErrorCode(err)
			}
			r.plain = c
			return strategy.SSRInline(c)
		}},
	)
}

// browserChain is the candidate chain evaluated over a browser capture.
func (o *Orchestrator) browserChain(ctx context.Context, c *models.PageCapture) []step {
	return []step{
		{"ssr", func() (*models.ExtractionCandidate, string) { return strategy.SSRInline(c) }},
		{"harvest", func() (*models.ExtractionCandidate, string) { return strategy.Harvest(c, o.keywords) }},
		{"native-fetch", func() (*models.ExtractionCandidate, string) { return strategy.NativeFetch(ctx, o.browser, c) }},
		{"inline-json", func() (*models.ExtractionCandidate, string) { return strategy.InlineJSON(c, o.keywords) }},
		{"websocket", func() (*models.ExtractionCandidate, string) { return strategy.WebSocket(c, o.keywords) }},
		{"tables", func() (*models.ExtractionCandidate, string) { return strategy.Tables(c, o.keywords) }},
		{"dom", func() (*models.ExtractionCandidate, string) { return strategy.DOMHeuristic(c) }},
		{"llm", func() (*models.ExtractionCandidate, string) {
			return strategy.LLMStructure(ctx, o.llm, o.cleaner, c, o.llmOpts)
		}},
	}
}

// interactionChain re-runs the page-content strategies over the capture
// taken after scrolling and clicking.
func (o *Orchestrator) interactionChain(c *models.PageCapture) []step {
	return []step{
		{"harvest", func() (*models.ExtractionCandidate, string) { return strategy.Harvest(c, o.keywords) }},
		{"inline-json", func() (*models.ExtractionCandidate, string) { return strategy.InlineJSON(c, o.keywords) }},
		{"websocket", func() (*models.ExtractionCandidate, string) { return strategy.WebSocket(c, o.keywords) }},
		{"tables", func() (*models.ExtractionCandidate, string) { return strategy.Tables(c, o.keywords) }},
		{"dom", func() (*models.ExtractionCandidate, string) { return strategy.DOMHeuristic(c) }},
	}
}

// pageChain is the part of the candidate chain that reads only the page
// HTML, applied to the plain fetch when no browser capture has any.
func (o *Orchestrator) pageChain(ctx context.Context, c *models.PageCapture) []step {
	return []step{
		{"inline-json", func() (*models.ExtractionCandidate, string) { return strategy.InlineJSON(c, o.keywords) }},
		{"tables", func() (*models.ExtractionCandidate, string) { return strategy.Tables(c, o.keywords) }},
		{"dom", func() (*models.ExtractionCandidate, string) { return strategy.DOMHeuristic(c) }},
		{"llm", func() (*models.ExtractionCandidate, string) {
			return strategy.LLMStructure(ctx, o.llm, o.cleaner, c, o.llmOpts)
		}},
	}
}

func (o *Orchestrator) tryBrowser(ctx context.Context, r *run) *models.ExtractionCandidate {
	if o.browser == nil {
		o.skip(r, StateTryingBrowserCapture, "capture", strategy.ReasonDisabled)
		return o.tryPlainPage(ctx, r)
	}
	c, err := o.browser.Capture(ctx, r.target, scraper.CaptureOptions{})
	if err != nil || c.Empty() {
		reason := "empty capture"
		if err != nil {
			reason = "capture failed: " + models.ErrorCode(err)
			slog.Warn("browser capture failed", "url", r.target, "error", err)
		}
		o.skip(r, StateTryingBrowserCapture, "capture", reason)
		return o.tryPlainPage(ctx, r)
	}
	if c.Partial {
		slog.Warn("browser capture is partial", "url", r.target, "responses", len(c.NetworkResponses))
	}
	r.browser = c
	if cand := o.attempt(r, StateTryingBrowserCapture, o.browserChain(ctx, c)...); cand != nil {
		return cand
	}
	if c.FinalHTML == "" {
		return o.tryPlainPage(ctx, r)
	}
	return nil
}

// tryPlainPage runs the page-content strategies over the plain fetch, so a
// missing or failed browser degrades to them instead of skipping them.
func (o *Orchestrator) tryPlainPage(ctx context.Context, r *run) *models.ExtractionCandidate {
	if r.plain == nil || r.plain.FinalHTML == "" {
		return nil
	}
	slog.Info("no browser page, applying page strategies to the plain fetch", "url", r.target)
	return o.attempt(r, StateTryingBrowserCapture, o.pageChain(ctx, r.plain)...)
}

// checkCaptcha never ends the run: a detected challenge is logged and
// handed to the solver, and the run goes on with what the page shows.
func (o *Orchestrator) checkCaptcha(ctx context.Context, r *run) {
	c := r.latestCapture()
	if c == nil {
		o.skip(r, StateCheckingCaptcha, "captcha", strategy.ReasonNoInput)
		return
	}
	vendor := detect.DetectCaptcha(c.FinalHTML)
	if vendor == "" {
		o.skip(r, StateCheckingCaptcha, "captcha", "none detected")
		return
	}
	slog.Warn("captcha detected", "url", r.target, "vendor", vendor)
	solved := o.solver != nil && o.solver.Solve(ctx, r.target, vendor)
	reason := "detected " + vendor + ", not solved"
	if solved {
		reason = "detected " + vendor + ", solved"
	}
	o.skip(r, StateCheckingCaptcha, "captcha", reason)
}

func (o *Orchestrator) checkEncryption(r *run) *models.ExtractionCandidate {
	c := r.latestCapture()
	if c == nil {
		o.skip(r, StateCheckingEncryption, "decode", strategy.ReasonNoInput)
		return nil
	}
	if !detect.LooksEncrypted(c.NetworkResponses) {
		o.skip(r, StateCheckingEncryption, "decode", "no opaque bodies")
		return nil
	}
	slog.Warn("encrypted traffic suspected, trying basic decode", "url", r.target)
	return o.attempt(r, StateCheckingEncryption,
		step{"decode", func() (*models.ExtractionCandidate, string) { return strategy.Decoded(c) }},
	)
}

func (o *Orchestrator) tryInteraction(ctx context.Context, r *run) *models.ExtractionCandidate {
	if o.browser == nil {
		o.skip(r, StateTryingInteractionLayer, "interact", strategy.ReasonDisabled)
		return nil
	}
	c, err := o.browser.Capture(ctx, r.target, scraper.CaptureOptions{Interact: true})
	if err != nil || c.Empty() {
		reason := "empty capture"
		if err != nil {
			reason = "capture failed: " + models.ErrorCode(err)
		}
		o.skip(r, StateTryingInteractionLayer, "interact", reason)
		return nil
	}
	r.interac = c
	return o.attempt(r, StateTryingInteractionLayer, o.interactionChain(c)...)
}

func (o *Orchestrator) tryJSEndpoints(ctx context.Context, r *run) *models.ExtractionCandidate {
	c := r.latestCapture()
	if c == nil || c.FinalHTML == "" {
		o.skip(r, StateTryingJsExtractedEndpoints, "js-endpoints", strategy.ReasonNoInput)
		return nil
	}
	return o.attempt(r, StateTryingJsExtractedEndpoints,
		step{"js-endpoints", func() (*models.ExtractionCandidate, string) {
			return strategy.JSEndpoints(ctx, o.fetcher, c, o.keywords, o.requestTimeout)
		}},
	)
}

func (o *Orchestrator) tryUnlocker(ctx context.Context, r *run) *models.ExtractionCandidate {
	if o.unlocker == nil || !o.unlocker.Enabled() {
		o.skip(r, StateTryingExternalUnlocker, "unlocker", strategy.ReasonDisabled)
		return nil
	}
	return o.attempt(r, StateTryingExternalUnlocker,
		step{"unlocker", func() (*models.ExtractionCandidate, string) {
			data, ok := o.unlocker.Fetch(ctx, r.target)
			if !ok {
				return nil, "unlocker returned nothing"
			}
			if c := models.NewCandidate(models.TechniqueExternalUnlocker, r.target, data, nil); c != nil {
				return c, ""
			}
			return nil, strategy.ReasonEmpty
		}},
	)
}

// finish normalizes and persists the accepted candidate.
func (o *Orchestrator) finish(ctx context.Context, r *run, state State, cand *models.ExtractionCandidate, started time.Time) (Outcome, error) {
	out := o.outcome(r, StateExhausted, started)
	out.Success = true
	out.Technique = cand.Technique

	source := cand.SourceURL
	if source == "" {
		source = r.target
	}
	result := &models.NormalizedResult{
		Metadata: models.ResultMetadata{
			SourceURL:     source,
			TechniqueUsed: cand.Technique,
			Timestamp:     o.now().Unix(),
			Domain:        hostOf(r.target),
		},
		Data: normalize.Apply(cand),
	}
	if len(cand.Evidence) > 0 {
		result.Metadata.Extra = map[string]any{"evidence": cand.Evidence}
	}
	out.Result = result

	path, err := o.persister.Save(store.Label(r.target), string(cand.Technique), result)
	if err != nil {
		slog.Error("saving result failed", "url", r.target, "error", err)
		return out, err
	}
	out.Path = path
	if o.cache != nil {
		o.cache.InvalidateAll(ctx)
	}
	slog.Info("pipeline success",
		"url", r.target,
		"state", state,
		"technique", cand.Technique,
		"path", path,
		"elapsed", out.Elapsed,
	)
	return out, nil
}

func (o *Orchestrator) outcome(r *run, state State, started time.Time) Outcome {
	return Outcome{
		URL:     r.target,
		State:   state,
		Trace:   r.trace,
		Elapsed: o.now().Sub(started),
	}
}

func validateURL(target string) error {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.NewScrapeError(models.ErrCodeInvalidInput, "target must be an absolute http(s) URL: "+target, err)
	}
	return nil
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
