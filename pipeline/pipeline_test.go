package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/strata/cache"
	"github.com/use-agent/strata/engine"
	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/scraper"
	"github.com/use-agent/strata/store"
	"github.com/use-agent/strata/strategy"
)

type mockFetcher struct{ mock.Mock }

func (m *mockFetcher) GetJSON(ctx context.Context, target string, timeout time.Duration) (any, bool) {
	args := m.Called(ctx, target, timeout)
	return args.Get(0), args.Bool(1)
}

func (m *mockFetcher) Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*engine.FetchResult)
	return res, args.Error(1)
}

func (m *mockFetcher) Capture(ctx context.Context, target string) (*models.PageCapture, error) {
	args := m.Called(ctx, target)
	c, _ := args.Get(0).(*models.PageCapture)
	return c, args.Error(1)
}

type mockBrowser struct{ mock.Mock }

func (m *mockBrowser) Capture(ctx context.Context, target string, opts scraper.CaptureOptions) (*models.PageCapture, error) {
	args := m.Called(ctx, target, opts)
	c, _ := args.Get(0).(*models.PageCapture)
	return c, args.Error(1)
}

func (m *mockBrowser) NativeFetch(ctx context.Context, pageURL string, endpoints []string) (map[string]any, error) {
	args := m.Called(ctx, pageURL, endpoints)
	got, _ := args.Get(0).(map[string]any)
	return got, args.Error(1)
}

type mockLLM struct {
	mock.Mock
	configured bool
}

func (m *mockLLM) Configured() bool { return m.configured }

func (m *mockLLM) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type mockUnlocker struct {
	mock.Mock
	enabled bool
}

func (m *mockUnlocker) Enabled() bool { return m.enabled }

func (m *mockUnlocker) Fetch(ctx context.Context, target string) (any, bool) {
	args := m.Called(ctx, target)
	return args.Get(0), args.Bool(1)
}

type mockSolver struct{ mock.Mock }

func (m *mockSolver) Solve(ctx context.Context, target, vendor string) bool {
	return m.Called(ctx, target, vendor).Bool(0)
}

type failingPersister struct{}

func (failingPersister) Save(string, string, *models.NormalizedResult) (string, error) {
	return "", models.NewScrapeError(models.ErrCodePersist, "disk full", errors.New("ENOSPC"))
}

// noJSON makes every probe miss.
func noJSON(f *mockFetcher) {
	f.On("GetJSON", mock.Anything, mock.Anything, mock.Anything).Return(nil, false)
}

func plainPage(target, html string) *models.PageCapture {
	return &models.PageCapture{
		URL:              target,
		FinalURL:         target,
		FinalHTML:        html,
		NetworkResponses: []models.ResponseRecord{{URL: target, Status: 200, ContentType: "text/html", Body: html}},
		Engine:           "http",
	}
}

func resultFiles(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return entries
}

func TestRunDirectEndpointHit(t *testing.T) {
	dir := t.TempDir()
	f := &mockFetcher{}
	b := &mockBrowser{}
	payload := []any{map[string]any{"id": float64(1), "title": "x"}}
	f.On("GetJSON", mock.Anything, "https://example.com/wp-json/wp/v2/posts", mock.Anything).Return(payload, true)
	noJSON(f)

	o := New(f, store.New(dir), WithBrowser(b))
	out, err := o.Run(context.Background(), "https://example.com/")
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, StateExhausted, out.State)
	assert.Equal(t, models.TechniqueDirectEndpoint, out.Technique)
	assert.Equal(t, payload, out.Result.Data)
	assert.Equal(t, "https://example.com/wp-json/wp/v2/posts", out.Result.Metadata.SourceURL)
	assert.FileExists(t, out.Path)

	f.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything)
	b.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, out.Trace, 1)
	assert.True(t, out.Trace[0].Accepted)
}

func TestRunSSRHit(t *testing.T) {
	target := "https://stocks.example.com/"
	html := `<html><head><script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"stocks":[{"symbol":"AAPL"}]}}}</script></head><body></body></html>`

	f := &mockFetcher{}
	noJSON(f)
	f.On("Capture", mock.Anything, target).Return(plainPage(target, html), nil)
	b := &mockBrowser{}

	o := New(f, store.New(t.TempDir()), WithBrowser(b))
	out, err := o.Run(context.Background(), target)
	require.NoError(t, err)

	require.True(t, out.Success)
	assert.Equal(t, models.TechniqueSSRInline, out.Technique)
	data := out.Result.Data.(map[string]any)
	stocks := data[models.KeyStocks].(map[string]any)
	assert.Equal(t, "AAPL", stocks["AAPL"].(map[string]any)["symbol"])

	b.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything)
	f.AssertNumberOfCalls(t, "Capture", 1)
}

func TestRunShortCircuitsInsideBrowserStage(t *testing.T) {
	target := "https://gold.example.com/"
	f := &mockFetcher{}
	noJSON(f)
	f.On("Capture", mock.Anything, target).Return(plainPage(target, "<html></html>"), nil)

	b := &mockBrowser{}
	b.On("Capture", mock.Anything, target, scraper.CaptureOptions{}).Return(&models.PageCapture{
		URL:       target,
		FinalURL:  target,
		FinalHTML: "<html><body><article><h2>x</h2></article></body></html>",
		NetworkResponses: []models.ResponseRecord{
			{URL: "https://gold.example.com/api/prices", Status: 200, ContentType: "application/json", Body: `{"harga":[1,2]}`},
			{URL: "https://gold.example.com/api/private", Status: 403, ContentType: "application/json", Body: ""},
		},
		Engine: "browser",
	}, nil)

	llm := &mockLLM{configured: true}
	u := &mockUnlocker{enabled: true}

	o := New(f, store.New(t.TempDir()),
		WithBrowser(b),
		WithLLM(llm, strategy.LLMOptions{}),
		WithUnlocker(u),
		WithKeywords([]string{"harga"}),
	)
	out, err := o.Run(context.Background(), target)
	require.NoError(t, err)

	require.True(t, out.Success)
	assert.Equal(t, models.TechniqueNetworkHarvest, out.Technique)
	b.AssertNumberOfCalls(t, "Capture", 1)
	b.AssertNotCalled(t, "NativeFetch", mock.Anything, mock.Anything, mock.Anything)
	llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	u.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	assert.Equal(t, []string{"harga"}, out.Result.Metadata.Extra["evidence"])
}

func TestRunFullExhaustion(t *testing.T) {
	dir := t.TempDir()
	target := "https://empty.example.com/"
	html := "<html><body><p>nothing to see</p></body></html>"

	f := &mockFetcher{}
	noJSON(f)
	f.On("Capture", mock.Anything, target).Return(plainPage(target, html), nil)

	b := &mockBrowser{}
	page := &models.PageCapture{URL: target, FinalURL: target, FinalHTML: html, Engine: "browser"}
	b.On("Capture", mock.Anything, target, mock.Anything).Return(page, nil)

	llm := &mockLLM{configured: false}
	u := &mockUnlocker{enabled: false}

	o := New(f, store.New(dir), WithBrowser(b), WithLLM(llm, strategy.LLMOptions{}), WithUnlocker(u))
	out, err := o.Run(context.Background(), target)
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, StateExhausted, out.State)
	assert.Nil(t, out.Result)
	assert.Empty(t, out.Path)
	assert.Empty(t, resultFiles(t, dir), "exhaustion writes no file")

	var visited []State
	for _, a := range out.Trace {
		if len(visited) == 0 || visited[len(visited)-1] != a.State {
			visited = append(visited, a.State)
		}
		assert.False(t, a.Accepted)
	}
	assert.Equal(t, sequence, visited)

	b.AssertNumberOfCalls(t, "Capture", 2)
	llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	u.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestRunCaptchaDoesNotHalt(t *testing.T) {
	target := "https://guarded.example.com/"
	html := `<html><body><div class="g-recaptcha"></div></body></html>`

	f := &mockFetcher{}
	noJSON(f)
	f.On("Capture", mock.Anything, target).Return(plainPage(target, html), nil)

	b := &mockBrowser{}
	b.On("Capture", mock.Anything, target, mock.Anything).Return(
		&models.PageCapture{URL: target, FinalURL: target, FinalHTML: html, Engine: "browser"}, nil)

	s := &mockSolver{}
	s.On("Solve", mock.Anything, target, "g-recaptcha").Return(false)

	u := &mockUnlocker{enabled: true}
	u.On("Fetch", mock.Anything, target).Return(map[string]any{"html": "<p>ok</p>"}, true)

	o := New(f, store.New(t.TempDir()), WithBrowser(b), WithSolver(s), WithUnlocker(u))
	out, err := o.Run(context.Background(), target)
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, models.TechniqueExternalUnlocker, out.Technique)
	s.AssertNumberOfCalls(t, "Solve", 1)
	u.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestRunBrowserFailureDegrades(t *testing.T) {
	target := "https://down.example.com/"
	f := &mockFetcher{}
	noJSON(f)
	f.On("Capture", mock.Anything, target).Return(nil, models.NewScrapeError(models.ErrCodeNetwork, "refused", nil))

	b := &mockBrowser{}
	b.On("Capture", mock.Anything, target, mock.Anything).Return(nil, models.NewScrapeError(models.ErrCodeNavigation, "nav", nil))

	o := New(f, store.New(t.TempDir()), WithBrowser(b))
	out, err := o.Run(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, StateExhausted, out.State)

	var browserStage []Attempt
	for _, a := range out.Trace {
		if a.State == StateTryingBrowserCapture {
			browserStage = append(browserStage, a)
		}
	}
	require.Len(t, browserStage, 1, "no page to fall back to")
	assert.Equal(t, "capture failed: "+models.ErrCodeNavigation, browserStage[0].Reason)
	b.AssertNumberOfCalls(t, "Capture", 2)
}

// cardsAndPrices has both a keyword table and article cards.
const cardsAndPrices = `<html><body>
<article><h2>Emas naik</h2><a href="/emas-naik">baca</a></article>
<article><h2>Emas turun</h2><a href="/emas-turun">baca</a></article>
<table><tr><th>Gram</th><th>Harga</th></tr><tr><td>1</td><td>1.000.000</td></tr></table>
</body></html>`

func TestRunWithoutBrowserUsesPlainPage(t *testing.T) {
	target := "https://emas.example.com/"
	f := &mockFetcher{}
	noJSON(f)
	f.On("Capture", mock.Anything, target).Return(plainPage(target, cardsAndPrices), nil)

	o := New(f, store.New(t.TempDir()), WithKeywords([]string{"harga"}))
	out, err := o.Run(context.Background(), target)
	require.NoError(t, err)

	require.True(t, out.Success)
	assert.Equal(t, models.TechniqueStaticTable, out.Technique)
	assert.FileExists(t, out.Path)

	last := out.Trace[len(out.Trace)-1]
	assert.Equal(t, StateTryingBrowserCapture, last.State)
	assert.Equal(t, "tables", last.Strategy)
	assert.True(t, last.Accepted)
	assert.Contains(t, out.Trace, Attempt{State: StateTryingBrowserCapture, Strategy: "capture", Reason: strategy.ReasonDisabled})
}

func TestRunBrowserFailureFallsBackToPlainPage(t *testing.T) {
	target := "https://berita.example.com/"
	f := &mockFetcher{}
	noJSON(f)
	f.On("Capture", mock.Anything, target).Return(plainPage(target, cardsAndPrices), nil)

	b := &mockBrowser{}
	b.On("Capture", mock.Anything, target, scraper.CaptureOptions{}).Return(nil, models.NewScrapeError(models.ErrCodeTimeout, "slow", nil))

	o := New(f, store.New(t.TempDir()), WithBrowser(b), WithKeywords([]string{"saham"}))
	out, err := o.Run(context.Background(), target)
	require.NoError(t, err)

	require.True(t, out.Success)
	assert.Equal(t, models.TechniqueDOMHeuristic, out.Technique)
	b.AssertNumberOfCalls(t, "Capture", 1)
}

func TestRunPartialCaptureIsUsed(t *testing.T) {
	target := "https://slow.example.com/"
	f := &mockFetcher{}
	noJSON(f)
	f.On("Capture", mock.Anything, target).Return(plainPage(target, "<html></html>"), nil)

	b := &mockBrowser{}
	b.On("Capture", mock.Anything, target, scraper.CaptureOptions{}).Return(&models.PageCapture{
		URL:      target,
		FinalURL: target,
		NetworkResponses: []models.ResponseRecord{
			{URL: target + "api/harga", Status: 200, ContentType: "application/json", Body: `{"harga":[1,2]}`},
		},
		Engine:  "browser",
		Partial: true,
	}, nil)

	o := New(f, store.New(t.TempDir()), WithBrowser(b), WithKeywords([]string{"harga"}))
	out, err := o.Run(context.Background(), target)
	require.NoError(t, err)

	require.True(t, out.Success)
	assert.Equal(t, models.TechniqueNetworkHarvest, out.Technique)
}

func TestRunMalformedJSONIsNotACandidate(t *testing.T) {
	target := "https://broken.example.com/"
	f := &mockFetcher{}
	noJSON(f)
	f.On("Capture", mock.Anything, target).Return(plainPage(target, "<html></html>"), nil)

	b := &mockBrowser{}
	b.On("Capture", mock.Anything, target, mock.Anything).Return(&models.PageCapture{
		URL:       target,
		FinalURL:  target,
		FinalHTML: "<html></html>",
		NetworkResponses: []models.ResponseRecord{
			{URL: target + "api/harga", Status: 200, ContentType: "application/json", Body: `{"harga": [1, 2`},
		},
	}, nil)

	o := New(f, store.New(t.TempDir()), WithBrowser(b), WithKeywords([]string{"harga"}))
	out, err := o.Run(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, out.Success)
}

func TestRunInvalidURL(t *testing.T) {
	o := New(&mockFetcher{}, store.New(t.TempDir()))
	for _, target := range []string{"", "ftp://x.test", "/relative", "http://"} {
		t.Run(target, func(t *testing.T) {
			out, err := o.Run(context.Background(), target)
			assert.Equal(t, models.ErrCodeInvalidInput, models.ErrorCode(err))
			assert.False(t, out.Success)
		})
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := New(&mockFetcher{}, store.New(t.TempDir()))
	_, err := o.Run(ctx, "https://example.com")
	assert.Equal(t, models.ErrCodeTimeout, models.ErrorCode(err))
}

func TestRunPersistFailure(t *testing.T) {
	f := &mockFetcher{}
	f.On("GetJSON", mock.Anything, "https://example.com", mock.Anything).Return([]any{"x"}, true)

	o := New(f, failingPersister{})
	out, err := o.Run(context.Background(), "https://example.com")
	assert.Equal(t, models.ErrCodePersist, models.ErrorCode(err))
	assert.True(t, out.Success)
	assert.Empty(t, out.Path)
}

func TestRunInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(0, 0), time.Minute)
	c.Set(ctx, store.PatternStocks, &cache.Entry{Path: "old.json"})

	f := &mockFetcher{}
	f.On("GetJSON", mock.Anything, "https://example.com", mock.Anything).Return(map[string]any{"ok": true}, true)

	o := New(f, store.New(t.TempDir()), WithCache(c))
	out, err := o.Run(ctx, "https://example.com")
	require.NoError(t, err)
	require.True(t, out.Success)

	_, ok := c.Get(ctx, store.PatternStocks)
	assert.False(t, ok)
}
