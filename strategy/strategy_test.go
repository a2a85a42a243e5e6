package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/strata/cleaner"
	"github.com/use-agent/strata/engine"
	"github.com/use-agent/strata/models"
)

var testKeywords = NewKeywords([]string{"Harga", "price", " gold ", "price", ""})

type fakeGetter struct {
	answers map[string]any
	calls   []string
}

func (f *fakeGetter) GetJSON(_ context.Context, target string, _ time.Duration) (any, bool) {
	f.calls = append(f.calls, target)
	v, ok := f.answers[target]
	return v, ok
}

func (f *fakeGetter) Fetch(_ context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	f.calls = append(f.calls, req.URL)
	if body, ok := f.answers[req.URL].(string); ok {
		return &engine.FetchResult{Body: []byte(body), StatusCode: 200}, nil
	}
	return nil, errors.New("not found")
}

func TestNewKeywordsNormalises(t *testing.T) {
	assert.Equal(t, Keywords{"harga", "price", "gold"}, testKeywords)
}

func TestKeywordsMatch(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  []string
	}{
		{"case-insensitive substring", []string{`{"HargaJual": 1}`}, []string{"harga"}},
		{"match in second text", []string{`{}`, "https://x.test/api/PRICES"}, []string{"price"}},
		{"several keywords sorted", []string{"gold price harga"}, []string{"gold", "harga", "price"}},
		{"no match", []string{`{"tracking": true}`}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, testKeywords.Match(tt.texts...))
		})
	}
}

func TestProbeURLsOrder(t *testing.T) {
	urls := ProbeURLs("https://example.com/")
	require.Len(t, urls, 1+2*len(CommonEndpoints))
	assert.Equal(t, "https://example.com", urls[0])
	assert.Equal(t, "https://example.com/api/data", urls[1])
	assert.Equal(t, "https://example.com/api/data?page=1", urls[2])
}

func TestDirectStopsAtWordPressPosts(t *testing.T) {
	posts := []any{map[string]any{"id": float64(1), "title": "x"}}
	g := &fakeGetter{answers: map[string]any{
		"https://example.com/wp-json/wp/v2/posts": posts,
	}}

	cand, reason := Direct(context.Background(), g, "https://example.com/", time.Second)
	require.NotNil(t, cand, reason)
	assert.Equal(t, models.TechniqueDirectEndpoint, cand.Technique)
	assert.Equal(t, "https://example.com/wp-json/wp/v2/posts", cand.SourceURL)
	assert.Equal(t, posts, cand.Payload)
	assert.Empty(t, cand.Evidence)
	assert.Equal(t, "https://example.com/wp-json/wp/v2/posts", g.calls[len(g.calls)-1])
	assert.NotContains(t, g.calls, "https://example.com/api/values")
}

func TestDirectSkipsEmptyJSON(t *testing.T) {
	g := &fakeGetter{answers: map[string]any{
		"https://example.com":          []any{},
		"https://example.com/api/data": map[string]any{},
	}}
	cand, reason := Direct(context.Background(), g, "https://example.com", time.Second)
	assert.Nil(t, cand)
	assert.Equal(t, ReasonNoJSON, reason)
	assert.Len(t, g.calls, len(ProbeURLs("https://example.com")))
}

func TestSSRInline(t *testing.T) {
	t.Run("next data block", func(t *testing.T) {
		c := &models.PageCapture{URL: "https://x.test", FinalHTML: `<html><body>
<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"stocks":[{"symbol":"AAPL"}]}}}</script>
</body></html>`}
		cand, reason := SSRInline(c)
		require.NotNil(t, cand, reason)
		assert.Equal(t, models.TechniqueSSRInline, cand.Technique)
		props := cand.Payload.(map[string]any)["props"].(map[string]any)
		assert.Contains(t, props, "pageProps")
	})

	t.Run("nuxt assignment is json5", func(t *testing.T) {
		c := &models.PageCapture{URL: "https://x.test", FinalHTML: `<script>window.__NUXT__ = {data: [{name: 'emas', price: 10}]};</script>`}
		cand, reason := SSRInline(c)
		require.NotNil(t, cand, reason)
		data := cand.Payload.(map[string]any)["data"].([]any)
		assert.Equal(t, "emas", data[0].(map[string]any)["name"])
		assert.Equal(t, float64(10), data[0].(map[string]any)["price"])
	})

	t.Run("live page state", func(t *testing.T) {
		c := &models.PageCapture{URL: "https://x.test", FinalHTML: "<p>hi</p>", StateScripts: map[string]string{
			"__APOLLO_STATE__":  `{"ROOT_QUERY":{}}`,
			"__INITIAL_STATE__": `{"items":[1,2]}`,
		}}
		cand, _ := SSRInline(c)
		require.NotNil(t, cand)
		assert.Contains(t, cand.Payload, "items")
	})

	t.Run("malformed block", func(t *testing.T) {
		c := &models.PageCapture{FinalHTML: `<script id="__NEXT_DATA__">{"props":</script>`}
		cand, reason := SSRInline(c)
		assert.Nil(t, cand)
		assert.Equal(t, ReasonNoJSON, reason)
	})
}

func TestHarvestKeywordGate(t *testing.T) {
	tests := []struct {
		name     string
		resp     models.ResponseRecord
		accepted bool
		reason   string
	}{
		{
			name:     "keyword in body",
			resp:     models.ResponseRecord{URL: "https://x.test/api/a", ContentType: "application/json", Body: `{"Price": 10}`},
			accepted: true,
		},
		{
			name:     "keyword in url",
			resp:     models.ResponseRecord{URL: "https://x.test/harga/list", ContentType: "text/plain", Body: `[1,2]`},
			accepted: true,
		},
		{
			name:   "valid json without keyword",
			resp:   models.ResponseRecord{URL: "https://x.test/collect", ContentType: "application/json", Body: `{"event":"pageview"}`},
			reason: ReasonNoKeyword,
		},
		{
			name:   "truncated json",
			resp:   models.ResponseRecord{URL: "https://x.test/api/price", ContentType: "application/json", Body: `{"price": [1, 2`},
			reason: ReasonNoJSON,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &models.PageCapture{URL: "https://x.test", NetworkResponses: []models.ResponseRecord{tt.resp}}
			cand, reason := Harvest(c, testKeywords)
			if !tt.accepted {
				assert.Nil(t, cand)
				assert.Equal(t, tt.reason, reason)
				return
			}
			require.NotNil(t, cand)
			assert.Equal(t, models.TechniqueNetworkHarvest, cand.Technique)
			assert.NotEmpty(t, cand.Evidence)
			assert.Contains(t, cand.Payload, tt.resp.URL)
		})
	}
}

func TestWebSocketFrames(t *testing.T) {
	c := &models.PageCapture{WebSocketFrames: []models.WebSocketFrame{
		{Direction: models.FrameReceived, Payload: `{"type":"ping"}`},
		{Direction: models.FrameReceived, Payload: `{"gold":{"bid":1}}`},
		{Direction: models.FrameReceived, Payload: `not json gold`},
	}}
	cand, _ := WebSocket(c, testKeywords)
	require.NotNil(t, cand)
	assert.Len(t, cand.Payload, 1)
	assert.Equal(t, []string{"gold"}, cand.Evidence)
}

func TestInlineJSON(t *testing.T) {
	page := `<html><head>
<script type="application/ld+json">{"@type":"Product","offers":{"price":"10"}}</script>
<script>[{"harga": 1}]</script>
<script>window.__INITIAL_STATE__ = {"gold": {"buy": 2}};
var other = 1;</script>
<script>console.log("nothing here")</script>
</head><body>
<div data-props='{"price": 3}' data-id="7"></div>
<div data-config='{"theme": "dark"}'></div>
</body></html>`

	cand, reason := InlineJSON(&models.PageCapture{URL: "https://x.test", FinalHTML: page}, testKeywords)
	require.NotNil(t, cand, reason)
	items := cand.Payload.([]any)

	var types []string
	for _, it := range items {
		types = append(types, it.(map[string]any)["type"].(string))
	}
	assert.Equal(t, []string{InlineLDJSON, InlineScript, InlineVariable, InlineDataAttribute}, types)
	assert.Equal(t, "data-props", items[3].(map[string]any)["attr"])
	assert.Equal(t, []string{"gold", "harga", "price"}, cand.Evidence)
}

func TestInlineJSONRejectsIrrelevantScripts(t *testing.T) {
	page := `<script type="application/ld+json">{"@type":"Organization","name":"x"}</script>`
	cand, reason := InlineJSON(&models.PageCapture{FinalHTML: page}, testKeywords)
	assert.Nil(t, cand)
	assert.Equal(t, ReasonNoKeyword, reason)
}

func TestDOMHeuristicCapsCards(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&b, `<div class="post-card"><a href="/p/%d">Post %d</a></div>`, i, i)
	}
	b.WriteString("</body></html>")

	cand, reason := DOMHeuristic(&models.PageCapture{URL: "https://x.test", FinalHTML: b.String()})
	require.NotNil(t, cand, reason)
	articles := cand.Payload.(map[string]any)["articles"].([]any)
	assert.LessOrEqual(t, len(articles), MaxCards)
	assert.Len(t, articles, MaxCards)
}

func TestDOMHeuristicCardFields(t *testing.T) {
	page := `<body>
<article><h2> Judul  Satu </h2> <a href="/a">read</a> <p>Body text</p></article>
<div class="Entry"><a href="/b" title="Second">x</a></div>
<div class="entry"></div>
<div class="wrapper">not a card</div>
<iframe src="https://player.example/embed/1"></iframe>
<iframe src="https://www.youtube.com/embed/2"></iframe>
<iframe src="https://ads.example/frame"></iframe>
</body>`
	cand, _ := DOMHeuristic(&models.PageCapture{FinalHTML: page})
	require.NotNil(t, cand)
	payload := cand.Payload.(map[string]any)
	articles := payload["articles"].([]any)
	require.Len(t, articles, 2)

	first := articles[0].(map[string]any)
	assert.Equal(t, float64(1), first["id"])
	assert.Equal(t, "Judul Satu", first["judul"])
	assert.Equal(t, "/a", first["url"])
	assert.Equal(t, "Judul Satu read Body text", first["excerpt"])

	second := articles[1].(map[string]any)
	assert.Equal(t, "Second", second["judul"])
	assert.Equal(t, []any{"https://player.example/embed/1"}, payload["video_embeds"])
	assert.Empty(t, cand.Evidence)
}

func TestDOMHeuristicNothing(t *testing.T) {
	cand, reason := DOMHeuristic(&models.PageCapture{FinalHTML: "<p>plain</p>"})
	assert.Nil(t, cand)
	assert.Equal(t, ReasonNoCards, reason)
}

func TestStrategiesWithoutCapture(t *testing.T) {
	ctx := context.Background()
	llm := &fakeCompleter{configured: true}
	tests := []struct {
		name string
		run  func() (*models.ExtractionCandidate, string)
	}{
		{"ssr", func() (*models.ExtractionCandidate, string) { return SSRInline(nil) }},
		{"harvest", func() (*models.ExtractionCandidate, string) { return Harvest(nil, testKeywords) }},
		{"websocket", func() (*models.ExtractionCandidate, string) { return WebSocket(nil, testKeywords) }},
		{"decoded", func() (*models.ExtractionCandidate, string) { return Decoded(nil) }},
		{"native-fetch", func() (*models.ExtractionCandidate, string) { return NativeFetch(ctx, nil, nil) }},
		{"inline-json", func() (*models.ExtractionCandidate, string) { return InlineJSON(nil, testKeywords) }},
		{"tables", func() (*models.ExtractionCandidate, string) { return Tables(nil, testKeywords) }},
		{"dom", func() (*models.ExtractionCandidate, string) { return DOMHeuristic(nil) }},
		{"llm", func() (*models.ExtractionCandidate, string) {
			return LLMStructure(ctx, llm, cleaner.New(), nil, LLMOptions{})
		}},
		{"js-endpoints", func() (*models.ExtractionCandidate, string) {
			return JSEndpoints(ctx, &fakeGetter{}, nil, testKeywords, time.Second)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cand, reason := tt.run()
			assert.Nil(t, cand)
			assert.Equal(t, ReasonNoInput, reason)
		})
	}
	assert.Empty(t, llm.prompts)
}

func TestTables(t *testing.T) {
	page := `<body>
<table><tr><th>Satuan</th><th>Harga</th></tr><tr><td>1</td><td>1.000.000</td></tr></table>
<table><tr><td>Gram</td><td>Antam</td></tr><tr><td>0.5</td><td>600.000</td></tr></table>
<table><tr><td>menu</td></tr></table>
</body>`
	cand, reason := Tables(&models.PageCapture{FinalHTML: page}, NewKeywords([]string{"harga", "antam"}))
	require.NotNil(t, cand, reason)
	tables := cand.Payload.([]any)
	require.Len(t, tables, 2)

	withHeaders := tables[0].(map[string]any)
	assert.Equal(t, float64(0), withHeaders["table_index"])
	assert.Equal(t, []any{map[string]any{"Satuan": "1", "Harga": "1.000.000"}}, withHeaders["data"])

	plain := tables[1].(map[string]any)
	assert.Equal(t, []any{[]any{"Gram", "Antam"}, []any{"0.5", "600.000"}}, plain["data"])
}

func TestReplayTargets(t *testing.T) {
	got := ReplayTargets([]models.ResponseRecord{
		{URL: "https://x.test/a", Status: 403},
		{URL: "https://x.test/b", Status: 200, Body: "  "},
		{URL: "https://x.test/c", Status: 200, Body: "{}"},
		{URL: "https://x.test/a", Status: 401},
		{URL: "https://x.test/d", Status: 500},
		{URL: "https://x.test/e", Status: 400},
	})
	assert.Equal(t, []string{"https://x.test/a", "https://x.test/b", "https://x.test/e"}, got)
}

type fakePageFetcher struct {
	got       map[string]any
	err       error
	endpoints []string
}

func (f *fakePageFetcher) NativeFetch(_ context.Context, _ string, endpoints []string) (map[string]any, error) {
	f.endpoints = endpoints
	return f.got, f.err
}

func TestNativeFetchDropsErrorBodies(t *testing.T) {
	c := &models.PageCapture{URL: "https://x.test", NetworkResponses: []models.ResponseRecord{
		{URL: "https://x.test/api/a", Status: 403},
		{URL: "https://x.test/api/b", Status: 401},
	}}
	f := &fakePageFetcher{got: map[string]any{
		"https://x.test/api/a": map[string]any{"rows": []any{float64(1)}},
		"https://x.test/api/b": map[string]any{"error": "forbidden"},
	}}
	cand, reason := NativeFetch(context.Background(), f, c)
	require.NotNil(t, cand, reason)
	assert.Equal(t, models.TechniqueNativeFetch, cand.Technique)
	assert.Equal(t, map[string]any{"https://x.test/api/a": map[string]any{"rows": []any{float64(1)}}}, cand.Payload)
	assert.Equal(t, []string{"https://x.test/api/a", "https://x.test/api/b"}, f.endpoints)

	f.err = errors.New("page gone")
	cand, _ = NativeFetch(context.Background(), f, c)
	assert.Nil(t, cand)

	cand, reason = NativeFetch(context.Background(), f, &models.PageCapture{})
	assert.Nil(t, cand)
	assert.Equal(t, ReasonNoTargets, reason)
}

type fakeCompleter struct {
	configured bool
	answer     string
	err        error
	prompts    []string
}

func (f *fakeCompleter) Configured() bool { return f.configured }

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

func TestLLMStructure(t *testing.T) {
	page := "<html><body><script>var x = 1;</script><ul>" +
		strings.Repeat("<li>Harga emas hari ini 1 gram Rp 1.000.000</li>", 5) + "</ul></body></html>"
	capture := &models.PageCapture{URL: "https://x.test", FinalHTML: page}
	cl := cleaner.New()

	t.Run("disabled without credential", func(t *testing.T) {
		llm := &fakeCompleter{}
		cand, reason := LLMStructure(context.Background(), llm, cl, capture, LLMOptions{})
		assert.Nil(t, cand)
		assert.Equal(t, ReasonDisabled, reason)
		assert.Empty(t, llm.prompts)
	})

	t.Run("fenced array accepted", func(t *testing.T) {
		llm := &fakeCompleter{configured: true, answer: "```json\n[{\"item\":\"emas\",\"price\":\"1.000.000\"}]\n```"}
		cand, reason := LLMStructure(context.Background(), llm, cl, capture, LLMOptions{})
		require.NotNil(t, cand, reason)
		assert.Equal(t, models.TechniqueLLMStructured, cand.Technique)
		rows := cand.Payload.(map[string]any)["ai_structured_data"].([]any)
		assert.Len(t, rows, 1)
		require.Len(t, llm.prompts, 1)
		assert.NotContains(t, llm.prompts[0], "var x")
		assert.Contains(t, llm.prompts[0], "RAW TEXT TO ANALYZE")
	})

	t.Run("empty array rejected", func(t *testing.T) {
		llm := &fakeCompleter{configured: true, answer: "[]"}
		cand, reason := LLMStructure(context.Background(), llm, cl, capture, LLMOptions{})
		assert.Nil(t, cand)
		assert.Equal(t, ReasonEmpty, reason)
	})

	t.Run("too little text", func(t *testing.T) {
		llm := &fakeCompleter{configured: true, answer: `[{"a":1}]`}
		cand, reason := LLMStructure(context.Background(), llm, cl, &models.PageCapture{FinalHTML: "<p>short</p>"}, LLMOptions{})
		assert.Nil(t, cand)
		assert.Equal(t, ReasonTooLittleText, reason)
		assert.Empty(t, llm.prompts)
	})

	t.Run("scope and exclude narrow the prompt", func(t *testing.T) {
		scoped := &models.PageCapture{URL: "https://x.test", FinalHTML: "<html><body><nav>Beranda Masuk Daftar</nav>" +
			"<div id=\"prices\"><aside>iklan sponsor</aside>" + strings.Repeat("<p>Antam 1 gram Rp 1.500.000 naik dari kemarin</p>", 4) + "</div>" +
			"<div id=\"other\">komentar pembaca</div></body></html>"}
		llm := &fakeCompleter{configured: true, answer: `[{"item":"antam"}]`}
		cand, reason := LLMStructure(context.Background(), llm, cl, scoped, LLMOptions{Scope: "#prices", Exclude: []string{"nav", "aside"}})
		require.NotNil(t, cand, reason)
		require.Len(t, llm.prompts, 1)
		assert.Contains(t, llm.prompts[0], "Antam 1 gram")
		assert.NotContains(t, llm.prompts[0], "Beranda")
		assert.NotContains(t, llm.prompts[0], "iklan sponsor")
		assert.NotContains(t, llm.prompts[0], "komentar pembaca")
	})

	t.Run("provider error", func(t *testing.T) {
		llm := &fakeCompleter{configured: true, err: models.NewScrapeError(models.ErrCodeLLMRateLimited, "slow down", nil)}
		cand, reason := LLMStructure(context.Background(), llm, cl, capture, LLMOptions{})
		assert.Nil(t, cand)
		assert.Contains(t, reason, models.ErrCodeLLMRateLimited)
	})
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "[1]", StripFences("```json\n[1]\n```"))
	assert.Equal(t, "[1]", StripFences("```[1]```"))
	assert.Equal(t, "[1]", StripFences("  [1] "))
}

func TestFindEndpoints(t *testing.T) {
	js := `
fetch("/api/prices");
axios.post('/v2/orders', body);
const cfg = {url: "/data/list", endpoint: 'x'};
const base = "https://cdn.example.com/api/v1/items?x=1";
const v = "/v3/market/gold";
const bad = {url: "<div>"};
`
	assert.Equal(t, []string{
		"/api/prices",
		"/data/list",
		"/v2/orders",
		"/v3/market/gold",
		"https://cdn.example.com/api/v1/items?x=1",
	}, FindEndpoints(js))
}

func TestScriptSources(t *testing.T) {
	page := `<script src="//cdn.example.com/a.js"></script>
<script src="/static/b.js"></script>
<script src="/static/b.js"></script>
<script>fetch("/api/x")</script>`
	external, inline := ScriptSources(page, "https://site.test/path/page")
	assert.Equal(t, []string{"https://cdn.example.com/a.js", "https://site.test/static/b.js"}, external)
	assert.Equal(t, []string{`fetch("/api/x")`}, inline)
}

func TestJSEndpoints(t *testing.T) {
	page := `<script src="/app.js"></script><script>fetch("/api/ads")</script>`
	f := &fakeGetter{answers: map[string]any{
		"https://site.test/app.js":     `axios.get("/api/quotes")`,
		"https://site.test/api/ads":    map[string]any{"slot": "top"},
		"https://site.test/api/quotes": []any{map[string]any{"price": float64(5)}},
	}}
	cand, reason := JSEndpoints(context.Background(), f, &models.PageCapture{URL: "https://site.test/", FinalHTML: page}, testKeywords, time.Second)
	require.NotNil(t, cand, reason)
	assert.Equal(t, models.TechniqueJSEndpoint, cand.Technique)
	assert.Equal(t, "https://site.test/api/quotes", cand.SourceURL)
	assert.Equal(t, []string{"price"}, cand.Evidence)
}
