package strategy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/strata/engine"
	"github.com/use-agent/strata/models"
)

// Bounds on the JS mining pass.
const (
	maxScripts   = 25
	maxEndpoints = 40
)

var (
	absAPIURL    = regexp.MustCompile(`https?://[^"'\s]+api[^"'\s]*`)
	fetchCall    = regexp.MustCompile(`(?:fetch|axios\.(?:get|post|put|delete))\s*\(\s*["']([^"']+)["']`)
	urlProperty  = regexp.MustCompile(`(?:url|endpoint|api)\s*:\s*["']([^"']+)["']`)
	versionedAPI = regexp.MustCompile(`["'](/v\d+/[a-zA-Z0-9_/-]+)["']`)
)

// ScriptFetcher downloads scripts and probes JSON endpoints.
type ScriptFetcher interface {
	JSONGetter
	Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error)
}

// FindEndpoints returns the sorted set of API-looking strings in a script:
// absolute URLs containing "api", fetch/axios call arguments, url/endpoint/api
// properties and quoted /v<n>/ paths. Items of two characters or fewer, or
// containing angle brackets, are dropped.
func FindEndpoints(js string) []string {
	set := make(map[string]bool)
	for _, m := range absAPIURL.FindAllString(js, -1) {
		set[m] = true
	}
	for _, re := range []*regexp.Regexp{fetchCall, urlProperty, versionedAPI} {
		for _, m := range re.FindAllStringSubmatch(js, -1) {
			set[m[1]] = true
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		if len(s) > 2 && !strings.ContainsAny(s, "<>") {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// ScriptSources splits the page's scripts into external script URLs
// (protocol- and root-relative ones resolved against pageURL) and inline
// bodies.
func ScriptSources(rawHTML, pageURL string) (external []string, inline []string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, nil
	}
	seen := make(map[string]bool)
	doc.FindMatcher(scriptSel).Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
			abs := resolveEndpoint(pageURL, strings.TrimSpace(src))
			if abs != "" && !seen[abs] {
				seen[abs] = true
				external = append(external, abs)
			}
			return
		}
		if body := s.Text(); strings.TrimSpace(body) != "" {
			inline = append(inline, body)
		}
	})
	return external, inline
}

// resolveEndpoint turns a mined path into an absolute URL on the page's
// origin. Absolute URLs pass through.
func resolveEndpoint(pageURL, ep string) string {
	switch {
	case strings.HasPrefix(ep, "http://"), strings.HasPrefix(ep, "https://"):
		return ep
	case strings.HasPrefix(ep, "//"):
		return "https:" + ep
	}
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return ""
	}
	if !strings.HasPrefix(ep, "/") {
		ep = "/" + ep
	}
	return u.Scheme + "://" + u.Host + ep
}

// JSEndpoints mines the page's scripts for API endpoints, calls each one
// and accepts the first JSON answer that mentions a target keyword.
func JSEndpoints(ctx context.Context, f ScriptFetcher, c *models.PageCapture, kw Keywords, timeout time.Duration) (*models.ExtractionCandidate, string) {
	if c == nil || c.FinalHTML == "" {
		return nil, ReasonNoInput
	}
	page := sourceOf(c)
	external, inline := ScriptSources(c.FinalHTML, page)

	found := make(map[string]bool)
	for _, body := range inline {
		for _, ep := range FindEndpoints(body) {
			found[ep] = true
		}
	}
	if len(external) > maxScripts {
		external = external[:maxScripts]
	}
	for _, src := range external {
		if ctx.Err() != nil {
			break
		}
		res, err := f.Fetch(ctx, &engine.FetchRequest{URL: src, Timeout: timeout})
		if err != nil {
			slog.Debug("js mining: script download failed", "src", src, "error", err)
			continue
		}
		for _, ep := range FindEndpoints(res.Text()) {
			found[ep] = true
		}
	}

	targets := make([]string, 0, len(found))
	seen := make(map[string]bool)
	for ep := range found {
		if abs := resolveEndpoint(page, ep); abs != "" && !seen[abs] {
			seen[abs] = true
			targets = append(targets, abs)
		}
	}
	if len(targets) == 0 {
		return nil, "no endpoints in scripts"
	}
	sort.Strings(targets)
	if len(targets) > maxEndpoints {
		targets = targets[:maxEndpoints]
	}
	slog.Info("js mining: probing endpoints", "url", page, "count", len(targets))

	sawJSON := false
	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}
		v, ok := f.GetJSON(ctx, target, timeout)
		if !ok || models.IsEmptyPayload(v) {
			continue
		}
		sawJSON = true
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		if matched := kw.Match(string(raw)); len(matched) > 0 {
			return accept(models.TechniqueJSEndpoint, target, v, matched)
		}
	}
	return nil, firstMatchReason(sawJSON)
}
