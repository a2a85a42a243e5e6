package strategy

import (
	"math"
	"regexp"
	"strings"

	"github.com/titanous/json5"

	"github.com/use-agent/strata/detect"
	"github.com/use-agent/strata/models"
)

var (
	nextDataScript = regexp.MustCompile(`(?is)<script[^>]*\bid=["']__NEXT_DATA__["'][^>]*>(.*?)</script>`)
	stateAssign    = regexp.MustCompile(`(?is)<script[^>]*>\s*window\.(__NUXT__|__STATE__)\s*=\s*(\{.*?\})\s*;?\s*</script>`)
)

// stateScriptOrder is the order live-page state is consulted in.
var stateScriptOrder = []string{"__NEXT_DATA__", "__NUXT_DATA__", "__NUXT__", "__INITIAL_STATE__", "__APOLLO_STATE__"}

// SSRInline parses framework state embedded by server-side rendering: the
// __NEXT_DATA__ script block, a window.__NUXT__ or window.__STATE__
// assignment, then any state the browser read from the live page.
func SSRInline(c *models.PageCapture) (*models.ExtractionCandidate, string) {
	if c == nil || (c.Empty() && len(c.StateScripts) == 0) {
		return nil, ReasonNoInput
	}
	src := sourceOf(c)

	if m := nextDataScript.FindStringSubmatch(c.FinalHTML); m != nil {
		if v, ok := detect.ParseJSON(m[1]); ok && !models.IsEmptyPayload(v) {
			return accept(models.TechniqueSSRInline, src, v, nil)
		}
	}
	for _, m := range stateAssign.FindAllStringSubmatch(c.FinalHTML, -1) {
		if v, ok := parseLoose(m[2]); ok && !models.IsEmptyPayload(v) {
			return accept(models.TechniqueSSRInline, src, v, nil)
		}
	}
	for _, name := range stateScriptOrder {
		raw, ok := c.StateScripts[name]
		if !ok {
			continue
		}
		if v, ok := detect.ParseJSON(raw); ok && !models.IsEmptyPayload(v) {
			return accept(models.TechniqueSSRInline, src, v, nil)
		}
	}
	return nil, ReasonNoJSON
}

// parseLoose parses a JavaScript object literal. Strict JSON is tried
// first; json5 covers unquoted keys, single quotes and trailing commas.
func parseLoose(text string) (any, bool) {
	if v, ok := detect.ParseJSON(text); ok {
		return v, true
	}
	var v any
	if err := json5.Unmarshal([]byte(strings.TrimSpace(text)), &v); err != nil {
		return nil, false
	}
	return normalizeJSON5(v), true
}

// normalizeJSON5 replaces the NaN and Infinity literals json5 accepts with
// null, since encoding/json cannot write them back out.
func normalizeJSON5(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeJSON5(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeJSON5(e)
		}
		return t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
	}
	return v
}
