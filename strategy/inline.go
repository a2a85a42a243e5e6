package strategy

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/strata/cleaner"
	"github.com/use-agent/strata/detect"
	"github.com/use-agent/strata/models"
)

// Inline item types, kept stable because normalizers key on them.
const (
	InlineLDJSON        = "ld+json"
	InlineScript        = "inline_script"
	InlineVariable      = "variable_injection"
	InlineDataAttribute = "data_attribute"
)

var (
	ldJSONSel = cleaner.MustCompile(`script[type="application/ld+json"]`)
	scriptSel = cleaner.MustCompile("script")

	wholeLiteral = regexp.MustCompile(`(?s)^\s*(\{.*\}|\[.*\])\s*$`)
	// An object assigned or passed as a property value, one level of
	// nesting deep, ending a statement or line.
	assignedObject = regexp.MustCompile(`[=:]\s\s*(\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\})\s*(?:;|\n|$)`)
)

// InlineJSON scans ld+json blocks, other inline scripts (whole literals or
// assigned objects) and JSON-valued data-* attributes. Each item is kept
// only when its raw text mentions a target keyword; the payload is the
// list of kept items as {type, content} objects.
func InlineJSON(c *models.PageCapture, kw Keywords) (*models.ExtractionCandidate, string) {
	if c == nil || c.FinalHTML == "" {
		return nil, ReasonNoInput
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(c.FinalHTML))
	if err != nil {
		return nil, ReasonNoInput
	}

	var items []any
	evidence := evidenceSet{}
	sawJSON := false
	keep := func(raw string, item map[string]any) {
		sawJSON = true
		matched := kw.Match(raw)
		if len(matched) == 0 {
			return
		}
		evidence.add(matched)
		items = append(items, item)
	}

	doc.FindMatcher(ldJSONSel).Each(func(_ int, s *goquery.Selection) {
		raw := s.Text()
		if v, ok := detect.ParseJSON(raw); ok {
			keep(raw, map[string]any{"type": InlineLDJSON, "content": v})
		}
	})

	doc.FindMatcher(scriptSel).Each(func(_ int, s *goquery.Selection) {
		if t, _ := s.Attr("type"); strings.EqualFold(t, "application/ld+json") {
			return
		}
		body := s.Text()
		if !strings.ContainsAny(body, "{[") {
			return
		}
		if m := wholeLiteral.FindStringSubmatch(body); m != nil {
			if v, ok := detect.ParseJSON(m[1]); ok {
				keep(m[1], map[string]any{"type": InlineScript, "content": v})
			}
			return
		}
		for _, m := range assignedObject.FindAllStringSubmatch(body, -1) {
			if v, ok := detect.ParseJSON(m[1]); ok {
				keep(m[1], map[string]any{"type": InlineVariable, "content": v})
			}
		}
	})

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Nodes[0]
		for _, a := range node.Attr {
			if !strings.HasPrefix(a.Key, "data-") {
				continue
			}
			val := strings.TrimSpace(a.Val)
			if !strings.HasPrefix(val, "{") && !strings.HasPrefix(val, "[") {
				continue
			}
			if v, ok := detect.ParseJSON(val); ok {
				keep(val, map[string]any{"type": InlineDataAttribute, "tag": node.Data, "attr": a.Key, "content": v})
			}
		}
	})

	if len(items) == 0 {
		return nil, firstMatchReason(sawJSON)
	}
	return accept(models.TechniqueInlineJSON, sourceOf(c), items, evidence.list())
}
