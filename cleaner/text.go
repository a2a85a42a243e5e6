package cleaner

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// noiseSelector matches elements that never carry visible text.
const noiseSelector = "script, style, noscript, svg, template, iframe, head"

// VisibleText returns the text a visitor would read, with scripts and
// styles removed and whitespace collapsed to single spaces.
func VisibleText(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	doc.Find(noiseSelector).Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	var parts []string
	for _, n := range root.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

// collectText appends every non-blank text node under n, in document order.
func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if t := collapseSpace(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

// StripNoise removes script-like elements and returns the remaining HTML.
func StripNoise(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	doc.Find(noiseSelector).Remove()
	out, err := doc.Html()
	if err != nil {
		return rawHTML
	}
	return out
}

// Exclude removes every element matching the selectors.
func Exclude(rawHTML string, selectors ...string) string {
	if len(selectors) == 0 {
		return rawHTML
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	for _, sel := range selectors {
		doc.Find(sel).Remove()
	}
	out, err := doc.Html()
	if err != nil {
		return rawHTML
	}
	return out
}

// Truncate cuts s to at most n runes. n <= 0 means no limit.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// collapseSpace folds runs of whitespace into one space and trims.
func collapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// stripTags extracts plain text from an HTML fragment.
func stripTags(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.TrimSpace(doc.Text())
}
