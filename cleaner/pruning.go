package cleaner

import (
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Block scoring for PruneContent. Each top-level block under <body> gets
//
//	3*textDensity - 2*linkDensity + 1.5*tagWeight + classWeight + 0.5*log10(len+1)
//
// and is kept when the score is positive.
const (
	wTextDensity = 3.0
	wLinkDensity = -2.0
	wTag         = 1.5
	wClassID     = 1.0
	wTextLength  = 0.5
)

var (
	contentHints     = []string{"content", "article", "post", "entry", "body", "main", "text", "read", "detail"}
	boilerplateHints = []string{
		"sidebar", "ad", "widget", "nav", "menu", "comment", "footer", "header",
		"banner", "popup", "modal", "cookie", "social", "share", "related",
		"recommend", "promo", "terkait", "baca-juga",
	}
)

// PruneContent keeps the body blocks that look like main content. When no
// block passes, the whole body is returned so callers never get nothing.
func PruneContent(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML, err
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		return rawHTML, nil
	}

	var kept []string
	body.Children().Each(func(_ int, el *goquery.Selection) {
		if blockScore(el) <= 0 {
			return
		}
		if h, err := goquery.OuterHtml(el); err == nil {
			kept = append(kept, h)
		}
	})
	if len(kept) > 0 {
		return strings.Join(kept, "\n"), nil
	}
	if h, err := body.Html(); err == nil {
		return h, nil
	}
	return rawHTML, nil
}

func blockScore(el *goquery.Selection) float64 {
	outer, err := goquery.OuterHtml(el)
	if err != nil || outer == "" {
		return 0
	}
	text := strings.TrimSpace(el.Text())

	linkChars := 0
	el.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkChars += len(strings.TrimSpace(a.Text()))
	})

	textDensity := float64(len(text)) / float64(len(outer))
	linkDensity := 0.0
	if len(text) > 0 {
		linkDensity = float64(linkChars) / float64(len(text))
	}

	return textDensity*wTextDensity +
		linkDensity*wLinkDensity +
		tagWeight(goquery.NodeName(el))*wTag +
		classIDWeight(el)*wClassID +
		math.Log10(float64(len(text))+1)*wTextLength
}

func tagWeight(tag string) float64 {
	switch tag {
	case "article", "main", "section":
		return 5
	case "nav", "footer", "aside", "header":
		return -5
	}
	return 0
}

// classIDWeight counts at most one content hint and one boilerplate hint.
func classIDWeight(el *goquery.Selection) float64 {
	class, _ := el.Attr("class")
	id, _ := el.Attr("id")
	attrs := strings.ToLower(class + " " + id)

	score := 0.0
	if containsAny(attrs, contentHints) {
		score += 3
	}
	if containsAny(attrs, boilerplateHints) {
		score -= 3
	}
	return score
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
