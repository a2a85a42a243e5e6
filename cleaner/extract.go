package cleaner

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link is an absolute http(s) link and its anchor text.
type Link struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Links returns the distinct http(s) links of rawHTML resolved against
// sourceURL, in document order.
func Links(rawHTML string, sourceURL string) []Link {
	out := []Link{}
	base, err := url.Parse(sourceURL)
	if err != nil {
		return out
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return out
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil || (resolved.Scheme != "http" && resolved.Scheme != "https") {
			return
		}
		abs := resolved.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, Link{Text: collapseSpace(s.Text()), URL: abs})
	})
	return out
}

// Meta returns the Open Graph, article and standard description meta tags
// of a page, keyed by lowercased property or name ("og:title",
// "description", ...). Publisher "content_*" tags are kept too.
func Meta(rawHTML string) map[string]string {
	out := make(map[string]string)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return out
	}
	doc.Find("meta[property], meta[name]").Each(func(_ int, s *goquery.Selection) {
		key := s.AttrOr("property", s.AttrOr("name", ""))
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if key == "" || content == "" {
			return
		}
		key = strings.ToLower(key)
		if strings.HasPrefix(key, "og:") || strings.HasPrefix(key, "article:") ||
			strings.HasPrefix(key, "content_") ||
			key == "description" || key == "author" || key == "keywords" {
			if _, exists := out[key]; !exists {
				out[key] = content
			}
		}
	})
	return out
}
