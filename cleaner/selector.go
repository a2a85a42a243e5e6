package cleaner

import (
	"bytes"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// MustCompile parses a CSS selector at package init time. The result can
// be handed to goquery's FindMatcher.
// Selector groups ("th, td") are accepted.
func MustCompile(selector string) cascadia.Selector {
	return cascadia.MustCompile(selector)
}

// Compile parses a CSS selector supplied at run time.
func Compile(selector string) (cascadia.Selector, error) {
	return cascadia.Compile(selector)
}

// Select returns the concatenated outer HTML of every element matching
// selector, or rawHTML unchanged when nothing matches.
func Select(rawHTML string, selector string) (string, error) {
	sel, err := Compile(selector)
	if err != nil {
		return "", err
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	matches := cascadia.QueryAll(doc, sel)
	if len(matches) == 0 {
		return rawHTML, nil
	}

	var buf bytes.Buffer
	for _, node := range matches {
		if err := html.Render(&buf, node); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
