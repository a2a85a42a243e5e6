// Package cleaner turns captured HTML into text for the LLM fallback and
// the news plug-in: visible text, Markdown, readable article bodies and
// precompiled CSS selectors.
package cleaner

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
)

// Input formats accepted by LLMInput.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// Cleaner holds the reusable Markdown converter. It is safe for
// concurrent use.
type Cleaner struct {
	mdConverter *converter.Converter
}

// New initialises the Cleaner with a pre-configured Markdown converter.
func New() *Cleaner {
	return &Cleaner{mdConverter: newMarkdownConverter()}
}

// LLMInput renders page HTML for the structuring prompt and truncates it
// to maxChars runes. Markdown keeps table and list structure at the cost
// of a conversion pass; text is the plain visible text.
func (c *Cleaner) LLMInput(rawHTML, sourceURL, format string, maxChars int) string {
	var out string
	switch format {
	case FormatMarkdown:
		md, err := ToMarkdown(c.mdConverter, StripNoise(rawHTML), sourceURL)
		if err != nil {
			slog.Debug("markdown conversion failed, using visible text", "url", sourceURL, "error", err)
			out = VisibleText(rawHTML)
		} else {
			out = CompactLinks(md)
		}
	default:
		out = VisibleText(rawHTML)
	}
	return Truncate(out, maxChars)
}

// Article is the readable part of a page.
type Article struct {
	Title    string
	Byline   string
	Excerpt  string
	SiteName string
	Text     string
	HTML     string
}

// Article extracts the main content of a news-like page. Readability and
// the pruning scorer run concurrently; the readability result wins unless
// it is empty or an order of magnitude noisier than the pruned body.
func (c *Cleaner) Article(rawHTML, sourceURL string) Article {
	var (
		ra       readability.Article
		raOK     bool
		pruned   string
		pruneErr error
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ra, raOK = ExtractContent(rawHTML, sourceURL)
	}()
	go func() {
		defer wg.Done()
		pruned, pruneErr = PruneContent(rawHTML)
	}()
	wg.Wait()

	a := Article{
		Title:    ra.Title,
		Byline:   ra.Byline,
		Excerpt:  ra.Excerpt,
		SiteName: ra.SiteName,
	}
	readable := strings.TrimSpace(ra.TextContent)
	prunedText := ""
	if pruneErr == nil {
		prunedText = collapseSpace(stripTags(pruned))
	}

	useReadability := raOK && readable != ""
	if useReadability && len(prunedText) > minContentLength && len(readable) > 10*len(prunedText) {
		useReadability = false
	}
	if !useReadability && prunedText == "" {
		useReadability = true
	}

	if useReadability {
		a.Text = collapseSpace(readable)
		a.HTML = ra.Content
	} else {
		a.Text = prunedText
		a.HTML = pruned
	}
	return a
}
