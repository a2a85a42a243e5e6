package cleaner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// newMarkdownConverter creates a reusable, goroutine-safe Converter. The
// table plugin matters most here: price lists are usually tables and the
// model reads them far better as Markdown rows.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// ToMarkdown converts HTML to Markdown, resolving relative links against
// domain.
func ToMarkdown(conv *converter.Converter, htmlContent string, domain string) (string, error) {
	return conv.ConvertString(htmlContent, converter.WithDomain(domain))
}

var inlineLinkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// CompactLinks rewrites inline Markdown links as numbered references so
// long tracking URLs do not eat the prompt budget. Repeated URLs share a
// number.
func CompactLinks(markdown string) string {
	numbers := make(map[string]int)
	var refs strings.Builder

	body := inlineLinkRe.ReplaceAllStringFunc(markdown, func(match string) string {
		m := inlineLinkRe.FindStringSubmatch(match)
		text, target := m[1], m[2]
		n, ok := numbers[target]
		if !ok {
			n = len(numbers) + 1
			numbers[target] = n
			fmt.Fprintf(&refs, "\n[%d]: %s", n, target)
		}
		return fmt.Sprintf("[%s][%d]", text, n)
	})
	if len(numbers) == 0 {
		return markdown
	}
	return body + "\n\n---" + refs.String()
}
