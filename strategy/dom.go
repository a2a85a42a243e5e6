package strategy

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/strata/cleaner"
	"github.com/use-agent/strata/models"
)

// MaxCards bounds the DOM heuristic.
const MaxCards = 100

const excerptLen = 100

var (
	cardCandidateSel = cleaner.MustCompile("article, div[class]")
	cardTitleSel     = cleaner.MustCompile("h1, h2, h3, h4, strong")
	cardLinkSel      = cleaner.MustCompile("a[href]")
	iframeSel        = cleaner.MustCompile("iframe[src]")
	tableSel         = cleaner.MustCompile("table")
	rowSel           = cleaner.MustCompile("tr")
	cellSel          = cleaner.MustCompile("td, th")
	headerCellSel    = cleaner.MustCompile("th")
)

// cardClassHints mark a class attribute as card-like.
var cardClassHints = []string{"item", "post", "card", "entry", "box"}

// embedExclusions drop social players and ad frames from video_embeds.
var embedExclusions = []string{"youtube", "facebook", "twitter", "instagram", "ads"}

// DOMHeuristic collects card-like elements (article tags, or divs whose
// class mentions item, post, card, entry or box) up to MaxCards, plus
// non-social iframe sources. Acceptance is unconditional.
func DOMHeuristic(c *models.PageCapture) (*models.ExtractionCandidate, string) {
	if c == nil || c.FinalHTML == "" {
		return nil, ReasonNoInput
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(c.FinalHTML))
	if err != nil {
		return nil, ReasonNoInput
	}

	payload := map[string]any{}
	if cards := extractCards(doc); len(cards) > 0 {
		payload["articles"] = cards
	}
	if embeds := extractEmbeds(doc); len(embeds) > 0 {
		payload["video_embeds"] = embeds
	}
	if len(payload) == 0 {
		return nil, ReasonNoCards
	}
	return accept(models.TechniqueDOMHeuristic, sourceOf(c), payload, nil)
}

func isCardLike(s *goquery.Selection) bool {
	if goquery.NodeName(s) == "article" {
		return true
	}
	class := strings.ToLower(s.AttrOr("class", ""))
	for _, h := range cardClassHints {
		if strings.Contains(class, h) {
			return true
		}
	}
	return false
}

// extractCards numbers cards by their position among the first MaxCards
// candidates, so skipped elements leave gaps in the ids. Each card is an
// object with id, judul (title), url and excerpt.
func extractCards(doc *goquery.Document) []any {
	var cards []any
	index := 0
	doc.FindMatcher(cardCandidateSel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !isCardLike(s) {
			return true
		}
		index++
		link := s.FindMatcher(cardLinkSel).First()
		title := collapse(s.FindMatcher(cardTitleSel).First().Text())
		if title == "" && link.Length() > 0 {
			title = strings.TrimSpace(link.AttrOr("title", ""))
			if title == "" {
				title = collapse(link.Text())
			}
		}
		href := link.AttrOr("href", "")
		if title != "" || href != "" {
			cards = append(cards, map[string]any{
				"id":      float64(index),
				"judul":   title,
				"url":     href,
				"excerpt": cleaner.Truncate(collapse(s.Text()), excerptLen),
			})
		}
		return index < MaxCards
	})
	return cards
}

func extractEmbeds(doc *goquery.Document) []any {
	var embeds []any
	doc.FindMatcher(iframeSel).Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			return
		}
		lower := strings.ToLower(src)
		for _, ex := range embedExclusions {
			if strings.Contains(lower, ex) {
				return
			}
		}
		embeds = append(embeds, src)
	})
	return embeds
}

// Tables turns every table whose text mentions a target keyword into rows.
// With <th> headers each row becomes a header->cell object when the widths
// agree; otherwise a row is the ordered list of its cell strings.
func Tables(c *models.PageCapture, kw Keywords) (*models.ExtractionCandidate, string) {
	if c == nil || c.FinalHTML == "" {
		return nil, ReasonNoInput
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(c.FinalHTML))
	if err != nil {
		return nil, ReasonNoInput
	}

	var tables []any
	evidence := evidenceSet{}
	doc.FindMatcher(tableSel).Each(func(idx int, t *goquery.Selection) {
		matched := kw.Match(collapse(t.Text()))
		if len(matched) == 0 {
			return
		}
		if rows := tableRows(t); len(rows) > 0 {
			evidence.add(matched)
			tables = append(tables, map[string]any{"table_index": float64(idx), "data": rows})
		}
	})
	if len(tables) == 0 {
		return nil, ReasonNoKeyword
	}
	return accept(models.TechniqueStaticTable, sourceOf(c), tables, evidence.list())
}

// TableRows exposes the row conversion for plug-ins that already hold a
// table selection.
func TableRows(t *goquery.Selection) []any { return tableRows(t) }

func tableRows(t *goquery.Selection) []any {
	var headers []string
	t.FindMatcher(headerCellSel).Each(func(_ int, th *goquery.Selection) {
		headers = append(headers, collapse(th.Text()))
	})

	var rows []any
	t.FindMatcher(rowSel).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.FindMatcher(cellSel)
		if cells.Length() == 0 {
			return
		}
		// The header row itself.
		if len(headers) > 0 && cells.Length() == len(headers) && cells.Length() == tr.FindMatcher(headerCellSel).Length() {
			return
		}
		values := make([]string, 0, cells.Length())
		cells.Each(func(_ int, td *goquery.Selection) {
			values = append(values, collapse(td.Text()))
		})
		if len(headers) > 0 && len(headers) == len(values) {
			obj := make(map[string]any, len(values))
			for i, h := range headers {
				obj[h] = values[i]
			}
			rows = append(rows, obj)
			return
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = v
		}
		rows = append(rows, row)
	})
	return rows
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
