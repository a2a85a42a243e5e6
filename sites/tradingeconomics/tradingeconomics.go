// Package tradingeconomics reads the rendered currency quote tables of
// TradingEconomics. The tables are filled by script, so pages go through
// the browser.
package tradingeconomics

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/normalize"
	"github.com/use-agent/strata/scraper"
	"github.com/use-agent/strata/sites"
)

const (
	Name           = "tradingeconomics"
	Label          = "tradingeconomics_currencies"
	DefaultPageURL = "https://id.tradingeconomics.com/currencies"

	// minColumns drops layout tables and partial rows.
	minColumns = 3
)

// Renderer loads a page in a browser. *scraper.Scraper satisfies it.
type Renderer interface {
	Capture(ctx context.Context, target string, opts scraper.CaptureOptions) (*models.PageCapture, error)
}

// Site is the TradingEconomics plug-in.
type Site struct {
	browser Renderer
	pageURL string
	now     func() time.Time
}

type Option func(*Site)

func WithPageURL(u string) Option { return func(s *Site) { s.pageURL = u } }

func New(r Renderer, opts ...Option) *Site {
	s := &Site{browser: r, pageURL: DefaultPageURL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Site) Name() string { return Name }

// ScrapeDetail renders target (the currencies page when empty) and returns
// its normalized quote groups under the "currencies" field.
func (s *Site) ScrapeDetail(ctx context.Context, target string) (*models.DetailRecord, error) {
	if target == "" {
		target = s.pageURL
	}
	currencies, capture, err := s.scrape(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(currencies) == 0 {
		return nil, nil
	}
	return &models.DetailRecord{
		Title:         capture.Title,
		SourceURL:     target,
		Episodes:      []models.Episode{},
		DownloadLinks: []models.DownloadLink{},
		Fields: map[string]any{
			models.KeyCurrencies: currencies,
			"groups":             groupNames(currencies),
		},
	}, nil
}

// Crawl renders the configured page once and builds the dataset.
func (s *Site) Crawl(ctx context.Context, opts sites.CrawlOptions) (*sites.Dataset, error) {
	currencies, _, err := s.scrape(ctx, s.pageURL)
	if err != nil {
		return nil, err
	}
	if len(currencies) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeNoData, "no currency table found", nil)
	}
	if opts.Progress != nil {
		opts.Progress(1, 1)
	}

	pairs := 0
	for _, g := range currencies {
		if m, ok := g.(map[string]any); ok {
			pairs += len(m)
		}
	}
	now := s.now()
	domain := ""
	if u, err := url.Parse(s.pageURL); err == nil {
		domain = u.Hostname()
	}
	slog.Info("tradingeconomics: crawl done", "groups", len(currencies), "pairs", pairs)
	return &sites.Dataset{
		Label: Label,
		Result: &models.NormalizedResult{
			Metadata: models.ResultMetadata{
				SourceURL:     s.pageURL,
				TechniqueUsed: models.TechniqueStaticTable,
				Timestamp:     now.Unix(),
				Domain:        domain,
				Extra: map[string]any{
					"scrape_date":          now.Format(time.RFC3339),
					"total_currency_pairs": pairs,
					"groups":               groupNames(currencies),
				},
			},
			Data: map[string]any{models.KeyCurrencies: currencies},
		},
	}, nil
}

func (s *Site) scrape(ctx context.Context, target string) (map[string]any, *models.PageCapture, error) {
	if u, err := url.Parse(target); err != nil || u.Host == "" {
		return nil, nil, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid page url", err)
	}
	if s.browser == nil {
		return nil, nil, models.NewScrapeError(models.ErrCodeUnavailable, "browser is not available", nil)
	}
	capture, err := s.browser.Capture(ctx, target, scraper.CaptureOptions{Interact: true})
	if err != nil {
		return nil, nil, err
	}
	if capture.StatusCode >= 400 {
		return nil, nil, models.NewScrapeError(models.ErrCodeHTTPStatus,
			fmt.Sprintf("page returned %d", capture.StatusCode),
			&models.HTTPStatusError{URL: target, StatusCode: capture.StatusCode})
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(capture.FinalHTML))
	if err != nil {
		return nil, nil, models.NewScrapeError(models.ErrCodeNoData, "rendered page is not parseable", err)
	}
	return normalize.Currencies(Tables(doc)), capture, nil
}

// Tables reads every quote table as {group, headers, rows}. The group is
// the nearest preceding heading sibling, else "Grup N". Header rows with
// fewer than three columns and data rows with fewer than three cells are
// skipped; cells past the last header are dropped.
func Tables(doc *goquery.Document) []any {
	var out []any
	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		trs := table.Find("tr")
		if trs.Length() == 0 {
			return
		}
		var headers []any
		trs.First().Find("th, td").Each(func(_ int, c *goquery.Selection) {
			headers = append(headers, cellText(c))
		})
		if len(headers) < minColumns {
			return
		}

		var rows []any
		trs.Slice(1, goquery.ToEnd).Each(func(_ int, tr *goquery.Selection) {
			cells := tr.Find("td, th")
			if cells.Length() < minColumns {
				return
			}
			row := map[string]any{}
			cells.Each(func(j int, c *goquery.Selection) {
				if j < len(headers) {
					row[headers[j].(string)] = cellText(c)
				}
			})
			if len(row) > 0 {
				rows = append(rows, row)
			}
		})
		if len(rows) == 0 {
			return
		}
		out = append(out, map[string]any{
			"group":   groupName(table, i),
			"headers": headers,
			"rows":    rows,
		})
	})
	return out
}

func groupName(table *goquery.Selection, idx int) string {
	name := fmt.Sprintf("Grup %d", idx+1)
	table.PrevAll().EachWithBreak(func(_ int, prev *goquery.Selection) bool {
		switch goquery.NodeName(prev) {
		case "h1", "h2", "h3", "h4", "h5":
			if t := cellText(prev); t != "" {
				name = t
			}
			return false
		case "table":
			return false
		}
		return true
	})
	return name
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func groupNames(currencies map[string]any) []string {
	names := make([]string, 0, len(currencies))
	for k := range currencies {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
