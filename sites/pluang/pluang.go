// Package pluang collects US stock quotes from the Pluang explore pages.
// Every page embeds its quotes in the Next.js __NEXT_DATA__ script, so no
// browser is needed.
package pluang

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/strata/engine"
	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/normalize"
	"github.com/use-agent/strata/sites"
	"github.com/use-agent/strata/worker"
)

const (
	// Name is the registry name.
	Name = "pluang"
	// Label prefixes the dataset files.
	Label = "pluang_all_stocks"

	DefaultBaseURL = "https://pluang.com/explore/us-market/stocks"

	defaultPages  = 64
	defaultTotal  = 639
	fetchAttempts = 3
)

// Fetcher is the plain HTTP adapter.
type Fetcher interface {
	FetchWithRetry(ctx context.Context, req *engine.FetchRequest, attempts int) (*engine.FetchResult, error)
}

// Site scrapes the explore listing page by page.
type Site struct {
	fetch   Fetcher
	baseURL string
	timeout time.Duration
	delay   time.Duration
	workers int
	now     func() time.Time
}

// Option configures a Site.
type Option func(*Site)

// WithBaseURL points the scraper at another listing URL.
func WithBaseURL(u string) Option { return func(s *Site) { s.baseURL = u } }

// WithTimeout sets the first-attempt request timeout.
func WithTimeout(d time.Duration) Option { return func(s *Site) { s.timeout = d } }

// WithDelay sets the pause each worker takes before a page request.
func WithDelay(d time.Duration) Option { return func(s *Site) { s.delay = d } }

// WithWorkers sets the default crawl concurrency.
func WithWorkers(n int) Option { return func(s *Site) { s.workers = n } }

// New returns the plug-in.
func New(f Fetcher, opts ...Option) *Site {
	s := &Site{
		fetch:   f,
		baseURL: DefaultBaseURL,
		timeout: 15 * time.Second,
		delay:   1500 * time.Millisecond,
		workers: worker.DefaultWorkers,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements sites.Site.
func (s *Site) Name() string { return Name }

// page is what one listing page yields.
type page struct {
	stocks     map[string]any
	totalPages int
	totalCount int
}

// PageURL returns the listing URL of page n.
func (s *Site) PageURL(n int) string {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return fmt.Sprintf("%s?page=%d", s.baseURL, n)
	}
	q := u.Query()
	q.Set("page", fmt.Sprint(n))
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Site) scrapePage(ctx context.Context, target string) (*page, error) {
	res, err := s.fetch.FetchWithRetry(ctx, &engine.FetchRequest{
		URL:     target,
		Timeout: s.timeout,
		Headers: map[string]string{
			"Accept-Language": "id-ID,id;q=0.9,en-US;q=0.8,en;q=0.7",
			"Referer":         s.baseURL,
		},
	}, fetchAttempts)
	if err != nil {
		return nil, err
	}
	data, ok := NextData(res.Text())
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeNoData, "__NEXT_DATA__ not found", nil)
	}
	p := &page{stocks: normalize.Stocks(data), totalPages: defaultPages, totalCount: defaultTotal}
	if explore := exploreData(data); explore != nil {
		if n, ok := explore["totalPageCount"].(float64); ok && n > 0 {
			p.totalPages = int(n)
		}
		if n, ok := explore["totalCount"].(float64); ok && n > 0 {
			p.totalCount = int(n)
		}
	}
	return p, nil
}

// NextData parses the __NEXT_DATA__ script of a Next.js page.
func NextData(rawHTML string) (any, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, false
	}
	text := strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text())
	if text == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		slog.Debug("pluang: __NEXT_DATA__ is not JSON", "error", err)
		return nil, false
	}
	return v, true
}

func exploreData(v any) map[string]any {
	m, _ := v.(map[string]any)
	props, _ := m["props"].(map[string]any)
	pageProps, _ := props["pageProps"].(map[string]any)
	data, _ := pageProps["data"].(map[string]any)
	return data
}

// ScrapeDetail returns the quotes of a single listing page as one record.
func (s *Site) ScrapeDetail(ctx context.Context, target string) (*models.DetailRecord, error) {
	if target == "" {
		target = s.PageURL(1)
	}
	p, err := s.scrapePage(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(p.stocks) == 0 {
		return nil, nil
	}
	return &models.DetailRecord{
		Title:         "Pluang US stocks",
		SourceURL:     target,
		Episodes:      []models.Episode{},
		DownloadLinks: []models.DownloadLink{},
		Fields: map[string]any{
			"stocks":      p.stocks,
			"total_pages": p.totalPages,
			"total_count": p.totalCount,
		},
	}, nil
}

// ScrapeListing lists the stocks of one page by symbol.
func (s *Site) ScrapeListing(ctx context.Context, target string, pageNum int) ([]models.ListingItem, error) {
	if pageNum < 1 {
		pageNum = 1
	}
	if target == "" {
		target = s.PageURL(pageNum)
	}
	p, err := s.scrapePage(ctx, target)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(p.stocks))
	for sym := range p.stocks {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	items := make([]models.ListingItem, 0, len(symbols))
	for _, sym := range symbols {
		q, _ := p.stocks[sym].(map[string]any)
		title := sym
		if name, _ := q["name"].(string); name != "" {
			title = sym + " - " + name
		}
		items = append(items, models.ListingItem{Title: title, DetailURL: target})
	}
	return items, nil
}

// Crawl fetches page 1 for the totals, then the remaining pages through a
// worker pool. Failed pages are listed in the metadata. When ctx is
// cancelled the pages gathered so far are still returned.
func (s *Site) Crawl(ctx context.Context, opts sites.CrawlOptions) (*sites.Dataset, error) {
	first, err := s.scrapePage(ctx, s.PageURL(1))
	if err != nil {
		return nil, err
	}
	total := first.totalPages
	if opts.Pages > 0 && opts.Pages < total {
		total = opts.Pages
	}
	slog.Info("pluang: crawl started", "pages", total, "expected_stocks", first.totalCount)

	all := map[string]any{}
	for k, v := range first.stocks {
		all[k] = v
	}
	var failed []int
	if len(first.stocks) == 0 {
		failed = append(failed, 1)
	}

	rest := make([]int, 0, total)
	for n := 2; n <= total; n++ {
		rest = append(rest, n)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = s.workers
	}
	var poolOpts []worker.Option
	if opts.Progress != nil {
		opts.Progress(1, total)
		poolOpts = append(poolOpts, worker.WithProgress(func(done, _ int) { opts.Progress(done+1, total) }))
	}
	pool := worker.New[int, map[string]any](workers, poolOpts...)
	results := pool.Run(ctx, rest, func(ctx context.Context, n int) (map[string]any, error) {
		if s.delay > 0 {
			t := time.NewTimer(s.delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			}
		}
		p, err := s.scrapePage(ctx, s.PageURL(n))
		if err != nil {
			return nil, err
		}
		return p.stocks, nil
	})

	done := map[int]bool{1: true}
	for _, r := range worker.Ordered(results) {
		done[r.Item] = true
		if r.Err != nil || len(r.Value) == 0 {
			slog.Warn("pluang: page yielded nothing", "page", r.Item, "error", r.Err)
			failed = append(failed, r.Item)
			continue
		}
		for k, v := range r.Value {
			all[k] = v
		}
	}
	interrupted := len(done) < total
	if interrupted {
		slog.Warn("pluang: crawl interrupted", "pages_done", len(done), "pages", total)
	}
	if failed == nil {
		failed = []int{}
	}

	now := s.now()
	domain := ""
	if u, err := url.Parse(s.baseURL); err == nil {
		domain = u.Host
	}
	return &sites.Dataset{
		Label: Label,
		Result: &models.NormalizedResult{
			Metadata: models.ResultMetadata{
				SourceURL:     s.baseURL,
				TechniqueUsed: models.TechniqueSSRInline,
				Timestamp:     now.Unix(),
				Domain:        domain,
				Extra: map[string]any{
					"scrape_date":         now.Format(time.RFC3339),
					"total_pages_scraped": len(done),
					"total_stocks_found":  len(all),
					"failed_pages":        failed,
					"interrupted":         interrupted,
				},
			},
			Data: map[string]any{models.KeyStocks: all},
		},
	}, nil
}
