// Package kompas collects headlines from the Kompas.com section front
// pages and reads single articles.
package kompas

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/strata/cleaner"
	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/simhash"
	"github.com/use-agent/strata/sites"
	"github.com/use-agent/strata/worker"
)

const (
	Name  = "kompas"
	Label = "kompas_news"

	// minTitleLen drops navigation links that also point at /read/ pages.
	minTitleLen = 10
)

// Section is one front page.
type Section struct {
	Name string
	URL  string
}

// DefaultSections are the front pages a crawl reads.
var DefaultSections = []Section{
	{"Utama", "https://www.kompas.com/"},
	{"Nasional", "https://nasional.kompas.com/"},
	{"Ekonomi", "https://money.kompas.com/"},
	{"Teknologi", "https://tekno.kompas.com/"},
	{"Olahraga", "https://bola.kompas.com/"},
	{"Internasional", "https://internasional.kompas.com/"},
	{"Hiburan", "https://entertainment.kompas.com/"},
}

// Article is one headline. Field names follow the published dataset.
type Article struct {
	Judul     string `json:"judul"`
	URL       string `json:"url"`
	Kategori  string `json:"kategori"`
	Waktu     string `json:"waktu"`
	Thumbnail string `json:"thumbnail"`
	Section   string `json:"section"`
}

// Site is the Kompas plug-in.
type Site struct {
	html     *sites.HTMLClient
	cleaner  *cleaner.Cleaner
	sections []Section
	workers  int
	now      func() time.Time
}

type Option func(*Site)

// WithSections replaces the crawled front pages.
func WithSections(s []Section) Option { return func(site *Site) { site.sections = s } }

func WithWorkers(n int) Option { return func(s *Site) { s.workers = n } }

// New returns the plug-in. A nil client uses sites.NewHTMLClient.
func New(html *sites.HTMLClient, cl *cleaner.Cleaner, opts ...Option) *Site {
	if html == nil {
		html = sites.NewHTMLClient()
	}
	if cl == nil {
		cl = cleaner.New()
	}
	s := &Site{html: html, cleaner: cl, sections: DefaultSections, workers: 2, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Site) Name() string { return Name }

// ScrapeListing reads one front page. An empty target means the main
// front page; pages after the first add a page query parameter.
func (s *Site) ScrapeListing(ctx context.Context, target string, page int) ([]models.ListingItem, error) {
	sec := Section{Name: "Utama", URL: target}
	if target == "" && len(s.sections) > 0 {
		sec = s.sections[0]
	}
	if page > 1 {
		if u, err := url.Parse(sec.URL); err == nil {
			q := u.Query()
			q.Set("page", strconv.Itoa(page))
			u.RawQuery = q.Encode()
			sec.URL = u.String()
		}
	}
	articles, err := s.section(ctx, sec)
	if err != nil {
		return nil, err
	}
	items := make([]models.ListingItem, 0, len(articles))
	for _, a := range articles {
		items = append(items, models.ListingItem{Title: a.Judul, DetailURL: a.URL, Poster: a.Thumbnail})
	}
	return items, nil
}

func (s *Site) section(ctx context.Context, sec Section) ([]Article, error) {
	base, err := url.Parse(sec.URL)
	if err != nil || base.Host == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid section url", err)
	}
	doc, err := s.html.Document(ctx, sec.URL)
	if err != nil {
		return nil, err
	}
	articles := parseHeadlines(doc, base, sec.Name)
	slog.Info("kompas: section read", "section", sec.Name, "articles", len(articles))
	return articles, nil
}

// parseHeadlines reads every link to an article page together with the
// thumbnail, time and category of its enclosing card.
func parseHeadlines(doc *goquery.Document, base *url.URL, section string) []Article {
	var out []Article
	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		u, err := base.Parse(strings.TrimSpace(a.AttrOr("href", "")))
		if err != nil || !strings.Contains(u.Path, "/read/") {
			return
		}
		link := u.String()
		if seen[link] {
			return
		}
		seen[link] = true

		title := strings.Join(strings.Fields(a.Text()), " ")
		if title == "" {
			title = strings.TrimSpace(a.AttrOr("title", a.AttrOr("aria-label", "")))
		}
		if len(title) <= minTitleLen {
			return
		}

		art := Article{Judul: title, URL: link, Section: section}
		card := a.Closest("article, [class*='article'], [class*='card'], li, div")
		if card.Length() == 0 {
			card = a.Parent()
		}
		if img := card.Find("img").First(); img.Length() > 0 {
			src := img.AttrOr("data-src", "")
			if src == "" {
				src = img.AttrOr("src", "")
			}
			if strings.HasPrefix(src, "http") {
				art.Thumbnail = src
			}
		}
		if t := card.Find("time, [class*='time'], [class*='date']").First(); t.Length() > 0 {
			art.Waktu = t.AttrOr("datetime", strings.TrimSpace(t.Text()))
		}
		if c := card.Find("[class*='categ'], [class*='rubrik'], [class*='label']").First(); c.Length() > 0 {
			art.Kategori = strings.TrimSpace(c.Text())
		}
		out = append(out, art)
	})
	return out
}

// Dedup drops repeated URLs and headlines that are near-duplicates of an
// earlier one. It returns the kept articles and how many were dropped.
func Dedup(articles []Article) ([]Article, int) {
	urls := map[string]bool{}
	titles := simhash.NewSeen(simhash.DefaultThreshold)
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if urls[a.URL] {
			continue
		}
		urls[a.URL] = true
		if !titles.Add(a.Judul) {
			continue
		}
		out = append(out, a)
	}
	return out, len(articles) - len(out)
}

// ScrapeDetail reads one article with the readability extractor.
func (s *Site) ScrapeDetail(ctx context.Context, target string) (*models.DetailRecord, error) {
	if u, err := url.Parse(target); err != nil || u.Host == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid article url", err)
	}
	body, err := s.html.Get(ctx, target)
	if err != nil {
		return nil, err
	}
	art := s.cleaner.Article(string(body), target)
	if art.Text == "" {
		return nil, nil
	}

	fields := map[string]any{
		"content":   art.Text,
		"byline":    art.Byline,
		"excerpt":   art.Excerpt,
		"site_name": art.SiteName,
	}
	meta := cleaner.Meta(string(body))
	for _, k := range []string{"article:published_time", "content_publisheddate"} {
		if ts := meta[k]; ts != "" {
			fields["published"] = ts
			break
		}
	}
	if img := meta["og:image"]; img != "" {
		fields["thumbnail"] = img
	}
	if kw := meta["keywords"]; kw != "" {
		fields["keywords"] = kw
	}
	if links := cleaner.Links(art.HTML, target); len(links) > 0 {
		fields["links"] = links
	}
	return &models.DetailRecord{
		Title:         art.Title,
		SourceURL:     target,
		Episodes:      []models.Episode{},
		DownloadLinks: []models.DownloadLink{},
		Fields:        fields,
	}, nil
}

// Crawl reads every section through a worker pool, keeps section order
// and drops duplicate stories.
func (s *Site) Crawl(ctx context.Context, opts sites.CrawlOptions) (*sites.Dataset, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = s.workers
	}
	var poolOpts []worker.Option
	if opts.Progress != nil {
		poolOpts = append(poolOpts, worker.WithProgress(opts.Progress))
	}
	pool := worker.New[Section, []Article](workers, poolOpts...)
	results := worker.Ordered(pool.Run(ctx, s.sections, s.section))

	var (
		all      []Article
		scraped  []string
		failures = map[string]string{}
	)
	for _, r := range results {
		if r.Err != nil {
			slog.Warn("kompas: section failed", "section", r.Item.Name, "error", r.Err)
			failures[r.Item.Name] = r.Err.Error()
			continue
		}
		scraped = append(scraped, r.Item.Name)
		all = append(all, r.Value...)
	}
	if len(scraped) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeNoData, "no section could be read", nil)
	}
	unique, dropped := Dedup(all)
	slog.Info("kompas: crawl done", "articles", len(unique), "duplicates", dropped)

	now := s.now()
	return &sites.Dataset{
		Label: Label,
		Result: &models.NormalizedResult{
			Metadata: models.ResultMetadata{
				SourceURL:     "kompas.com",
				TechniqueUsed: models.TechniqueDOMHeuristic,
				Timestamp:     now.Unix(),
				Domain:        "kompas.com",
				Extra: map[string]any{
					"scrape_date":        now.Format(time.RFC3339),
					"sections_scraped":   scraped,
					"failed_sections":    failures,
					"total_articles":     len(unique),
					"duplicates_dropped": dropped,
				},
			},
			Data: map[string]any{models.KeyArticles: unique},
		},
	}, nil
}
