// Package drakorkita scrapes the DrakorKita drama catalog: paginated
// listings, title details and per-episode player embeds.
package drakorkita

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/scraper"
	"github.com/use-agent/strata/sites"
	"github.com/use-agent/strata/worker"
)

const (
	Name  = "drakorkita"
	Label = "drakorkita_full"

	DefaultBaseURL = "https://drakorkita3.nicewap.sbs"

	ajaxAction = "muvipro_player_content"
)

// playerTabs are the AJAX player tabs tried in order.
var playerTabs = []string{"p1", "p2", "p3", "p4"}

// EmbedFinder lists player iframes of a page rendered in a browser.
type EmbedFinder interface {
	EmbedSources(ctx context.Context, url string) ([]string, error)
}

// Site is the DrakorKita plug-in.
type Site struct {
	html          *sites.HTMLClient
	browser       EmbedFinder
	baseURL       string
	workers       int
	ajaxRounds    int
	browserRounds int
	roundPause    time.Duration
	listingPages  int
	episodes      bool
	now           func() time.Time
}

// Option configures a Site.
type Option func(*Site)

func WithBaseURL(u string) Option { return func(s *Site) { s.baseURL = strings.TrimSuffix(u, "/") } }

// WithBrowser enables the browser rounds of embed discovery.
func WithBrowser(b EmbedFinder) Option { return func(s *Site) { s.browser = b } }

func WithWorkers(n int) Option { return func(s *Site) { s.workers = n } }

// WithRounds caps the AJAX and browser rounds of embed discovery.
func WithRounds(ajax, browser int) Option {
	return func(s *Site) { s.ajaxRounds, s.browserRounds = ajax, browser }
}

// WithRoundPause sets the wait between embed discovery rounds.
func WithRoundPause(d time.Duration) Option { return func(s *Site) { s.roundPause = d } }

// WithListingPages sets how many catalog pages a crawl reads by default.
func WithListingPages(n int) Option { return func(s *Site) { s.listingPages = n } }

// WithEpisodeEmbeds controls whether ScrapeDetail resolves episode embeds.
func WithEpisodeEmbeds(on bool) Option { return func(s *Site) { s.episodes = on } }

// New returns the plug-in. A nil client uses sites.NewHTMLClient.
func New(html *sites.HTMLClient, opts ...Option) *Site {
	if html == nil {
		html = sites.NewHTMLClient()
	}
	s := &Site{
		html:          html,
		baseURL:       DefaultBaseURL,
		workers:       8,
		ajaxRounds:    2,
		browserRounds: 3,
		roundPause:    time.Second,
		listingPages:  5,
		episodes:      true,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Site) Name() string { return Name }

// ListingURL returns catalog page n.
func (s *Site) ListingURL(n int) string {
	return s.baseURL + "/all?page=" + strconv.Itoa(n)
}

// ScrapeListing reads one catalog page. An empty target means /all.
func (s *Site) ScrapeListing(ctx context.Context, target string, page int) ([]models.ListingItem, error) {
	if page < 1 {
		page = 1
	}
	if target == "" {
		target = s.ListingURL(page)
	} else if u, err := url.Parse(target); err == nil {
		q := u.Query()
		q.Set("page", strconv.Itoa(page))
		u.RawQuery = q.Encode()
		target = u.String()
	}
	base, err := url.Parse(target)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid listing url", err)
	}
	doc, err := s.html.Document(ctx, target)
	if err != nil {
		return nil, err
	}
	return parseListing(doc, base), nil
}

// ScrapeDetail reads a title page and, unless disabled, resolves the
// player embed of every linked episode.
func (s *Site) ScrapeDetail(ctx context.Context, target string) (*models.DetailRecord, error) {
	return s.detail(ctx, target, s.episodes)
}

func (s *Site) detail(ctx context.Context, target string, withEpisodes bool) (*models.DetailRecord, error) {
	page, err := url.Parse(target)
	if err != nil || page.Host == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid detail url", err)
	}
	doc, err := s.html.Document(ctx, target)
	if err != nil {
		return nil, err
	}
	rec := parseDetail(doc, page)
	if rec.Title == "" && len(rec.Episodes) == 0 {
		return nil, nil
	}

	servers := s.ajaxEmbeds(ctx, doc, target)
	if len(servers) > 0 {
		rec.VideoEmbedURL = servers[0]["url"]
		rec.Fields["video_servers"] = servers
	} else {
		rec.VideoEmbedURL = staticIframe(doc.Selection, page)
	}

	if withEpisodes {
		filled, total := s.ResolveEmbeds(ctx, rec.Episodes)
		rec.Fields["episodes_with_embed"] = filled
		slog.Info("drakorkita: episode embeds resolved", "title", rec.Title, "filled", filled, "total", total)
	}
	return rec, nil
}

// ajaxEmbeds asks the theme's player endpoint for each tab's iframe.
func (s *Site) ajaxEmbeds(ctx context.Context, doc *goquery.Document, referer string) []map[string]string {
	id := postID(doc)
	if id == "" {
		return nil
	}
	endpoint := s.baseURL + "/wp-admin/admin-ajax.php"
	if ref, err := url.Parse(referer); err == nil && ref.Host != "" {
		endpoint = ref.Scheme + "://" + ref.Host + "/wp-admin/admin-ajax.php"
	}
	base, _ := url.Parse(endpoint)

	var out []map[string]string
	for _, tab := range playerTabs {
		body, err := s.html.PostForm(ctx, endpoint,
			map[string]string{"action": ajaxAction, "tab": tab, "post_id": id},
			map[string]string{"Referer": referer, "X-Requested-With": "XMLHttpRequest"})
		if err != nil || strings.TrimSpace(string(body)) == "" {
			continue
		}
		frag, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
		if err != nil {
			continue
		}
		if src := staticIframe(frag.Selection, base); src != "" {
			out = append(out, map[string]string{"server": tab, "url": src})
		}
	}
	return out
}

// episodeEmbed resolves one episode page without a browser.
func (s *Site) episodeEmbed(ctx context.Context, target string) (string, error) {
	page, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	doc, err := s.html.Document(ctx, target)
	if err != nil {
		return "", err
	}
	if servers := s.ajaxEmbeds(ctx, doc, target); len(servers) > 0 {
		return servers[0]["url"], nil
	}
	return staticIframe(doc.Selection, page), nil
}

// ResolveEmbeds fills VideoEmbedURL of episodes that have a page URL.
// The AJAX rounds run through a worker pool; episodes still missing go
// through the browser rounds one by one. It returns how many episodes
// carry an embed and how many could be resolved at all.
func (s *Site) ResolveEmbeds(ctx context.Context, episodes []models.Episode) (filled, total int) {
	var pending []int
	for i, ep := range episodes {
		if ep.URL == "" {
			continue
		}
		total++
		if ep.VideoEmbedURL == "" {
			pending = append(pending, i)
		}
	}

	for round := 1; round <= s.ajaxRounds && len(pending) > 0 && ctx.Err() == nil; round++ {
		if round > 1 && !s.pause(ctx) {
			break
		}
		pool := worker.New[int, string](s.workers)
		for _, r := range pool.Run(ctx, pending, func(ctx context.Context, i int) (string, error) {
			return s.episodeEmbed(ctx, episodes[i].URL)
		}) {
			if r.Err == nil && r.Value != "" {
				episodes[r.Item].VideoEmbedURL = r.Value
			}
		}
		pending = missing(episodes, pending)
		slog.Debug("drakorkita: ajax round done", "round", round, "missing", len(pending))
	}

	if s.browser != nil {
		for round := 1; round <= s.browserRounds && len(pending) > 0 && ctx.Err() == nil; round++ {
			for _, i := range pending {
				if ctx.Err() != nil {
					break
				}
				srcs, err := s.browser.EmbedSources(ctx, episodes[i].URL)
				if err != nil {
					slog.Debug("drakorkita: browser embed discovery failed", "url", episodes[i].URL, "error", err)
					continue
				}
				for _, src := range srcs {
					if !scraper.IsAdEmbed(src) {
						episodes[i].VideoEmbedURL = src
						break
					}
				}
			}
			pending = missing(episodes, pending)
			slog.Debug("drakorkita: browser round done", "round", round, "missing", len(pending))
			if len(pending) > 0 && round < s.browserRounds && !s.pause(ctx) {
				break
			}
		}
	}

	for _, ep := range episodes {
		if ep.URL != "" && ep.VideoEmbedURL != "" {
			filled++
		}
	}
	return filled, total
}

func missing(episodes []models.Episode, idx []int) []int {
	var out []int
	for _, i := range idx {
		if episodes[i].VideoEmbedURL == "" {
			out = append(out, i)
		}
	}
	return out
}

func (s *Site) pause(ctx context.Context) bool {
	if s.roundPause <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.roundPause)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Crawl reads catalog pages until one is empty or the page limit is hit,
// then scrapes every title through a worker pool. Episode embeds are not
// resolved during a crawl.
func (s *Site) Crawl(ctx context.Context, opts sites.CrawlOptions) (*sites.Dataset, error) {
	pages := opts.Pages
	if pages <= 0 {
		pages = s.listingPages
	}
	var (
		titles []models.ListingItem
		seen   = map[string]bool{}
	)
	for n := 1; n <= pages && ctx.Err() == nil; n++ {
		items, err := s.ScrapeListing(ctx, "", n)
		if err != nil {
			if n == 1 {
				return nil, err
			}
			slog.Warn("drakorkita: listing page failed", "page", n, "error", err)
			break
		}
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			if !seen[it.DetailURL] {
				seen[it.DetailURL] = true
				titles = append(titles, it)
			}
		}
		slog.Info("drakorkita: listing page read", "page", n, "titles", len(items), "total", len(titles))
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = worker.DefaultWorkers
	}
	var poolOpts []worker.Option
	if opts.Progress != nil {
		poolOpts = append(poolOpts, worker.WithProgress(opts.Progress))
	}
	pool := worker.New[models.ListingItem, *models.DetailRecord](workers, poolOpts...)
	results := worker.Ordered(pool.Run(ctx, titles, func(ctx context.Context, it models.ListingItem) (*models.DetailRecord, error) {
		return s.detail(ctx, it.DetailURL, false)
	}))

	dramas := []*models.DetailRecord{}
	var failed []string
	for _, r := range results {
		if r.Err != nil || r.Value == nil {
			failed = append(failed, r.Item.DetailURL)
			continue
		}
		r.Value.Fields["listing_poster"] = r.Item.Poster
		r.Value.Fields["listing_rating"] = r.Item.Rating
		dramas = append(dramas, r.Value)
	}
	if failed == nil {
		failed = []string{}
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
				TechniqueUsed: models.TechniqueDOMHeuristic,
				Timestamp:     now.Unix(),
				Domain:        domain,
				Extra: map[string]any{
					"scrape_date":          now.Format(time.RFC3339),
					"total_titles":         len(titles),
					"total_titles_scraped": len(dramas),
					"failed_titles":        failed,
					"interrupted":          len(results) < len(titles),
				},
			},
			Data: map[string]any{models.KeyDramas: dramas},
		},
	}, nil
}
