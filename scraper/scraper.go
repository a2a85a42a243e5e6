package scraper

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/use-agent/strata/config"
	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/rotation"
)

// Scraper manages the global browser lifecycle and the page pool.
// It is safe for concurrent use.
type Scraper struct {
	browser    *rod.Browser
	pagePool   rod.Pool[rod.Page]
	browserCfg config.BrowserConfig
	scraperCfg config.ScraperConfig
	storeCfg   config.StoreConfig

	proxies    *rotation.ProxyRotator
	userAgents *rotation.UserAgents

	healthMu sync.Mutex
	health   map[*rod.Page]*pageHealth

	// sessions is the live per-origin state, keyed by sessionKey.
	sessionsMu sync.Mutex
	sessions   map[string]*sessionState

	activePages atomic.Int32
	retired     atomic.Int64
	startTime   time.Time
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithProxies gives every capture its own browser context routed through
// the rotator's current proxy.
func WithProxies(r *rotation.ProxyRotator) Option {
	return func(s *Scraper) { s.proxies = r }
}

// WithUserAgents sets the user agent source.
func WithUserAgents(u *rotation.UserAgents) Option {
	return func(s *Scraper) { s.userAgents = u }
}

// Stats is a snapshot of the page pool.
type Stats struct {
	MaxPages     int    `json:"max_pages"`
	ActivePages  int    `json:"active_pages"`
	RetiredPages int64  `json:"retired_pages"`
	Uptime       string `json:"uptime"`
}

// NewScraper launches a browser and initialises the reusable page pool.
func NewScraper(cfg *config.Config, opts ...Option) (*Scraper, error) {
	browserCfg := cfg.Browser
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}

	// Stealth flags.
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("window-size"), "1920,1080")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowser, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowser, "failed to connect to browser", err)
	}

	maxPages := browserCfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	s := &Scraper{
		browser:    browser,
		pagePool:   rod.NewPagePool(maxPages),
		browserCfg: browserCfg,
		scraperCfg: cfg.Scraper,
		storeCfg:   cfg.Store,
		health:     make(map[*rod.Page]*pageHealth),
		sessions:   make(map[string]*sessionState),
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	slog.Info("page pool created", "maxPages", maxPages)
	return s, nil
}

// Stats returns a snapshot of the pool's current state.
func (s *Scraper) Stats() Stats {
	return Stats{
		MaxPages:     s.browserCfg.MaxPages,
		ActivePages:  int(s.activePages.Load()),
		RetiredPages: s.retired.Load(),
		Uptime:       time.Since(s.startTime).Round(time.Second).String(),
	}
}

// acquire borrows a stealth page. When proxies are configured the page
// lives in a fresh browser context bound to the next proxy and release
// disposes of that context instead of pooling the page.
func (s *Scraper) acquire() (page *rod.Page, release func(ok bool), err error) {
	s.activePages.Add(1)

	if proxy := s.proxies.Next(); proxy != "" {
		page, dispose, err := s.proxiedPage(proxy)
		if err != nil {
			s.activePages.Add(-1)
			return nil, nil, err
		}
		return page, func(bool) {
			dispose()
			s.activePages.Add(-1)
		}, nil
	}

	page, err = s.pagePool.Get(s.newPage)
	if err != nil {
		// Get consumed the slot; hand it back empty.
		s.pagePool.Put(nil)
		s.activePages.Add(-1)
		return nil, nil, models.NewScrapeError(models.ErrCodeBrowser, "failed to acquire page from pool", err)
	}
	return page, func(ok bool) {
		s.release(page, ok)
		s.activePages.Add(-1)
	}, nil
}

// newPage creates a pooled page with the stealth script installed once.
func (s *Scraper) newPage() (*rod.Page, error) {
	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, err
	}
	s.prepare(page)
	s.healthMu.Lock()
	s.health[page] = newPageHealth()
	s.healthMu.Unlock()
	return page, nil
}

func (s *Scraper) proxiedPage(proxy string) (*rod.Page, func(), error) {
	bctx, err := proto.TargetCreateBrowserContext{ProxyServer: proxy}.Call(s.browser)
	if err != nil {
		return nil, nil, models.NewScrapeError(models.ErrCodeBrowser, "failed to create proxied browser context", err)
	}
	dispose := func() {
		_ = proto.TargetDisposeBrowserContext{BrowserContextID: bctx.BrowserContextID}.Call(s.browser)
	}
	page, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank", BrowserContextID: bctx.BrowserContextID})
	if err != nil {
		dispose()
		return nil, nil, models.NewScrapeError(models.ErrCodeBrowser, "failed to open proxied page", err)
	}
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
	}
	s.prepare(page)
	slog.Debug("using proxied browser context", "proxy", proxy)
	return page, func() {
		_ = page.Close()
		dispose()
	}, nil
}

// prepare applies the per-page settings that survive navigations.
func (s *Scraper) prepare(page *rod.Page) {
	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: 1920, Height: 1080})
	_ = proto.EmulationSetTimezoneOverride{TimezoneID: "Asia/Jakarta"}.Call(page)
	if s.browserCfg.BlockAds {
		if err := blockAds(page); err != nil {
			slog.Debug("ad blocking unavailable", "error", err)
		}
	}
}

// release returns a page to the pool, or retires it when its health says so.
func (s *Scraper) release(page *rod.Page, ok bool) {
	if navErr := page.Navigate("about:blank"); navErr != nil {
		slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		ok = false
	}

	s.healthMu.Lock()
	h := s.health[page]
	if h == nil {
		h = newPageHealth()
		s.health[page] = h
	}
	h.record(ok)
	retire := h.shouldRetire()
	if retire {
		delete(s.health, page)
	}
	s.healthMu.Unlock()

	if retire {
		s.retired.Add(1)
		slog.Debug("retiring unhealthy page")
		_ = page.Close()
		// A nil slot makes the pool create a fresh page on the next Get.
		s.pagePool.Put(nil)
		return
	}
	s.pagePool.Put(page)
}

// Close drains the page pool and kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (s *Scraper) Close() {
	slog.Info("scraper shutting down: draining page pool")
	s.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	slog.Info("scraper shutting down: closing browser")
	if err := s.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	slog.Info("scraper shutdown complete")
}

func (s *Scraper) userAgent() string {
	if ua := s.userAgents.Next(); ua != "" {
		return ua
	}
	return s.browserCfg.UserAgent
}
