package main

import (
	"io"
	"log/slog"
	"sync"

	"github.com/use-agent/strata/cache"
	"github.com/use-agent/strata/config"
	"github.com/use-agent/strata/engine"
	"github.com/use-agent/strata/llm"
	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/pipeline"
	"github.com/use-agent/strata/rotation"
	"github.com/use-agent/strata/scraper"
	"github.com/use-agent/strata/sites"
	"github.com/use-agent/strata/sites/builtin"
	"github.com/use-agent/strata/store"
	"github.com/use-agent/strata/strategy"
	"github.com/use-agent/strata/unlocker"
)

// app owns the long-lived collaborators of one command. The browser is
// launched on first use only.
type app struct {
	cfg       *config.Config
	store     *store.Store
	http      *engine.HTTPEngine
	proxies   *rotation.ProxyRotator
	agents    *rotation.UserAgents
	noBrowser bool

	mu      sync.Mutex
	browser *scraper.Scraper
	closers []io.Closer
}

func newApp(cfg *config.Config, noBrowser bool) *app {
	a := &app{cfg: cfg, store: store.New(cfg.Store.ResultDir), noBrowser: noBrowser}

	if cfg.Proxy.Enabled {
		list, err := rotation.LoadList(cfg.Proxy.ListFile)
		if err != nil {
			slog.Warn("proxy list unavailable, continuing without proxies", "file", cfg.Proxy.ListFile, "error", err)
		} else {
			a.proxies = rotation.NewProxyRotator(list, cfg.Proxy.RotateEvery)
		}
	}
	var agents []string
	if cfg.Proxy.RotateUserAgent {
		list, err := rotation.LoadList(cfg.Proxy.UserAgentFile)
		if err != nil {
			slog.Debug("user agent list unavailable", "file", cfg.Proxy.UserAgentFile, "error", err)
		}
		agents = list
	}
	a.agents = rotation.NewUserAgents(agents, cfg.Browser.UserAgent, cfg.Proxy.RotateUserAgent)

	a.http = engine.NewHTTPEngine(
		engine.WithProxies(a.proxies),
		engine.WithUserAgents(a.agents),
		engine.WithTimeout(cfg.Scraper.RequestTimeout),
	)
	return a
}

// Browser launches the shared browser. It returns nil, nil when the
// browser is disabled.
func (a *app) Browser() (*scraper.Scraper, error) {
	if a.noBrowser {
		return nil, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.browser != nil {
		return a.browser, nil
	}
	sc, err := scraper.NewScraper(a.cfg, scraper.WithProxies(a.proxies), scraper.WithUserAgents(a.agents))
	if err != nil {
		return nil, err
	}
	a.browser = sc
	return sc, nil
}

// Orchestrator builds the extraction pipeline. A browser launch failure
// leaves the plain-HTTP states only.
func (a *app) Orchestrator(cc *cache.Cache) *pipeline.Orchestrator {
	opts := []pipeline.Option{
		pipeline.WithKeywords(a.cfg.Scraper.Keywords),
		pipeline.WithRequestTimeout(a.cfg.Scraper.RequestTimeout),
		pipeline.WithUnlocker(unlocker.New(a.cfg.Unlocker)),
		pipeline.WithSolver(unlocker.NewSolver(a.cfg.Unlocker)),
	}
	if cc != nil {
		opts = append(opts, pipeline.WithCache(cc))
	}
	if a.cfg.LLM.Enabled {
		opts = append(opts, pipeline.WithLLM(llm.NewClient(a.cfg.LLM, nil), strategy.LLMOptions{
			MaxChars: a.cfg.LLM.MaxChars,
			MinChars: a.cfg.LLM.MinChars,
			Format:   a.cfg.LLM.InputFormat,
			Scope:    a.cfg.LLM.ContentSelector,
			Exclude:  a.cfg.LLM.ExcludeSelectors,
		}))
	}
	sc, err := a.Browser()
	switch {
	case err != nil:
		slog.Warn("browser unavailable, running plain HTTP states only", "error", err)
	case sc != nil:
		opts = append(opts, pipeline.WithBrowser(sc))
	}
	return pipeline.New(a.http, a.store, opts...)
}

// Sites builds the plug-in registry. browser controls whether the
// browser-backed plug-ins get one.
func (a *app) Sites(browser bool) (*sites.Registry, error) {
	deps := builtin.Deps{Config: a.cfg, Fetcher: a.http}
	if browser {
		sc, err := a.Browser()
		if err != nil {
			slog.Warn("browser unavailable for site plug-ins", "error", err)
		} else if sc != nil {
			deps.Browser = sc
		}
	}
	return builtin.Registry(deps)
}

// onClose registers c to be closed by Close.
func (a *app) onClose(c io.Closer) {
	a.mu.Lock()
	a.closers = append(a.closers, c)
	a.mu.Unlock()
}

func (a *app) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	if a.browser != nil {
		a.browser.Close()
		a.browser = nil
	}
}

// saveDataset persists a crawl result under its label with no method part,
// so it matches the dataset patterns the API reads.
func saveDataset(st *store.Store, ds *sites.Dataset) (string, error) {
	if ds == nil || ds.Result == nil {
		return "", models.NewScrapeError(models.ErrCodeNoData, "crawl returned no dataset", nil)
	}
	return st.Save(ds.Label, "", ds.Result)
}
