// Package builtin registers the site plug-ins shipped with strata.
package builtin

import (
	"context"

	"github.com/use-agent/strata/cleaner"
	"github.com/use-agent/strata/config"
	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/scraper"
	"github.com/use-agent/strata/sites"
	"github.com/use-agent/strata/sites/drakorkita"
	"github.com/use-agent/strata/sites/kompas"
	"github.com/use-agent/strata/sites/pluang"
	"github.com/use-agent/strata/sites/tradingeconomics"
)

// Browser is what the browser-backed plug-ins need. *scraper.Scraper
// satisfies it.
type Browser interface {
	Capture(ctx context.Context, target string, opts scraper.CaptureOptions) (*models.PageCapture, error)
	EmbedSources(ctx context.Context, target string) ([]string, error)
}

// Deps are the shared collaborators of the plug-ins. Fetcher is required;
// a nil Browser leaves drakorkita on AJAX discovery only and makes
// tradingeconomics answer DATA_UNAVAILABLE.
type Deps struct {
	Config  *config.Config
	Fetcher pluang.Fetcher
	Browser Browser
}

// HTMLClient returns a plug-in HTML client tuned by the scraper config.
func HTMLClient(cfg *config.Config) *sites.HTMLClient {
	h := sites.NewHTMLClient()
	if cfg == nil {
		return h
	}
	if cfg.Scraper.RequestTimeout > 0 {
		h.Timeout = cfg.Scraper.RequestTimeout
	}
	if cfg.Scraper.Retries > 0 {
		h.Attempts = cfg.Scraper.Retries
	}
	if cfg.Browser.UserAgent != "" {
		h.UserAgent = cfg.Browser.UserAgent
	}
	return h
}

// Registry builds a registry holding every shipped plug-in.
func Registry(d Deps) (*sites.Registry, error) {
	html := HTMLClient(d.Config)

	var (
		dkOpts   []drakorkita.Option
		renderer tradingeconomics.Renderer
	)
	if d.Browser != nil {
		dkOpts = append(dkOpts, drakorkita.WithBrowser(d.Browser))
		renderer = d.Browser
	}
	var pluangOpts []pluang.Option
	if d.Config != nil {
		if d.Config.Scraper.RequestTimeout > 0 {
			pluangOpts = append(pluangOpts, pluang.WithTimeout(d.Config.Scraper.RequestTimeout))
		}
		if d.Config.Scraper.Workers > 0 {
			pluangOpts = append(pluangOpts, pluang.WithWorkers(d.Config.Scraper.Workers))
		}
	}

	reg := sites.NewRegistry()
	for _, s := range []sites.Site{
		drakorkita.New(html, dkOpts...),
		kompas.New(html, cleaner.New()),
		pluang.New(d.Fetcher, pluangOpts...),
		tradingeconomics.New(renderer),
	} {
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
