package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/strata/models"
)

// serverButtonSelector matches the player tabs of streaming catalogs.
const serverButtonSelector = ".btn-svr, .server-btn, .gmr-player-btn, [data-server]"

// iframeSourcesJS lists iframe sources in document order.
const iframeSourcesJS = `() => Array.from(document.querySelectorAll('iframe'))
	.map(f => f.getAttribute('src') || f.getAttribute('data-src') || '')
	.filter(Boolean)`

// clickNthJS clicks the i-th element matching the selector.
const clickNthJS = `(sel, i) => {
	const el = document.querySelectorAll(sel)[i];
	if (!el) return false;
	try { el.scrollIntoView({block: 'center'}); el.click(); return true; } catch (e) { return false; }
}`

// EmbedSources opens target and returns the player iframe sources, first
// as loaded and then after clicking each server tab. Ad and social
// iframes are skipped and duplicates are dropped.
func (s *Scraper) EmbedSources(ctx context.Context, target string) (srcs []string, err error) {
	timeout := s.scraperCfg.TechniqueTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer func() { release(err == nil) }()

	p := page.Context(ctx)
	if err = p.Navigate(target); err != nil {
		return nil, categorizeError(err, "navigation for embed discovery failed")
	}
	_ = p.WaitLoad()
	sleepCtx(ctx, 2*time.Second)

	seen := map[string]bool{}
	collect := func() {
		res, evalErr := p.Eval(iframeSourcesJS)
		if evalErr != nil {
			return
		}
		for _, v := range res.Value.Arr() {
			src := jsonStr(v)
			if src == "" || seen[src] || IsAdEmbed(src) {
				continue
			}
			seen[src] = true
			srcs = append(srcs, src)
		}
	}
	collect()

	buttons := 0
	if res, evalErr := p.Eval(`(sel) => document.querySelectorAll(sel).length`, serverButtonSelector); evalErr == nil {
		buttons = res.Value.Int()
	}
	for i := 0; i < buttons && ctx.Err() == nil; i++ {
		res, evalErr := p.Eval(clickNthJS, serverButtonSelector, i)
		if evalErr != nil || !res.Value.Bool() {
			continue
		}
		sleepCtx(ctx, 2*time.Second)
		collect()
	}
	if ctx.Err() != nil && len(srcs) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeTimeout, "embed discovery deadline reached", ctx.Err())
	}
	slog.Debug("embed discovery done", "url", target, "buttons", buttons, "embeds", len(srcs))
	return srcs, nil
}
