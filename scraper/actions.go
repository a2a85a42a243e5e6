package scraper

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// loadMoreWords are the button captions treated as "load more" in
// Indonesian and English.
var loadMoreWords = []string{
	"muat", "load", "lainnya", "selengkapnya", "lebih", "show", "next", "selanjutnya",
}

// clickLoadMoreJS hovers and clicks the first visible button or link whose
// caption contains each synonym. It returns how many elements were clicked.
const clickLoadMoreJS = `(words) => {
	const seen = new Set();
	let clicked = 0;
	const nodes = Array.from(document.querySelectorAll('button, a, [role="button"]'));
	for (const w of words) {
		const el = nodes.find(n => {
			if (seen.has(n)) return false;
			const text = (n.innerText || n.textContent || '').trim().toLowerCase();
			if (!text || text.length > 40 || !text.includes(w)) return false;
			const r = n.getBoundingClientRect();
			return r.width > 0 && r.height > 0;
		});
		if (!el) continue;
		seen.add(el);
		try {
			el.scrollIntoView({block: 'center'});
			el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true}));
			el.click();
			clicked++;
		} catch (e) {}
	}
	return clicked;
}`

// interact simulates a visitor: a random mouse move, 2 to 4 scroll steps
// with a 1 to 4 s settle each, then the load-more buttons.
func interact(ctx context.Context, p *rod.Page) {
	x := 100 + rand.Float64()*700
	y := 100 + rand.Float64()*500
	if err := p.Mouse.MoveTo(proto.Point{X: x, Y: y}); err != nil {
		slog.Debug("interaction: mouse move failed", "error", err)
	}

	steps := 2 + rand.IntN(3)
	for i := 0; i < steps; i++ {
		if err := p.Mouse.Scroll(0, 400+rand.Float64()*600, 4); err != nil {
			slog.Debug("interaction: scroll failed", "step", i, "error", err)
			break
		}
		if !sleepCtx(ctx, time.Second+time.Duration(rand.Int64N(int64(3*time.Second)))) {
			return
		}
	}

	res, err := p.Eval(clickLoadMoreJS, loadMoreWords)
	if err != nil {
		slog.Debug("interaction: button scan failed", "error", err)
		return
	}
	if n := res.Value.Int(); n > 0 {
		slog.Info("interaction: clicked load-more buttons", "count", n)
		sleepCtx(ctx, 2*time.Second)
	}
}

// sleepCtx waits d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
