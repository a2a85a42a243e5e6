package scraper

import (
	"math"
	"time"
)

// Retirement thresholds for pooled pages. A page is closed instead of
// being returned to the pool once any of them is reached.
const (
	maxErrScore = 3.0
	maxPageUses = 50
	maxPageAge  = 50 * time.Minute
)

// pageHealth tracks how a pooled page has been doing.
//
// Scoring: success lowers errScore by 0.5 (floor 0), failure raises it
// by 1.0.
type pageHealth struct {
	errScore float64
	useCount int
	created  time.Time
	now      func() time.Time
}

func newPageHealth() *pageHealth {
	return &pageHealth{created: time.Now(), now: time.Now}
}

func (h *pageHealth) record(ok bool) {
	h.useCount++
	if ok {
		h.errScore = math.Max(0, h.errScore-0.5)
		return
	}
	h.errScore += 1.0
}

func (h *pageHealth) shouldRetire() bool {
	return h.errScore >= maxErrScore ||
		h.useCount >= maxPageUses ||
		h.now().Sub(h.created) >= maxPageAge
}
