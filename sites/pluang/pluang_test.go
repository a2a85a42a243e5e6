package pluang

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/strata/engine"
	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/sites"
)

func pageHTML(page, totalPages int, symbols ...string) string {
	assets := ""
	for i, sym := range symbols {
		if i > 0 {
			assets += ","
		}
		assets += fmt.Sprintf(`{"tileInfo":{"symbol":%q,"name":"%s Inc"},"display":{"lastPriceAndPercentageChange":{"currentPrice":%d,"percentageChange":1.234567,"arrowIcon":"GREEN"}}}`,
			sym, sym, 100+page)
	}
	return fmt.Sprintf(`<html><body><div id="__next"></div>
<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"data":{"totalPageCount":%d,"totalCount":%d,
"assetCategories":[{"assetCategoryData":[{"assets":[%s]}]}]}}}}</script></body></html>`, totalPages, totalPages*2, assets)
}

func newServer(t *testing.T, totalPages int, broken map[int]bool, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		n, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if broken[n] {
			_, _ = w.Write([]byte("<html><body>maintenance</body></html>"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(pageHTML(n, totalPages, fmt.Sprintf("S%dA", n), fmt.Sprintf("S%dB", n))))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSite(srv *httptest.Server) *Site {
	return New(engine.NewHTTPEngine(), WithBaseURL(srv.URL+"/explore/us-market/stocks"), WithDelay(0), WithWorkers(3))
}

func TestNextData(t *testing.T) {
	v, ok := NextData(pageHTML(1, 4, "AAPL"))
	require.True(t, ok)
	assert.NotNil(t, exploreData(v))

	_, ok = NextData(`<script id="__NEXT_DATA__" type="application/json">{broken</script>`)
	assert.False(t, ok)
	_, ok = NextData(`<html></html>`)
	assert.False(t, ok)
}

func TestPageURL(t *testing.T) {
	s := New(nil, WithBaseURL("https://pluang.com/explore/us-market/stocks"))
	assert.Equal(t, "https://pluang.com/explore/us-market/stocks?page=7", s.PageURL(7))
}

func TestScrapeDetail(t *testing.T) {
	srv := newServer(t, 4, nil, nil)
	s := newSite(srv)

	rec, err := s.ScrapeDetail(context.Background(), s.PageURL(2))
	require.NoError(t, err)
	require.NotNil(t, rec)
	stocks := rec.Fields["stocks"].(map[string]any)
	require.Contains(t, stocks, "S2A")
	q := stocks["S2A"].(map[string]any)
	assert.Equal(t, 1.2346, q["percentageChange"])
	assert.Equal(t, "GREEN", q["direction"])
	assert.Equal(t, 4, rec.Fields["total_pages"])
}

func TestScrapeDetailWithoutQuotes(t *testing.T) {
	srv := newServer(t, 4, map[int]bool{3: true}, nil)
	s := newSite(srv)

	_, err := s.ScrapeDetail(context.Background(), s.PageURL(3))
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeNoData, models.ErrorCode(err))
}

func TestScrapeListing(t *testing.T) {
	srv := newServer(t, 4, nil, nil)
	s := newSite(srv)

	items, err := s.ScrapeListing(context.Background(), "", 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "S2A - S2A Inc", items[0].Title)
	assert.Equal(t, "S2B - S2B Inc", items[1].Title)
}

func TestCrawl(t *testing.T) {
	var hits atomic.Int64
	srv := newServer(t, 5, map[int]bool{4: true}, &hits)
	s := newSite(srv)

	var lastDone atomic.Int64
	ds, err := s.Crawl(context.Background(), sites.CrawlOptions{
		Progress: func(done, total int) {
			assert.Equal(t, 5, total)
			lastDone.Store(int64(done))
		},
	})
	require.NoError(t, err)
	assert.Equal(t, Label, ds.Label)
	assert.EqualValues(t, 5, hits.Load())
	assert.EqualValues(t, 5, lastDone.Load())

	stocks := ds.Result.Data.(map[string]any)[models.KeyStocks].(map[string]any)
	assert.Len(t, stocks, 8)
	assert.NotContains(t, stocks, "S4A")

	extra := ds.Result.Metadata.Extra
	assert.Equal(t, []int{4}, extra["failed_pages"])
	assert.Equal(t, 8, extra["total_stocks_found"])
	assert.Equal(t, false, extra["interrupted"])
	assert.Equal(t, models.TechniqueSSRInline, ds.Result.Metadata.TechniqueUsed)
}

func TestCrawlPageLimit(t *testing.T) {
	var hits atomic.Int64
	srv := newServer(t, 10, nil, &hits)
	s := newSite(srv)

	ds, err := s.Crawl(context.Background(), sites.CrawlOptions{Pages: 2, Workers: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
	assert.Len(t, ds.Result.Data.(map[string]any)[models.KeyStocks], 4)
}

func TestCrawlFirstPageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newSite(srv).Crawl(context.Background(), sites.CrawlOptions{})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeHTTPStatus, models.ErrorCode(err))
}
