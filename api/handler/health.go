package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/scraper"
	"github.com/use-agent/strata/store"
)

// Version is reported by GET / and GET /api/status.
const Version = "1.0.0"

// PoolStats reports browser page pool usage. *scraper.Scraper satisfies it.
type PoolStats interface {
	Stats() scraper.Stats
}

// Endpoints lists the public routes for GET /.
var Endpoints = []string{
	"GET /api/status",
	"GET /api/stocks",
	"GET /api/stocks/<symbol>",
	"GET /api/gold",
	"GET /api/gold/<source>",
	"GET /api/news",
	"GET /api/currencies",
	"GET /api/crypto",
	"POST /api/convert/word-to-pdf",
	"POST /api/refresh/stocks",
	"GET /api/refresh/status",
}

// Index handles GET /.
func Index() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.IndexResponse{
			Name:      "Strata API",
			Version:   Version,
			Docs:      "/api/status",
			Endpoints: Endpoints,
		})
	}
}

// Status handles GET /api/status: which datasets exist and, when a browser
// runs, its pool usage. Pool status degrades above 80% active pages.
func Status(d *Datasets, pool PoolStats, started time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		summary := map[string]models.DatasetSummary{}

		stocks, _, err := section[map[string]any](ctx, d, store.PatternStocks, models.KeyStocks)
		summary["stocks"] = models.DatasetSummary{Available: err == nil, Total: len(stocks), Source: "pluang.com"}

		gold := models.DatasetSummary{Sources: map[string]bool{}}
		for _, name := range []string{"galeri24", "harga_emas_org"} {
			_, err := d.Latest(ctx, goldSources[name])
			gold.Sources[name] = err == nil
			gold.Available = gold.Available || err == nil
		}
		summary["gold"] = gold

		_, err = d.Latest(ctx, store.PatternCrypto)
		summary["crypto"] = models.DatasetSummary{Available: err == nil, Source: "coinmarketcap.com"}

		articles, _, err := section[[]any](ctx, d, store.PatternNews, models.KeyArticles)
		summary["news"] = models.DatasetSummary{Available: err == nil, Total: len(articles), Source: "kompas.com"}

		groups, _, err := section[map[string]any](ctx, d, store.PatternCurrencies, models.KeyCurrencies)
		summary["currencies"] = models.DatasetSummary{Available: err == nil, Total: len(groups), Source: "tradingeconomics.com"}

		dramas, _, err := section[[]any](ctx, d, store.PatternDramas, models.KeyDramas)
		summary["dramas"] = models.DatasetSummary{Available: err == nil, Total: len(dramas), Source: "drakorkita"}

		status := "online"
		var browser any
		if pool != nil {
			stats := pool.Stats()
			if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
				status = "degraded"
			}
			browser = stats
		}

		c.JSON(http.StatusOK, models.StatusResponse{
			Status:      status,
			Timestamp:   time.Now().Format(time.RFC3339),
			Uptime:      time.Since(started).Round(time.Second).String(),
			Version:     Version,
			DataSummary: summary,
			Browser:     browser,
		})
	}
}
