package handler

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/strata/cache"
	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/store"
)

// goldSources maps the public source names to dataset patterns.
var goldSources = map[string]string{
	"galeri24":       store.PatternGoldGaleri24,
	"harga_emas_org": store.PatternGoldHargaEmas,
	"harga-emas":     store.PatternGoldHargaEmas,
}

// goldSourceHosts are the human-readable origins of the gold sources.
var goldSourceHosts = map[string]string{
	store.PatternGoldGaleri24:  "galeri24.co.id",
	store.PatternGoldHargaEmas: "harga-emas.org",
}

// Datasets serves the latest persisted results. Reads go through the cache
// when one is set.
type Datasets struct {
	store *store.Store
	cache *cache.Cache
}

func NewDatasets(st *store.Store, cc *cache.Cache) *Datasets {
	return &Datasets{store: st, cache: cc}
}

// Latest returns the newest result for pattern. A missing dataset is
// DATA_UNAVAILABLE.
func (d *Datasets) Latest(ctx context.Context, pattern string) (*models.NormalizedResult, error) {
	load := func(_ context.Context, p string) (string, *models.NormalizedResult, error) {
		return d.store.LoadLatest(p)
	}
	var (
		result *models.NormalizedResult
		err    error
	)
	if d.cache != nil {
		var e *cache.Entry
		if e, err = d.cache.GetOrLoad(ctx, pattern, load); err == nil {
			result = e.Result
		}
	} else {
		_, result, err = load(ctx, pattern)
	}
	if err != nil {
		if models.ErrorCode(err) == models.ErrCodeNotFound {
			return nil, models.NewScrapeError(models.ErrCodeUnavailable,
				"dataset not available yet, run the scraper first", err)
		}
		return nil, err
	}
	return result, nil
}

// section returns data[key] of the latest result as T.
func section[T any](ctx context.Context, d *Datasets, pattern, key string) (T, *models.NormalizedResult, error) {
	var zero T
	result, err := d.Latest(ctx, pattern)
	if err != nil {
		return zero, nil, err
	}
	v, ok := dataMap(result)[key].(T)
	if !ok {
		return zero, result, models.NewScrapeError(models.ErrCodeNotFound, "dataset has no "+key, nil)
	}
	return v, result, nil
}

func dataMap(r *models.NormalizedResult) map[string]any {
	if r == nil {
		return nil
	}
	m, _ := r.Data.(map[string]any)
	return m
}

// Stocks handles GET /api/stocks.
//
// Query: search (symbol or name substring), direction (GREEN|RED),
// sort (change|price|name), order (asc|desc), limit.
func (d *Datasets) Stocks() gin.HandlerFunc {
	return func(c *gin.Context) {
		quotes, result, err := section[map[string]any](c.Request.Context(), d, store.PatternStocks, models.KeyStocks)
		if err != nil {
			fail(c, err)
			return
		}

		search := strings.ToUpper(strings.TrimSpace(c.Query("search")))
		direction := strings.ToUpper(c.Query("direction"))
		if direction != "GREEN" && direction != "RED" {
			direction = ""
		}

		entries := make([]models.StockEntry, 0, len(quotes))
		for symbol, raw := range quotes {
			q, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name, _ := q["name"].(string)
			if search != "" && !strings.Contains(strings.ToUpper(symbol), search) &&
				!strings.Contains(strings.ToUpper(name), search) {
				continue
			}
			if direction != "" && q["direction"] != direction {
				continue
			}
			entries = append(entries, models.StockEntry{Symbol: symbol, Quote: q})
		}
		sortStocks(entries, c.Query("sort"), strings.EqualFold(c.Query("order"), "desc"))
		entries = limit(entries, c.Query("limit"))

		c.JSON(http.StatusOK, models.StocksResponse{
			Status: models.StatusOK,
			Count:  len(entries),
			Source: result.Metadata,
			Stocks: entries,
		})
	}
}

// sortStocks orders by symbol, then by the requested key.
func sortStocks(entries []models.StockEntry, by string, desc bool) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Symbol < entries[j].Symbol })

	var less func(a, b map[string]any) bool
	switch by {
	case "change":
		less = func(a, b map[string]any) bool { return num(a["percentageChange"]) < num(b["percentageChange"]) }
	case "price":
		less = func(a, b map[string]any) bool { return num(a["currentPrice"]) < num(b["currentPrice"]) }
	case "name":
		less = func(a, b map[string]any) bool {
			an, _ := a["name"].(string)
			bn, _ := b["name"].(string)
			return an < bn
		}
	default:
		return
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if desc {
			return less(entries[j].Quote, entries[i].Quote)
		}
		return less(entries[i].Quote, entries[j].Quote)
	})
}

func num(v any) float64 {
	f, _ := v.(float64)
	return f
}

// limit keeps the first n items when the limit query is a positive number.
func limit[T any](items []T, raw string) []T {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n >= len(items) {
		return items
	}
	return items[:n]
}

// Stock handles GET /api/stocks/:symbol.
func (d *Datasets) Stock() gin.HandlerFunc {
	return func(c *gin.Context) {
		quotes, _, err := section[map[string]any](c.Request.Context(), d, store.PatternStocks, models.KeyStocks)
		if err != nil {
			fail(c, err)
			return
		}
		symbol := strings.ToUpper(c.Param("symbol"))
		q, ok := quotes[symbol]
		if !ok {
			abort(c, http.StatusNotFound, models.ErrCodeNotFound, "stock '"+symbol+"' not found")
			return
		}
		c.JSON(http.StatusOK, models.DataResponse{Status: models.StatusOK, Data: q})
	}
}

// Gold handles GET /api/gold: every source that has prices.
func (d *Datasets) Gold() gin.HandlerFunc {
	return func(c *gin.Context) {
		out := map[string]any{}
		for _, name := range []string{"galeri24", "harga_emas_org"} {
			pattern := goldSources[name]
			prices, _, err := section[map[string]any](c.Request.Context(), d, pattern, models.KeyGoldPrices)
			if err != nil || len(prices) == 0 {
				continue
			}
			out[name] = map[string]any{"source": goldSourceHosts[pattern], "prices": prices}
		}
		if len(out) == 0 {
			abort(c, http.StatusServiceUnavailable, models.ErrCodeUnavailable, "gold prices not available yet, run the scraper first")
			return
		}
		c.JSON(http.StatusOK, models.DataResponse{Status: models.StatusOK, Count: len(out), Data: out})
	}
}

// GoldSource handles GET /api/gold/:source. Query provider keeps the
// providers whose name contains it, case-insensitively.
func (d *Datasets) GoldSource() gin.HandlerFunc {
	return func(c *gin.Context) {
		source := strings.ToLower(c.Param("source"))
		pattern, ok := goldSources[source]
		if !ok {
			abort(c, http.StatusNotFound, models.ErrCodeNotFound,
				"unknown source '"+c.Param("source")+"', use galeri24 or harga_emas_org")
			return
		}
		prices, _, err := section[map[string]any](c.Request.Context(), d, pattern, models.KeyGoldPrices)
		if err == nil && len(prices) == 0 {
			err = models.NewScrapeError(models.ErrCodeNotFound, "dataset has no "+models.KeyGoldPrices, nil)
		}
		if err != nil {
			fail(c, err)
			return
		}

		if provider := strings.ToUpper(strings.TrimSpace(c.Query("provider"))); provider != "" {
			filtered := map[string]any{}
			for k, v := range prices {
				if strings.Contains(strings.ToUpper(k), provider) {
					filtered[k] = v
				}
			}
			if len(filtered) == 0 {
				abort(c, http.StatusNotFound, models.ErrCodeNotFound, "provider '"+provider+"' not found")
				return
			}
			prices = filtered
		}
		c.JSON(http.StatusOK, models.GoldPricesResponse{
			Status: models.StatusOK,
			Source: goldSourceHosts[pattern],
			Count:  len(prices),
			Prices: prices,
		})
	}
}

// News handles GET /api/news.
//
// Query: section (substring), search (substring of the headline), limit.
func (d *Datasets) News() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, result, err := section[[]any](c.Request.Context(), d, store.PatternNews, models.KeyArticles)
		if err != nil {
			fail(c, err)
			return
		}
		sec := strings.ToLower(strings.TrimSpace(c.Query("section")))
		search := strings.ToLower(strings.TrimSpace(c.Query("search")))

		articles := make([]map[string]any, 0, len(raw))
		for _, r := range raw {
			a, ok := r.(map[string]any)
			if !ok {
				continue
			}
			s, _ := a["section"].(string)
			title, _ := a["judul"].(string)
			if sec != "" && !strings.Contains(strings.ToLower(s), sec) {
				continue
			}
			if search != "" && !strings.Contains(strings.ToLower(title), search) {
				continue
			}
			articles = append(articles, a)
		}
		articles = limit(articles, c.Query("limit"))

		c.JSON(http.StatusOK, models.NewsResponse{
			Status:   models.StatusOK,
			Count:    len(articles),
			Metadata: result.Metadata,
			Articles: articles,
		})
	}
}

// Currencies handles GET /api/currencies. Query group keeps one group,
// matched case-insensitively.
func (d *Datasets) Currencies() gin.HandlerFunc {
	return func(c *gin.Context) {
		groups, result, err := section[map[string]any](c.Request.Context(), d, store.PatternCurrencies, models.KeyCurrencies)
		if err != nil {
			fail(c, err)
			return
		}
		if want := strings.TrimSpace(c.Query("group")); want != "" {
			filtered := map[string]any{}
			for name, g := range groups {
				if strings.EqualFold(name, want) {
					filtered[name] = g
				}
			}
			if len(filtered) == 0 {
				abort(c, http.StatusNotFound, models.ErrCodeNotFound, "group '"+want+"' not found")
				return
			}
			groups = filtered
		}

		names := make([]string, 0, len(groups))
		pairs := 0
		for name, g := range groups {
			names = append(names, name)
			if m, ok := g.(map[string]any); ok {
				pairs += len(m)
			}
		}
		sort.Strings(names)
		c.JSON(http.StatusOK, models.CurrenciesResponse{
			Status:     models.StatusOK,
			Count:      pairs,
			Groups:     names,
			Metadata:   result.Metadata,
			Currencies: groups,
		})
	}
}

// Crypto handles GET /api/crypto: the captured API responses, keyed by URL.
func (d *Datasets) Crypto() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := d.Latest(c.Request.Context(), store.PatternCrypto)
		if err != nil {
			fail(c, err)
			return
		}
		endpoints := map[string]any{}
		for k, v := range dataMap(result) {
			if _, isObj := v.(map[string]any); isObj && strings.HasPrefix(k, "http") {
				endpoints[k] = v
			}
		}
		keys := make([]string, 0, len(endpoints))
		for k := range endpoints {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		c.JSON(http.StatusOK, models.CryptoResponse{
			Status:         models.StatusOK,
			Metadata:       result.Metadata,
			EndpointsFound: keys,
			TotalEndpoints: len(keys),
			Data:           endpoints,
		})
	}
}
