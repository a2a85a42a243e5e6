package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/strata/api/handler"
	"github.com/use-agent/strata/api/middleware"
	"github.com/use-agent/strata/cache"
	"github.com/use-agent/strata/config"
	"github.com/use-agent/strata/convert"
	"github.com/use-agent/strata/store"
)

// Deps are the collaborators of the HTTP API. Only Config and Store are
// required; leave Pool as a nil interface when no browser runs.
type Deps struct {
	Config    *config.Config
	Store     *store.Store
	Cache     *cache.Cache
	Converter *convert.Converter
	Refresher *handler.Refresher
	Pool      handler.PoolStats
	Started   time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → CORS
//	API:     Auth (if enabled) → RateLimit
//
// The index and status endpoints stay outside auth so monitoring probes
// always work.
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	if d.Started.IsZero() {
		d.Started = time.Now()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.CORS())
	r.NoRoute(handler.NotFound)

	datasets := handler.NewDatasets(d.Store, d.Cache)

	r.OPTIONS("/api/*path", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{}) })
	r.GET("/", handler.Index())
	r.GET("/api/status", handler.Status(datasets, d.Pool, d.Started))

	protected := r.Group("/api")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.GET("/stocks", datasets.Stocks())
	protected.GET("/stocks/:symbol", datasets.Stock())
	protected.GET("/gold", datasets.Gold())
	protected.GET("/gold/:source", datasets.GoldSource())
	protected.GET("/news", datasets.News())
	protected.GET("/currencies", datasets.Currencies())
	protected.GET("/crypto", datasets.Crypto())

	protected.POST("/convert/word-to-pdf", handler.WordToPDF(d.Converter, cfg.Server.MaxUploadBytes))

	protected.POST("/refresh/stocks", handler.RefreshStocks(d.Refresher))
	protected.GET("/refresh/status", handler.RefreshStatus(d.Refresher))

	return r
}
