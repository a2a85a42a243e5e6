package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/strata/cache"
	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/webhook"
)

// RefreshFunc re-scrapes a dataset and persists it.
type RefreshFunc func(ctx context.Context) (*models.RefreshResult, error)

// DefaultRefreshTimeout bounds one refresh job.
const DefaultRefreshTimeout = 5 * time.Minute

// Refresher runs at most one refresh job at a time in the background.
type Refresher struct {
	run      RefreshFunc
	cache    *cache.Cache
	notifier *webhook.Notifier
	timeout  time.Duration

	mu      sync.Mutex
	running bool
	jobID   string
	lastRun time.Time
	last    *models.RefreshResult
	wg      sync.WaitGroup
}

// NewRefresher returns a refresher. Cache and notifier may be nil.
func NewRefresher(run RefreshFunc, cc *cache.Cache, n *webhook.Notifier, timeout time.Duration) *Refresher {
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	return &Refresher{run: run, cache: cc, notifier: n, timeout: timeout}
}

// Start launches a job and returns its id, or CONFLICT when one is running.
func (r *Refresher) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return "", models.NewScrapeError(models.ErrCodeConflict, "refresh already running", nil)
	}
	r.running = true
	r.jobID = uuid.NewString()
	r.lastRun = time.Now()
	id := r.jobID

	r.wg.Add(1)
	go r.execute(id)
	return id, nil
}

func (r *Refresher) execute(id string) {
	defer r.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	slog.Info("refresh started", "job_id", id)
	res, err := r.run(ctx)
	if res == nil {
		res = &models.RefreshResult{}
	}
	res.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Success = false
		res.Error = err.Error()
		slog.Error("refresh failed", "job_id", id, "error", err)
	} else {
		res.Success = true
		slog.Info("refresh done", "job_id", id, "items", res.Items, "file", res.OutputFile)
	}
	if r.cache != nil {
		r.cache.InvalidateAll(context.Background())
	}

	r.mu.Lock()
	r.running = false
	r.last = res
	r.mu.Unlock()

	event := webhook.RefreshCompleted
	if err != nil {
		event = webhook.RefreshFailed
	}
	r.notifier.DeliverAsync(webhook.NewEvent(event, id, res))
}

// Status reports the current or last job.
func (r *Refresher) Status() models.RefreshStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := models.RefreshStatus{
		Status:     models.StatusOK,
		IsRunning:  r.running,
		JobID:      r.jobID,
		LastResult: r.last,
	}
	if !r.lastRun.IsZero() {
		st.LastRun = r.lastRun.Format(time.RFC3339)
	}
	return st
}

// Wait blocks until the running job and its notifications finish.
func (r *Refresher) Wait() {
	r.wg.Wait()
	r.notifier.Wait()
}

// RefreshStocks handles POST /api/refresh/stocks.
func RefreshStocks(r *Refresher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil {
			abort(c, http.StatusServiceUnavailable, models.ErrCodeUnavailable, "refresh is not configured")
			return
		}
		id, err := r.Start()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusConflict, models.ErrorResponse{
				Status:  "already_running",
				Code:    http.StatusConflict,
				Error:   models.ErrCodeConflict,
				Message: "scraper is already running, check /api/refresh/status",
			})
			return
		}
		c.JSON(http.StatusAccepted, models.RefreshAccepted{
			Status:   "started",
			JobID:    id,
			Message:  "scraper running in the background",
			CheckURL: "/api/refresh/status",
		})
	}
}

// RefreshStatus handles GET /api/refresh/status.
func RefreshStatus(r *Refresher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil {
			c.JSON(http.StatusOK, models.RefreshStatus{Status: models.StatusOK})
			return
		}
		c.JSON(http.StatusOK, r.Status())
	}
}
