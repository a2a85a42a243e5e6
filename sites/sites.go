// Package sites defines the plug-in contract for site-specific scrapers
// and a registry to look them up by name.
package sites

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/use-agent/strata/models"
)

// Site scrapes detail pages of one website. ScrapeDetail returns nil
// without an error when the page holds no record.
type Site interface {
	Name() string
	ScrapeDetail(ctx context.Context, url string) (*models.DetailRecord, error)
}

// Lister is implemented by sites with a paginated catalog. An empty url
// means the site's default catalog.
type Lister interface {
	ScrapeListing(ctx context.Context, url string, page int) ([]models.ListingItem, error)
}

// Crawler is implemented by sites that produce a whole dataset in one run.
type Crawler interface {
	Crawl(ctx context.Context, opts CrawlOptions) (*Dataset, error)
}

// CrawlOptions bounds a crawl. Zero values pick the site defaults.
type CrawlOptions struct {
	Pages    int
	Workers  int
	Progress func(done, total int)
}

// Dataset is a crawl result ready to persist under Label.
type Dataset struct {
	Label  string
	Result *models.NormalizedResult
}

// Registry maps lowercase names to sites. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	sites map[string]Site
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sites: map[string]Site{}}
}

// Register adds s. Names are case-insensitive and must be unique.
func (r *Registry) Register(s Site) error {
	name := strings.ToLower(s.Name())
	if name == "" {
		return models.NewScrapeError(models.ErrCodeInvalidInput, "site name is empty", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.sites[name]; dup {
		return models.NewScrapeError(models.ErrCodeConflict, fmt.Sprintf("site %q already registered", name), nil)
	}
	r.sites[name] = s
	return nil
}

// Get returns the site registered under name.
func (r *Registry) Get(name string) (Site, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sites[strings.ToLower(name)]
	return s, ok
}

// Lookup is Get with a NOT_FOUND error.
func (r *Registry) Lookup(name string) (Site, error) {
	s, ok := r.Get(name)
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeNotFound, fmt.Sprintf("unknown site %q", name), nil)
	}
	return s, nil
}

// All returns every site sorted by name.
func (r *Registry) All() []Site {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Site, 0, len(r.sites))
	for _, s := range r.sites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Capabilities lists what a site supports beyond detail pages.
func Capabilities(s Site) []string {
	caps := []string{"detail"}
	if _, ok := s.(Lister); ok {
		caps = append(caps, "listing")
	}
	if _, ok := s.(Crawler); ok {
		caps = append(caps, "crawl")
	}
	return caps
}
