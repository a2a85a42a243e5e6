package strategy

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/strata/models"
)

// JSONGetter fetches a URL and parses the body as JSON regardless of the
// declared content type.
type JSONGetter interface {
	GetJSON(ctx context.Context, target string, timeout time.Duration) (any, bool)
}

// CommonEndpoints are the API paths probed under a base URL, each bare and
// with ?page=1.
var CommonEndpoints = []string{
	"/api/data",
	"/api/v1/data",
	"/data.json",
	"/graphql",
	"/api/items",
	"/wp-json/wp/v2/posts",
	"/api/values",
	"/openapi.json",
	"/api/search",
	"/api/products",
}

// ProbeURLs lists the URLs Direct tries, in order.
func ProbeURLs(baseURL string) []string {
	base := strings.TrimSuffix(baseURL, "/")
	urls := make([]string, 0, 1+2*len(CommonEndpoints))
	urls = append(urls, base)
	for _, ep := range CommonEndpoints {
		urls = append(urls, base+ep, base+ep+"?page=1")
	}
	return urls
}

// Direct probes the base URL and then the common API paths, stopping at
// the first non-empty JSON body. There is no keyword gate here.
func Direct(ctx context.Context, g JSONGetter, baseURL string, timeout time.Duration) (*models.ExtractionCandidate, string) {
	if baseURL == "" {
		return nil, ReasonNoInput
	}
	for _, u := range ProbeURLs(baseURL) {
		if ctx.Err() != nil {
			return nil, ctx.Err().Error()
		}
		v, ok := g.GetJSON(ctx, u, timeout)
		if !ok || models.IsEmptyPayload(v) {
			continue
		}
		slog.Info("direct endpoint hit", "url", u)
		return accept(models.TechniqueDirectEndpoint, u, v, nil)
	}
	return nil, ReasonNoJSON
}
