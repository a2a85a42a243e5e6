package strategy

import (
	"context"
	"log/slog"
	"strings"

	"github.com/use-agent/strata/detect"
	"github.com/use-agent/strata/models"
)

// Harvest accepts captured network responses whose body parses as JSON
// and whose body or URL mentions a target keyword. The payload maps each
// accepted response URL to its decoded body; a later response for the
// same URL replaces an earlier one.
func Harvest(c *models.PageCapture, kw Keywords) (*models.ExtractionCandidate, string) {
	if c == nil || len(c.NetworkResponses) == 0 {
		return nil, ReasonNoInput
	}
	found := make(map[string]any)
	evidence := evidenceSet{}
	sawJSON := false
	for _, r := range c.NetworkResponses {
		v, ok := detect.ParseJSON(r.Body)
		if !ok {
			if r.IsJSONContentType() {
				slog.Debug("harvest: malformed json body", "url", r.URL)
			}
			continue
		}
		sawJSON = true
		matched := kw.Match(r.Body, r.URL)
		if len(matched) == 0 {
			continue
		}
		found[r.URL] = v
		evidence.add(matched)
		slog.Info("harvest: keyword match", "url", r.URL, "keywords", matched)
	}
	if len(found) == 0 {
		return nil, firstMatchReason(sawJSON)
	}
	return accept(models.TechniqueNetworkHarvest, sourceOf(c), found, evidence.list())
}

// WebSocket accepts received or sent frames that are JSON and mention a
// target keyword.
func WebSocket(c *models.PageCapture, kw Keywords) (*models.ExtractionCandidate, string) {
	if c == nil || len(c.WebSocketFrames) == 0 {
		return nil, ReasonNoInput
	}
	var frames []any
	evidence := evidenceSet{}
	sawJSON := false
	for _, f := range c.WebSocketFrames {
		v, ok := detect.ParseJSON(f.Payload)
		if !ok {
			continue
		}
		sawJSON = true
		matched := kw.Match(f.Payload)
		if len(matched) == 0 {
			continue
		}
		frames = append(frames, v)
		evidence.add(matched)
	}
	if len(frames) == 0 {
		return nil, firstMatchReason(sawJSON)
	}
	return accept(models.TechniqueWebSocket, sourceOf(c), frames, evidence.list())
}

// Decoded runs the base64 decode pass over opaque response bodies.
func Decoded(c *models.PageCapture) (*models.ExtractionCandidate, string) {
	if c == nil {
		return nil, ReasonNoInput
	}
	decoded := detect.DecodeOpaque(c.NetworkResponses)
	if len(decoded) == 0 {
		return nil, "nothing decodable"
	}
	return accept(models.TechniqueDecodedTraffic, sourceOf(c), decoded, nil)
}

// ReplayTargets lists endpoints worth re-issuing from inside the page:
// those answered 400, 401 or 403, and those answered 200 with no body.
// Order follows the capture; duplicates are dropped.
func ReplayTargets(responses []models.ResponseRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range responses {
		replay := false
		switch r.Status {
		case 400, 401, 403:
			replay = true
		case 200:
			replay = strings.TrimSpace(r.Body) == ""
		}
		if !replay || r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		out = append(out, r.URL)
	}
	return out
}

// PageFetcher re-issues requests with fetch() inside a loaded page so they
// carry the page's cookies and origin.
type PageFetcher interface {
	NativeFetch(ctx context.Context, pageURL string, endpoints []string) (map[string]any, error)
}

// NativeFetch replays the capture's blocked or empty endpoints inside the
// browser. A replayed body is kept when it is JSON without an "error"
// field.
func NativeFetch(ctx context.Context, f PageFetcher, c *models.PageCapture) (*models.ExtractionCandidate, string) {
	if c == nil {
		return nil, ReasonNoInput
	}
	targets := ReplayTargets(c.NetworkResponses)
	if len(targets) == 0 {
		return nil, ReasonNoTargets
	}
	got, err := f.NativeFetch(ctx, sourceOf(c), targets)
	if err != nil {
		slog.Warn("native fetch replay failed", "url", sourceOf(c), "error", err)
		return nil, "replay failed: " + err.Error()
	}
	kept := make(map[string]any, len(got))
	for u, v := range got {
		if hasErrorField(v) {
			slog.Debug("native fetch: body carries an error field", "url", u)
			continue
		}
		kept[u] = v
	}
	return accept(models.TechniqueNativeFetch, sourceOf(c), kept, nil)
}

func hasErrorField(v any) bool {
	obj, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, has := obj["error"]
	return has
}
