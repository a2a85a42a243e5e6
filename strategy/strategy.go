// Package strategy holds the extraction strategies the pipeline tries in
// priority order. Every strategy returns either an accepted candidate or a
// short reason for the logs; none of them returns an error.
package strategy

import (
	"sort"
	"strings"

	"github.com/use-agent/strata/models"
)

// Reasons reported when a strategy yields nothing.
const (
	ReasonNoInput       = "no input"
	ReasonNoJSON        = "no parseable json"
	ReasonNoKeyword     = "no keyword match"
	ReasonEmpty         = "empty payload"
	ReasonDisabled      = "disabled"
	ReasonNoTargets     = "no replay targets"
	ReasonNoCards       = "no card-like elements"
	ReasonTooLittleText = "too little text"
)

// Keywords is the relevance gate. Entries are lowercased and matched as
// case-insensitive substrings.
type Keywords []string

// NewKeywords normalises a configured keyword list, dropping blanks and
// duplicates.
func NewKeywords(list []string) Keywords {
	seen := make(map[string]bool, len(list))
	out := make(Keywords, 0, len(list))
	for _, k := range list {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// Match returns every keyword found in any of texts, sorted.
func (k Keywords) Match(texts ...string) []string {
	if len(k) == 0 {
		return nil
	}
	lowered := make([]string, len(texts))
	for i, t := range texts {
		lowered[i] = strings.ToLower(t)
	}
	var found []string
	for _, kw := range k {
		for _, t := range lowered {
			if strings.Contains(t, kw) {
				found = append(found, kw)
				break
			}
		}
	}
	sort.Strings(found)
	return found
}

// evidenceSet accumulates matched keywords across several items.
type evidenceSet map[string]struct{}

func (e evidenceSet) add(kws []string) {
	for _, k := range kws {
		e[k] = struct{}{}
	}
}

func (e evidenceSet) list() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// sourceOf picks the URL a capture-derived candidate is attributed to.
func sourceOf(c *models.PageCapture) string {
	if c.FinalURL != "" {
		return c.FinalURL
	}
	return c.URL
}

// accept wraps NewCandidate so callers get a reason when the invariant
// rejects the payload.
func accept(t models.Technique, source string, payload any, evidence []string) (*models.ExtractionCandidate, string) {
	if c := models.NewCandidate(t, source, payload, evidence); c != nil {
		return c, ""
	}
	if t.KeywordGated() && len(evidence) == 0 {
		return nil, ReasonNoKeyword
	}
	return nil, ReasonEmpty
}

// firstMatchReason reports the more useful of two failure reasons.
func firstMatchReason(sawJSON bool) string {
	if sawJSON {
		return ReasonNoKeyword
	}
	return ReasonNoJSON
}
