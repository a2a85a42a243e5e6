package models

import (
	"encoding/json"
	"sort"
)

// Technique identifies the strategy that produced a candidate.
type Technique string

const (
	TechniqueDirectEndpoint   Technique = "direct-endpoint"
	TechniqueSSRInline        Technique = "ssr-inline"
	TechniqueNetworkHarvest   Technique = "network-harvest"
	TechniqueInlineJSON       Technique = "inline-json"
	TechniqueWebSocket        Technique = "websocket"
	TechniqueStaticTable      Technique = "static-table"
	TechniqueDOMHeuristic     Technique = "dom-heuristic"
	TechniqueNativeFetch      Technique = "native-fetch"
	TechniqueLLMStructured    Technique = "llm-structured"
	TechniqueDecodedTraffic   Technique = "decoded-traffic"
	TechniqueJSEndpoint       Technique = "js-endpoint"
	TechniqueExternalUnlocker Technique = "external-unlocker"
)

// KeywordGated reports whether candidates of this technique must carry
// relevance evidence before they are accepted.
func (t Technique) KeywordGated() bool {
	switch t {
	case TechniqueNetworkHarvest, TechniqueInlineJSON, TechniqueWebSocket,
		TechniqueStaticTable, TechniqueJSEndpoint:
		return true
	}
	return false
}

// ExtractionCandidate is a technique-specific result awaiting normalization.
// Payload stays an opaque JSON value until a normalizer claims it.
type ExtractionCandidate struct {
	Technique Technique `json:"technique"`
	SourceURL string    `json:"source_url"`
	Payload   any       `json:"payload"`

	// Evidence lists the target keywords that matched, sorted.
	Evidence []string `json:"evidence,omitempty"`
}

// NewCandidate builds a candidate and enforces the acceptance invariant:
// the payload must be non-empty, and gated techniques need evidence.
// It returns nil when the invariant does not hold.
func NewCandidate(t Technique, sourceURL string, payload any, evidence []string) *ExtractionCandidate {
	if IsEmptyPayload(payload) {
		return nil
	}
	if t.KeywordGated() && len(evidence) == 0 {
		return nil
	}
	ev := append([]string(nil), evidence...)
	sort.Strings(ev)
	return &ExtractionCandidate{Technique: t, SourceURL: sourceURL, Payload: payload, Evidence: ev}
}

// IsEmptyPayload reports whether v carries no data: nil, an empty
// string, or an empty array/object.
func IsEmptyPayload(v any) bool {
	switch p := v.(type) {
	case nil:
		return true
	case string:
		return p == ""
	case []any:
		return len(p) == 0
	case map[string]any:
		return len(p) == 0
	case json.RawMessage:
		return len(p) == 0 || string(p) == "null" || string(p) == "[]" || string(p) == "{}"
	}
	return false
}
