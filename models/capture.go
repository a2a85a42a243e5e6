package models

import "strings"

// ResponseRecord is one network response observed while loading a page.
type ResponseRecord struct {
	URL         string `json:"url"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`

	// ResourceType is the browser resource class (xhr, fetch, document).
	// Empty for plain fetches.
	ResourceType string `json:"type,omitempty"`
}

// IsJSONContentType reports whether the response declares a JSON body.
func (r ResponseRecord) IsJSONContentType() bool {
	return strings.Contains(strings.ToLower(r.ContentType), "json")
}

// FrameDirection marks whether a WebSocket frame was sent or received.
type FrameDirection string

const (
	FrameSent     FrameDirection = "sent"
	FrameReceived FrameDirection = "received"
)

// WebSocketFrame is one captured WebSocket message.
type WebSocketFrame struct {
	URL       string         `json:"url"`
	Direction FrameDirection `json:"direction"`
	Payload   string         `json:"data"`
}

// PageCapture is everything a fetch adapter observed for one target.
// It is built fresh per attempt and treated as read-only once returned.
type PageCapture struct {
	URL      string `json:"url"`
	FinalURL string `json:"final_url"`
	Title    string `json:"title,omitempty"`

	// StatusCode is the status of the main document, 0 when unknown.
	StatusCode int    `json:"status_code"`
	FinalHTML  string `json:"final_html"`

	// NetworkResponses are kept in arrival order and never deduplicated.
	NetworkResponses []ResponseRecord `json:"network_responses"`
	WebSocketFrames  []WebSocketFrame `json:"websocket_frames"`

	// StateScripts holds the framework state harvested from the live page
	// (__NEXT_DATA__, window.__NUXT__, __NUXT_DATA__), keyed by name.
	StateScripts map[string]string `json:"state_scripts,omitempty"`

	// HARFilePath is a write-only diagnostic sidecar.
	HARFilePath string `json:"har_file_path,omitempty"`

	// Engine names the adapter that produced the capture ("http" or "browser").
	Engine string `json:"engine"`

	// Partial is set when loading was cut short and the capture holds only
	// what arrived before the failure.
	Partial bool `json:"partial,omitempty"`
}

// Empty reports whether the capture carries nothing a strategy can inspect.
func (c *PageCapture) Empty() bool {
	return c == nil || (c.FinalHTML == "" && len(c.NetworkResponses) == 0 && len(c.WebSocketFrames) == 0)
}
