// Package detect holds side-effect-free signal detectors over captured
// pages and responses.
package detect

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"
	"unicode"

	"github.com/use-agent/strata/models"
)

// IsStructuredJSON reports whether text parses as strict JSON.
func IsStructuredJSON(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	return json.Valid([]byte(text))
}

// ParseJSON strictly parses text into a generic JSON value.
func ParseJSON(text string) (any, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, false
	}
	return v, true
}

var (
	base64Body = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)
	hexBody    = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

// minOpaqueLen is the shortest body considered an encoded payload.
const minOpaqueLen = 10

// wrappedBlobLen is the length above which a lone string value is treated
// as a wrapped ciphertext.
const wrappedBlobLen = 30

// LooksEncrypted reports whether any response that claims JSON carries an
// opaque payload: a body of pure base64 or hex characters that fails to
// parse, or a single-key object whose value is a long string without
// whitespace.
func LooksEncrypted(responses []models.ResponseRecord) bool {
	for _, r := range responses {
		if r.IsJSONContentType() && ResponseLooksEncrypted(r.Body) {
			return true
		}
	}
	return false
}

// ResponseLooksEncrypted applies the encryption heuristics to one body.
func ResponseLooksEncrypted(body string) bool {
	trimmed := strings.TrimSpace(body)
	v, ok := ParseJSON(trimmed)
	if !ok {
		if len(trimmed) <= minOpaqueLen {
			return false
		}
		return base64Body.MatchString(trimmed) || hexBody.MatchString(trimmed)
	}

	obj, isObj := v.(map[string]any)
	if !isObj || len(obj) != 1 {
		return false
	}
	for _, val := range obj {
		s, isStr := val.(string)
		if isStr && len(s) > wrappedBlobLen && !strings.ContainsFunc(s, unicode.IsSpace) {
			return true
		}
	}
	return false
}

// captchaMarkers lists vendor markers in priority order.
var captchaMarkers = []string{
	"g-recaptcha",
	"hcaptcha",
	"cf-turnstile",
	"arkose",
	"funcaptcha",
}

// DetectCaptcha returns the first CAPTCHA vendor marker found in html
// (case-insensitive), or "" when none is present.
func DetectCaptcha(html string) string {
	if html == "" {
		return ""
	}
	lower := strings.ToLower(html)
	for _, marker := range captchaMarkers {
		if strings.Contains(lower, marker) {
			return marker
		}
	}
	return ""
}

// DecodeOpaque runs a best-effort base64 pass over non-JSON bodies and
// returns the bodies that decode to JSON, keyed by response URL.
// Bodies that do not decode are dropped silently.
func DecodeOpaque(responses []models.ResponseRecord) map[string]any {
	out := make(map[string]any)
	for _, r := range responses {
		body := strings.TrimSpace(r.Body)
		if len(body) <= minOpaqueLen || strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[") {
			continue
		}
		if v, ok := decodeBase64JSON(body); ok {
			out[r.URL] = v
		}
	}
	return out
}

func decodeBase64JSON(body string) (any, bool) {
	if pad := len(body) % 4; pad != 0 {
		body += strings.Repeat("=", 4-pad)
	}
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(body)
		if err != nil {
			return nil, false
		}
	}
	return ParseJSON(string(raw))
}
