// Package normalize reshapes generic extraction payloads into
// domain-meaningful structures. Normalizers are pure functions that never
// fail; when nothing is recognised the caller keeps the raw payload.
package normalize

import (
	"math"
	"sort"

	"github.com/use-agent/strata/models"
)

// maxDepth bounds the recursive walks over untrusted payloads.
const maxDepth = 32

// Apply returns the data to persist for a candidate. Recognised structures
// are added under their well-known keys; an object payload is copied and
// extended, any other payload is kept under "payload" next to them.
// Without a recognised structure the payload is returned unchanged.
func Apply(c *models.ExtractionCandidate) any {
	if c == nil {
		return nil
	}
	extra := map[string]any{}
	if gold := GoldPrices(c.Payload); len(gold) > 0 {
		extra[models.KeyGoldPrices] = gold
	}
	if stocks := Stocks(c.Payload); len(stocks) > 0 {
		extra[models.KeyStocks] = stocks
	}
	if currencies := Currencies(c.Payload); len(currencies) > 0 {
		extra[models.KeyCurrencies] = currencies
	}
	if len(extra) == 0 {
		return c.Payload
	}

	out := map[string]any{}
	if obj, ok := c.Payload.(map[string]any); ok {
		for k, v := range obj {
			out[k] = v
		}
	} else {
		out["payload"] = c.Payload
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// walk visits every object and array under v, depth first.
func walk(v any, depth int, visit func(v any)) {
	if depth > maxDepth {
		return
	}
	visit(v)
	switch t := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(t) {
			walk(t[k], depth+1, visit)
		}
	case []any:
		for _, e := range t {
			walk(e, depth+1, visit)
		}
	}
}

// Round4 rounds to four decimal places.
func Round4(f float64) float64 {
	return math.Round(f*1e4) / 1e4
}

func obj(v any, key string) map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		return nil
	}
	out, _ := m[key].(map[string]any)
	return out
}

func arr(v any, key string) []any {
	m, _ := v.(map[string]any)
	if m == nil {
		return nil
	}
	out, _ := m[key].([]any)
	return out
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// orDefault returns m[key] when present and non-null.
func orDefault(m map[string]any, key string, def any) any {
	if v, ok := m[key]; ok && v != nil {
		return v
	}
	return def
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
