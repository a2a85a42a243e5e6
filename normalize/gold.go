package normalize

import (
	"strings"
	"unicode"
)

// GoldProviders are the column names recognised in gold price tables.
var GoldProviders = []string{"Antam", "UBS", "Pegadaian", "Global", "Spot"}

// unitHints mark the denomination column.
var unitHints = []string{"satuan", "gram", "berat"}

// headerScanRows is how many leading rows may hold the table header.
const headerScanRows = 3

// reactiveScan is how far into an array the vendorName probe looks.
const reactiveScan = 50

// GoldPrices finds gold price data anywhere in payload and returns
// {provider: {"<denomination> Gram": price}}. Two encodings are read:
// table rows with a denomination column and provider columns, and the
// compact reactive arrays of Nuxt state, where vendorName, denomination
// and sellingPrice hold indices into the array itself. Both write into the
// same map and the last write wins. It returns nil when nothing matched.
func GoldPrices(payload any) map[string]any {
	out := map[string]map[string]any{}
	walk(payload, 0, func(v any) {
		rows, ok := v.([]any)
		if !ok {
			return
		}
		if isReactiveArray(rows) {
			readReactive(rows, out)
			return
		}
		readTableRows(rows, out)
	})

	result := map[string]any{}
	for provider, prices := range out {
		if len(prices) > 0 {
			result[provider] = prices
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func readTableRows(rows []any, out map[string]map[string]any) {
	providerCols := map[string]int{}
	unitCol := -1

	for r, raw := range rows {
		switch row := raw.(type) {
		case []any:
			if r < headerScanRows && unitCol == -1 {
				for c, cell := range row {
					s, ok := cell.(string)
					if !ok {
						continue
					}
					lower := strings.ToLower(s)
					if containsAny(lower, unitHints) {
						unitCol = c
					}
					for _, p := range GoldProviders {
						if strings.Contains(lower, strings.ToLower(p)) {
							providerCols[p] = c
						}
					}
				}
			}
			if len(providerCols) == 0 || unitCol == -1 || r < 1 || unitCol >= len(row) {
				continue
			}
			unit, _ := row[unitCol].(string)
			unit = strings.TrimSpace(unit)
			if !isDenomination(unit) {
				continue
			}
			for p, c := range providerCols {
				if c >= len(row) || c == unitCol {
					continue
				}
				price, _ := row[c].(string)
				price = strings.TrimSpace(price)
				if hasDigit(price) {
					put(out, p, unit, price)
				}
			}
		case map[string]any:
			readObjectRow(row, out)
		}
	}
}

// readObjectRow handles rows already keyed by header text.
func readObjectRow(row map[string]any, out map[string]map[string]any) {
	keys := sortedKeys(row)
	unitKey := ""
	for _, k := range keys {
		if containsAny(strings.ToLower(k), unitHints) {
			unitKey = k
			break
		}
	}
	if unitKey == "" {
		return
	}
	unit, _ := row[unitKey].(string)
	unit = strings.TrimSpace(unit)
	if !isDenomination(unit) {
		return
	}
	for _, p := range GoldProviders {
		for _, k := range keys {
			if k == unitKey || !strings.Contains(strings.ToLower(k), strings.ToLower(p)) {
				continue
			}
			price, _ := row[k].(string)
			price = strings.TrimSpace(price)
			if hasDigit(price) {
				put(out, p, unit, price)
			}
			break
		}
	}
}

func isReactiveArray(a []any) bool {
	if len(a) == 0 {
		return false
	}
	if s, ok := a[0].(string); ok && s == "Reactive" {
		return true
	}
	for i := 0; i < len(a) && i < reactiveScan; i++ {
		if m, ok := a[i].(map[string]any); ok {
			if _, has := m["vendorName"]; has {
				return true
			}
		}
	}
	return false
}

func readReactive(a []any, out map[string]map[string]any) {
	for _, item := range a {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		vendor, ok1 := deref(a, m["vendorName"])
		denom, ok2 := deref(a, m["denomination"])
		price, ok3 := deref(a, m["sellingPrice"])
		if ok1 && ok2 && ok3 {
			put(out, vendor, denom, price)
		}
	}
}

// deref resolves an index field to the string stored at that position.
func deref(a []any, idx any) (string, bool) {
	f, ok := idx.(float64)
	if !ok || f != float64(int(f)) {
		return "", false
	}
	i := int(f)
	if i < 0 || i >= len(a) {
		return "", false
	}
	s, ok := a[i].(string)
	return s, ok
}

func put(out map[string]map[string]any, provider, denomination, price string) {
	if out[provider] == nil {
		out[provider] = map[string]any{}
	}
	out[provider][denomination+" Gram"] = price
}

// isDenomination accepts "1", "0.5", "1,000" and similar.
func isDenomination(s string) bool {
	digits := strings.NewReplacer(".", "", ",", "").Replace(s)
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
