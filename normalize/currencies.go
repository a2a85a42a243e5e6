package normalize

import (
	"strconv"
	"strings"
)

// numericCurrencyCols are coerced to numbers when they parse.
var numericCurrencyCols = map[string]bool{
	"Harga": true, "Hari": true, "%": true, "Mingguan": true, "Bulanan": true,
	"YTD": true, "YoY": true, "Last": true, "Day": true, "Weekly": true, "Monthly": true,
}

// Currencies reads rendered quote tables, each an object
// {group, headers, rows}, and returns {group: {name: entry}}. The first
// header names the pair; numeric columns are coerced with SafeFloat and a
// direction (UP, DOWN, FLAT) is derived from the daily change. It returns
// nil when payload holds no such tables.
func Currencies(payload any) map[string]any {
	tables, ok := payload.([]any)
	if !ok {
		return nil
	}
	out := map[string]any{}
	for _, raw := range tables {
		t, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		group := str(t, "group")
		headers := arr(t, "headers")
		rows := arr(t, "rows")
		if group == "" || len(headers) == 0 || rows == nil {
			continue
		}
		nameKey, _ := headers[0].(string)
		if nameKey == "" {
			nameKey = "Nama"
		}

		entries := map[string]any{}
		for _, r := range rows {
			row, ok := r.(map[string]any)
			if !ok {
				continue
			}
			name := strings.TrimSpace(str(row, nameKey))
			if name == "" {
				continue
			}
			entry := map[string]any{}
			for col, v := range row {
				if col == nameKey {
					continue
				}
				s, isStr := v.(string)
				if isStr && numericCurrencyCols[col] {
					entry[col] = SafeFloat(s)
				} else {
					entry[col] = v
				}
			}
			change := entry["%"]
			if change == nil {
				change = entry["Day"]
			}
			if f, ok := change.(float64); ok {
				entry["direction"] = direction(f)
			}
			entries[name] = entry
		}
		if len(entries) > 0 {
			out[group] = entries
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SafeFloat parses a display number such as "+1,25%" into 1.25. Blank
// cells and dashes give nil; unparseable text is returned trimmed.
func SafeFloat(val string) any {
	trimmed := strings.TrimSpace(val)
	if trimmed == "" || trimmed == "-" || trimmed == "N/A" {
		return nil
	}
	cleaned := strings.NewReplacer(",", ".", "%", "", "+", "", " ", "").Replace(trimmed)
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return trimmed
	}
	return f
}

func direction(f float64) string {
	switch {
	case f > 0:
		return "UP"
	case f < 0:
		return "DOWN"
	}
	return "FLAT"
}
