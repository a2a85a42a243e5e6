package normalize

// Stocks finds Next.js page props anywhere in payload and flattens the
// quotes they carry into {symbol: quote}. Two prop shapes are read:
// the explore listing (data.assetCategories[].assetCategoryData[].assets[]
// with tileInfo and display sub-objects) and plain arrays of objects that
// carry a symbol. Entries without a symbol are skipped. It returns nil when
// nothing matched.
func Stocks(payload any) map[string]any {
	out := map[string]any{}
	walk(payload, 0, func(v any) {
		m, ok := v.(map[string]any)
		if !ok {
			return
		}
		props := obj(obj(m, "props"), "pageProps")
		if props == nil {
			props = obj(m, "pageProps")
		}
		if props == nil {
			return
		}
		readAssetCategories(obj(props, "data"), out)
		readSymbolLists(props, out)
		readSymbolLists(obj(props, "data"), out)
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

func readAssetCategories(data map[string]any, out map[string]any) {
	for _, cat := range arr(data, "assetCategories") {
		for _, sub := range arr(cat, "assetCategoryData") {
			for _, raw := range arr(sub, "assets") {
				asset, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				if q := flattenAsset(asset); q != nil {
					out[q["symbol"].(string)] = q
				}
			}
		}
	}
}

// flattenAsset merges an asset's tileInfo and display blocks into one
// quote record.
func flattenAsset(asset map[string]any) map[string]any {
	tile := obj(asset, "tileInfo")
	symbol := str(tile, "symbol")
	if symbol == "" {
		return nil
	}
	display := obj(asset, "display")
	price := obj(display, "lastPriceAndPercentageChange")
	capInfo := obj(display, "marketCap")

	pct, _ := price["percentageChange"].(float64)
	return map[string]any{
		"name":                orDefault(tile, "name", ""),
		"symbol":              symbol,
		"assetId":             tile["assetId"],
		"securityType":        orDefault(tile, "securityType", ""),
		"isTradable":          orDefault(tile, "isTradable", false),
		"currentPrice":        price["currentPrice"],
		"currentPriceDisplay": orDefault(price, "currentPriceDisplay", ""),
		"percentageChange":    Round4(pct),
		"percentageDisplay":   orDefault(price, "percentageDisplay", ""),
		"direction":           orDefault(price, "arrowIcon", ""),
		"lastClosingPrice":    price["lastClosingPrice"],
		"dividendAmount":      orDefault(price, "dividendAmount", float64(0)),
		"marketCap":           orDefault(capInfo, "value", ""),
		"sparkLine":           orDefault(tile, "sparkLine", ""),
	}
}

// readSymbolLists copies every object with a symbol found in the arrays
// directly under m, rounding any percentage fields.
func readSymbolLists(m map[string]any, out map[string]any) {
	for _, k := range sortedKeys(m) {
		list, ok := m[k].([]any)
		if !ok {
			continue
		}
		for _, raw := range list {
			item, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			symbol := str(item, "symbol")
			if symbol == "" {
				continue
			}
			q := make(map[string]any, len(item))
			for field, v := range item {
				if f, ok := v.(float64); ok && isPercentField(field) {
					v = Round4(f)
				}
				q[field] = v
			}
			out[symbol] = q
		}
	}
}

func isPercentField(name string) bool {
	switch name {
	case "percentageChange", "changePercent", "percentChange", "pct":
		return true
	}
	return false
}
