package models

// ResultMetadata describes how a NormalizedResult was produced.
type ResultMetadata struct {
	SourceURL     string    `json:"source_url"`
	TechniqueUsed Technique `json:"technique_used"`
	Timestamp     int64     `json:"timestamp"`
	Domain        string    `json:"domain,omitempty"`

	// Extra carries dataset-specific fields (page counts, failed pages, ...).
	Extra map[string]any `json:"extra,omitempty"`
}

// NormalizedResult is the persisted artifact of one successful run.
type NormalizedResult struct {
	Metadata ResultMetadata `json:"metadata"`
	Data     any            `json:"data"`
}

// Well-known sub-keys a normalizer may add to a result's data.
const (
	KeyGoldPrices = "structured_gold_prices"
	KeyStocks     = "structured_stocks"
	KeyArticles   = "articles"
	KeyDramas     = "dramas"
	KeyCurrencies = "currencies"
)
