package models

// Response statuses used by every JSON answer of the HTTP API.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// DatasetSummary describes one dataset in GET /api/status.
type DatasetSummary struct {
	Available bool            `json:"available"`
	Total     int             `json:"total,omitempty"`
	Source    string          `json:"source,omitempty"`
	Sources   map[string]bool `json:"sources,omitempty"`
}

// StatusResponse is the response for GET /api/status.
type StatusResponse struct {
	Status      string                    `json:"status"`
	Timestamp   string                    `json:"timestamp"`
	Uptime      string                    `json:"uptime"`
	Version     string                    `json:"version"`
	DataSummary map[string]DatasetSummary `json:"data_summary"`

	// Browser carries page pool statistics when a browser is running.
	Browser any `json:"browser,omitempty"`
}

// StocksResponse is the response for GET /api/stocks.
type StocksResponse struct {
	Status string         `json:"status"`
	Count  int            `json:"count"`
	Source ResultMetadata `json:"source"`
	Stocks []StockEntry   `json:"stocks"`
}

// StockEntry is one quote in list form so sort order survives encoding.
type StockEntry struct {
	Symbol string         `json:"symbol"`
	Quote  map[string]any `json:"quote"`
}

// DataResponse wraps an arbitrary payload.
type DataResponse struct {
	Status   string          `json:"status"`
	Count    int             `json:"count,omitempty"`
	Metadata *ResultMetadata `json:"metadata,omitempty"`
	Data     any             `json:"data"`
}

// CryptoResponse is the response for GET /api/crypto.
type CryptoResponse struct {
	Status         string         `json:"status"`
	Metadata       ResultMetadata `json:"metadata"`
	EndpointsFound []string       `json:"api_endpoints_captured"`
	TotalEndpoints int            `json:"total_endpoints"`
	Data           map[string]any `json:"data"`
}

// NewsResponse is the response for GET /api/news.
type NewsResponse struct {
	Status   string           `json:"status"`
	Count    int              `json:"count"`
	Metadata ResultMetadata   `json:"metadata"`
	Articles []map[string]any `json:"articles"`
}

// RefreshAccepted is the 202 body of POST /api/refresh/stocks.
type RefreshAccepted struct {
	Status   string `json:"status"`
	JobID    string `json:"job_id"`
	Message  string `json:"message"`
	CheckURL string `json:"check_url"`
}

// RefreshResult is the outcome of the last refresh job.
type RefreshResult struct {
	Success    bool   `json:"success"`
	OutputFile string `json:"output_file,omitempty"`
	Items      int    `json:"items"`
	Failed     []int  `json:"failed_pages,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// RefreshStatus is the response for GET /api/refresh/status.
type RefreshStatus struct {
	Status     string         `json:"status"`
	IsRunning  bool           `json:"is_running"`
	JobID      string         `json:"job_id,omitempty"`
	LastRun    string         `json:"last_run,omitempty"`
	LastResult *RefreshResult `json:"last_result"`
}

// GoldPricesResponse is the response for GET /api/gold/:source.
type GoldPricesResponse struct {
	Status string         `json:"status"`
	Source string         `json:"source"`
	Count  int            `json:"count"`
	Prices map[string]any `json:"prices"`
}

// CurrenciesResponse is the response for GET /api/currencies.
type CurrenciesResponse struct {
	Status     string         `json:"status"`
	Count      int            `json:"count"`
	Groups     []string       `json:"groups"`
	Metadata   ResultMetadata `json:"metadata"`
	Currencies map[string]any `json:"currencies"`
}

// IndexResponse is the response for GET /.
type IndexResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Docs      string   `json:"docs"`
	Endpoints []string `json:"endpoints"`
}
