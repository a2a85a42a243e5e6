package models

// Episode is one entry of a title's episode list.
type Episode struct {
	Label         string `json:"label"`
	URL           string `json:"url,omitempty"`
	MovieID       string `json:"movie_id,omitempty"`
	Tag           string `json:"tag,omitempty"`
	VideoEmbedURL string `json:"video_embed,omitempty"`
}

// DownloadLink is a labelled download target found on a detail page.
type DownloadLink struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// DetailRecord is what a site plug-in returns for one detail page.
type DetailRecord struct {
	Title         string         `json:"title"`
	SourceURL     string         `json:"url"`
	Episodes      []Episode      `json:"episodes"`
	DownloadLinks []DownloadLink `json:"download_links"`
	VideoEmbedURL string         `json:"video_embed,omitempty"`

	// Fields carries site-specific attributes (synopsis, genres, cast, ...).
	Fields map[string]any `json:"fields,omitempty"`
}

// ListingItem is one entry of a paginated catalog.
type ListingItem struct {
	Title     string `json:"title"`
	DetailURL string `json:"detail_url"`
	Poster    string `json:"poster,omitempty"`
	Rating    string `json:"rating,omitempty"`
}
