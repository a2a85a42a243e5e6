package scraper

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/use-agent/strata/models"
)

// harLog is the subset of HAR 1.2 written as a diagnostic sidecar.
type harLog struct {
	Log harBody `json:"log"`
}

type harBody struct {
	Version string     `json:"version"`
	Creator harCreator `json:"creator"`
	Pages   []harPage  `json:"pages"`
	Entries []harEntry `json:"entries"`
}

type harCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type harPage struct {
	StartedDateTime string `json:"startedDateTime"`
	ID              string `json:"id"`
	Title           string `json:"title"`
}

type harEntry struct {
	Pageref         string      `json:"pageref"`
	StartedDateTime string      `json:"startedDateTime"`
	Request         harRequest  `json:"request"`
	Response        harResponse `json:"response"`
	ResourceType    string      `json:"_resourceType,omitempty"`
}

type harRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

type harResponse struct {
	Status  int        `json:"status"`
	Content harContent `json:"content"`
}

type harContent struct {
	Size     int    `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

func buildHAR(c *models.PageCapture, started time.Time) *harLog {
	ts := started.UTC().Format(time.RFC3339Nano)
	title := c.Title
	if title == "" {
		title = c.URL
	}
	h := &harLog{Log: harBody{
		Version: "1.2",
		Creator: harCreator{Name: "strata", Version: "1"},
		Pages:   []harPage{{StartedDateTime: ts, ID: "page_1", Title: title}},
		Entries: make([]harEntry, 0, len(c.NetworkResponses)),
	}}
	for _, r := range c.NetworkResponses {
		h.Log.Entries = append(h.Log.Entries, harEntry{
			Pageref:         "page_1",
			StartedDateTime: ts,
			Request:         harRequest{Method: "GET", URL: r.URL},
			Response: harResponse{
				Status:  r.Status,
				Content: harContent{Size: len(r.Body), MimeType: r.ContentType, Text: r.Body},
			},
			ResourceType: r.ResourceType,
		})
	}
	return h
}

// harPath names the sidecar after the target host and capture time.
func harPath(dir, target string, started time.Time) string {
	host := "page"
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		host = strings.ReplaceAll(u.Hostname(), ".", "_")
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d.har", host, started.UnixNano()))
}

// writeHAR stores the capture's traffic and returns the file path.
func writeHAR(dir string, c *models.PageCapture, started time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := harPath(dir, c.URL, started)
	raw, err := json.Marshal(buildHAR(c, started))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
