// Package store persists NormalizedResult envelopes as JSON files and finds
// the newest file of a dataset.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/use-agent/strata/models"
)

// Store writes and reads result files under one directory.
type Store struct {
	dir string
	now func() time.Time
}

// New returns a Store rooted at dir. The directory is created on first save.
func New(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the result directory.
func (s *Store) Dir() string { return s.dir }

// Save writes result to "<label>_<method>_<unix>.json" and returns the path.
// The method part is omitted when empty. The file is written to a temp name
// and renamed so readers never observe a partial envelope.
func (s *Store) Save(label, method string, result *models.NormalizedResult) (string, error) {
	if result == nil {
		return "", models.NewScrapeError(models.ErrCodeInvalidInput, "nil result", nil)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", models.NewScrapeError(models.ErrCodePersist, "create result dir", err)
	}

	parts := []string{sanitize(label)}
	if method != "" {
		parts = append(parts, sanitize(method))
	}
	parts = append(parts, fmt.Sprintf("%d", s.now().Unix()))
	path := filepath.Join(s.dir, strings.Join(parts, "_")+".json")

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return "", models.NewScrapeError(models.ErrCodePersist, "encode result", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".strata-*.tmp")
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodePersist, "create temp file", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", models.NewScrapeError(models.ErrCodePersist, "write result", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", models.NewScrapeError(models.ErrCodePersist, "close result", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", models.NewScrapeError(models.ErrCodePersist, "rename result", err)
	}

	slog.Info("result saved", "path", path, "technique", result.Metadata.TechniqueUsed)
	return path, nil
}

// Latest returns the most recently modified file in the store matching the
// glob pattern, e.g. "pluang_all_stocks_*.json".
func (s *Store) Latest(pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, pattern))
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeInvalidInput, "bad pattern "+pattern, err)
	}
	var (
		newest  string
		newestT time.Time
	)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		// Ties go to the lexically larger name, which carries the later timestamp.
		if newest == "" || info.ModTime().After(newestT) || (info.ModTime().Equal(newestT) && m > newest) {
			newest, newestT = m, info.ModTime()
		}
	}
	if newest == "" {
		return "", models.NewScrapeError(models.ErrCodeNotFound, "no file matches "+pattern, nil)
	}
	return newest, nil
}

// Load reads one result file.
func (s *Store) Load(path string) (*models.NormalizedResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.NewScrapeError(models.ErrCodeNotFound, "missing "+path, err)
		}
		return nil, models.NewScrapeError(models.ErrCodePersist, "read "+path, err)
	}
	var result models.NormalizedResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, models.NewScrapeError(models.ErrCodePersist, "decode "+path, err)
	}
	return &result, nil
}

// LoadLatest combines Latest and Load.
func (s *Store) LoadLatest(pattern string) (string, *models.NormalizedResult, error) {
	path, err := s.Latest(pattern)
	if err != nil {
		return "", nil, err
	}
	result, err := s.Load(path)
	if err != nil {
		return "", nil, err
	}
	return path, result, nil
}

// ExportTarget maps a dataset pattern to a fixed output file name.
type ExportTarget struct {
	Pattern string
	Name    string
}

// DefaultExports are the datasets the static API mirror expects.
var DefaultExports = []ExportTarget{
	{Pattern: PatternStocks, Name: "stocks.json"},
	{Pattern: PatternGoldGaleri24, Name: "gold_g24.json"},
	{Pattern: PatternGoldHargaEmas, Name: "gold_he.json"},
	{Pattern: PatternCurrencies, Name: "currencies.json"},
}

// Dataset file patterns.
const (
	PatternStocks        = "pluang_all_stocks_*.json"
	PatternGoldGaleri24  = "galeri24_co_id_*.json"
	PatternGoldHargaEmas = "harga_emas_org_*.json"
	PatternCrypto        = "coinmarketcap_com_*.json"
	PatternCurrencies    = "tradingeconomics_currencies_*.json"
	PatternNews          = "kompas_news_*.json"
	PatternDramas        = "drakorkita_full_*.json"
)

// Export copies the latest file of each target into outDir under its fixed
// name. A target without data is written as "{}" so consumers always find
// the file. It returns the written paths in target order.
func (s *Store) Export(outDir string, targets []ExportTarget) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, models.NewScrapeError(models.ErrCodePersist, "create export dir", err)
	}
	written := make([]string, 0, len(targets))
	for _, t := range targets {
		data := []byte("{}")
		if path, err := s.Latest(t.Pattern); err == nil {
			if b, err := os.ReadFile(path); err == nil {
				data = b
			} else {
				slog.Warn("export read failed", "path", path, "error", err)
			}
		}
		dst := filepath.Join(outDir, t.Name)
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return written, models.NewScrapeError(models.ErrCodePersist, "write "+dst, err)
		}
		written = append(written, dst)
	}
	return written, nil
}

// Label turns a source URL into a file-name label: the host (with port)
// with dots replaced by underscores, or "unknown".
func Label(sourceURL string) string {
	u, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(u.Host), ".", "_")
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, s)
}
