package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultKeywords, cfg.Scraper.Keywords)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 60*time.Second, cfg.Scraper.TechniqueTimeout)
	assert.Equal(t, 10, cfg.Proxy.RotateEvery)
	assert.Equal(t, 15000, cfg.LLM.MaxChars)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, []string{"nav", "footer", "aside"}, cfg.LLM.ExcludeSelectors)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "hasil_scrape", cfg.Store.ResultDir)
	assert.Equal(t, filepath.Join("hasil_scrape", "pdf_output"), cfg.Convert.OutputDir)
	assert.False(t, cfg.Unlocker.Enabled)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STRATA_SCRAPER_KEYWORDS", "price, gold ,")
	t.Setenv("STRATA_BROWSER_HEADLESS", "false")
	t.Setenv("STRATA_LLM_API_KEY", "sk-test")
	t.Setenv("STRATA_CACHE_TTL", "30s")
	t.Setenv("STRATA_SERVER_PORT", "9090")

	cfg := Default()

	assert.Equal(t, []string{"price", "gold"}, cfg.Scraper.Keywords)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strata.yaml")
	yaml := `
scraper:
  keywords: [saham, stock]
  workers: 8
proxy:
  enabled: true
  rotate_every: 3
store:
  result_dir: out
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"saham", "stock"}, cfg.Scraper.Keywords)
	assert.Equal(t, 8, cfg.Scraper.Workers)
	assert.True(t, cfg.Proxy.Enabled)
	assert.Equal(t, 3, cfg.Proxy.RotateEvery)
	assert.Equal(t, filepath.Join("out", "pdf_output"), cfg.Convert.OutputDir)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Store.ResultDir = filepath.Join(root, "res")
	cfg.Store.SessionDir = filepath.Join(root, "sess")
	cfg.Store.HARDir = filepath.Join(root, "har")
	cfg.Log.Dir = filepath.Join(root, "logs")

	require.NoError(t, cfg.EnsureDirs())
	for _, d := range []string{"res", "sess", "har", "logs"} {
		info, err := os.Stat(filepath.Join(root, d))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
