package builtin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/strata/config"
	"github.com/use-agent/strata/engine"
	"github.com/use-agent/strata/sites"
)

func TestRegistry(t *testing.T) {
	reg, err := Registry(Deps{Config: config.Default(), Fetcher: engine.NewHTTPEngine()})
	require.NoError(t, err)

	var names []string
	for _, s := range reg.All() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"drakorkita", "kompas", "pluang", "tradingeconomics"}, names)

	dk, err := reg.Lookup("DrakorKita")
	require.NoError(t, err)
	assert.Equal(t, []string{"detail", "listing", "crawl"}, sites.Capabilities(dk))

	te, err := reg.Lookup("tradingeconomics")
	require.NoError(t, err)
	assert.Equal(t, []string{"detail", "crawl"}, sites.Capabilities(te))
}

func TestHTMLClient(t *testing.T) {
	cfg := config.Default()
	cfg.Scraper.RequestTimeout = 5 * time.Second
	cfg.Scraper.Retries = 2
	cfg.Browser.UserAgent = "strata-test"

	h := HTMLClient(cfg)
	assert.Equal(t, 5*time.Second, h.Timeout)
	assert.Equal(t, 2, h.Attempts)
	assert.Equal(t, "strata-test", h.UserAgent)

	assert.Equal(t, sites.NewHTMLClient().Timeout, HTMLClient(nil).Timeout)
}
