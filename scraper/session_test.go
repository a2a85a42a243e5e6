package scraper

import (
	"path/filepath"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/strata/config"
)

func TestSessionFilePerOrigin(t *testing.T) {
	a, err := sessionFile("sessions", "https://galeri24.co.id/harga-emas?x=1")
	require.NoError(t, err)
	b, err := sessionFile("sessions", "https://galeri24.co.id/other")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, filepath.Join("sessions", "https_galeri24_co_id.json"), a)

	_, err = sessionFile("sessions", "not a url")
	assert.Error(t, err)
}

func TestSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "https_example_com.json")
	in := &sessionState{
		Cookies:      []*proto.NetworkCookie{{Name: "sid", Value: "abc", Domain: "example.com", Path: "/"}},
		LocalStorage: map[string]string{"theme": "dark"},
	}
	require.NoError(t, writeSession(path, in))

	out, err := readSession(path)
	require.NoError(t, err)
	require.Len(t, out.Cookies, 1)
	assert.Equal(t, "sid", out.Cookies[0].Name)
	assert.Equal(t, "abc", out.Cookies[0].Value)
	assert.Equal(t, in.LocalStorage, out.LocalStorage)
}

func TestLocalStorageScriptEscapes(t *testing.T) {
	js := localStorageScript(map[string]string{"k": `"quoted" </script>`})
	assert.Contains(t, js, `localStorage.setItem`)
	assert.Contains(t, js, `\"quoted\"`)
	assert.NotContains(t, js, "</script>")
}

func TestSessionForPrefersLiveState(t *testing.T) {
	dir := t.TempDir()
	s := &Scraper{
		browserCfg: config.BrowserConfig{SaveSession: true},
		storeCfg:   config.StoreConfig{SessionDir: dir},
	}
	target := "https://api.example.com/prices"

	saved := &sessionState{Cookies: []*proto.NetworkCookie{{Name: "sid", Value: "from-disk"}}}
	path, err := sessionFile(dir, target)
	require.NoError(t, err)
	require.NoError(t, writeSession(path, saved))

	got := s.sessionFor(target)
	require.NotNil(t, got)
	assert.Equal(t, "from-disk", got.Cookies[0].Value)

	s.remember(target, &sessionState{Cookies: []*proto.NetworkCookie{{Name: "sid", Value: "live"}}})
	got = s.sessionFor("https://api.example.com/other")
	require.NotNil(t, got)
	assert.Equal(t, "live", got.Cookies[0].Value)

	assert.Nil(t, s.sessionFor("https://elsewhere.example.com/"))
	assert.Nil(t, s.sessionFor("not a url"))
}

func TestSessionForWithoutPersistence(t *testing.T) {
	s := &Scraper{}
	target := "https://example.com/"
	assert.Nil(t, s.sessionFor(target))

	s.remember(target, &sessionState{LocalStorage: map[string]string{"token": "t"}})
	got := s.sessionFor(target)
	require.NotNil(t, got)
	assert.Equal(t, "t", got.LocalStorage["token"])
}
