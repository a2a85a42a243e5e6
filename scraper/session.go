package scraper

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// sessionState is the per-origin browser state persisted between runs.
type sessionState struct {
	Cookies      []*proto.NetworkCookie `json:"cookies"`
	LocalStorage map[string]string      `json:"local_storage,omitempty"`
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9]+`)

// sessionKey names target's origin. It is also the stem of the state file.
func sessionKey(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("session: no origin in %q", target)
	}
	return strings.Trim(unsafeName.ReplaceAllString(u.Scheme+"_"+u.Host, "_"), "_"), nil
}

// sessionFile returns the state file for the origin of target.
func sessionFile(dir, target string) (string, error) {
	key, err := sessionKey(target)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, key+".json"), nil
}

func readSession(path string) (*sessionState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st sessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", path, err)
	}
	return &st, nil
}

func writeSession(path string, st *sessionState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// localStorageScript seeds localStorage before any page script runs.
func localStorageScript(items map[string]string) string {
	raw, _ := json.Marshal(items)
	return `(() => { try { const s = ` + string(raw) +
		`; for (const k of Object.keys(s)) localStorage.setItem(k, s[k]); } catch (e) {} })()`
}

// persistSessions reports whether session state is written to disk.
func (s *Scraper) persistSessions() bool {
	return s.browserCfg.SaveSession && s.storeCfg.SessionDir != ""
}

// remember keeps st as the live state of target's origin. Pages opened
// later for that origin, including replay pages in fresh proxy contexts,
// start from it.
func (s *Scraper) remember(target string, st *sessionState) {
	key, err := sessionKey(target)
	if err != nil || st == nil {
		return
	}
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	if s.sessions == nil {
		s.sessions = make(map[string]*sessionState)
	}
	s.sessions[key] = st
}

// sessionFor returns the live state of target's origin, or the saved file
// when there is none and persistence is on.
func (s *Scraper) sessionFor(target string) *sessionState {
	key, err := sessionKey(target)
	if err != nil {
		return nil
	}
	s.sessionsMu.Lock()
	st := s.sessions[key]
	s.sessionsMu.Unlock()
	if st != nil || !s.persistSessions() {
		return st
	}
	path := filepath.Join(s.storeCfg.SessionDir, key+".json")
	st, err = readSession(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("session state unreadable, starting fresh", "path", path, "error", err)
		}
		return nil
	}
	return st
}

// restoreSession installs the known state of target's origin on page.
// The returned func removes the localStorage seeding script.
func (s *Scraper) restoreSession(page *rod.Page, target string) func() {
	noop := func() {}
	st := s.sessionFor(target)
	if st == nil {
		return noop
	}
	if len(st.Cookies) > 0 {
		if err := page.SetCookies(proto.CookiesToParams(st.Cookies)); err != nil {
			slog.Debug("restoring cookies failed", "url", target, "error", err)
		}
	}
	if len(st.LocalStorage) == 0 {
		return noop
	}
	remove, err := page.EvalOnNewDocument(localStorageScript(st.LocalStorage))
	if err != nil {
		return noop
	}
	slog.Debug("session state restored", "url", target, "cookies", len(st.Cookies))
	return func() { _ = remove() }
}

const localStorageDumpJS = `() => { const o = {}; try { for (let i = 0; i < localStorage.length; i++) { const k = localStorage.key(i); o[k] = localStorage.getItem(k); } } catch (e) {} return o; }`

// saveSession remembers page's cookies and localStorage for target's
// origin and writes them to disk when persistence is on.
func (s *Scraper) saveSession(page *rod.Page, target string) {
	cookies, err := page.Cookies(nil)
	if err != nil {
		slog.Debug("reading cookies failed", "error", err)
		return
	}
	st := &sessionState{Cookies: cookies}
	if res, err := page.Eval(localStorageDumpJS); err == nil {
		st.LocalStorage = make(map[string]string)
		for k, v := range res.Value.Map() {
			st.LocalStorage[k] = v.Str()
		}
	}
	// A page that never loaded reads back empty; keep the earlier state.
	if len(st.Cookies) == 0 && len(st.LocalStorage) == 0 {
		return
	}
	s.remember(target, st)

	if !s.persistSessions() {
		return
	}
	path, err := sessionFile(s.storeCfg.SessionDir, target)
	if err != nil {
		return
	}
	if err := writeSession(path, st); err != nil {
		slog.Warn("saving session state failed", "path", path, "error", err)
	}
}
