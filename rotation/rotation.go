// Package rotation hands out proxies and user agents in rotation.
// Rotators are constructed once at start-up and passed to the adapters
// that need them.
package rotation

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// ReadList parses one entry per line, skipping blanks and '#' comments.
func ReadList(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// LoadList reads a list file. A missing file yields an empty list.
func LoadList(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("rotation: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadList(f)
}

// ProxyRotator returns the current proxy and moves to the next one after
// every N uses. A nil or empty rotator means "no proxy".
type ProxyRotator struct {
	mu      sync.Mutex
	proxies []string
	every   int
	index   int
	uses    int
}

// NewProxyRotator creates a rotator switching proxies after every uses.
func NewProxyRotator(proxies []string, every int) *ProxyRotator {
	if every <= 0 {
		every = 1
	}
	return &ProxyRotator{proxies: proxies, every: every}
}

// Next returns the proxy URL to use for the next request, or "".
func (r *ProxyRotator) Next() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.proxies) == 0 {
		return ""
	}
	r.uses++
	if r.uses >= r.every {
		r.index = (r.index + 1) % len(r.proxies)
		r.uses = 0
		slog.Debug("rotating proxy", "index", r.index)
	}
	return r.proxies[r.index]
}

// Len reports how many proxies are loaded.
func (r *ProxyRotator) Len() int {
	if r == nil {
		return 0
	}
	return len(r.proxies)
}

// UserAgents cycles through a list of user agents, falling back to a
// fixed default when rotation is off or the list is empty.
type UserAgents struct {
	mu       sync.Mutex
	agents   []string
	fallback string
	rotate   bool
	next     int
}

// NewUserAgents creates a user agent source.
func NewUserAgents(agents []string, fallback string, rotate bool) *UserAgents {
	return &UserAgents{agents: agents, fallback: fallback, rotate: rotate}
}

// Next returns the user agent for the next request.
func (u *UserAgents) Next() string {
	if u == nil {
		return ""
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.rotate || len(u.agents) == 0 {
		return u.fallback
	}
	ua := u.agents[u.next%len(u.agents)]
	u.next++
	return ua
}
