package scraper

import (
	"net/url"
	"sort"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// adHosts lists ad, tracker and popunder hosts. Streaming catalogs lean
// heavily on popunder networks, so those are listed alongside the usual
// trackers.
var adHosts = []string{
	"doubleclick.net", "googlesyndication.com", "googleadservices.com",
	"google-analytics.com", "googletagmanager.com", "googletagservices.com",
	"facebook.net", "adnxs.com", "adsrvr.org", "amazon-adsystem.com",
	"criteo.com", "criteo.net", "outbrain.com", "taboola.com",
	"pubmatic.com", "rubiconproject.com", "scorecardresearch.com",
	"hotjar.com", "mixpanel.com", "segment.io", "chartbeat.com",
	"openx.net", "casalemedia.com", "sharethis.com", "addthis.com",
	"adsterra.com", "popads.net", "popcash.net", "propellerads.com",
	"onclickads.net", "exoclick.com", "juicyads.com", "histats.com",
	"clickadu.com", "hilltopads.net", "mgid.com",
}

// adDomains is the lookup set built from adHosts.
var adDomains = func() map[string]struct{} {
	m := make(map[string]struct{}, len(adHosts))
	for _, h := range adHosts {
		m[h] = struct{}{}
	}
	return m
}()

// isAdDomain checks if a hostname (or any parent domain) is in the ad blocklist.
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	// Check exact match first.
	if _, ok := adDomains[host]; ok {
		return true
	}
	// Check parent domains (e.g., "pagead2.googlesyndication.com" → "googlesyndication.com").
	for {
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
		if _, ok := adDomains[host]; ok {
			return true
		}
	}
	return false
}

// blockedURLPatterns turns the ad domain set into Network.setBlockedURLs
// wildcard patterns, sorted for a stable request.
func blockedURLPatterns() []string {
	out := make([]string, 0, len(adDomains))
	for d := range adDomains {
		out = append(out, "*://*."+d+"/*", "*://"+d+"/*")
	}
	sort.Strings(out)
	return out
}

// blockAds aborts requests to known ad and tracking domains. It uses the
// Network domain rather than request interception so it does not fight
// with the response listener the capture installs.
func blockAds(page *rod.Page) error {
	return proto.NetworkSetBlockedURLs{Urls: blockedURLPatterns()}.Call(page)
}

// fromAdDomain reports whether a captured response URL belongs to an ad
// or tracking host.
func fromAdDomain(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return isAdDomain(u.Hostname())
}

// socialEmbedHosts are iframe hosts that never carry a player.
var socialEmbedHosts = []string{"facebook.com", "twitter.com", "instagram.com", "youtube.com", "dtscout.com"}

// IsAdEmbed reports whether an iframe src is an ad, tracker or social
// widget rather than a video player. Blank and about: sources count as ads.
func IsAdEmbed(src string) bool {
	src = strings.TrimSpace(src)
	if src == "" || strings.HasPrefix(strings.ToLower(src), "about:") {
		return true
	}
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}
	u, err := url.Parse(src)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())
	if isAdDomain(host) {
		return true
	}
	for _, h := range socialEmbedHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
