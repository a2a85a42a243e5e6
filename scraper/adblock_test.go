package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAdDomain(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"doubleclick.net", true},
		{"pagead2.googlesyndication.com", true},
		{"ADSTERRA.COM", true},
		{"drakorkita.example", false},
		{"notdoubleclick.net", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, isAdDomain(tt.host))
		})
	}
}

func TestFromAdDomain(t *testing.T) {
	assert.True(t, fromAdDomain("https://www.google-analytics.com/collect?v=1"))
	assert.False(t, fromAdDomain("https://api.example.com/harga"))
	assert.False(t, fromAdDomain("://bad"))
}

func TestBlockedURLPatterns(t *testing.T) {
	patterns := blockedURLPatterns()
	assert.Len(t, patterns, 2*len(adDomains))
	assert.Contains(t, patterns, "*://*.doubleclick.net/*")
	assert.Contains(t, patterns, "*://doubleclick.net/*")
	assert.IsNonDecreasing(t, patterns)
}

func TestIsAdEmbed(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"", true},
		{"about:blank", true},
		{"https://www.youtube.com/embed/x", true},
		{"//ads.popads.net/frame", true},
		{"https://embed.dtscout.com/x", true},
		{"https://player.streamhost.example/e/abc", false},
		{"//player.streamhost.example/e/abc", false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAdEmbed(tt.src))
		})
	}
}
