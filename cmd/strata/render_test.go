package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/pipeline"
	"github.com/use-agent/strata/sites"
)

func result(data map[string]any) *models.NormalizedResult {
	return &models.NormalizedResult{Data: data}
}

func TestRenderStocks(t *testing.T) {
	r := result(map[string]any{models.KeyStocks: map[string]any{
		"TSLA": map[string]any{"name": "Tesla", "currentPrice": 250.5, "percentageChange": -1.25, "direction": "RED"},
		"AAPL": map[string]any{"name": "Apple", "currentPrice": 190.0, "percentageChange": 0.5, "direction": "GREEN"},
		"MSFT": map[string]any{"name": "Microsoft", "currentPrice": 410.0},
	}})

	var buf bytes.Buffer
	assert.Equal(t, 3, renderStocks(&buf, r, 0))
	out := buf.String()
	assert.Contains(t, out, "Tesla")
	assert.Contains(t, out, "250.5")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("AAPL")), bytes.Index(buf.Bytes(), []byte("TSLA")))

	buf.Reset()
	assert.Equal(t, 2, renderStocks(&buf, r, 2))
	assert.NotContains(t, buf.String(), "TSLA")
}

func TestRenderGold(t *testing.T) {
	r := result(map[string]any{models.KeyGoldPrices: map[string]any{
		"ANTAM": map[string]any{"1 gr": 1500000.0, "0.5 gr": 800000.0},
		"UBS":   map[string]any{"1 gr": 1450000.0},
	}})
	var buf bytes.Buffer
	assert.Equal(t, 3, renderGold(&buf, "galeri24.co.id", r))
	assert.Contains(t, buf.String(), "1500000")
	assert.Contains(t, buf.String(), "galeri24.co.id")
}

func TestRenderNewsAndCurrencies(t *testing.T) {
	news := result(map[string]any{models.KeyArticles: []any{
		map[string]any{"judul": "Rupiah menguat", "section": "money", "waktu": "10:00"},
		map[string]any{"judul": "Hujan deras", "section": "news"},
		"not an article",
	}})
	var buf bytes.Buffer
	assert.Equal(t, 2, renderNews(&buf, news, 0))
	assert.Contains(t, buf.String(), "Rupiah menguat")

	buf.Reset()
	assert.Equal(t, 1, renderNews(&buf, news, 1))

	fx := result(map[string]any{models.KeyCurrencies: map[string]any{
		"Utama": map[string]any{
			"EURUSD": map[string]any{"Harga": 1.085, "%": 0.18, "direction": "UP"},
			"USDJPY": map[string]any{"Harga": 151.2, "%": -0.3, "direction": "DOWN"},
		},
	}})
	buf.Reset()
	assert.Equal(t, 2, renderCurrencies(&buf, fx))
	assert.Contains(t, buf.String(), "EURUSD")
	assert.Contains(t, buf.String(), "1.085")
}

func TestRenderEmptyDataset(t *testing.T) {
	var buf bytes.Buffer
	assert.Zero(t, renderStocks(&buf, result(nil), 0))
	assert.Zero(t, renderCurrencies(&buf, &models.NormalizedResult{Data: "unexpected"}))
}

func TestCell(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "-"},
		{"", "-"},
		{"x", "x"},
		{42.0, "42"},
		{1.5, "1.5"},
		{true, "true"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cell(tt.in))
	}
}

func TestRenderTraceAndSites(t *testing.T) {
	var buf bytes.Buffer
	renderTrace(&buf, []pipeline.Attempt{
		{State: pipeline.StateTryingDirect, Strategy: "direct", Reason: "not json", Elapsed: 12 * time.Millisecond},
		{State: pipeline.StateTryingBrowserCapture, Strategy: "harvest", Accepted: true},
	})
	assert.Contains(t, buf.String(), "TryingDirect")
	assert.Contains(t, buf.String(), "not json")

	buf.Reset()
	renderListing(&buf, []models.ListingItem{{Title: "Moving", DetailURL: "https://d.example/moving"}})
	assert.Contains(t, buf.String(), "https://d.example/moving")

	buf.Reset()
	renderSites(&buf, []sites.Site{stubSite{}})
	assert.Contains(t, buf.String(), "stub")
	assert.Contains(t, buf.String(), "detail")
}

type stubSite struct{}

func (stubSite) Name() string { return "stub" }

func (stubSite) ScrapeDetail(context.Context, string) (*models.DetailRecord, error) {
	return nil, nil
}
