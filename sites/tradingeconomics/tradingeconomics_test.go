package tradingeconomics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/scraper"
	"github.com/use-agent/strata/sites"
)

const renderedPage = `<html><head><title>Mata Uang</title></head><body>
<h2>Utama</h2>
<p>Kurs terbaru</p>
<table>
  <tr><th>Nama</th><th>Harga</th><th>Hari</th><th>%</th><th>Tanggal</th></tr>
  <tr><td>EURUSD</td><td>1,0850</td><td>+0,0020</td><td>+0,18%</td><td>Okt/17</td></tr>
  <tr><td>USDJPY</td><td>149,50</td><td>-0,30</td><td>-0,20%</td><td>Okt/17</td><td>extra</td></tr>
  <tr><td>GBPUSD</td><td>1,2200</td><td>0</td><td>0%</td><td>Okt/17</td></tr>
  <tr><td colspan="5">iklan</td></tr>
</table>
<table>
  <tr><th>Nama</th><th>Harga</th><th>%</th></tr>
  <tr><td>USDIDR</td><td>15.600</td><td>-</td></tr>
</table>
<table><tr><td>menu</td><td>bantuan</td></tr><tr><td>a</td><td>b</td></tr></table>
</body></html>`

type fakeRenderer struct {
	capture *models.PageCapture
	err     error
	calls   []string
	opts    scraper.CaptureOptions
}

func (f *fakeRenderer) Capture(_ context.Context, target string, opts scraper.CaptureOptions) (*models.PageCapture, error) {
	f.calls = append(f.calls, target)
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.capture, nil
}

func page(html string) *models.PageCapture {
	return &models.PageCapture{StatusCode: 200, Title: "Mata Uang", FinalHTML: html}
}

func TestTables(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(renderedPage))
	require.NoError(t, err)

	tables := Tables(doc)
	require.Len(t, tables, 2)

	first := tables[0].(map[string]any)
	assert.Equal(t, "Utama", first["group"])
	assert.Len(t, first["headers"], 5)
	rows := first["rows"].([]any)
	require.Len(t, rows, 3)
	assert.Equal(t, map[string]any{
		"Nama": "USDJPY", "Harga": "149,50", "Hari": "-0,30", "%": "-0,20%", "Tanggal": "Okt/17",
	}, rows[1])

	second := tables[1].(map[string]any)
	assert.Equal(t, "Grup 2", second["group"], "the heading before the first table is not reused")
}

func TestCrawl(t *testing.T) {
	r := &fakeRenderer{capture: page(renderedPage)}
	s := New(r)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	var progress [][2]int
	ds, err := s.Crawl(context.Background(), sites.CrawlOptions{
		Progress: func(done, total int) { progress = append(progress, [2]int{done, total}) },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultPageURL}, r.calls)
	assert.True(t, r.opts.Interact)
	assert.Equal(t, [][2]int{{1, 1}}, progress)
	assert.Equal(t, Label, ds.Label)
	assert.Equal(t, "id.tradingeconomics.com", ds.Result.Metadata.Domain)
	assert.Equal(t, models.TechniqueStaticTable, ds.Result.Metadata.TechniqueUsed)
	assert.Equal(t, 4, ds.Result.Metadata.Extra["total_currency_pairs"])
	assert.Equal(t, []string{"Grup 2", "Utama"}, ds.Result.Metadata.Extra["groups"])

	currencies := ds.Result.Data.(map[string]any)[models.KeyCurrencies].(map[string]any)
	utama := currencies["Utama"].(map[string]any)

	eur := utama["EURUSD"].(map[string]any)
	assert.InDelta(t, 1.085, eur["Harga"], 1e-9)
	assert.InDelta(t, 0.18, eur["%"], 1e-9)
	assert.Equal(t, "UP", eur["direction"])
	assert.Equal(t, "Okt/17", eur["Tanggal"])

	assert.Equal(t, "DOWN", utama["USDJPY"].(map[string]any)["direction"])
	assert.Equal(t, "FLAT", utama["GBPUSD"].(map[string]any)["direction"])

	idr := currencies["Grup 2"].(map[string]any)["USDIDR"].(map[string]any)
	assert.Nil(t, idr["%"])
	assert.NotContains(t, idr, "direction")
}

func TestCrawlWithoutTables(t *testing.T) {
	s := New(&fakeRenderer{capture: page(`<html><body><p>Login</p></body></html>`)})
	_, err := s.Crawl(context.Background(), sites.CrawlOptions{})

	var se *models.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ErrCodeNoData, se.Code)
}

func TestCrawlBlockedPage(t *testing.T) {
	c := page(renderedPage)
	c.StatusCode = 403
	_, err := New(&fakeRenderer{capture: c}).Crawl(context.Background(), sites.CrawlOptions{})

	var se *models.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ErrCodeHTTPStatus, se.Code)
	var hs *models.HTTPStatusError
	require.ErrorAs(t, err, &hs)
	assert.Equal(t, 403, hs.StatusCode)
}

func TestCrawlRendererError(t *testing.T) {
	boom := models.NewScrapeError(models.ErrCodeBrowser, "browser crashed", errors.New("boom"))
	_, err := New(&fakeRenderer{err: boom}).Crawl(context.Background(), sites.CrawlOptions{})
	assert.ErrorIs(t, err, boom)
}

func TestScrapeDetail(t *testing.T) {
	r := &fakeRenderer{capture: page(renderedPage)}
	s := New(r, WithPageURL("https://tradingeconomics.example/currencies"))

	rec, err := s.ScrapeDetail(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "https://tradingeconomics.example/currencies", rec.SourceURL)
	assert.Equal(t, "Mata Uang", rec.Title)
	assert.Contains(t, rec.Fields[models.KeyCurrencies], "Utama")

	r.capture = page(`<html><body></body></html>`)
	rec, err = s.ScrapeDetail(context.Background(), "https://tradingeconomics.example/crypto")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestScrapeDetailWithoutBrowser(t *testing.T) {
	_, err := New(nil).ScrapeDetail(context.Background(), "")

	var se *models.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ErrCodeUnavailable, se.Code)

	_, err = New(nil).ScrapeDetail(context.Background(), "not a url")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ErrCodeInvalidInput, se.Code)
}
