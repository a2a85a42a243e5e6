package kompas

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/strata/cleaner"
	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/sites"
)

const frontPage = `<html><body>
<nav><a href="/tag/politik">Politik dan pemerintahan</a></nav>
<div class="article__list">
  <img src="https://asset.kompas.example/a.jpg">
  <a href="/read/2026/10/18/0800/pemerintah-umumkan-kebijakan-baru">Pemerintah umumkan kebijakan baru soal subsidi energi</a>
  <time datetime="2026-10-18T08:00:00+07:00">18/10/2026</time>
  <span class="article__category">Nasional</span>
</div>
<div class="card">
  <img data-src="/relative.jpg">
  <a href="https://nasional.kompas.example/read/2026/10/18/0900/pemerintah-umumkan-kebijakan-baru-lagi">Pemerintah Umumkan Kebijakan Baru soal Subsidi Energi!</a>
</div>
<li><a href="/read/2026/10/18/1000/short">Singkat</a></li>
<li><a href="/read/2026/10/18/1100/gempa" title="Gempa magnitudo 5 guncang Sukabumi"><img src="x.png"></a><span class="date">1 jam lalu</span></li>
<li><a href="/read/2026/10/18/0800/pemerintah-umumkan-kebijakan-baru">duplicate link text here</a></li>
</body></html>`

const articlePage = `<html><head><title>Harga beras naik</title>
<meta property="article:published_time" content="2026-10-18T07:00:00+07:00">
<meta property="og:image" content="https://asset.kompas.example/beras.jpg">
<meta name="keywords" content="beras, harga pangan">
</head><body><header>menu</header><article><h1>Harga beras naik</h1>
%s
<p>Baca juga laporan <a href="/read/gabah">harga gabah</a> yang naik pekan lalu di banyak daerah penghasil beras di Jawa.</p>
</article><footer>footer</footer></body></html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	paragraphs := strings.Repeat("<p>Harga beras medium di sejumlah pasar tradisional naik dalam sepekan terakhir, menurut pantauan pedagang dan dinas perdagangan setempat yang mencatat kenaikan harian.</p>\n", 8)
	mux := http.NewServeMux()
	mux.HandleFunc("/front", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, frontPage) })
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) })
	mux.HandleFunc("/read/beras", func(w http.ResponseWriter, r *http.Request) { fmt.Fprintf(w, articlePage, paragraphs) })
	mux.HandleFunc("/read/empty", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `<html><body></body></html>`) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newSite(srv *httptest.Server) *Site {
	html := sites.NewHTMLClient()
	html.Pause = 0
	html.Timeout = 2 * time.Second
	return New(html, nil, WithSections([]Section{
		{"Utama", srv.URL + "/front"},
		{"Rusak", srv.URL + "/broken"},
		{"Nasional", srv.URL + "/front?x=1"},
	}))
}

func TestScrapeListing(t *testing.T) {
	srv := newServer(t)
	items, err := newSite(srv).ScrapeListing(context.Background(), "", 1)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "Pemerintah umumkan kebijakan baru soal subsidi energi", items[0].Title)
	assert.Equal(t, srv.URL+"/read/2026/10/18/0800/pemerintah-umumkan-kebijakan-baru", items[0].DetailURL)
	assert.Equal(t, "https://asset.kompas.example/a.jpg", items[0].Poster)
	assert.Empty(t, items[1].Poster, "relative thumbnails are dropped")
	assert.Equal(t, "Gempa magnitudo 5 guncang Sukabumi", items[2].Title)
}

func TestParseHeadlinesCardFields(t *testing.T) {
	srv := newServer(t)
	s := newSite(srv)
	arts, err := s.section(context.Background(), s.sections[0])
	require.NoError(t, err)
	require.Len(t, arts, 3)

	assert.Equal(t, "2026-10-18T08:00:00+07:00", arts[0].Waktu)
	assert.Equal(t, "Nasional", arts[0].Kategori)
	assert.Equal(t, "Utama", arts[0].Section)
	assert.Equal(t, "1 jam lalu", arts[2].Waktu)
}

func TestDedup(t *testing.T) {
	in := []Article{
		{Judul: "Pemerintah umumkan kebijakan baru soal subsidi energi", URL: "u1"},
		{Judul: "Pemerintah Umumkan Kebijakan Baru soal Subsidi Energi!", URL: "u2"},
		{Judul: "Timnas menang di laga uji coba melawan Jepang", URL: "u1"},
		{Judul: "Timnas menang di laga uji coba melawan Jepang", URL: "u3"},
	}
	out, dropped := Dedup(in)
	assert.Equal(t, 2, dropped)
	require.Len(t, out, 2)
	assert.Equal(t, "u1", out[0].URL)
	assert.Equal(t, "u3", out[1].URL)
}

func TestCrawl(t *testing.T) {
	srv := newServer(t)
	ds, err := newSite(srv).Crawl(context.Background(), sites.CrawlOptions{Workers: 3})
	require.NoError(t, err)
	assert.Equal(t, Label, ds.Label)

	arts := ds.Result.Data.(map[string]any)[models.KeyArticles].([]Article)
	require.Len(t, arts, 2, "second section repeats the first and the near-duplicate headline is dropped")
	assert.Equal(t, "Utama", arts[0].Section)

	extra := ds.Result.Metadata.Extra
	assert.Equal(t, []string{"Utama", "Nasional"}, extra["sections_scraped"])
	assert.Contains(t, extra["failed_sections"], "Rusak")
	assert.Equal(t, 4, extra["duplicates_dropped"])
}

func TestCrawlAllSectionsFail(t *testing.T) {
	srv := newServer(t)
	s := newSite(srv)
	s.sections = []Section{{"Rusak", srv.URL + "/broken"}}
	_, err := s.Crawl(context.Background(), sites.CrawlOptions{})
	assert.Equal(t, models.ErrCodeNoData, models.ErrorCode(err))
}

func TestScrapeDetail(t *testing.T) {
	srv := newServer(t)
	s := newSite(srv)

	rec, err := s.ScrapeDetail(context.Background(), srv.URL+"/read/beras")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Contains(t, rec.Fields["content"], "Harga beras medium")
	assert.NotContains(t, rec.Fields["content"], "footer")
	assert.Equal(t, "2026-10-18T07:00:00+07:00", rec.Fields["published"])
	assert.Equal(t, "https://asset.kompas.example/beras.jpg", rec.Fields["thumbnail"])
	assert.Equal(t, "beras, harga pangan", rec.Fields["keywords"])
	links, ok := rec.Fields["links"].([]cleaner.Link)
	require.True(t, ok)
	assert.Contains(t, links, cleaner.Link{Text: "harga gabah", URL: srv.URL + "/read/gabah"})

	rec, err = s.ScrapeDetail(context.Background(), srv.URL+"/read/empty")
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = s.ScrapeDetail(context.Background(), "/relative")
	assert.Equal(t, models.ErrCodeInvalidInput, models.ErrorCode(err))
}
