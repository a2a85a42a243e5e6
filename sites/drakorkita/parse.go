package drakorkita

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/scraper"
)

const (
	episodeLinkSelectors  = ".gmr-listseries a, .episodelist a, ul.lstep li a, .list-episode li a, .eplister li a"
	episodeButtonSelector = "[data-episode], .btn-svr, .ep-btn, [class*='episode']"
)

var (
	castRoleRe    = regexp.MustCompile(`^(.+?[a-z])as\s*[A-Z]`)
	episodeSpanRe = regexp.MustCompile(`(?i)Episode\s+\d+\s*[-~]\s*(\d+)`)
	scoreRe       = regexp.MustCompile(`(?i)Score\s*:\s*([\d.]+)`)
	ratingsRe     = regexp.MustCompile(`(?i)(\d+)\s*Rating`)
	postIDRe      = regexp.MustCompile(`post-(\d+)`)
	shortlinkRe   = regexp.MustCompile(`\?p=(\d+)`)
)

// maxEpisodeLabel drops container elements matched by the loose episode
// selector.
const maxEpisodeLabel = 40

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

func imageSrc(img *goquery.Selection) string {
	if v, ok := img.Attr("data-src"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(img.AttrOr("src", ""))
}

// parseListing reads the catalog cards, deduplicated by slug.
func parseListing(doc *goquery.Document, base *url.URL) []models.ListingItem {
	var items []models.ListingItem
	seen := map[string]bool{}
	doc.Find("a[href*='/detail/']").Each(func(_ int, card *goquery.Selection) {
		href := card.AttrOr("href", "")
		slug := strings.TrimSuffix(href, "/")
		slug = slug[strings.LastIndex(slug, "/")+1:]
		if slug == "" || seen[slug] {
			return
		}

		title := text(card.Find(".title, h3, h4, .name").First())
		if title == "" {
			for _, line := range strings.Split(card.Text(), "\n") {
				if line = strings.TrimSpace(line); len(line) > 5 {
					title = line
					break
				}
			}
		}
		if title == "" {
			title = slug
		}
		poster := ""
		if img := card.Find("img").First(); img.Length() > 0 {
			poster = resolve(base, imageSrc(img))
		}
		seen[slug] = true
		items = append(items, models.ListingItem{
			Title:     title,
			DetailURL: resolve(base, href),
			Poster:    poster,
			Rating:    text(card.Find(".rating, .score, .vote").First()),
		})
	})
	return items
}

// parseDetail reads everything but the video embeds.
func parseDetail(doc *goquery.Document, page *url.URL) *models.DetailRecord {
	rec := &models.DetailRecord{
		Title:         text(doc.Find("h1").First()),
		SourceURL:     page.String(),
		DownloadLinks: parseDownloads(doc),
		Fields:        map[string]any{},
	}
	if img := doc.Find(".poster img, .thumbnail img, .detail img").First(); img.Length() > 0 {
		rec.Fields["poster"] = resolve(page, imageSrc(img))
	}
	if img := doc.Find(".banner img, .backdrop img, .movie-bg img").First(); img.Length() > 0 {
		rec.Fields["banner"] = resolve(page, imageSrc(img))
	}
	if syn := synopsis(doc); syn != "" {
		rec.Fields["sinopsis"] = syn
	}
	for k, v := range infoFields(doc) {
		rec.Fields[k] = v
	}
	rec.Fields["genres"] = anchorTexts(doc, "a[href*='genre=']", false)
	rec.Fields["cast"] = anchorTexts(doc, "a[href*='cast=']", true)
	rec.Fields["directors"] = anchorTexts(doc, "a[href*='crew=']", false)
	rec.Fields["country"] = anchorTexts(doc, "a[href*='country=']", false)

	body := doc.Find("body").Text()
	if m := scoreRe.FindStringSubmatch(body); m != nil {
		rec.Fields["score"] = m[1]
	}
	if m := ratingsRe.FindStringSubmatch(body); m != nil {
		rec.Fields["total_ratings"] = m[1]
	}

	var servers []map[string]string
	doc.Find("[data-server], .server-btn, .btn-server").Each(func(_ int, s *goquery.Selection) {
		if name := text(s); name != "" {
			servers = append(servers, map[string]string{"name": name, "id": s.AttrOr("data-server", "")})
		}
	})
	if servers != nil {
		rec.Fields["servers"] = servers
	}

	rec.Episodes = parseEpisodes(doc, page, rec.Title)
	if len(rec.Episodes) > 0 {
		rec.Fields["type"] = "TV Series"
	}
	rec.Fields["total_episodes"] = len(rec.Episodes)
	return rec
}

func synopsis(doc *goquery.Document) string {
	var out string
	doc.Find("h1, h2, h3, h4, h5, strong, b, span, div.title").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.HasPrefix(strings.ToLower(text(s)), "sinopsis") {
			return true
		}
		p := s.NextAllFiltered("p").First()
		if p.Length() == 0 {
			p = s.Parent().NextAllFiltered("p").First()
		}
		if p.Length() == 0 {
			p = s.Parent().Find("p").First()
		}
		out = text(p)
		return out == ""
	})
	if out == "" {
		var parts []string
		doc.Find(".entry-content p, .desc p, .sinopsis p").Each(func(_ int, p *goquery.Selection) {
			if t := text(p); t != "" {
				parts = append(parts, t)
			}
		})
		out = strings.Join(parts, "\n")
	}
	if out == "" {
		out = strings.TrimSpace(doc.Find("meta[name='description']").AttrOr("content", ""))
	}
	return out
}

// infoFields reads "Key: value" list items under the Informasi heading.
func infoFields(doc *goquery.Document) map[string]string {
	out := map[string]string{}
	read := func(li *goquery.Selection) {
		key, value, ok := strings.Cut(text(li), ":")
		key = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")
		value = strings.TrimSpace(value)
		if ok && key != "" && value != "" {
			out[key] = value
		}
	}
	doc.Find("h1, h2, h3, h4, h5, strong, b, span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(text(s)), "informasi") {
			return true
		}
		container := s.Parent().Parent()
		if container.Length() == 0 {
			container = s.Parent()
		}
		container.Find("li").Each(func(_ int, li *goquery.Selection) { read(li) })
		return false
	})
	if len(out) == 0 {
		doc.Find(".anf li").Each(func(_ int, li *goquery.Selection) { read(li) })
	}
	return out
}

// anchorTexts collects distinct link texts. With castFix the merged
// "Actor Nameas Role" text keeps only the actor.
func anchorTexts(doc *goquery.Document, selector string, castFix bool) []string {
	out := []string{}
	seen := map[string]bool{}
	doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
		t := text(a)
		if castFix {
			if m := castRoleRe.FindStringSubmatch(t); m != nil {
				t = strings.TrimSpace(m[1])
			}
		}
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	})
	return out
}

// parseEpisodes prefers episode links, then player buttons, then
// placeholders derived from an "Episode 1 - N" title.
func parseEpisodes(doc *goquery.Document, page *url.URL, title string) []models.Episode {
	episodes := []models.Episode{}
	seen := map[string]bool{}
	doc.Find(episodeLinkSelectors).Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		label := text(a)
		if href == "" || label == "" {
			return
		}
		u := resolve(page, href)
		if seen[u] {
			return
		}
		seen[u] = true
		episodes = append(episodes, models.Episode{Label: label, URL: u})
	})
	if len(episodes) > 0 {
		return episodes
	}

	doc.Find(episodeButtonSelector).Each(func(_ int, b *goquery.Selection) {
		label := strings.TrimSpace(b.AttrOr("data-episode", ""))
		if label == "" {
			label = text(b)
		}
		if label == "" || len(label) > maxEpisodeLabel {
			return
		}
		ep := models.Episode{
			Label:   label,
			MovieID: b.AttrOr("data-movieid", ""),
			Tag:     b.AttrOr("data-tag", ""),
		}
		if goquery.NodeName(b) == "a" {
			if href := strings.TrimSpace(b.AttrOr("href", "")); href != "" && href != "#" && !strings.HasPrefix(href, "javascript") {
				ep.URL = resolve(page, href)
			}
		}
		key := ep.Label + "\x00" + ep.MovieID + "\x00" + ep.Tag
		if seen[key] {
			return
		}
		seen[key] = true
		episodes = append(episodes, ep)
	})
	if len(episodes) > 0 {
		return episodes
	}

	if m := episodeSpanRe.FindStringSubmatch(title); m != nil {
		n, _ := strconv.Atoi(m[1])
		for i := 1; i <= n; i++ {
			episodes = append(episodes, models.Episode{Label: "Episode " + strconv.Itoa(i)})
		}
	}
	return episodes
}

func parseDownloads(doc *goquery.Document) []models.DownloadLink {
	out := []models.DownloadLink{}
	add := func(a *goquery.Selection, fallback string) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || href == "#" || strings.Contains(strings.ToLower(href), "javascript") || strings.Contains(href, "klik.best") {
			return
		}
		t := text(a)
		if t == "" {
			t = fallback
		}
		out = append(out, models.DownloadLink{Text: t, URL: href})
	}
	if area := doc.Find("#download, .download, .gmr-download-list, .soraddlx").First(); area.Length() > 0 {
		area.Find("a[href]").Each(func(_ int, a *goquery.Selection) { add(a, "Download") })
		if len(out) > 0 {
			return out
		}
	}
	doc.Find("a[href*='download'], a[id='nonot'], .download-btn a").Each(func(_ int, a *goquery.Selection) { add(a, "DOWNLOAD") })
	return out
}

// postID finds the WordPress post id used by the player AJAX endpoint.
func postID(doc *goquery.Document) string {
	for _, cls := range strings.Fields(doc.Find("body").AttrOr("class", "")) {
		if id, ok := strings.CutPrefix(cls, "postid-"); ok && id != "" {
			return id
		}
	}
	if m := postIDRe.FindStringSubmatch(doc.Find("article").First().AttrOr("id", "")); m != nil {
		return m[1]
	}
	if m := shortlinkRe.FindStringSubmatch(doc.Find(`link[rel="shortlink"]`).AttrOr("href", "")); m != nil {
		return m[1]
	}
	return ""
}

// staticIframe returns the first player iframe in the page.
func staticIframe(doc *goquery.Selection, base *url.URL) string {
	var src string
	doc.Find("iframe").EachWithBreak(func(_ int, f *goquery.Selection) bool {
		s := strings.TrimSpace(f.AttrOr("src", f.AttrOr("data-src", "")))
		if scraper.IsAdEmbed(s) {
			return true
		}
		src = resolve(base, s)
		return false
	})
	return src
}
