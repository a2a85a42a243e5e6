package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/pipeline"
)

func newTable(w io.Writer, title string, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	if title != "" {
		t.SetTitle(title)
	}
	t.AppendHeader(header)
	return t
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dataOf(r *models.NormalizedResult) map[string]any {
	m, _ := r.Data.(map[string]any)
	return m
}

// cell formats a scalar for a table cell.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		if x == float64(int64(x)) && x < 1e15 && x > -1e15 {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%.4g", x)
	case string:
		if x == "" {
			return "-"
		}
		return x
	default:
		return fmt.Sprint(x)
	}
}

func colorDirection(d string) string {
	switch strings.ToUpper(d) {
	case "GREEN", "UP":
		return text.FgGreen.Sprint(d)
	case "RED", "DOWN":
		return text.FgRed.Sprint(d)
	}
	return d
}

// renderStocks prints quotes ordered by symbol. limit <= 0 prints all.
func renderStocks(w io.Writer, r *models.NormalizedResult, limit int) int {
	quotes, _ := dataOf(r)[models.KeyStocks].(map[string]any)
	t := newTable(w, fmt.Sprintf("Stocks (%d)", len(quotes)), table.Row{"Symbol", "Name", "Price", "Change %", "Direction"})
	n := 0
	for _, sym := range sortedKeys(quotes) {
		if limit > 0 && n >= limit {
			break
		}
		q, ok := quotes[sym].(map[string]any)
		if !ok {
			continue
		}
		dir, _ := q["direction"].(string)
		t.AppendRow(table.Row{sym, cell(q["name"]), cell(q["currentPrice"]), cell(q["percentageChange"]), colorDirection(dir)})
		n++
	}
	t.Render()
	return n
}

// renderGold prints one row per provider and unit.
func renderGold(w io.Writer, source string, r *models.NormalizedResult) int {
	prices, _ := dataOf(r)[models.KeyGoldPrices].(map[string]any)
	t := newTable(w, "Gold: "+source, table.Row{"Provider", "Unit", "Price"})
	n := 0
	for _, provider := range sortedKeys(prices) {
		units, ok := prices[provider].(map[string]any)
		if !ok {
			continue
		}
		for _, unit := range sortedKeys(units) {
			t.AppendRow(table.Row{provider, unit, cell(units[unit])})
			n++
		}
		t.AppendSeparator()
	}
	t.Render()
	return n
}

// renderNews prints headlines in stored order.
func renderNews(w io.Writer, r *models.NormalizedResult, limit int) int {
	articles, _ := dataOf(r)[models.KeyArticles].([]any)
	t := newTable(w, fmt.Sprintf("News (%d)", len(articles)), table.Row{"#", "Section", "Headline", "Time"})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: 70}})
	n := 0
	for _, raw := range articles {
		if limit > 0 && n >= limit {
			break
		}
		a, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		n++
		t.AppendRow(table.Row{n, cell(a["section"]), cell(a["judul"]), cell(a["waktu"])})
	}
	t.Render()
	return n
}

// renderCurrencies prints every pair grouped by table.
func renderCurrencies(w io.Writer, r *models.NormalizedResult) int {
	groups, _ := dataOf(r)[models.KeyCurrencies].(map[string]any)
	t := newTable(w, "Currencies", table.Row{"Group", "Pair", "Price", "Day %", "Direction"})
	n := 0
	for _, g := range sortedKeys(groups) {
		pairs, ok := groups[g].(map[string]any)
		if !ok {
			continue
		}
		for _, pair := range sortedKeys(pairs) {
			e, _ := pairs[pair].(map[string]any)
			price := e["Harga"]
			if price == nil {
				price = e["Last"]
			}
			dir, _ := e["direction"].(string)
			t.AppendRow(table.Row{g, pair, cell(price), cell(e["%"]), colorDirection(dir)})
			n++
		}
		t.AppendSeparator()
	}
	t.Render()
	return n
}

// renderTrace prints the attempts of one pipeline run.
func renderTrace(w io.Writer, trace []pipeline.Attempt) {
	t := newTable(w, "", table.Row{"State", "Strategy", "Accepted", "Reason", "Elapsed"})
	for _, a := range trace {
		ok := ""
		if a.Accepted {
			ok = text.FgGreen.Sprint("yes")
		}
		t.AppendRow(table.Row{a.State, a.Strategy, ok, a.Reason, a.Elapsed.Round(time.Millisecond)})
	}
	t.Render()
}
