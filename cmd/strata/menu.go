package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/use-agent/strata/sites/drakorkita"
	"github.com/use-agent/strata/sites/kompas"
	"github.com/use-agent/strata/sites/pluang"
	"github.com/use-agent/strata/sites/tradingeconomics"
	"github.com/use-agent/strata/store"
)

func init() {
	rootCmd.AddCommand(menuCmd)
}

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Interactive numbered menu",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg, noBrowser)
		defer a.Close()
		return runMenu(cmd.Context(), os.Stdin, os.Stdout, menuItems(a))
	},
}

type menuItem struct {
	Label string
	// Prompt asks for one argument before Run when set.
	Prompt string
	Run    func(ctx context.Context, arg string) error
}

func menuItems(a *app) []menuItem {
	crawl := func(name string) func(context.Context, string) error {
		return func(ctx context.Context, _ string) error {
			registry, err := a.Sites(true)
			if err != nil {
				return err
			}
			site, err := registry.Lookup(name)
			if err != nil {
				return err
			}
			return crawlSite(ctx, a, site)
		}
	}
	show := func(fn func(*store.Store) error) func(context.Context, string) error {
		return func(context.Context, string) error { return fn(a.store) }
	}
	return []menuItem{
		{Label: "Scrape a URL (layered pipeline)", Prompt: "URL", Run: func(ctx context.Context, target string) error {
			out, err := a.Orchestrator(nil).Run(ctx, target)
			if err != nil {
				return err
			}
			printOutcome(out)
			return nil
		}},
		{Label: "Crawl US stocks (pluang)", Run: crawl(pluang.Name)},
		{Label: "Crawl currencies (tradingeconomics)", Run: crawl(tradingeconomics.Name)},
		{Label: "Crawl news (kompas)", Run: crawl(kompas.Name)},
		{Label: "Crawl drama catalog (drakorkita)", Run: crawl(drakorkita.Name)},
		{Label: "Show stocks", Run: show(showStocks)},
		{Label: "Show gold prices", Run: show(showGold)},
		{Label: "Show news", Run: show(showNews)},
		{Label: "Show currencies", Run: show(showCurrencies)},
		{Label: "Export datasets", Run: func(context.Context, string) error {
			written, err := a.store.Export(cfg.Store.ExportDir, store.DefaultExports)
			for _, p := range written {
				fmt.Println("wrote", p)
			}
			return err
		}},
	}
}

// runMenu loops until "0", "q" or end of input. A failing action prints a
// red line and the menu continues.
func runMenu(ctx context.Context, in io.Reader, out io.Writer, items []menuItem) error {
	r := bufio.NewReader(in)
	for {
		printMenu(out, items)
		fmt.Fprint(out, "choice: ")
		line, err := r.ReadString('\n')
		choice := strings.TrimSpace(line)
		if choice == "" && err != nil {
			return nil
		}
		if choice == "0" || strings.EqualFold(choice, "q") {
			return nil
		}

		n, convErr := strconv.Atoi(choice)
		if convErr != nil || n < 1 || n > len(items) {
			fmt.Fprintln(out, text.FgYellow.Sprintf("unknown choice %q", choice))
			continue
		}
		item := items[n-1]

		arg := ""
		if item.Prompt != "" {
			fmt.Fprintf(out, "%s: ", item.Prompt)
			a, _ := r.ReadString('\n')
			arg = strings.TrimSpace(a)
			if arg == "" {
				continue
			}
		}

		actx, stop := signalContext(ctx)
		err = item.Run(actx, arg)
		stop()
		if err != nil {
			fmt.Fprintln(out, text.FgRed.Sprintf("failed: %v", err))
		}
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func printMenu(w io.Writer, items []menuItem) {
	t := newTable(w, "strata", table.Row{"#", "Action"})
	for i, it := range items {
		t.AppendRow(table.Row{i + 1, it.Label})
	}
	t.AppendRow(table.Row{0, "Exit"})
	t.Render()
}
