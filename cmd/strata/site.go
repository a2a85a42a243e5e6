package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/sites"
)

var (
	listingPage  int
	crawlPages   int
	crawlWorkers int
)

func init() {
	listingCmd.Flags().IntVarP(&listingPage, "page", "p", 1, "catalog page")
	crawlCmd.Flags().IntVar(&crawlPages, "pages", 0, "page or title limit (0 = site default)")
	crawlCmd.Flags().IntVarP(&crawlWorkers, "workers", "w", 0, "concurrent fetches (0 = site default)")

	siteCmd.AddCommand(siteListCmd, detailCmd, listingCmd, crawlCmd)
	rootCmd.AddCommand(siteCmd)
}

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Run a site plug-in",
}

var siteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered site plug-ins",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg, true)
		defer a.Close()
		registry, err := a.Sites(false)
		if err != nil {
			return err
		}
		renderSites(os.Stdout, registry.All())
		return nil
	},
}

var detailCmd = &cobra.Command{
	Use:   "detail <site> <url>",
	Short: "Scrape one detail page and print it as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()
		a, site, err := openSite(args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := site.ScrapeDetail(ctx, args[1])
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Println("no data:", args[1])
			return nil
		}
		return printJSON(os.Stdout, rec)
	},
}

var listingCmd = &cobra.Command{
	Use:   "listing <site> [url]",
	Short: "Print one page of a site's catalog",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()
		a, site, err := openSite(args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		lister, ok := site.(sites.Lister)
		if !ok {
			return models.NewScrapeError(models.ErrCodeInvalidInput, args[0]+" has no catalog listing", nil)
		}
		target := ""
		if len(args) == 2 {
			target = args[1]
		}
		items, err := lister.ScrapeListing(ctx, target, listingPage)
		if err != nil {
			return err
		}
		renderListing(os.Stdout, items)
		return nil
	},
}

var crawlCmd = &cobra.Command{
	Use:   "crawl <site>",
	Short: "Crawl a whole site into a stored dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()
		a, site, err := openSite(args[0])
		if err != nil {
			return err
		}
		defer a.Close()
		return crawlSite(ctx, a, site)
	},
}

// openSite builds an app with the browser available to the plug-ins.
func openSite(name string) (*app, sites.Site, error) {
	a := newApp(cfg, noBrowser)
	registry, err := a.Sites(true)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	site, err := registry.Lookup(name)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, site, nil
}

func crawlSite(ctx context.Context, a *app, site sites.Site) error {
	crawler, ok := site.(sites.Crawler)
	if !ok {
		return models.NewScrapeError(models.ErrCodeInvalidInput, site.Name()+" cannot crawl", nil)
	}
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	ds, err := crawler.Crawl(ctx, sites.CrawlOptions{
		Pages:   crawlPages,
		Workers: crawlWorkers,
		Progress: func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			if bar == nil {
				bar = newProgressBar(total, site.Name())
			}
			bar.Set(done)
		},
	})
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}
	path, err := saveDataset(a.store, ds)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func renderSites(w io.Writer, all []sites.Site) {
	t := newTable(w, "Sites", table.Row{"Name", "Capabilities"})
	for _, s := range all {
		t.AppendRow(table.Row{s.Name(), strings.Join(sites.Capabilities(s), ", ")})
	}
	t.Render()
}

func renderListing(w io.Writer, items []models.ListingItem) {
	t := newTable(w, fmt.Sprintf("Listing (%d)", len(items)), table.Row{"#", "Title", "Rating", "URL"})
	for i, it := range items {
		t.AppendRow(table.Row{i + 1, it.Title, cell(it.Rating), it.DetailURL})
	}
	t.Render()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
