package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/use-agent/strata/cache"
	"github.com/use-agent/strata/pipeline"
	"github.com/use-agent/strata/worker"
)

var batchWorkers int

func init() {
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 0, "concurrent pipelines (default scraper.workers)")
	rootCmd.AddCommand(batchCmd)
}

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Run the extraction pipeline over a file of URLs, one per line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		urls, err := readURLs(f)
		f.Close()
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			fmt.Println("no URLs in", args[0])
			return nil
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a := newApp(cfg, noBrowser)
		defer a.Close()
		cc, closer, err := cache.FromConfig(cfg.Cache)
		if err != nil {
			return err
		}
		a.onClose(closer)

		workers := batchWorkers
		if workers <= 0 {
			workers = cfg.Scraper.Workers
		}
		results := runBatch(ctx, a.Orchestrator(cc), urls, workers)
		renderSummary(os.Stdout, summarize(results, len(urls)))
		return nil
	},
}

// runBatch runs every URL through orch. Cancelling ctx stops new runs;
// finished runs are already persisted.
func runBatch(ctx context.Context, orch *pipeline.Orchestrator, urls []string, workers int) []worker.Result[string, pipeline.Outcome] {
	bar := newProgressBar(len(urls), "scraping")
	pool := worker.New[string, pipeline.Outcome](workers, worker.WithProgress(func(done, _ int) {
		bar.Set(done)
	}))
	results := pool.Run(ctx, urls, orch.Run)
	bar.Finish()
	fmt.Println()
	return worker.Ordered(results)
}

func newProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// readURLs returns the distinct non-empty lines of r, skipping # comments.
func readURLs(r io.Reader) ([]string, error) {
	var (
		out  []string
		seen = map[string]bool{}
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	return out, sc.Err()
}

type batchSummary struct {
	Total      int
	Succeeded  int
	NoData     int
	Errors     int
	Skipped    int
	Techniques map[string]int
	Failures   []string
}

func summarize(results []worker.Result[string, pipeline.Outcome], total int) batchSummary {
	s := batchSummary{Total: total, Techniques: map[string]int{}}
	for _, r := range results {
		switch {
		case r.Err != nil:
			s.Errors++
			s.Failures = append(s.Failures, fmt.Sprintf("%s: %v", r.Item, r.Err))
		case r.Value.Success:
			s.Succeeded++
			s.Techniques[string(r.Value.Technique)]++
		default:
			s.NoData++
			s.Failures = append(s.Failures, r.Item+": no data")
		}
	}
	s.Skipped = total - len(results)
	return s
}

func renderSummary(w io.Writer, s batchSummary) {
	t := newTable(w, "Batch summary", table.Row{"Technique", "URLs"})
	names := make([]string, 0, len(s.Techniques))
	for k := range s.Techniques {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		t.AppendRow(table.Row{k, s.Techniques[k]})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"no data", s.NoData})
	t.AppendRow(table.Row{"errors", s.Errors})
	if s.Skipped > 0 {
		t.AppendRow(table.Row{"not started", s.Skipped})
	}
	t.AppendFooter(table.Row{"succeeded", fmt.Sprintf("%d / %d", s.Succeeded, s.Total)})
	t.Render()
	for _, f := range s.Failures {
		fmt.Fprintln(w, "  -", f)
	}
}
