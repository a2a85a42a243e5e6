package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/use-agent/strata/cache"
	"github.com/use-agent/strata/pipeline"
)

var showTrace bool

func init() {
	scrapeCmd.Flags().BoolVar(&showTrace, "trace", false, "print every attempted strategy")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Run the extraction pipeline against one URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a := newApp(cfg, noBrowser)
		defer a.Close()

		cc, closer, err := cache.FromConfig(cfg.Cache)
		if err != nil {
			return err
		}
		a.onClose(closer)

		out, err := a.Orchestrator(cc).Run(ctx, args[0])
		if showTrace {
			renderTrace(os.Stdout, out.Trace)
		}
		if err != nil {
			return err
		}
		printOutcome(out)
		return nil
	},
}

// printOutcome reports one run. Exhaustion is not an error.
func printOutcome(out pipeline.Outcome) {
	if !out.Success {
		fmt.Println(text.FgRed.Sprintf("no data: %s (%d attempts, %s)", out.URL, len(out.Trace), out.Elapsed.Round(time.Millisecond)))
		return
	}
	fmt.Println(text.FgGreen.Sprintf("%s via %s", out.URL, out.Technique))
	fmt.Println(out.Path)
}

// signalContext is cancelled on Ctrl-C or SIGTERM so pools stop taking work.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
