package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/store"
)

var showLimit int

func init() {
	showCmd.PersistentFlags().IntVarP(&showLimit, "limit", "n", 0, "print at most n rows (0 = all)")
	showCmd.AddCommand(
		&cobra.Command{Use: "stocks", Short: "Latest stock quotes", Args: cobra.NoArgs, RunE: runShow(showStocks)},
		&cobra.Command{Use: "gold", Short: "Latest gold prices of every source", Args: cobra.NoArgs, RunE: runShow(showGold)},
		&cobra.Command{Use: "news", Short: "Latest headlines", Args: cobra.NoArgs, RunE: runShow(showNews)},
		&cobra.Command{Use: "currencies", Short: "Latest currency pairs", Args: cobra.NoArgs, RunE: runShow(showCurrencies)},
	)
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Render the latest stored dataset as a table",
}

func runShow(fn func(st *store.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return fn(store.New(cfg.Store.ResultDir))
	}
}

// latest loads a dataset and prints a hint instead of failing when none
// exists yet.
func latest(st *store.Store, pattern string) (*models.NormalizedResult, bool, error) {
	path, r, err := st.LoadLatest(pattern)
	if err != nil {
		if models.ErrorCode(err) == models.ErrCodeNotFound {
			fmt.Printf("no dataset matching %s yet, run a scrape first\n", pattern)
			return nil, false, nil
		}
		return nil, false, err
	}
	fmt.Fprintln(os.Stderr, "source:", path)
	return r, true, nil
}

func showStocks(st *store.Store) error {
	r, ok, err := latest(st, store.PatternStocks)
	if ok {
		renderStocks(os.Stdout, r, showLimit)
	}
	return err
}

func showGold(st *store.Store) error {
	for _, src := range []struct{ name, pattern string }{
		{"galeri24.co.id", store.PatternGoldGaleri24},
		{"harga-emas.org", store.PatternGoldHargaEmas},
	} {
		r, ok, err := latest(st, src.pattern)
		if err != nil {
			return err
		}
		if ok {
			renderGold(os.Stdout, src.name, r)
		}
	}
	return nil
}

func showNews(st *store.Store) error {
	r, ok, err := latest(st, store.PatternNews)
	if ok {
		renderNews(os.Stdout, r, showLimit)
	}
	return err
}

func showCurrencies(st *store.Store) error {
	r, ok, err := latest(st, store.PatternCurrencies)
	if ok {
		renderCurrencies(os.Stdout, r)
	}
	return err
}
