package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/strata/config"
	"github.com/use-agent/strata/logging"
)

var (
	Version = "dev"

	configFile string
	logLevel   string
	noBrowser  bool

	cfg      *config.Config
	logClose io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Layered web data extractor",
	Long: `strata tries increasingly expensive extraction techniques against a URL
(plain HTTP, SSR JSON, browser network capture, DOM heuristics, LLM) until one
yields structured data, then normalizes and stores it as JSON.

The same datasets are served by "strata serve" and rendered by "strata show".`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		if err := c.EnsureDirs(); err != nil {
			return err
		}
		_, logClose = logging.Setup(c.Log)
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logClose != nil {
			logClose.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().BoolVar(&noBrowser, "no-browser", false, "skip every browser-driven technique")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
