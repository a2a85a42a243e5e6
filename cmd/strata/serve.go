package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/strata/api"
	"github.com/use-agent/strata/api/handler"
	"github.com/use-agent/strata/cache"
	"github.com/use-agent/strata/convert"
	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/sites"
	"github.com/use-agent/strata/sites/pluang"
	"github.com/use-agent/strata/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the latest datasets over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg, noBrowser)
		defer a.Close()

		cc, closer, err := cache.FromConfig(cfg.Cache)
		if err != nil {
			return err
		}
		a.onClose(closer)

		registry, err := a.Sites(true)
		if err != nil {
			return err
		}
		stocks, err := registry.Lookup(pluang.Name)
		if err != nil {
			return err
		}
		crawler, _ := stocks.(sites.Crawler)

		notifier := webhook.New(cfg.Webhook)
		defer notifier.Wait()

		refresher := handler.NewRefresher(stockRefresh(a, crawler), cc, notifier, handler.DefaultRefreshTimeout)
		defer refresher.Wait()

		conv := convert.New(cfg.Convert)
		if !conv.Available(cmd.Context()) {
			slog.Warn("libreoffice not found, word-to-pdf will fail", "binary", cfg.Convert.Binary)
		}

		deps := api.Deps{
			Config:    cfg,
			Store:     a.store,
			Cache:     cc,
			Converter: conv,
			Refresher: refresher,
			Started:   time.Now(),
		}
		if sc, _ := a.Browser(); sc != nil {
			deps.Pool = sc
		}
		router := api.NewRouter(deps)

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{Addr: addr, Handler: router}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("HTTP server listening", "addr", addr, "mode", cfg.Server.Mode)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			slog.Info("shutdown signal received", "signal", sig.String())
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err)
		} else {
			slog.Info("HTTP server drained gracefully")
		}
		return nil
	},
}

// stockRefresh crawls every stock page and saves the dataset.
func stockRefresh(a *app, crawler sites.Crawler) handler.RefreshFunc {
	return func(ctx context.Context) (*models.RefreshResult, error) {
		if crawler == nil {
			return nil, models.NewScrapeError(models.ErrCodeUnavailable, "stock crawler not registered", nil)
		}
		ds, err := crawler.Crawl(ctx, sites.CrawlOptions{})
		if err != nil {
			return nil, err
		}
		path, err := saveDataset(a.store, ds)
		if err != nil {
			return nil, err
		}
		res := &models.RefreshResult{OutputFile: path}
		if data, ok := ds.Result.Data.(map[string]any); ok {
			if all, ok := data[models.KeyStocks].(map[string]any); ok {
				res.Items = len(all)
			}
		}
		if failed, ok := ds.Result.Metadata.Extra["failed_pages"].([]int); ok {
			res.Failed = failed
		}
		return res, nil
	}
}
