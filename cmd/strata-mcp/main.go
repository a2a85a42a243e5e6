package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/strata/config"
	"github.com/use-agent/strata/engine"
	"github.com/use-agent/strata/llm"
	"github.com/use-agent/strata/logging"
	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/pipeline"
	"github.com/use-agent/strata/scraper"
	"github.com/use-agent/strata/store"
	"github.com/use-agent/strata/strategy"
	"github.com/use-agent/strata/unlocker"
)

// datasets maps tool-facing names to stored file patterns.
var datasets = map[string]string{
	"stocks":          store.PatternStocks,
	"gold_galeri24":   store.PatternGoldGaleri24,
	"gold_harga_emas": store.PatternGoldHargaEmas,
	"crypto":          store.PatternCrypto,
	"currencies":      store.PatternCurrencies,
	"news":            store.PatternNews,
	"dramas":          store.PatternDramas,
}

// runner is the part of the orchestrator the extract tool needs.
type runner interface {
	Run(ctx context.Context, target string) (pipeline.Outcome, error)
}

func main() {
	cfg, err := config.Load(os.Getenv("STRATA_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirs(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	// stdout carries the protocol, so logs only go to stderr and the file.
	_, closer := logging.Setup(cfg.Log)
	defer closer.Close()

	st := store.New(cfg.Store.ResultDir)
	fetcher := engine.NewHTTPEngine(engine.WithTimeout(cfg.Scraper.RequestTimeout))
	opts := []pipeline.Option{
		pipeline.WithKeywords(cfg.Scraper.Keywords),
		pipeline.WithRequestTimeout(cfg.Scraper.RequestTimeout),
		pipeline.WithUnlocker(unlocker.New(cfg.Unlocker)),
		pipeline.WithSolver(unlocker.NewSolver(cfg.Unlocker)),
	}
	if cfg.LLM.Enabled {
		opts = append(opts, pipeline.WithLLM(llm.NewClient(cfg.LLM, nil), strategy.LLMOptions{
			MaxChars: cfg.LLM.MaxChars,
			MinChars: cfg.LLM.MinChars,
			Format:   cfg.LLM.InputFormat,
			Scope:    cfg.LLM.ContentSelector,
			Exclude:  cfg.LLM.ExcludeSelectors,
		}))
	}
	if os.Getenv("STRATA_MCP_NO_BROWSER") == "" {
		sc, err := scraper.NewScraper(cfg)
		if err != nil {
			slog.Warn("browser unavailable, extract_url runs plain HTTP states only", "error", err)
		} else {
			defer sc.Close()
			opts = append(opts, pipeline.WithBrowser(sc))
		}
	}
	orch := pipeline.New(fetcher, st, opts...)

	s := server.NewMCPServer(
		"strata",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	extractTool := mcp.NewTool("extract_url",
		mcp.WithDescription("Extract structured data from a web page. Tries plain HTTP, server-rendered JSON, browser network capture, DOM heuristics and an LLM fallback in turn, stores the result and returns it."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Absolute http(s) URL of the page"),
		),
	)
	s.AddTool(extractTool, handleExtractURL(orch))

	names := datasetNames()
	latestTool := mcp.NewTool("latest_dataset",
		mcp.WithDescription("Return the most recently stored dataset of a kind as JSON."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Dataset kind: "+strings.Join(names, ", ")),
			mcp.Enum(names...),
		),
	)
	s.AddTool(latestTool, handleLatestDataset(st))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func datasetNames() []string {
	names := make([]string, 0, len(datasets))
	for k := range datasets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func handleExtractURL(r runner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		out, err := r.Run(ctx, target)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("[%s] %v", models.ErrorCode(err), err)), nil
		}
		if !out.Success {
			return mcp.NewToolResultError(fmt.Sprintf("no data found at %s after %d attempts", target, len(out.Trace))), nil
		}

		body, err := json.MarshalIndent(out.Result.Data, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		header := fmt.Sprintf("Source: %s\nTechnique: %s\nSaved: %s\nElapsed: %s\n\n",
			target, out.Technique, out.Path, out.Elapsed.Round(time.Millisecond))
		return mcp.NewToolResultText(header + string(body)), nil
	}
}

func handleLatestDataset(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError("name is required"), nil
		}
		pattern, ok := datasets[strings.ToLower(name)]
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown dataset %q, use one of: %s", name, strings.Join(datasetNames(), ", "))), nil
		}

		path, result, err := st.LoadLatest(pattern)
		if err != nil {
			if models.ErrorCode(err) == models.ErrCodeNotFound {
				return mcp.NewToolResultError(fmt.Sprintf("no %s dataset stored yet", name)), nil
			}
			return mcp.NewToolResultError(err.Error()), nil
		}
		body, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode dataset: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("File: %s\n\n%s", path, body)), nil
	}
}
