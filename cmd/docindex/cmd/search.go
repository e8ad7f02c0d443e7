package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/daemon"
	"github.com/Aman-CERP/docindex/internal/logging"
	"github.com/Aman-CERP/docindex/internal/mcp"
	"github.com/Aman-CERP/docindex/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	library  string
	version  string
	limit    int
	format   string // "text", "json"
	bm25Only bool   // skip semantic search, use BM25 only
	local    bool   // force local search (bypass daemon)
	explain  bool   // show search decision process
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed library documentation",
		Long: `Search indexed library documentation using hybrid search.

Combines BM25 (keyword) and semantic (embedding) search with Reciprocal
Rank Fusion for optimal results.

Examples:
  docindex search "useEffect cleanup" --library react
  docindex search "middleware" --library express --version 4.x --limit 5
  docindex search "routing" --library react --format json
  docindex search "hooks" --library react --explain`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.library, "library", "L", "", "Library to search within (required)")
	cmd.Flags().StringVarP(&opts.version, "version", "V", "", "Version to search (default: unversioned)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.bm25Only, "bm25-only", false, "Use keyword search only (skip semantic search)")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Force local search (bypass daemon)")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show search decision process (BM25/vector results, weights, RRF fusion)")
	_ = cmd.MarkFlagRequired("library")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if _, cleanup, err := logging.Setup(logCfg); err == nil {
		defer cleanup()
	}

	slog.Info("search_started", slog.String("query", query), slog.String("library", opts.library))
	out := output.New(cmd.OutOrStdout())

	daemonCfg := daemon.DefaultConfig()
	client := daemon.NewClient(daemonCfg)
	if !opts.local && client.IsRunning() {
		slog.Info("search_using_daemon")
		results, err := client.Search(ctx, daemon.SearchParams{
			Query:    query,
			Library:  opts.library,
			Version:  opts.version,
			Limit:    opts.limit,
			BM25Only: opts.bm25Only,
			Explain:  opts.explain,
		})
		if err != nil {
			slog.Warn("daemon search failed, falling back to local", slog.String("error", err.Error()))
		} else {
			slog.Info("search_complete", slog.String("mode", "daemon"), slog.Int("results", len(results)))
			return formatDaemonResults(cmd, out, query, results, opts.format)
		}
	}

	slog.Info("search_using_local")
	return runLocalSearch(ctx, cmd, query, opts)
}

// runLocalSearch builds the runtime stack directly and dispatches through
// the same search_docs tool handler the MCP server exposes.
func runLocalSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer a.Close()

	raw, err := a.server.CallTool(ctx, "search_docs", map[string]any{
		"library": opts.library,
		"version": opts.version,
		"query":   query,
		"limit":   opts.limit,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	result, ok := raw.(mcp.SearchDocsOutput)
	if !ok {
		return fmt.Errorf("unexpected search result type %T", raw)
	}
	slog.Info("search_complete", slog.String("mode", "local"), slog.Int("results", len(result.Results)))

	if len(result.Results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	switch opts.format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result.Results)
	default:
		out.Statusf("🔍", "Found %d results for %q:", len(result.Results), query)
		out.Newline()
		for i, r := range result.Results {
			out.Statusf("", "%d. %s (score: %.3f)", i+1, r.URL, r.Score)
			if r.Title != "" {
				out.Status("", "   "+r.Title)
			}
			for _, line := range getSnippet(r.Content, 3) {
				out.Status("", "   "+line)
			}
			out.Newline()
		}
		return nil
	}
}

// formatDaemonResults formats search results returned by the daemon.
func formatDaemonResults(cmd *cobra.Command, out *output.Writer, query string, results []daemon.SearchResult, format string) error {
	if len(results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	switch format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	default:
		if results[0].Explain != nil {
			formatDaemonExplainHeader(out, results[0].Explain)
		}

		out.Statusf("🔍", "Found %d results for %q:", len(results), query)
		out.Newline()

		hasExplain := results[0].Explain != nil
		for i, r := range results {
			if hasExplain {
				out.Statusf("", "%d. %s (score: %.3f)", i+1, r.URL, r.Score)
				out.Status("", fmt.Sprintf("      BM25: %.3f | Vector: %.3f", r.BM25Score, r.VecScore))
			} else {
				out.Statusf("", "%d. %s (score: %.2f)", i+1, r.URL, r.Score)
			}
			if r.Title != "" {
				out.Status("", "   "+r.Title)
			}
			for _, line := range getSnippet(r.Content, 3) {
				out.Status("", "   "+line)
			}
			out.Newline()
		}
		return nil
	}
}

// formatDaemonExplainHeader outputs the explain summary for daemon results.
func formatDaemonExplainHeader(out *output.Writer, explain *daemon.ExplainData) {
	out.Status("", "════════════════════════════════════════")
	out.Status("", "SEARCH EXPLANATION")
	out.Status("", "════════════════════════════════════════")
	out.Status("", fmt.Sprintf("Query: %q", explain.Query))
	out.Newline()

	switch {
	case explain.BM25Only:
		out.Status("", "Mode: BM25-only (--bm25-only flag)")
	case explain.DimensionMismatch:
		out.Status("", "Mode: BM25-only (embedder dimension mismatch)")
	default:
		out.Status("", "Mode: Hybrid (BM25 + Vector)")
	}
	out.Newline()

	out.Status("", fmt.Sprintf("BM25 Results: %d (weight: %.2f)", explain.BM25ResultCount, explain.BM25Weight))
	out.Status("", fmt.Sprintf("Vector Results: %d (weight: %.2f)", explain.VectorResultCount, explain.SemanticWeight))
	out.Status("", fmt.Sprintf("RRF Constant: k=%d", explain.RRFConstant))
	out.Status("", "════════════════════════════════════════")
	out.Newline()
}

// getSnippet returns up to the first n lines of content, with trailing blank
// lines dropped.
func getSnippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
