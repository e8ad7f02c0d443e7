package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/mcp"
	"github.com/Aman-CERP/docindex/internal/output"
)

type scrapeOptions struct {
	library         string
	version         string
	maxPages        int
	maxDepth        int
	scope           string
	followRedirects bool
	ignoreErrors    bool
}

func newScrapeCmd() *cobra.Command {
	var opts scrapeOptions

	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Crawl a documentation site or local tree into the catalog",
		Long: `Crawl a documentation site (http/https) or a local file tree
(file://) and index it into the catalog under the given library and
version. The crawl runs in the background scheduler; this command
returns as soon as the job is enqueued.

Use 'docindex libraries' or 'docindex status' to check progress.`,
		Example: `  docindex scrape https://react.dev/reference --library react
  docindex scrape https://expressjs.com/en/4x --library express --version 4.x
  docindex scrape file:///home/user/docs/mylib --library mylib --max-depth 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.library, "library", "L", "", "Library to index under (required)")
	cmd.Flags().StringVarP(&opts.version, "version", "V", "", "Version name (default: unversioned)")
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", 0, "Maximum pages to crawl (0 uses server default)")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", 0, "Maximum link depth from the start URL (0 uses server default)")
	cmd.Flags().StringVar(&opts.scope, "scope", "", "Crawl scope: subpages, hostname, or domain (empty uses server default)")
	cmd.Flags().BoolVar(&opts.followRedirects, "follow-redirects", false, "Follow HTTP redirects")
	cmd.Flags().BoolVar(&opts.ignoreErrors, "ignore-errors", false, "Skip failed pages instead of failing the whole job")
	_ = cmd.MarkFlagRequired("library")

	return cmd
}

func runScrape(ctx context.Context, cmd *cobra.Command, url string, opts scrapeOptions) error {
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

	args := map[string]any{
		"url":     url,
		"library": opts.library,
		"version": opts.version,
	}
	if opts.maxPages > 0 || opts.maxDepth > 0 || opts.scope != "" || opts.followRedirects || opts.ignoreErrors {
		args["options"] = map[string]any{
			"max_pages":        opts.maxPages,
			"max_depth":        opts.maxDepth,
			"scope":            opts.scope,
			"follow_redirects": opts.followRedirects,
			"ignore_errors":    opts.ignoreErrors,
		}
	}

	raw, err := a.server.CallTool(ctx, "scrape_docs", args)
	if err != nil {
		return fmt.Errorf("scrape failed: %w", err)
	}

	result, ok := raw.(mcp.ScrapeDocsOutput)
	if !ok {
		return fmt.Errorf("unexpected scrape result type %T", raw)
	}

	out.Success("Scrape job enqueued")
	out.Statusf("🆔", "Job ID: %s", result.JobID)
	out.Statusf("📚", "Library: %s", opts.library)
	out.Status("💡", "Check progress with 'docindex status' or 'docindex libraries'")

	return nil
}
