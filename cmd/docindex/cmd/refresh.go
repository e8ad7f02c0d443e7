package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/mcp"
	"github.com/Aman-CERP/docindex/internal/output"
)

func newRefreshCmd() *cobra.Command {
	var version string

	cmd := &cobra.Command{
		Use:   "refresh <library>",
		Short: "Differentially re-crawl an already-indexed version",
		Long: `Enqueue a differential re-crawl of an already-indexed library
version. Unchanged pages (by ETag/Last-Modified) are left alone;
changed pages are re-fetched, re-chunked and re-indexed, and pages
that now return 404 are dropped from the catalog.`,
		Example: `  docindex refresh react
  docindex refresh express --version 4.x`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(cmd.Context(), cmd, args[0], version)
		},
	}

	cmd.Flags().StringVarP(&version, "version", "V", "", "Version to refresh (default: unversioned)")

	return cmd
}

func runRefresh(ctx context.Context, cmd *cobra.Command, library, version string) error {
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

	raw, err := a.server.CallTool(ctx, "refresh_version", map[string]any{
		"library": library,
		"version": version,
	})
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	result, ok := raw.(mcp.RefreshVersionOutput)
	if !ok {
		return fmt.Errorf("unexpected refresh result type %T", raw)
	}

	out.Success("Refresh job enqueued")
	out.Statusf("🆔", "Job ID: %s", result.JobID)

	return nil
}
