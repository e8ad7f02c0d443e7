package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/mcp"
	"github.com/Aman-CERP/docindex/internal/output"
)

func newLibrariesCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "libraries [library]",
		Aliases: []string{"ls"},
		Short:   "List indexed libraries and versions",
		Long: `List every indexed library and the status, page count, and
source URL of each of its versions. Pass a library name to list only
that library's versions.`,
		Example: `  docindex libraries
  docindex libraries react --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			library := ""
			if len(args) > 0 {
				library = args[0]
			}
			return runLibraries(cmd.Context(), cmd, library, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runLibraries(ctx context.Context, cmd *cobra.Command, library string, jsonOutput bool) error {
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

	var summaries []mcp.LibrarySummary

	if library == "" {
		raw, err := a.server.CallTool(ctx, "list_libraries", map[string]any{})
		if err != nil {
			return fmt.Errorf("list libraries failed: %w", err)
		}
		result, ok := raw.(mcp.ListLibrariesOutput)
		if !ok {
			return fmt.Errorf("unexpected list_libraries result type %T", raw)
		}
		summaries = result.Libraries
	} else {
		raw, err := a.server.CallTool(ctx, "list_versions", map[string]any{"library": library})
		if err != nil {
			return fmt.Errorf("list versions failed: %w", err)
		}
		result, ok := raw.(mcp.ListVersionsOutput)
		if !ok {
			return fmt.Errorf("unexpected list_versions result type %T", raw)
		}
		summaries = []mcp.LibrarySummary{{Library: library, Versions: result.Versions}}
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	if len(summaries) == 0 {
		out.Status("", "No libraries indexed yet")
		out.Status("💡", "Run 'docindex scrape <url> --library <name>' to add one")
		return nil
	}

	for _, lib := range summaries {
		out.Statusf("📚", "%s", lib.Library)
		for _, v := range lib.Versions {
			name := v.Version
			if name == "" {
				name = "(unversioned)"
			}
			out.Status("", fmt.Sprintf("   %-20s %-12s %d pages   %s", name, v.Status, v.PageCount, v.SourceURL))
		}
	}

	return nil
}
