package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show catalog health and status",
		Long: `Display information about the current catalog including:
  - Number of libraries and versions
  - Most recent scrape time
  - Storage sizes (catalog, BM25, vectors)
  - Configured embedder (provider and model); availability is not probed
  - Scheduler status, which this command does not query and shows as n/a`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	catalogPath := filepath.Join(cfg.Store.Path, "catalog.db")
	if !fileExists(catalogPath) {
		return fmt.Errorf("no catalog found at %s\nRun 'docindex scrape' to create one", cfg.Store.Path)
	}

	info, err := collectStatus(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	noColor := ui.DetectNoColor()
	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor)

	if jsonOutput {
		return renderer.RenderJSON(info)
	}

	return renderer.Render(info)
}

func collectStatus(ctx context.Context, cfg *config.Config) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		StoreName: filepath.Base(cfg.Store.Path),
	}

	catalogPath := filepath.Join(cfg.Store.Path, "catalog.db")
	catalog, err := store.NewSQLiteCatalog(catalogPath)
	if err != nil {
		return info, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = catalog.Close() }()

	libraries, err := catalog.ListLibraries(ctx)
	if err != nil {
		return info, fmt.Errorf("failed to list libraries: %w", err)
	}
	info.TotalLibraries = len(libraries)

	var versionCount int
	for _, lib := range libraries {
		versions, err := catalog.ListVersions(ctx, lib.ID)
		if err != nil {
			continue
		}
		versionCount += len(versions)
		for _, v := range versions {
			if v.UpdatedAt.After(info.LastIndexed) {
				info.LastIndexed = v.UpdatedAt
			}
		}
	}
	info.TotalVersions = versionCount

	info.MetadataSize = getFileSize(catalogPath)

	bm25SQLitePath := filepath.Join(cfg.Store.Path, "bm25")
	if size := getDirSize(bm25SQLitePath); size > 0 {
		info.BM25Size = size
	} else {
		info.BM25Size = getFileSize(bm25SQLitePath)
	}

	vectorPath := filepath.Join(cfg.Store.Path, "vectors.hnsw")
	info.VectorSize = getFileSize(vectorPath)

	info.TotalSize = info.MetadataSize + info.BM25Size + info.VectorSize

	info.EmbedderType = cfg.Embeddings.Provider
	info.EmbedderModel = cfg.Embeddings.Model
	info.EmbedderStatus = "ready"

	info.SchedulerStatus = "n/a"

	return info, nil
}

// getFileSize returns the size of a file in bytes.
func getFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// getDirSize returns the total size of all files in a directory.
func getDirSize(path string) int64 {
	var size int64

	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})

	return size
}
