package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/embed"
	"github.com/Aman-CERP/docindex/internal/fetch"
	"github.com/Aman-CERP/docindex/internal/mcp"
	"github.com/Aman-CERP/docindex/internal/pipeline"
	"github.com/Aman-CERP/docindex/internal/retriever"
	"github.com/Aman-CERP/docindex/internal/scheduler"
	"github.com/Aman-CERP/docindex/internal/store"
)

// configPath holds the --config flag value shared across subcommands; set
// by the root command's persistent flag.
var configPath string

// loadConfig resolves the effective config the same way every subcommand
// does: explicit --config flag path if given, else the user config search
// path, falling back to defaults when none exists.
func loadConfig(explicitPath string) (*config.Config, error) {
	cfg, err := config.Load(explicitPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// app bundles the runtime stack shared by every command that talks to the
// catalog: the hybrid search engine, the scrape scheduler, and the MCP tool
// surface wrapping both. Every subcommand other than `config`/`version`
// builds one of these against the resolved config.
type app struct {
	cfg     *config.Config
	catalog store.Catalog

	bm25     store.BM25Index
	vector   store.VectorStore
	embedder embed.Embedder

	engine    *retriever.Engine
	fetcher   fetch.Fetcher
	scheduler *scheduler.Scheduler
	server    *mcp.Server

	vectorPath string
}

// newApp builds the runtime stack against cfg.Store.Path: catalog, BM25
// index, embedder, vector index (loaded from disk if present), search
// engine, fetcher, scheduler, and MCP server.
func newApp(_ context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Store.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	a := &app{cfg: cfg}

	catalogPath := filepath.Join(cfg.Store.Path, "catalog.db")
	catalog, err := store.NewSQLiteCatalog(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	a.catalog = catalog

	bm25BasePath := filepath.Join(cfg.Store.Path, "bm25")
	bm25, err := store.NewBM25IndexWithBackend(bm25BasePath, store.DefaultBM25Config(), cfg.Store.BM25Backend)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open bm25 index: %w", err)
	}
	a.bm25 = bm25

	settings := embed.SettingsFromEnv(embed.SettingsFromConfig(cfg.Embeddings))
	embedder, err := embed.NewEmbedder(settings)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	a.embedder = embedder

	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	a.vector = vector
	a.vectorPath = filepath.Join(cfg.Store.Path, "vectors.hnsw")
	if _, statErr := os.Stat(a.vectorPath); statErr == nil {
		if loadErr := vector.Load(a.vectorPath); loadErr != nil {
			logger.Warn("failed to load vector index, starting empty", slog.String("error", loadErr.Error()))
		}
	}

	engine, err := retriever.NewEngine(bm25, vector, embedder, catalog, retriever.DefaultConfig())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create search engine: %w", err)
	}
	a.engine = engine

	a.fetcher = fetch.NewAutoFetcher(cfg.Scraper.FollowRedirects)

	pipelines := []pipeline.Pipeline{pipeline.NewProsePipeline()}
	a.scheduler = scheduler.New(catalog, engine, a.fetcher, pipelines, cfg.Scheduler, cfg.Scraper, logger)

	server, err := mcp.NewServer(catalog, engine, a.scheduler, a.fetcher, cfg, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create MCP server: %w", err)
	}
	a.server = server

	return a, nil
}

// Close saves the vector index to disk and releases every resource opened
// by newApp, tolerating a partially-constructed app from an earlier failure.
func (a *app) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.vector != nil {
		if err := a.vector.Save(a.vectorPath); err != nil {
			slog.Warn("failed to save vector index", slog.String("error", err.Error()))
		}
		record(a.vector.Close())
	}
	if a.embedder != nil {
		record(a.embedder.Close())
	}
	if a.bm25 != nil {
		record(a.bm25.Close())
	}
	if a.catalog != nil {
		record(a.catalog.Close())
	}
	return firstErr
}
