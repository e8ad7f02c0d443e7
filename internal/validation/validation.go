// Package validation provides dogfooding test infrastructure: it indexes a
// small fixture documentation tree through the real scheduler/engine and
// runs data-driven queries against the resulting MCP server, the same way a
// client would call search_docs/find_version/list_libraries.
//
// Validation queries are data-driven, loaded from testdata/queries.yaml, so
// the query set can be extended without a rebuild.
package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/embed"
	"github.com/Aman-CERP/docindex/internal/fetch"
	"github.com/Aman-CERP/docindex/internal/mcp"
	"github.com/Aman-CERP/docindex/internal/pipeline"
	"github.com/Aman-CERP/docindex/internal/retriever"
	"github.com/Aman-CERP/docindex/internal/scheduler"
	"github.com/Aman-CERP/docindex/internal/store"
)

// QuerySpec defines a single validation query and its expected outcome.
type QuerySpec struct {
	ID       string   `yaml:"id"`       // e.g. "T1-Q3"
	Name     string   `yaml:"name"`     // human-readable name
	Tool     string   `yaml:"tool"`     // "search_docs", "find_version", or "list_libraries"
	Library  string   `yaml:"library"`  // library name passed to the tool
	Version  string   `yaml:"version"`  // version name passed to the tool, if any
	Query    string   `yaml:"query"`    // the search query, for search_docs
	Expected []string `yaml:"expected"` // URL substrings that should appear in results
	Notes    string   `yaml:"notes"`    // optional explanation for maintainers
	Tier     int      `yaml:"-"`        // set programmatically based on section
}

// QueryConfig holds every validation query loaded from YAML.
type QueryConfig struct {
	Tier1    []QuerySpec `yaml:"tier1"`
	Tier2    []QuerySpec `yaml:"tier2"`
	Negative []QuerySpec `yaml:"negative"`
}

var (
	queriesOnce sync.Once
	queriesData *QueryConfig
	queriesErr  error
)

// LoadQueries loads validation queries from testdata/queries.yaml, caching
// the result after the first call.
func LoadQueries() (*QueryConfig, error) {
	queriesOnce.Do(func() {
		_, filename, _, ok := runtime.Caller(0)
		if !ok {
			queriesErr = fmt.Errorf("failed to get current file path")
			return
		}

		path := filepath.Join(filepath.Dir(filename), "testdata", "queries.yaml")
		data, err := os.ReadFile(path)
		if err != nil {
			queriesErr = fmt.Errorf("failed to read queries file %s: %w", path, err)
			return
		}

		var cfg QueryConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			queriesErr = fmt.Errorf("failed to parse queries YAML: %w", err)
			return
		}

		for i := range cfg.Tier1 {
			cfg.Tier1[i].Tier = 1
		}
		for i := range cfg.Tier2 {
			cfg.Tier2[i].Tier = 2
		}
		for i := range cfg.Negative {
			cfg.Negative[i].Tier = 0
		}

		queriesData = &cfg
	})

	return queriesData, queriesErr
}

// ResetQueries clears the cached queries. For tests that reload the file.
func ResetQueries() {
	queriesOnce = sync.Once{}
	queriesData = nil
	queriesErr = nil
}

// TestResult captures the outcome of a single query.
type TestResult struct {
	Spec      QuerySpec
	Passed    bool
	Duration  time.Duration
	TopURLs   []string
	MatchedAt int // position of the first matching URL, -1 if none
	Error     string
}

// ValidationResult captures the outcome of a full validation run.
type ValidationResult struct {
	Timestamp  time.Time
	Tier1      []TestResult
	Tier2      []TestResult
	Negative   []TestResult
	Tier1Pass  int
	Tier1Total int
	Tier2Pass  int
	Tier2Total int
	NegPass    int
	NegTotal   int
	Embedder   string
}

func Tier1Queries() []QuerySpec { return queriesOr(func(c *QueryConfig) []QuerySpec { return c.Tier1 }) }
func Tier2Queries() []QuerySpec { return queriesOr(func(c *QueryConfig) []QuerySpec { return c.Tier2 }) }
func NegativeQueries() []QuerySpec {
	return queriesOr(func(c *QueryConfig) []QuerySpec { return c.Negative })
}

func queriesOr(pick func(*QueryConfig) []QuerySpec) []QuerySpec {
	cfg, err := LoadQueries()
	if err != nil {
		return nil
	}
	return pick(cfg)
}

// Validator runs validation queries against an in-memory docindex instance
// seeded from a fixture documentation tree.
type Validator struct {
	server    *mcp.Server
	catalog   store.Catalog
	bm25      store.BM25Index
	vector    store.VectorStore
	embedder  embed.Embedder
	scheduler *scheduler.Scheduler
}

// NewValidator builds a fresh in-memory catalog/index/scheduler, scrapes
// fixtureDir (a local directory of markdown/HTML fixtures) as a file://
// source into library "fixture", and blocks until indexing completes.
func NewValidator(ctx context.Context, fixtureDir string) (*Validator, error) {
	cfg := config.NewConfig()

	catalog, err := store.NewSQLiteCatalog("")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	bm25, err := store.NewBM25IndexWithBackend("", store.DefaultBM25Config(), "sqlite")
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("failed to open bm25 index: %w", err)
	}

	settings := embed.SettingsFromEnv(embed.SettingsFromConfig(cfg.Embeddings))
	embedder, err := embed.NewEmbedder(settings)
	if err != nil {
		bm25.Close()
		catalog.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	if err != nil {
		embedder.Close()
		bm25.Close()
		catalog.Close()
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	engine, err := retriever.NewEngine(bm25, vector, embedder, catalog, retriever.DefaultConfig())
	if err != nil {
		embedder.Close()
		bm25.Close()
		catalog.Close()
		return nil, fmt.Errorf("failed to create search engine: %w", err)
	}

	fetcher := fetch.NewAutoFetcher(cfg.Scraper.FollowRedirects)
	pipelines := []pipeline.Pipeline{pipeline.NewProsePipeline()}
	sched := scheduler.New(catalog, engine, fetcher, pipelines, cfg.Scheduler, cfg.Scraper, nil)

	server, err := mcp.NewServer(catalog, engine, sched, fetcher, cfg, nil)
	if err != nil {
		embedder.Close()
		bm25.Close()
		catalog.Close()
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}

	v := &Validator{server: server, catalog: catalog, bm25: bm25, vector: vector, embedder: embedder, scheduler: sched}

	if fixtureDir != "" {
		if err := v.seed(ctx, fixtureDir); err != nil {
			v.Close()
			return nil, err
		}
	}

	return v, nil
}

// seed scrapes fixtureDir into library "fixture" and waits for the job to
// leave the running state.
func (v *Validator) seed(ctx context.Context, fixtureDir string) error {
	absDir, err := filepath.Abs(fixtureDir)
	if err != nil {
		return fmt.Errorf("failed to resolve fixture dir: %w", err)
	}
	sourceURL := "file://" + absDir

	versionID, err := v.catalog.ResolveVersion(ctx, "fixture", "")
	if err != nil {
		return fmt.Errorf("failed to resolve fixture version: %w", err)
	}
	opts := store.ScraperOptions{MaxPages: 200, MaxDepth: 10, Scope: "subpages", IgnoreErrors: true, MaxConcurrency: 2}
	if err := v.catalog.SetScraperOptions(ctx, versionID, sourceURL, opts); err != nil {
		return fmt.Errorf("failed to set fixture scraper options: %w", err)
	}
	ver, err := v.catalog.GetVersion(ctx, versionID)
	if err != nil {
		return fmt.Errorf("failed to load fixture version: %w", err)
	}

	events, unsubscribe := v.scheduler.Subscribe(versionID)
	defer unsubscribe()

	if _, err := v.scheduler.Enqueue(ctx, ver, sourceURL, opts); err != nil {
		return fmt.Errorf("failed to enqueue fixture scrape: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("fixture scrape event channel closed before completion")
			}
			if ev.Type != scheduler.EventJobStatusChange {
				continue
			}
			switch ev.Status {
			case store.StatusCompleted:
				return nil
			case store.StatusFailed, store.StatusCancelled:
				return fmt.Errorf("fixture scrape ended in status %s: %s", ev.Status, ev.Error)
			}
		}
	}
}

// Close releases the embedder and stores owned by this validator.
func (v *Validator) Close() error {
	if v.embedder != nil {
		v.embedder.Close()
	}
	if v.bm25 != nil {
		v.bm25.Close()
	}
	if v.vector != nil {
		v.vector.Close()
	}
	if v.catalog != nil {
		v.catalog.Close()
	}
	return nil
}

// RunQuery executes a single query against the MCP server's generic tool
// dispatch and checks whether the expected URLs appear in the response.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) TestResult {
	start := time.Now()
	result := TestResult{Spec: spec, MatchedAt: -1}

	args := map[string]any{}
	if spec.Library != "" {
		args["library"] = spec.Library
	}
	if spec.Version != "" {
		args["version"] = spec.Version
	}
	if spec.Query != "" {
		args["query"] = spec.Query
		args["limit"] = 10
	}

	resp, err := v.server.CallTool(ctx, spec.Tool, args)
	result.Duration = time.Since(start)

	if err != nil {
		// Negative tests expect a clean error, not a crash.
		if spec.Tier == 0 {
			result.Passed = true
		} else {
			result.Error = err.Error()
		}
		return result
	}

	result.TopURLs = extractURLs(resp)

	if len(spec.Expected) == 0 {
		result.Passed = true
		return result
	}
	result.Passed, result.MatchedAt = checkExpected(result.TopURLs, spec.Expected)
	return result
}

// RunAll executes every loaded query and returns the aggregated results.
func (v *Validator) RunAll(ctx context.Context) *ValidationResult {
	result := &ValidationResult{Timestamp: time.Now(), Embedder: v.embedder.ModelName()}

	for _, spec := range Tier1Queries() {
		tr := v.RunQuery(ctx, spec)
		result.Tier1 = append(result.Tier1, tr)
		result.Tier1Total++
		if tr.Passed {
			result.Tier1Pass++
		}
	}
	for _, spec := range Tier2Queries() {
		tr := v.RunQuery(ctx, spec)
		result.Tier2 = append(result.Tier2, tr)
		result.Tier2Total++
		if tr.Passed {
			result.Tier2Pass++
		}
	}
	for _, spec := range NegativeQueries() {
		tr := v.RunQuery(ctx, spec)
		result.Negative = append(result.Negative, tr)
		result.NegTotal++
		if tr.Passed {
			result.NegPass++
		}
	}

	return result
}

// extractURLs pulls result/version/library URLs out of a CallTool response,
// regardless of which of the three query-capable tools produced it.
func extractURLs(resp any) []string {
	var urls []string
	switch out := resp.(type) {
	case mcp.SearchDocsOutput:
		for _, r := range out.Results {
			urls = append(urls, r.URL)
		}
	case mcp.FindVersionOutput:
		if out.BestMatch != "" {
			urls = append(urls, out.BestMatch)
		}
		urls = append(urls, out.Suggestions...)
	case mcp.ListLibrariesOutput:
		for _, lib := range out.Libraries {
			urls = append(urls, lib.Library)
		}
	case mcp.ListVersionsOutput:
		for _, v := range out.Versions {
			urls = append(urls, v.Version)
		}
	}
	return urls
}

// checkExpected reports whether any expected substring appears in results,
// and the position of the first match.
func checkExpected(results []string, expected []string) (bool, int) {
	for i, got := range results {
		for _, exp := range expected {
			if strings.Contains(got, exp) {
				return true, i
			}
		}
	}
	return false, -1
}
