// Package config loads the layered docindex configuration: hardcoded
// defaults, an optional YAML file, then environment variable overrides.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete docindex configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Scraper    ScraperConfig    `yaml:"scraper" json:"scraper"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" json:"scheduler"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Compaction CompactionConfig `yaml:"compaction" json:"compaction"`
}

// CompactionConfig controls background rebuilding of the vector index to
// drop lazily-deleted orphan nodes left behind by refreshes (§5.3).
type CompactionConfig struct {
	// Enabled turns on idle-triggered compaction in `docindex daemon`.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// IdleTimeout is how long the engine must go without a search before
	// it's considered eligible for compaction, as a duration string.
	IdleTimeout string `yaml:"idle_timeout" json:"idle_timeout"`
	// Cooldown is the minimum time between two compactions, as a duration
	// string.
	Cooldown string `yaml:"cooldown" json:"cooldown"`
	// OrphanThreshold is the orphan/total ratio above which compaction runs.
	OrphanThreshold float64 `yaml:"orphan_threshold" json:"orphan_threshold"`
	// MinOrphanCount avoids compacting tiny indices with a high ratio but
	// few absolute orphans.
	MinOrphanCount int `yaml:"min_orphan_count" json:"min_orphan_count"`
}

// StoreConfig configures the on-disk catalog + chunk store.
type StoreConfig struct {
	// Path is the directory holding the SQLite catalog/FTS file and the
	// HNSW vector index file. Defaults to ~/.docindex/store.
	Path string `yaml:"path" json:"path"`
	// BM25Backend selects the full-text backend: "sqlite" (default, FTS5,
	// concurrent multi-process access via WAL) or "bleve" (single-process).
	BM25Backend string `yaml:"bm25_backend" json:"bm25_backend"`
	// SQLiteCacheMB sizes the SQLite page cache.
	SQLiteCacheMB int `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// SearchConfig configures hybrid search fusion parameters (§4.1).
type SearchConfig struct {
	// BM25Weight is the weight for full-text results in fusion (0.0-1.0).
	BM25Weight float64 `yaml:"bm25_weight" json:"bm25_weight"`
	// SemanticWeight is the weight for vector results in fusion (0.0-1.0).
	// Must sum to 1.0 with BM25Weight.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	// RRFConstant is the reciprocal-rank-fusion smoothing constant k.
	// Default 60 (spec §4.1).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// DefaultLimit is the outer-service default result count (spec §4.1: 5).
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
}

// EmbeddingsConfig configures the embedding provider (§4.6).
type EmbeddingsConfig struct {
	// Provider:Model spec string, e.g. "openai:text-embedding-3-small",
	// "vertex:text-embedding-004", "gemini:text-embedding-004",
	// "bedrock:amazon.titan-embed-text-v2:0", "azure:text-embedding-3-small",
	// "sagemaker:<endpoint-name>".
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	// Dimensions is the fixed dimension D all chunk vectors are stored at
	// (default 1536). Providers whose native dimension differs are wrapped
	// by a fixed-dimension adapter.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	BatchSize  int `yaml:"batch_size" json:"batch_size"`
	// BaseURL is used by the OpenAI-compatible provider for self-hosted,
	// SageMaker-fronted, or Azure-OpenAI-compatible endpoints.
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// CacheSize bounds the in-process LRU embedding cache (by text hash).
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// Project and Location are used by the vertex provider.
	Project  string `yaml:"project,omitempty" json:"project,omitempty"`
	Location string `yaml:"location,omitempty" json:"location,omitempty"`
	// Region is used by the bedrock provider.
	Region string `yaml:"region,omitempty" json:"region,omitempty"`
}

// ScraperConfig holds the defaults merged into a version's scraper options
// when a scrape_docs call omits them (wire shape in spec §6).
type ScraperConfig struct {
	MaxPages        int      `yaml:"max_pages" json:"max_pages"`
	MaxDepth        int      `yaml:"max_depth" json:"max_depth"`
	Scope           string   `yaml:"scope" json:"scope"` // subpages|hostname|domain
	FollowRedirects bool     `yaml:"follow_redirects" json:"follow_redirects"`
	IgnoreErrors    bool     `yaml:"ignore_errors" json:"ignore_errors"`
	MaxConcurrency  int      `yaml:"max_concurrency" json:"max_concurrency"`
	IncludePatterns []string `yaml:"include_patterns" json:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns" json:"exclude_patterns"`
	ScrapeMode      string   `yaml:"scrape_mode" json:"scrape_mode"` // auto|fetch|playwright
	MaxRetries      int      `yaml:"max_retries" json:"max_retries"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
}

// SchedulerConfig configures the pipeline manager worker pool (§4.4, §5).
type SchedulerConfig struct {
	// MaxConcurrency is the bounded worker pool size (default 3).
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`
	// EventBufferSize bounds the per-version progress/status event channel.
	EventBufferSize int `yaml:"event_buffer_size" json:"event_buffer_size"`
}

// ServerConfig configures the MCP server and operator HTTP UI.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"` // stdio|sse
	HTTPAddr  string `yaml:"http_addr" json:"http_addr"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"` // json|text
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Store: StoreConfig{
			Path:          defaultStorePath(),
			BM25Backend:   "sqlite",
			SQLiteCacheMB: 64,
		},
		Search: SearchConfig{
			BM25Weight:     0.35,
			SemanticWeight: 0.65,
			RRFConstant:    60,
			DefaultLimit:   5,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "",
			Model:      "",
			Dimensions: 1536,
			BatchSize:  32,
			Timeout:    30 * time.Second,
			CacheSize:  4096,
		},
		Scraper: ScraperConfig{
			MaxPages:        500,
			MaxDepth:        5,
			Scope:           "subpages",
			FollowRedirects: true,
			IgnoreErrors:    true,
			MaxConcurrency:  4,
			ScrapeMode:      "auto",
			MaxRetries:      3,
			FetchTimeout:    30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			MaxConcurrency:  3,
			EventBufferSize: 64,
		},
		Server: ServerConfig{
			Transport: "stdio",
			HTTPAddr:  ":8765",
			LogLevel:  "info",
			LogFormat: "text",
		},
		Compaction: CompactionConfig{
			Enabled:         true,
			IdleTimeout:     "30s",
			Cooldown:        "1h",
			OrphanThreshold: 0.2,
			MinOrphanCount:  100,
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docindex", "store")
	}
	return filepath.Join(home, ".docindex", "store")
}

// GetUserConfigPath returns the path to the user/global configuration file,
// following the XDG Base Directory spec.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "docindex", "config.yaml")
}

// Load applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/docindex/config.yaml)
//  3. Explicit config path, if non-empty
//  4. Environment variables (DOCINDEX_*)
func Load(explicitPath string) (*Config, error) {
	cfg := NewConfig()

	if fileExists(GetUserConfigPath()) {
		if err := cfg.loadYAML(GetUserConfigPath()); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if explicitPath != "" {
		if err := cfg.loadYAML(explicitPath); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}
	if other.Store.BM25Backend != "" {
		c.Store.BM25Backend = other.Store.BM25Backend
	}
	if other.Store.SQLiteCacheMB != 0 {
		c.Store.SQLiteCacheMB = other.Store.SQLiteCacheMB
	}

	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.BaseURL != "" {
		c.Embeddings.BaseURL = other.Embeddings.BaseURL
	}
	if other.Embeddings.Timeout != 0 {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.Project != "" {
		c.Embeddings.Project = other.Embeddings.Project
	}
	if other.Embeddings.Location != "" {
		c.Embeddings.Location = other.Embeddings.Location
	}
	if other.Embeddings.Region != "" {
		c.Embeddings.Region = other.Embeddings.Region
	}

	if other.Scraper.MaxPages != 0 {
		c.Scraper.MaxPages = other.Scraper.MaxPages
	}
	if other.Scraper.MaxDepth != 0 {
		c.Scraper.MaxDepth = other.Scraper.MaxDepth
	}
	if other.Scraper.Scope != "" {
		c.Scraper.Scope = other.Scraper.Scope
	}
	if other.Scraper.MaxConcurrency != 0 {
		c.Scraper.MaxConcurrency = other.Scraper.MaxConcurrency
	}
	if len(other.Scraper.IncludePatterns) > 0 {
		c.Scraper.IncludePatterns = other.Scraper.IncludePatterns
	}
	if len(other.Scraper.ExcludePatterns) > 0 {
		c.Scraper.ExcludePatterns = other.Scraper.ExcludePatterns
	}
	if other.Scraper.ScrapeMode != "" {
		c.Scraper.ScrapeMode = other.Scraper.ScrapeMode
	}
	if other.Scraper.MaxRetries != 0 {
		c.Scraper.MaxRetries = other.Scraper.MaxRetries
	}
	if other.Scraper.FetchTimeout != 0 {
		c.Scraper.FetchTimeout = other.Scraper.FetchTimeout
	}

	if other.Scheduler.MaxConcurrency != 0 {
		c.Scheduler.MaxConcurrency = other.Scheduler.MaxConcurrency
	}
	if other.Scheduler.EventBufferSize != 0 {
		c.Scheduler.EventBufferSize = other.Scheduler.EventBufferSize
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.HTTPAddr != "" {
		c.Server.HTTPAddr = other.Server.HTTPAddr
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.LogFormat != "" {
		c.Server.LogFormat = other.Server.LogFormat
	}

	if other.Compaction.IdleTimeout != "" {
		c.Compaction.IdleTimeout = other.Compaction.IdleTimeout
	}
	if other.Compaction.Cooldown != "" {
		c.Compaction.Cooldown = other.Compaction.Cooldown
	}
	if other.Compaction.OrphanThreshold != 0 {
		c.Compaction.OrphanThreshold = other.Compaction.OrphanThreshold
	}
	if other.Compaction.MinOrphanCount != 0 {
		c.Compaction.MinOrphanCount = other.Compaction.MinOrphanCount
	}
}

// applyEnvOverrides applies DOCINDEX_* environment variable overrides, the
// highest-precedence configuration layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCINDEX_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("DOCINDEX_BM25_BACKEND"); v != "" {
		c.Store.BM25Backend = v
	}
	if v := os.Getenv("DOCINDEX_BM25_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.BM25Weight = w
		}
	}
	if v := os.Getenv("DOCINDEX_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("DOCINDEX_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("DOCINDEX_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("DOCINDEX_EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DOCINDEX_EMBED_DIMENSIONS"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Embeddings.Dimensions = d
		}
	}
	if v := os.Getenv("DOCINDEX_EMBED_BASE_URL"); v != "" {
		c.Embeddings.BaseURL = v
	}
	if v := os.Getenv("DOCINDEX_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("DOCINDEX_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("DOCINDEX_HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}
	if v := os.Getenv("DOCINDEX_SCHEDULER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Scheduler.MaxConcurrency = n
		}
	}
}

func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return fmt.Errorf("search.bm25_weight must be between 0 and 1, got %f", c.Search.BM25Weight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("search.semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	if sum := c.Search.BM25Weight + c.Search.SemanticWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("search.bm25_weight + search.semantic_weight must equal 1.0, got %.2f", sum)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}

	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	validScopes := map[string]bool{"subpages": true, "hostname": true, "domain": true}
	if !validScopes[c.Scraper.Scope] {
		return fmt.Errorf("scraper.scope must be 'subpages', 'hostname', or 'domain', got %s", c.Scraper.Scope)
	}

	if c.Scheduler.MaxConcurrency <= 0 {
		return fmt.Errorf("scheduler.max_concurrency must be positive, got %d", c.Scheduler.MaxConcurrency)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// defaultIndexWorkers returns a sensible default for CPU-bound chunk
// splitting work, independent of the I/O-bound scheduler concurrency.
func defaultIndexWorkers() int {
	return runtime.NumCPU()
}
