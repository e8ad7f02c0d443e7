// Package store provides the persistent library/version/page/chunk catalog,
// the full-text (BM25) index, and the vector (HNSW) index that together back
// hybrid search.
package store

import (
	"context"
	"fmt"
	"time"
)

// ContentType classifies a page for assembly-strategy selection (§4.7).
type ContentType string

const (
	ContentTypeProse     ContentType = "prose"
	ContentTypeCode      ContentType = "code"
	ContentTypeJSON      ContentType = "json"
	ContentTypeUnknown   ContentType = "unknown"
)

// State keys for the embedding_config singleton (§3, §4.1).
const (
	StateKeyEmbeddingProvider   = "embedding_provider"
	StateKeyEmbeddingModel      = "embedding_model"
	StateKeyEmbeddingDimensions = "embedding_dimensions"
	StateKeyEmbeddingSpec       = "embedding_spec"
)

// VersionStatus is the version state-machine status (§4.4).
type VersionStatus string

const (
	StatusNotIndexed VersionStatus = "NOT_INDEXED"
	StatusQueued     VersionStatus = "QUEUED"
	StatusRunning    VersionStatus = "RUNNING"
	StatusCompleted  VersionStatus = "COMPLETED"
	StatusFailed     VersionStatus = "FAILED"
	StatusCancelled  VersionStatus = "CANCELLED"
	StatusUpdating   VersionStatus = "UPDATING"
)

// legalTransitions is the state machine table from spec §4.4. Any pair not
// present here is rejected by UpdateVersionStatus.
var legalTransitions = map[VersionStatus]map[VersionStatus]bool{
	StatusNotIndexed: {StatusQueued: true},
	StatusQueued:     {StatusRunning: true, StatusCancelled: true},
	StatusRunning:    {StatusCompleted: true, StatusFailed: true, StatusCancelled: true},
	StatusCompleted:  {StatusUpdating: true},
	StatusUpdating:   {StatusRunning: true, StatusCancelled: true},
	StatusFailed:     {StatusQueued: true},
	StatusCancelled:  {StatusQueued: true},
}

// IsLegalTransition reports whether from -> to is an allowed status
// transition per the §4.4 state machine.
func IsLegalTransition(from, to VersionStatus) bool {
	return legalTransitions[from][to]
}

// ScraperOptions is the subset of options required to reproduce an indexing
// run; serialized verbatim on the version row (§3, wire shape in spec §6).
type ScraperOptions struct {
	MaxPages        int               `json:"max_pages,omitempty"`
	MaxDepth        int               `json:"max_depth,omitempty"`
	Scope           string            `json:"scope,omitempty"` // subpages|hostname|domain
	FollowRedirects bool              `json:"follow_redirects,omitempty"`
	IgnoreErrors    bool              `json:"ignore_errors,omitempty"`
	MaxConcurrency  int               `json:"max_concurrency,omitempty"`
	IncludePatterns []string          `json:"include_patterns,omitempty"`
	ExcludePatterns []string          `json:"exclude_patterns,omitempty"`
	ScrapeMode      string            `json:"scrape_mode,omitempty"` // auto|fetch|playwright
	Headers         map[string]string `json:"headers,omitempty"`
}

// Library is a named documentation set, identified case-insensitively (§3).
type Library struct {
	ID   string
	Name string // normalized: trim + lower-case
}

// Version is a named revision of a library. The empty Name denotes the
// unversioned variant.
type Version struct {
	ID               string
	LibraryID        string
	Name             string
	Status           VersionStatus
	ProgressPages    int
	ProgressMaxPages int
	SourceURL        string
	ScraperOptions   ScraperOptions
	ErrorMessage     string
	StartedAt        *time.Time
	UpdatedAt        time.Time
}

// Page is a fetched resource belonging to a version (§3).
type Page struct {
	ID           string
	VersionID    string
	URL          string
	Title        string
	ETag         string
	LastModified string
	ContentType  ContentType
	Depth        int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChunkMetadata carries the hierarchical position of a chunk within its page
// (§3, §4.3).
type ChunkMetadata struct {
	Path  []string `json:"path"`
	Level int      `json:"level"`
	Types []string `json:"types"`
}

// HasType reports whether m.Types contains t.
func (m ChunkMetadata) HasType(t string) bool {
	for _, v := range m.Types {
		if v == t {
			return true
		}
	}
	return false
}

// Chunk is the unit of retrieval (§3).
type Chunk struct {
	ID        string
	PageID    string
	Content   string
	Metadata  ChunkMetadata
	SortOrder int
	Embedding []float32 // nil if not yet embedded
	CreatedAt time.Time
}

// EmbeddingConfig is the process-wide, immutable-after-first-write record
// of the embedding provider/model/dimension (§3, §4.1).
type EmbeddingConfig struct {
	Provider   string
	Model      string
	Dimensions int
	Spec       string // canonical "provider:model" string
}

// ScrapeResult is what a content pipeline produces from fetched bytes (§4.3).
type ScrapeResult struct {
	URL         string
	Title       string
	ContentType ContentType
	Chunks      []*Chunk // Embedding left nil; SortOrder pre-assigned
}

// Catalog persists the library/version/page/chunk graph and hybrid index.
// Implementations are single-writer, shared-readable (§5).
type Catalog interface {
	// ResolveVersion returns the version id for (library, version), creating
	// library/version rows if absent. Case/whitespace-normalized; "latest",
	// "", and whitespace-only all resolve to the unversioned variant.
	ResolveVersion(ctx context.Context, library, version string) (string, error)

	GetLibraryByName(ctx context.Context, name string) (*Library, bool, error)
	ListLibraries(ctx context.Context) ([]*Library, error)
	ListVersions(ctx context.Context, libraryID string) ([]*Version, error)
	GetVersion(ctx context.Context, versionID string) (*Version, error)
	GetVersionByName(ctx context.Context, libraryID, version string) (*Version, bool, error)

	UpdateVersionStatus(ctx context.Context, versionID string, status VersionStatus, errMsg string) error
	UpdateVersionProgress(ctx context.Context, versionID string, pages, maxPages int) error
	SetScraperOptions(ctx context.Context, versionID, sourceURL string, opts ScraperOptions) error
	GetVersionsByStatus(ctx context.Context, statuses ...VersionStatus) ([]*Version, error)
	FindVersionsBySourceURL(ctx context.Context, url string) ([]*Version, error)

	// RemoveVersion deletes a version and, if cascade, all its pages/chunks.
	// Deleting the last version of a library also deletes the library.
	RemoveVersion(ctx context.Context, versionID string, cascade bool) error

	// AddDocuments atomically replaces the page identified by (versionID, url)
	// and its chunks (§4.1, §4.5).
	AddDocuments(ctx context.Context, versionID string, depth int, result *ScrapeResult, etag, lastModified string) (*Page, error)

	GetPageByURL(ctx context.Context, versionID, url string) (*Page, bool, error)
	GetPageByID(ctx context.Context, pageID string) (*Page, bool, error)
	GetPagesByVersionID(ctx context.Context, versionID string) ([]*Page, error)
	DeletePage(ctx context.Context, pageID string) error
	DeletePages(ctx context.Context, versionID string) (int, error)
	RenamePageURL(ctx context.Context, pageID, newURL string) error

	FindChunksByIDs(ctx context.Context, ids []string) ([]*Chunk, error) // sort_order ascending
	FindChunksByURL(ctx context.Context, versionID, url string) ([]*Chunk, error)
	FindParentChunk(ctx context.Context, chunkID string) (*Chunk, bool, error)
	FindPrecedingSiblingChunks(ctx context.Context, chunkID string, limit int) ([]*Chunk, error)
	FindSubsequentSiblingChunks(ctx context.Context, chunkID string, limit int) ([]*Chunk, error)
	FindChildChunks(ctx context.Context, chunkID string, limit int) ([]*Chunk, error)

	GetEmbeddingConfig(ctx context.Context) (*EmbeddingConfig, bool, error)
	// SetEmbeddingConfig records the config on first write; refuses (store
	// integrity error) if dimensions would change on a later call.
	SetEmbeddingConfig(ctx context.Context, cfg EmbeddingConfig) error

	Close() error
}

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

// Document represents a document to be indexed in BM25.
type Document struct {
	ID      string // Chunk ID
	Content string // Text content
}

// BM25Result represents a single BM25 search result.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats provides statistics about the BM25 index.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// BM25Index provides keyword search using BM25 algorithm.
type BM25Index interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *IndexStats
	Save(path string) error
	Load(path string) error
	Close() error
}

// BM25Config configures the BM25 index.
type BM25Config struct {
	K1             float64
	B              float64
	StopWords      []string
	MinTokenLength int
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      nil,
		MinTokenLength: 2,
	}
}

// VectorResult represents a single vector search result.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	Dimensions     int
	Quantization   string
	Metric         string
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorStoreConfig returns sensible defaults for the vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Quantization:   "f32",
		Metric:         "cos",
		M:              32,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// VectorStore provides semantic search using the HNSW algorithm.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
