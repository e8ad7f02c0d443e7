// Package retriever provides hybrid search and context-assembly over the
// chunk catalog, combining BM25 and vector search via reciprocal rank fusion.
package retriever

import (
	"context"
	"time"

	"github.com/Aman-CERP/docindex/internal/store"
)

// SearchEngine provides hybrid search combining BM25 and semantic search.
type SearchEngine interface {
	// Search executes a hybrid search query scoped to one library+version and
	// returns one assembled result per matching page.
	Search(ctx context.Context, libraryID, versionID, query string, opts SearchOptions) ([]*SearchResult, error)

	// Index adds chunks to both BM25 and vector indices.
	Index(ctx context.Context, chunks []*store.Chunk) error

	// Delete removes chunks from both indices.
	Delete(ctx context.Context, chunkIDs []string) error

	// Stats returns engine statistics.
	Stats() *EngineStats

	// Close releases all resources.
	Close() error
}

// SearchOptions configures a search query.
type SearchOptions struct {
	// Limit is the maximum number of assembled page results to return.
	Limit int

	// Weights overrides the default BM25/semantic weights.
	Weights *Weights

	// BM25Only forces keyword-only search, skipping semantic/vector search entirely.
	BM25Only bool

	// Explain enables detailed search explanation mode.
	Explain bool
}

// Weights configures the relative importance of BM25 vs semantic search.
type Weights struct {
	BM25     float64
	Semantic float64
}

// DefaultWeights returns the default search weights for mixed queries.
func DefaultWeights() Weights {
	return Weights{BM25: 0.35, Semantic: 0.65}
}

// SearchResult is one assembled page-level hit.
type SearchResult struct {
	// URL is the page the result was assembled from.
	URL string

	// Title is the page title, if recorded.
	Title string

	// Content is the strategy-assembled passage, concatenated in sort_order.
	Content string

	// MimeType reflects the page's content type.
	MimeType store.ContentType

	// Score is max(initial_chunks.score) among the hits that contributed to
	// this page's assembly.
	Score float64

	// ChunkIDs are all chunk ids included in the assembly, in sort_order.
	ChunkIDs []string

	// Explain contains detailed search decision information when opts.Explain=true.
	Explain *ExplainData
}

// EngineStats provides statistics about the search engine.
type EngineStats struct {
	BM25Stats   *store.IndexStats
	VectorCount int
}

// EngineConfig configures the search engine.
type EngineConfig struct {
	DefaultLimit   int
	MaxLimit       int
	DefaultWeights Weights
	RRFConstant    int
	SearchTimeout  time.Duration

	// ProseSiblingsBefore/After/Children bound the Prose assembly strategy's
	// context expansion (1 preceding, 2 subsequent, up to 3 children).
	ProseSiblingsBefore int
	ProseSiblingsAfter  int
	ProseChildren       int

	// MaxParentWalk bounds hierarchical parent-chain walking (gap tolerance).
	MaxParentWalk int
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit:        5,
		MaxLimit:            100,
		DefaultWeights:      DefaultWeights(),
		RRFConstant:         60,
		SearchTimeout:       5 * time.Second,
		ProseSiblingsBefore: 1,
		ProseSiblingsAfter:  2,
		ProseChildren:       3,
		MaxParentWalk:       50,
	}
}

// QueryType represents the classification category for a search query.
type QueryType string

const (
	QueryTypeLexical  QueryType = "LEXICAL"
	QueryTypeSemantic QueryType = "SEMANTIC"
	QueryTypeMixed    QueryType = "MIXED"
)

// Classifier determines optimal search weights for a query.
type Classifier interface {
	// Classify analyzes a query and returns its type and optimal weights.
	// On error, implementations should return (QueryTypeMixed, DefaultWeights(), err).
	Classify(ctx context.Context, query string) (QueryType, Weights, error)
}

// WeightsForQueryType returns the predefined weights for a query type.
func WeightsForQueryType(qt QueryType) Weights {
	switch qt {
	case QueryTypeLexical:
		return Weights{BM25: 0.85, Semantic: 0.15}
	case QueryTypeSemantic:
		return Weights{BM25: 0.20, Semantic: 0.80}
	default:
		return Weights{BM25: 0.35, Semantic: 0.65}
	}
}

// ExplainData contains detailed search decision information.
type ExplainData struct {
	Query             string
	BM25ResultCount   int
	VectorResultCount int
	Weights           Weights
	RRFConstant       int
	BM25Only          bool
	DimensionMismatch bool
	Strategy          string // "prose" or "hierarchical": the strategy used for the page of the result carrying this data
}
