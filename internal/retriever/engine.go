package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docindex/internal/embed"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/telemetry"
)

// Engine implements hybrid search combining BM25 and semantic search with
// content-type-aware context assembly.
type Engine struct {
	bm25     store.BM25Index
	vector   store.VectorStore
	embedder embed.Embedder
	catalog  store.Catalog
	config   EngineConfig
	fusion   *RRFFusion

	classifier Classifier              // optional dynamic weight selection
	metrics    *telemetry.QueryMetrics // optional query telemetry
	reranker   Reranker                // optional cross-encoder reranker

	mu sync.RWMutex
}

var _ SearchEngine = (*Engine)(nil)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// ErrDimensionMismatch is returned when query embedding dimension doesn't match index dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithClassifier sets an optional query classifier for dynamic weight selection.
func WithClassifier(c Classifier) EngineOption {
	return func(e *Engine) { e.classifier = c }
}

// WithMetrics sets an optional query metrics collector for telemetry.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithReranker sets an optional cross-encoder reranker for result refinement.
func WithReranker(r Reranker) EngineOption {
	return func(e *Engine) { e.reranker = r }
}

// NewEngine creates a new hybrid search engine with the given dependencies.
func NewEngine(
	bm25 store.BM25Index,
	vector store.VectorStore,
	embedder embed.Embedder,
	catalog store.Catalog,
	config EngineConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if bm25 == nil {
		return nil, fmt.Errorf("%w: bm25 index is required", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog is required", ErrNilDependency)
	}
	e := &Engine{
		bm25:     bm25,
		vector:   vector,
		embedder: embedder,
		catalog:  catalog,
		config:   config,
		fusion:   NewRRFFusionWithK(config.RRFConstant),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search executes search(library, version, query, limit) per the retriever
// contract: find_by_content, group by URL, assemble per content type, emit
// one result per matching page.
func (e *Engine) Search(ctx context.Context, libraryID, versionID, query string, opts SearchOptions) ([]*SearchResult, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	_ = libraryID // versionID alone disambiguates chunk scope today; kept for future cross-checks

	if opts.Weights == nil && e.classifier != nil {
		_, weights, err := e.classifier.Classify(ctx, query)
		if err == nil {
			opts.Weights = &weights
		}
	}
	opts = e.applyDefaults(opts)

	overFetch := opts.Limit * 2
	if overFetch < 10 {
		overFetch = 10
	}

	var bm25Results []*store.BM25Result
	var vecResults []*store.VectorResult
	var dimMismatch bool

	if opts.BM25Only {
		var err error
		bm25Results, err = e.bm25.Search(ctx, query, overFetch)
		if err != nil {
			return nil, fmt.Errorf("bm25 search: %w", err)
		}
	} else if err := e.validateDimensions(ctx); err != nil {
		dimMismatch = true
		slog.Warn("dimension mismatch detected, semantic search disabled", slog.String("error", err.Error()))
		bm25Results, err = e.bm25.Search(ctx, query, overFetch)
		if err != nil {
			return nil, fmt.Errorf("bm25 search (semantic disabled): %w", err)
		}
	} else {
		var searchErr error
		bm25Results, vecResults, searchErr = e.parallelSearch(ctx, query, overFetch)
		if searchErr != nil && bm25Results == nil && vecResults == nil {
			return nil, searchErr
		}
	}

	fused := e.fusion.Fuse(bm25Results, vecResults, *opts.Weights)
	fused = e.rerank(ctx, query, fused)

	results, err := e.groupAndAssemble(ctx, versionID, fused, opts.Limit)
	if err != nil {
		return nil, err
	}

	e.attachExplainData(results, query, opts, len(bm25Results), len(vecResults), dimMismatch)
	e.recordMetrics(query, e.classifyQueryType(ctx, query, opts), len(results), time.Since(start))

	return results, nil
}

// groupAndAssemble fetches the fused chunks, groups them by owning page, and
// assembles one result per page using the page's content-type strategy.
// Pages are ordered by their best-scoring contributing chunk.
func (e *Engine) groupAndAssemble(ctx context.Context, versionID string, fused []*FusedResult, limit int) ([]*SearchResult, error) {
	if len(fused) == 0 {
		return []*SearchResult{}, nil
	}

	ids := make([]string, len(fused))
	scoreByID := make(map[string]float64, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
		scoreByID[f.ChunkID] = f.RRFScore
	}

	chunks, err := e.catalog.FindChunksByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch hit chunks: %w", err)
	}

	byPage := make(map[string][]hit)
	var pageOrder []string
	pageOf := make(map[string]*store.Page)

	for _, c := range chunks {
		score := scoreByID[c.ID]
		if _, ok := byPage[c.PageID]; !ok {
			pageOrder = append(pageOrder, c.PageID)
			page, found, perr := e.catalog.GetPageByID(ctx, c.PageID)
			if perr != nil {
				return nil, fmt.Errorf("fetch page %s: %w", c.PageID, perr)
			}
			if !found {
				continue
			}
			pageOf[c.PageID] = page
		}
		byPage[c.PageID] = append(byPage[c.PageID], hit{chunk: c, score: score})
	}

	var results []*SearchResult
	for _, pageID := range pageOrder {
		page, ok := pageOf[pageID]
		if !ok {
			continue
		}
		result, err := e.assemblePage(ctx, page, byPage[pageID])
		if err != nil {
			return nil, fmt.Errorf("assemble page %s: %w", page.URL, err)
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *Engine) attachExplainData(results []*SearchResult, query string, opts SearchOptions, bm25Count, vecCount int, dimMismatch bool) {
	if !opts.Explain || len(results) == 0 {
		return
	}
	strategy := "prose"
	switch results[0].MimeType {
	case store.ContentTypeCode, store.ContentTypeJSON:
		strategy = "hierarchical"
	}
	results[0].Explain = &ExplainData{
		Strategy:          strategy,
		Query:             query,
		BM25ResultCount:   bm25Count,
		VectorResultCount: vecCount,
		Weights:           *opts.Weights,
		RRFConstant:       e.config.RRFConstant,
		BM25Only:          opts.BM25Only,
		DimensionMismatch: dimMismatch,
	}
}

func (e *Engine) recordMetrics(query string, queryType QueryType, resultCount int, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		QueryType:   telemetry.QueryType(queryType),
		ResultCount: resultCount,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}

func (e *Engine) classifyQueryType(ctx context.Context, query string, opts SearchOptions) QueryType {
	if opts.Weights != nil {
		if opts.Weights.BM25 > 0.6 {
			return QueryTypeLexical
		}
		if opts.Weights.Semantic > 0.6 {
			return QueryTypeSemantic
		}
		return QueryTypeMixed
	}
	if e.classifier != nil {
		qt, _, err := e.classifier.Classify(ctx, query)
		if err == nil {
			return qt
		}
	}
	return QueryTypeMixed
}

// Index embeds and adds chunks to both BM25 and vector indices. Chunk
// metadata/ownership persistence happens separately via store.Catalog.AddDocuments;
// this only maintains the search indices.
func (e *Engine) Index(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	docs := make([]*store.Document, len(chunks))
	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		docs[i] = &store.Document{ID: c.ID, Content: c.Content}
		texts[i] = c.Content
		ids[i] = c.ID
	}

	embeddings, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}

	if err := e.bm25.Index(ctx, docs); err != nil {
		return fmt.Errorf("index in BM25: %w", err)
	}
	if err := e.vector.Add(ctx, ids, embeddings); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}

	return nil
}

// Delete removes chunks from the BM25 and vector indices. Best-effort: the
// catalog remains the source of truth, so orphans here are harmless until
// the next compaction.
func (e *Engine) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if err := e.bm25.Delete(ctx, chunkIDs); err != nil {
		slog.Warn("BM25 delete failed, orphans will remain until compaction", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := e.vector.Delete(ctx, chunkIDs); err != nil {
		slog.Warn("vector delete failed, orphans will remain until compaction", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Stats returns engine statistics.
func (e *Engine) Stats() *EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return &EngineStats{BM25Stats: e.bm25.Stats(), VectorCount: e.vector.Count()}
}

// CompactionStats summarizes a vector index rebuild.
type CompactionStats struct {
	OrphansBefore int // lazily-deleted graph nodes present before the rebuild
	Rebuilt       int // live vectors re-added to the fresh index
}

// VectorOrphans reports the lazy-deletion orphan count of the current vector
// index, or 0 if the backend doesn't track orphans (only *store.HNSWStore
// does). Cheap enough to poll on an idle timer.
func (e *Engine) VectorOrphans() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return vectorOrphans(e.vector)
}

func vectorOrphans(v store.VectorStore) int {
	if h, ok := v.(*store.HNSWStore); ok {
		return h.Stats().Orphans
	}
	return 0
}

// Compact rebuilds the vector index from the chunks the catalog still
// considers live, discarding the orphan graph nodes HNSWStore.Delete leaves
// behind after repeated refreshes. Embeddings aren't persisted outside the
// vector index, so this re-embeds every live chunk rather than copying
// vectors across; callers with many chunks should expect it to cost roughly
// what a full reindex costs. The old index keeps answering searches until
// the rebuilt one is swapped in.
func (e *Engine) Compact(ctx context.Context) (CompactionStats, error) {
	e.mu.RLock()
	liveIDs := e.vector.AllIDs()
	before := vectorOrphans(e.vector)
	dimensions := e.embedder.Dimensions()
	e.mu.RUnlock()

	stats := CompactionStats{OrphansBefore: before}
	if len(liveIDs) == 0 {
		return stats, nil
	}

	chunks, err := e.catalog.FindChunksByIDs(ctx, liveIDs)
	if err != nil {
		return stats, fmt.Errorf("compact: load live chunks: %w", err)
	}

	fresh, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dimensions))
	if err != nil {
		return stats, fmt.Errorf("compact: create index: %w", err)
	}

	const batchSize = 256
	for start := 0; start < len(chunks); start += batchSize {
		if err := ctx.Err(); err != nil {
			_ = fresh.Close()
			return stats, err
		}

		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		ids := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
			ids[i] = c.ID
		}

		vectors, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			_ = fresh.Close()
			return stats, fmt.Errorf("compact: re-embed batch: %w", err)
		}
		if err := fresh.Add(ctx, ids, vectors); err != nil {
			_ = fresh.Close()
			return stats, fmt.Errorf("compact: populate index: %w", err)
		}
		stats.Rebuilt += len(batch)
	}

	e.mu.Lock()
	old := e.vector
	e.vector = fresh
	e.mu.Unlock()
	_ = old.Close()

	return stats, nil
}

// Close releases all resources owned directly by the engine. The catalog is
// owned by its creator and closed separately.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if err := e.bm25.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.vector.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (e *Engine) applyDefaults(opts SearchOptions) SearchOptions {
	if opts.Limit <= 0 {
		opts.Limit = e.config.DefaultLimit
	}
	if opts.Limit > e.config.MaxLimit {
		opts.Limit = e.config.MaxLimit
	}
	if opts.Weights == nil {
		w := e.config.DefaultWeights
		opts.Weights = &w
	}
	return opts
}

// parallelSearch executes BM25 and vector searches concurrently, tolerating
// single-search failure (graceful degradation).
func (e *Engine) parallelSearch(ctx context.Context, query string, limit int) (
	bm25Results []*store.BM25Result,
	vecResults []*store.VectorResult,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	var bm25Err, vecErr error

	g.Go(func() error {
		var searchErr error
		bm25Results, searchErr = e.bm25.Search(gctx, query, limit)
		if searchErr != nil {
			bm25Err = searchErr
		}
		return nil
	})

	var queryEmbedding []float32
	g.Go(func() error {
		embedding, embedErr := e.embedder.Embed(gctx, query)
		if embedErr != nil {
			vecErr = embedErr
			return nil
		}
		queryEmbedding = embedding

		var searchErr error
		vecResults, searchErr = e.vector.Search(gctx, embedding, limit)
		if searchErr != nil {
			vecErr = searchErr
		}
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, waitErr
	}

	if e.metrics != nil && len(queryEmbedding) > 0 {
		e.metrics.RecordQueryEmbedding(queryEmbedding)
	}

	if bm25Err != nil && vecErr != nil {
		return nil, nil, errors.Join(bm25Err, vecErr)
	}
	if bm25Err != nil {
		err = bm25Err
	} else if vecErr != nil {
		err = vecErr
	}

	return bm25Results, vecResults, err
}

// rerank applies cross-encoder reranking to fused results when a reranker is
// configured and available; otherwise returns fused unchanged.
func (e *Engine) rerank(ctx context.Context, query string, fused []*FusedResult) []*FusedResult {
	if e.reranker == nil || len(fused) < 2 {
		return fused
	}
	if !e.reranker.Available(ctx) {
		return fused
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
	}
	chunks, err := e.catalog.FindChunksByIDs(ctx, ids)
	if err != nil {
		slog.Warn("failed to fetch chunks for reranking, skipping", slog.String("error", err.Error()))
		return fused
	}
	contentByID := make(map[string]string, len(chunks))
	for _, c := range chunks {
		contentByID[c.ID] = c.Content
	}

	documents := make([]string, 0, len(fused))
	valid := make([]*FusedResult, 0, len(fused))
	for _, f := range fused {
		if content, ok := contentByID[f.ChunkID]; ok && content != "" {
			documents = append(documents, content)
			valid = append(valid, f)
		}
	}
	if len(documents) == 0 {
		return fused
	}

	reranked, err := e.reranker.Rerank(ctx, query, documents, 0)
	if err != nil {
		slog.Warn("reranking failed, using original order", slog.String("error", err.Error()))
		return fused
	}

	out := make([]*FusedResult, 0, len(reranked))
	for _, rr := range reranked {
		if rr.Index < 0 || rr.Index >= len(valid) {
			continue
		}
		f := valid[rr.Index]
		f.RRFScore = rr.Score
		out = append(out, f)
	}
	return out
}

// validateDimensions checks if current embedder dimension matches the
// process-wide embedding configuration recorded at first write.
func (e *Engine) validateDimensions(ctx context.Context) error {
	cfg, ok, err := e.catalog.GetEmbeddingConfig(ctx)
	if err != nil || !ok {
		return nil
	}
	currentDim := e.embedder.Dimensions()
	if cfg.Dimensions != currentDim {
		return fmt.Errorf("%w: index has %d dimensions (%s), current embedder has %d dimensions (%s)",
			ErrDimensionMismatch, cfg.Dimensions, cfg.Model, currentDim, e.embedder.ModelName())
	}
	return nil
}
