package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.SQLiteCatalog) {
	t.Helper()
	cat, err := store.NewSQLiteCatalog("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	bm25, err := store.NewBM25IndexWithBackend("", store.DefaultBM25Config(), "sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bm25.Close() })

	vec, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(8))
	require.NoError(t, err)

	e, err := NewEngine(bm25, vec, &fakeEmbedder{dim: 8}, cat, DefaultConfig())
	require.NoError(t, err)
	return e, cat
}

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	v := make([]float32, f.dim)
	v[0] = 1
	return v, nil
}
func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}
func (f *fakeEmbedder) Dimensions() int                  { return f.dim }
func (f *fakeEmbedder) ModelName() string                { return "fake:test" }
func (f *fakeEmbedder) Available(_ context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                     { return nil }

func mkChunk(id, pageID string, sortOrder int, path []string, types []string, content string) *store.Chunk {
	return &store.Chunk{
		ID:        id,
		PageID:    pageID,
		Content:   content,
		SortOrder: sortOrder,
		Metadata:  store.ChunkMetadata{Path: path, Level: len(path), Types: types},
	}
}

func TestProseExpand_IncludesParentSiblingsAndChildren(t *testing.T) {
	ctx := context.Background()
	e, cat := newTestEngine(t)

	versionID, err := cat.ResolveVersion(ctx, "testlib", "1.0.0")
	require.NoError(t, err)

	chunks := []*store.Chunk{
		mkChunk("c-guide", "", 0, []string{"Guide"}, nil, "Guide overview"),
		mkChunk("c-install", "", 1, []string{"Guide", "Install"}, nil, "Install overview"),
		mkChunk("c-setup", "", 2, []string{"Guide", "Install", "Setup"}, nil, "Setup"),
		mkChunk("c-steps", "", 3, []string{"Guide", "Install", "Setup", "Steps"}, nil, "Steps"),
		mkChunk("c-config", "", 4, []string{"Guide", "Install", "Config"}, nil, "Config"),
	}
	page, err := cat.AddDocuments(ctx, versionID, 0, &store.ScrapeResult{
		URL: "/guide", Title: "Guide", ContentType: store.ContentTypeProse, Chunks: chunks,
	}, "", "")
	require.NoError(t, err)

	all, err := cat.FindChunksByURL(ctx, versionID, page.URL)
	require.NoError(t, err)

	var setupChunk *store.Chunk
	for _, c := range all {
		if samePathSlice(c.Metadata.Path, []string{"Guide", "Install", "Setup"}) {
			setupChunk = c
		}
	}
	require.NotNil(t, setupChunk)

	ids, err := e.proseExpand(ctx, []hit{{chunk: setupChunk, score: 1.0}})
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	idSet := make(map[string]bool)
	for _, id := range ids {
		idSet[id] = true
	}
	assembled, err := cat.FindChunksByIDs(ctx, ids)
	require.NoError(t, err)

	var paths [][]string
	for _, c := range assembled {
		paths = append(paths, c.Metadata.Path)
	}
	require.Contains(t, paths, []string{"Guide", "Install"})
	require.Contains(t, paths, []string{"Guide", "Install", "Setup"})
	require.Contains(t, paths, []string{"Guide", "Install", "Setup", "Steps"})
	require.Contains(t, paths, []string{"Guide", "Install", "Config"})
}

func TestHierarchicalExpand_PromotesToTopLevelWhenNoStructuralAncestor(t *testing.T) {
	ctx := context.Background()
	e, cat := newTestEngine(t)

	versionID, err := cat.ResolveVersion(ctx, "testlib", "1.0.0")
	require.NoError(t, err)

	// Neither chunk is marked "structural", forcing promotion to the
	// top-level container identified by path[0].
	chunks := []*store.Chunk{
		mkChunk("c-fn", "", 0, []string{"applyMigrations"}, nil, "function applyMigrations() {"),
		mkChunk("c-arrow", "", 1, []string{"applyMigrations", "<anonymous_arrow>"}, nil, "const x = () => { doWork() }"),
	}
	page, err := cat.AddDocuments(ctx, versionID, 0, &store.ScrapeResult{
		URL: "/migrate.ts", Title: "migrate.ts", ContentType: store.ContentTypeCode, Chunks: chunks,
	}, "", "")
	require.NoError(t, err)

	all, err := cat.FindChunksByURL(ctx, versionID, page.URL)
	require.NoError(t, err)

	var arrowChunk *store.Chunk
	for _, c := range all {
		if len(c.Metadata.Path) == 2 {
			arrowChunk = c
		}
	}
	require.NotNil(t, arrowChunk)

	ids, err := e.hierarchicalExpand(ctx, page, []hit{{chunk: arrowChunk, score: 1.0}})
	require.NoError(t, err)

	assembled, err := cat.FindChunksByIDs(ctx, ids)
	require.NoError(t, err)
	content := assembleContent(assembled)
	require.Contains(t, content, "applyMigrations")
	require.Contains(t, content, "doWork")
}
