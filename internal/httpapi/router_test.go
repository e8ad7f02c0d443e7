package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/fetch"
	"github.com/Aman-CERP/docindex/internal/mcp"
	"github.com/Aman-CERP/docindex/internal/pipeline"
	"github.com/Aman-CERP/docindex/internal/retriever"
	"github.com/Aman-CERP/docindex/internal/scheduler"
	"github.com/Aman-CERP/docindex/internal/store"
)

type stubFetcher struct{}

func (stubFetcher) CanFetch(string) bool { return true }
func (stubFetcher) Fetch(_ context.Context, url string, _ fetch.Options) (*fetch.Result, error) {
	return &fetch.Result{URL: url, Content: []byte("hello"), MimeType: "text/plain", StatusCode: 200}, nil
}
func (stubFetcher) Close() error { return nil }

type linePipeline struct{}

func (linePipeline) CanHandle(mimeType string) bool { return mimeType == "text/plain" }
func (linePipeline) Chunk(_ context.Context, input *pipeline.Input) (*store.ScrapeResult, error) {
	return &store.ScrapeResult{
		URL:         input.URL,
		ContentType: store.ContentTypeProse,
		Chunks:      []*store.Chunk{{ID: "chunk_1", Content: string(input.Content)}},
	}, nil
}

type stubEmbedder struct{ dim int }

func (e *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, e.dim), nil
}
func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, e.dim)
	}
	return out, nil
}
func (e *stubEmbedder) Dimensions() int                  { return e.dim }
func (e *stubEmbedder) ModelName() string                { return "fake:test" }
func (e *stubEmbedder) Available(_ context.Context) bool { return true }
func (e *stubEmbedder) Close() error                     { return nil }

func newTestRouter(t *testing.T) *Router {
	t.Helper()

	cat, err := store.NewSQLiteCatalog("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	bm25, err := store.NewBM25IndexWithBackend("", store.DefaultBM25Config(), "sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bm25.Close() })

	vec, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(4))
	require.NoError(t, err)

	engine, err := retriever.NewEngine(bm25, vec, &stubEmbedder{dim: 4}, cat, retriever.DefaultConfig())
	require.NoError(t, err)

	sched := scheduler.New(cat, engine, stubFetcher{}, []pipeline.Pipeline{linePipeline{}},
		config.SchedulerConfig{MaxConcurrency: 2, EventBufferSize: 16},
		config.ScraperConfig{MaxPages: 10, MaxDepth: 3, Scope: "subpages", MaxConcurrency: 2},
		nil)

	srv, err := mcp.NewServer(cat, engine, sched, stubFetcher{}, config.NewConfig(), nil)
	require.NoError(t, err)

	return NewRouter(srv, nil)
}

func TestRouter_ListLibraries_Empty(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/libraries", nil)
	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"libraries"`)
}

func TestRouter_ListVersions_UnknownLibrary(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/libraries/nope/versions", nil)
	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestRouter_Scrape_EnqueuesJob(t *testing.T) {
	router := newTestRouter(t)

	body := `{"url":"https://example.com/docs","library":"example"}`
	req := httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"job_id"`)
}

func TestRouter_Scrape_MalformedBody(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_GetJob_NotFound(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Search_UnknownLibrary(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/versions/nope/main/search?q=hello", nil)
	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
