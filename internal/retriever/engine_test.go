package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/store"
)

func TestSearch_BasicIndexAndSearch(t *testing.T) {
	ctx := context.Background()
	e, cat := newTestEngine(t)

	versionID, err := cat.ResolveVersion(ctx, "testlib", "1.0.0")
	require.NoError(t, err)

	pages := []struct {
		url, content string
	}{
		{"/js", "JavaScript programming tutorial"},
		{"/react", "React hooks feature"},
		{"/py", "Python data science"},
	}

	for i, p := range pages {
		chunk := mkChunk("c-"+p.url, "", 0, []string{"Intro"}, nil, p.content)
		page, err := cat.AddDocuments(ctx, versionID, i, &store.ScrapeResult{
			URL: p.url, Title: p.url, ContentType: store.ContentTypeProse, Chunks: []*store.Chunk{chunk},
		}, "", "")
		require.NoError(t, err)

		stored, err := cat.FindChunksByURL(ctx, versionID, page.URL)
		require.NoError(t, err)
		require.NoError(t, e.Index(ctx, stored))
	}

	results, err := e.Search(ctx, "", versionID, "JavaScript programming", SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Contains(t, results[0].Content, "JavaScript")
}

func TestSearch_EmptyQueryReturnsNoResults(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	results, err := e.Search(ctx, "", "v1", "   ", SearchOptions{})
	require.NoError(t, err)
	require.Empty(t, results)
}
