package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProsePipeline_StripsNavAndFooterBeforeChunking(t *testing.T) {
	html := `<html><head><title>Guide</title></head><body>
<nav>Site nav</nav>
<main><h1>Guide</h1><p>Real content goes here.</p></main>
<footer>Copyright</footer>
</body></html>`

	p := NewProsePipeline()
	defer p.Close()

	result, err := p.Chunk(context.Background(), &Input{
		URL: "https://docs.example.com/guide", Path: "guide", Content: []byte(html), MimeType: "text/html",
	})

	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, "Guide", result.Title)

	var all strings.Builder
	for _, ch := range result.Chunks {
		all.WriteString(ch.Content)
	}
	assert.Contains(t, all.String(), "Real content")
	assert.NotContains(t, all.String(), "Site nav")
	assert.NotContains(t, all.String(), "Copyright")
}

func TestProsePipeline_PlainMarkdownSkipsHTMLSanitization(t *testing.T) {
	source := "# Title\n\nbody text\n"
	p := NewProsePipeline()
	defer p.Close()

	result, err := p.Chunk(context.Background(), &Input{
		URL: "file:///doc.md", Path: "doc.md", Content: []byte(source), MimeType: "text/markdown",
	})

	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)
	assert.Contains(t, result.Chunks[0].Content, "body text")
}

func TestProsePipeline_CanHandleHTMLAndMarkdownAndText(t *testing.T) {
	p := NewProsePipeline()
	defer p.Close()

	assert.True(t, p.CanHandle("text/html"))
	assert.True(t, p.CanHandle("text/markdown"))
	assert.True(t, p.CanHandle("text/plain"))
	assert.False(t, p.CanHandle("application/json"))
}
