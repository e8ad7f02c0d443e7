package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownChunker_HeaderBasedSplitting(t *testing.T) {
	source := `# Title

Intro paragraph.

## Section One

Content for section one.

## Section Two

Content for section two.
`
	chunker := NewMarkdownChunker()
	defer chunker.Close()

	result, err := chunker.Chunk(context.Background(), &Input{Path: "doc.md", Content: []byte(source)})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(result.Chunks), 3)

	var sawSectionOne, sawSectionTwo bool
	for _, ch := range result.Chunks {
		if strings.Contains(ch.Content, "section one") {
			sawSectionOne = true
			assert.Equal(t, []string{"Title", "Section One"}, ch.Metadata.Path)
		}
		if strings.Contains(ch.Content, "section two") {
			sawSectionTwo = true
			assert.Equal(t, []string{"Title", "Section Two"}, ch.Metadata.Path)
		}
	}
	assert.True(t, sawSectionOne)
	assert.True(t, sawSectionTwo)
}

func TestMarkdownChunker_HeaderPathTracksNesting(t *testing.T) {
	source := `# Guide

## Setup

### Install

pip install thing
`
	chunker := NewMarkdownChunker()
	defer chunker.Close()

	result, err := chunker.Chunk(context.Background(), &Input{Path: "doc.md", Content: []byte(source)})
	require.NoError(t, err)

	found := false
	for _, ch := range result.Chunks {
		if strings.Contains(ch.Content, "pip install") {
			found = true
			assert.Equal(t, []string{"Guide", "Setup", "Install"}, ch.Metadata.Path)
			assert.Equal(t, 3, ch.Metadata.Level)
		}
	}
	assert.True(t, found)
}

func TestMarkdownChunker_NestedHeaderResetsDeeperLevels(t *testing.T) {
	source := `# Top

## A

### A1

## B

content under B
`
	chunker := NewMarkdownChunker()
	defer chunker.Close()

	result, err := chunker.Chunk(context.Background(), &Input{Path: "doc.md", Content: []byte(source)})
	require.NoError(t, err)

	for _, ch := range result.Chunks {
		if strings.Contains(ch.Content, "content under B") {
			assert.Equal(t, []string{"Top", "B"}, ch.Metadata.Path)
		}
	}
}

func TestMarkdownChunker_FrontmatterExtractedAsOwnChunk(t *testing.T) {
	source := "---\ntitle: Doc\n---\n\n# Title\n\nbody\n"
	chunker := NewMarkdownChunker()
	defer chunker.Close()

	result, err := chunker.Chunk(context.Background(), &Input{Path: "doc.md", Content: []byte(source)})
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)
	assert.Contains(t, result.Chunks[0].Content, "title: Doc")
}

func TestMarkdownChunker_CodeBlockClassifiedAsCode(t *testing.T) {
	source := "# Example\n\n```go\nfunc main() {}\n```\n"
	chunker := NewMarkdownChunker()
	defer chunker.Close()

	result, err := chunker.Chunk(context.Background(), &Input{Path: "doc.md", Content: []byte(source)})
	require.NoError(t, err)

	found := false
	for _, ch := range result.Chunks {
		if strings.Contains(ch.Content, "func main") {
			found = true
			assert.True(t, ch.Metadata.HasType("code"))
		}
	}
	assert.True(t, found)
}

func TestMarkdownChunker_NoHeadersFallsBackToParagraphs(t *testing.T) {
	source := "First paragraph.\n\nSecond paragraph.\n"
	chunker := NewMarkdownChunker()
	defer chunker.Close()

	result, err := chunker.Chunk(context.Background(), &Input{Path: "doc.md", Content: []byte(source)})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Chunks)
	for _, ch := range result.Chunks {
		assert.Empty(t, ch.Metadata.Path)
	}
}

func TestMarkdownChunker_EmptySectionProducesNoChunk(t *testing.T) {
	source := "# Title\n\n## Empty\n\n## HasContent\n\nactual content here\n"
	chunker := NewMarkdownChunker()
	defer chunker.Close()

	result, err := chunker.Chunk(context.Background(), &Input{Path: "doc.md", Content: []byte(source)})
	require.NoError(t, err)
	for _, ch := range result.Chunks {
		assert.NotEqual(t, "## Empty", strings.TrimSpace(ch.Content))
	}
}

func TestMarkdownChunker_EmptyFile_ReturnsNoChunks(t *testing.T) {
	chunker := NewMarkdownChunker()
	defer chunker.Close()

	result, err := chunker.Chunk(context.Background(), &Input{Path: "doc.md", Content: []byte("")})
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
}

func TestMarkdownChunker_WhitespaceOnlyFile_ReturnsNoChunks(t *testing.T) {
	chunker := NewMarkdownChunker()
	defer chunker.Close()

	result, err := chunker.Chunk(context.Background(), &Input{Path: "doc.md", Content: []byte("   \n\n  \n")})
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
}

func TestMarkdownChunker_UniqueIDsAcrossChunks(t *testing.T) {
	source := `# A

content a

# B

content b
`
	chunker := NewMarkdownChunker()
	defer chunker.Close()

	result, err := chunker.Chunk(context.Background(), &Input{Path: "doc.md", Content: []byte(source)})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, ch := range result.Chunks {
		assert.False(t, seen[ch.ID], "chunk ID %s should be unique", ch.ID)
		seen[ch.ID] = true
	}
}

func TestMarkdownChunker_LargeSectionSplitsIntoMultipleChunks(t *testing.T) {
	var body strings.Builder
	body.WriteString("# Big Section\n\n")
	for i := 0; i < 200; i++ {
		body.WriteString("This is a reasonably long paragraph of prose text meant to push the section over the token budget for a single chunk.\n\n")
	}

	chunker := NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{MaxChunkTokens: 200})
	defer chunker.Close()

	result, err := chunker.Chunk(context.Background(), &Input{Path: "doc.md", Content: []byte(body.String())})
	require.NoError(t, err)
	assert.Greater(t, len(result.Chunks), 1)
	for _, ch := range result.Chunks {
		assert.Equal(t, []string{"Big Section"}, ch.Metadata.Path)
	}
}
