package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeChunker_ChunkGoFile_ReturnsFunctionChunks(t *testing.T) {
	source := `package main

import "fmt"

func Hello() {
	fmt.Println("Hello")
}

func Goodbye() {
	fmt.Println("Goodbye")
}
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	result, err := chunker.Chunk(context.Background(), &Input{
		Path:     "main.go",
		Content:  []byte(source),
		Language: "go",
	})

	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)

	assert.Contains(t, result.Chunks[0].Content, "Hello")
	assert.Equal(t, []string{"Hello"}, result.Chunks[0].Metadata.Path)
	assert.Equal(t, 0, result.Chunks[0].Metadata.Level)
	assert.Contains(t, result.Chunks[0].Metadata.Types, "code")

	assert.Contains(t, result.Chunks[1].Content, "Goodbye")
	assert.Equal(t, []string{"Goodbye"}, result.Chunks[1].Metadata.Path)

	for _, chunk := range result.Chunks {
		assert.Contains(t, chunk.Content, `import "fmt"`)
		assert.Contains(t, chunk.Content, "package main")
	}
}

func TestCodeChunker_ChunkGoFile_IncludesDocComments(t *testing.T) {
	source := `package main

import "fmt"

// Greet returns a greeting message for the given name.
func Greet(name string) string {
	if name == "" {
		return "Hello, stranger!"
	}
	return fmt.Sprintf("Hello, %s!", name)
}
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	result, err := chunker.Chunk(context.Background(), &Input{
		Path:     "main.go",
		Content:  []byte(source),
		Language: "go",
	})

	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)

	assert.Contains(t, result.Chunks[0].Content, "Greet returns a greeting")
}

func TestCodeChunker_ChunkTypeScriptClass_ProducesStructuralOverviewAndMemberChunks(t *testing.T) {
	source := `import { Logger } from './logger';

export class UserService {
	private logger: Logger;

	constructor() {
		this.logger = new Logger();
	}

	getUser(id: string) {
		this.logger.info('Getting user: ' + id);
		return null;
	}
}
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	result, err := chunker.Chunk(context.Background(), &Input{
		Path:     "user-service.ts",
		Content:  []byte(source),
		Language: "typescript",
	})

	require.NoError(t, err)
	require.GreaterOrEqual(t, len(result.Chunks), 1)

	for _, ch := range result.Chunks {
		if ch.Metadata.HasType("structural") {
			assert.Equal(t, []string{"UserService"}, ch.Metadata.Path)
		}
	}

	found := false
	for _, chunk := range result.Chunks {
		if strings.Contains(chunk.Content, "import { Logger }") {
			found = true
		}
	}
	assert.True(t, found, "at least one chunk should carry import context")
}

func TestCodeChunker_UnsupportedLanguage_FallsBackToLineChunks(t *testing.T) {
	source := "line one\nline two\nline three\n"
	chunker := NewCodeChunker()
	defer chunker.Close()

	result, err := chunker.Chunk(context.Background(), &Input{
		Path:     "data.proto",
		Content:  []byte(source),
		Language: "protobuf",
	})

	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, []string{"part1"}, result.Chunks[0].Metadata.Path)
}

func TestCodeChunker_EmptyFile_ReturnsNoChunks(t *testing.T) {
	chunker := NewCodeChunker()
	defer chunker.Close()

	result, err := chunker.Chunk(context.Background(), &Input{
		Path:     "empty.go",
		Content:  []byte(""),
		Language: "go",
	})

	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
}
