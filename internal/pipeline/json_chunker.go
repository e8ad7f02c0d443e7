package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/docindex/internal/store"
)

// JSONChunkerOptions configures the JSON/YAML config chunker.
type JSONChunkerOptions struct {
	MaxChunkTokens int // objects larger than this split into one chunk per child key
}

// JSONChunker walks a parsed JSON or YAML document, emitting one chunk for
// each object or array subtree whose rendered form fits within
// MaxChunkTokens. A larger subtree is walked child by child instead, so a
// scalar leaf gets its own chunk only when no enclosing non-root object
// fits the budget. Metadata.Path is the object-key
// path to the chunk; container chunks are typed "structural" and scalar
// leaves "text" (§4.3.1 JSON/config pipeline).
type JSONChunker struct {
	options JSONChunkerOptions
}

// NewJSONChunker creates a JSON/YAML chunker with default sizing.
func NewJSONChunker() *JSONChunker {
	return NewJSONChunkerWithOptions(JSONChunkerOptions{})
}

// NewJSONChunkerWithOptions creates a JSON/YAML chunker with custom sizing.
func NewJSONChunkerWithOptions(opts JSONChunkerOptions) *JSONChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	return &JSONChunker{options: opts}
}

// Close is a no-op; JSONChunker is stateless.
func (c *JSONChunker) Close() {}

// CanHandle reports whether mimeType is JSON or YAML.
func (c *JSONChunker) CanHandle(mimeType string) bool {
	switch mimeType {
	case "application/json", "application/yaml", "text/yaml", "application/x-yaml":
		return true
	}
	return false
}

// Chunk parses the document and walks its tree into path-scoped chunks.
func (c *JSONChunker) Chunk(ctx context.Context, input *Input) (*store.ScrapeResult, error) {
	result := &store.ScrapeResult{URL: input.URL, ContentType: store.ContentTypeJSON}

	if len(strings.TrimSpace(string(input.Content))) == 0 {
		return result, nil
	}

	var root any
	var err error
	if input.MimeType == "application/json" {
		err = json.Unmarshal(input.Content, &root)
	} else {
		err = yaml.Unmarshal(input.Content, &root)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", input.URL, err)
	}

	var chunks []*store.Chunk
	c.walk(root, nil, input, &chunks)

	for i, ch := range chunks {
		ch.SortOrder = i
	}
	result.Chunks = chunks
	return result, nil
}

// walk recurses into a parsed JSON/YAML value, emitting a chunk for each
// scalar leaf it reaches and one chunk for each container whose serialized
// size fits the token budget. A container over the budget is not emitted
// whole: a non-root object gets a short structural chunk naming its path,
// and its children are walked individually.
func (c *JSONChunker) walk(v any, path []string, input *Input, out *[]*store.Chunk) {
	switch node := v.(type) {
	case map[string]any:
		c.walkObject(node, path, input, out)
	case map[any]any: // yaml.v2-style maps surface via v3 as map[string]any normally; kept defensively
		normalized := make(map[string]any, len(node))
		for k, val := range node {
			normalized[fmt.Sprintf("%v", k)] = val
		}
		c.walkObject(normalized, path, input, out)
	case []any:
		c.walkArray(node, path, input, out)
	default:
		*out = append(*out, c.buildChunk(input, scalarText(path, v), path, []string{"text"}))
	}
}

func (c *JSONChunker) walkObject(obj map[string]any, path []string, input *Input, out *[]*store.Chunk) {
	if len(path) > 0 && estimateTokens(renderYAML(obj)) <= c.options.MaxChunkTokens {
		*out = append(*out, c.buildChunk(input, renderYAML(obj), path, []string{"structural"}))
		return
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(path) > 0 {
		*out = append(*out, c.buildChunk(input, strings.Join(path, "."), path, []string{"structural"}))
	}

	for _, k := range keys {
		c.walk(obj[k], append(append([]string{}, path...), k), input, out)
	}
}

func (c *JSONChunker) walkArray(arr []any, path []string, input *Input, out *[]*store.Chunk) {
	if estimateTokens(renderYAML(arr)) <= c.options.MaxChunkTokens {
		*out = append(*out, c.buildChunk(input, renderYAML(arr), path, []string{"structural"}))
		return
	}

	for i, item := range arr {
		c.walk(item, append(append([]string{}, path...), fmt.Sprintf("[%d]", i)), input, out)
	}
}

func (c *JSONChunker) buildChunk(input *Input, content string, path []string, types []string) *store.Chunk {
	return &store.Chunk{
		ID: generateChunkID(input.Path, strings.Join(path, "/")+":"+content),
		Content: content,
		Metadata: store.ChunkMetadata{
			Path:  path,
			Level: len(path),
			Types: types,
		},
	}
}

func scalarText(path []string, v any) string {
	key := "value"
	if len(path) > 0 {
		key = path[len(path)-1]
	}
	return fmt.Sprintf("%s: %v", key, v)
}

func renderYAML(v any) string {
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
