package pipeline

import (
	"context"
	"regexp"
	"strings"

	"github.com/Aman-CERP/docindex/internal/store"
)

// MarkdownChunkerOptions configures the markdown chunker behavior
type MarkdownChunkerOptions struct {
	MaxChunkTokens int // Maximum tokens per chunk (default: DefaultMaxChunkTokens)
	OverlapTokens  int // Defaulted to DefaultOverlapTokens; the markdown splitter does not overlap chunks
}

// MarkdownChunker implements header-based Markdown chunking for the prose
// pipeline: each chunk's Metadata.Path is the heading breadcrumb leading to
// it, and Metadata.Types classifies its content as text, code, or table
// (§4.3.1 Prose pipeline).
type MarkdownChunker struct {
	options MarkdownChunkerOptions
}

// Regex patterns for markdown parsing
var (
	headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)

	codeBlockPattern = regexp.MustCompile("(?s)```[^`]*```")

	mdxSelfClosingPattern = regexp.MustCompile(`<[A-Z][a-zA-Z0-9]*[^>]*/\s*>`)

	tablePattern = regexp.MustCompile(`(?m)^\|.+\|$(\n^\|[-:|]+\|$)?(\n^\|.+\|$)*`)
)

// NewMarkdownChunker creates a new markdown chunker with default options
func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{})
}

// NewMarkdownChunkerWithOptions creates a new markdown chunker with custom options
func NewMarkdownChunkerWithOptions(opts MarkdownChunkerOptions) *MarkdownChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	return &MarkdownChunker{options: opts}
}

// Close releases chunker resources. MarkdownChunker is stateless.
func (c *MarkdownChunker) Close() {}

// CanHandle reports whether mimeType is Markdown or plain prose text.
func (c *MarkdownChunker) CanHandle(mimeType string) bool {
	switch mimeType {
	case "text/markdown", "text/x-markdown", "text/plain":
		return true
	}
	return false
}

// Chunk splits a markdown document into heading-scoped chunks.
func (c *MarkdownChunker) Chunk(ctx context.Context, input *Input) (*store.ScrapeResult, error) {
	content := string(input.Content)

	result := &store.ScrapeResult{URL: input.URL, ContentType: store.ContentTypeProse}

	if strings.TrimSpace(content) == "" {
		return result, nil
	}

	var chunks []*store.Chunk
	remainingContent := content

	if frontmatterMatch := frontmatterPattern.FindStringSubmatch(remainingContent); frontmatterMatch != nil {
		frontmatter := frontmatterMatch[0]
		chunks = append(chunks, c.buildChunk(input, frontmatter, nil, []string{"text"}))
		remainingContent = remainingContent[len(frontmatter):]
	}

	sections := c.parseSections(remainingContent)

	if len(sections) == 0 {
		chunks = append(chunks, c.chunkByParagraphs(input, remainingContent, nil)...)
	} else {
		for _, sec := range sections {
			chunks = append(chunks, c.createSectionChunks(input, sec)...)
		}
	}

	for i, ch := range chunks {
		ch.SortOrder = i
	}
	result.Chunks = chunks
	return result, nil
}

// section represents a markdown section with header info
type section struct {
	headerLevel int
	headerTitle string
	headerPath  []string
	content     string
}

// parseSections parses markdown content into sections, tracking a heading
// stack so each section carries its full breadcrumb path.
func (c *MarkdownChunker) parseSections(content string) []*section {
	lines := strings.Split(content, "\n")
	var sections []*section
	headerStack := make([]string, 6)

	var currentSection *section
	var contentBuilder strings.Builder

	for _, line := range lines {
		if match := headerPattern.FindStringSubmatch(line); match != nil {
			if currentSection != nil {
				currentSection.content = contentBuilder.String()
				sections = append(sections, currentSection)
				contentBuilder.Reset()
			}

			level := len(match[1])
			title := strings.TrimSpace(match[2])

			headerStack[level-1] = title
			for i := level; i < 6; i++ {
				headerStack[i] = ""
			}

			var pathParts []string
			for i := 0; i < level; i++ {
				if headerStack[i] != "" {
					pathParts = append(pathParts, headerStack[i])
				}
			}

			currentSection = &section{
				headerLevel: level,
				headerTitle: title,
				headerPath:  pathParts,
			}
			contentBuilder.WriteString(line)
			contentBuilder.WriteString("\n")
		} else {
			contentBuilder.WriteString(line)
			contentBuilder.WriteString("\n")
		}
	}

	if currentSection != nil {
		currentSection.content = contentBuilder.String()
		sections = append(sections, currentSection)
	}

	return sections
}

// createSectionChunks creates one or more chunks from a section
func (c *MarkdownChunker) createSectionChunks(input *Input, sec *section) []*store.Chunk {
	content := strings.TrimRight(sec.content, "\n")

	trimmedContent := strings.TrimSpace(content)
	lines := strings.Split(trimmedContent, "\n")
	if len(lines) <= 1 && headerPattern.MatchString(trimmedContent) {
		return nil
	}

	if estimateTokens(content) <= c.options.MaxChunkTokens {
		return []*store.Chunk{c.buildChunk(input, content, sec.headerPath, classifyProse(content))}
	}

	return c.splitLargeSection(input, sec, content)
}

// splitLargeSection splits a large section into multiple chunks by paragraph
func (c *MarkdownChunker) splitLargeSection(input *Input, sec *section, content string) []*store.Chunk {
	atomicBlocks := c.findAtomicBlocks(content)
	paragraphs := c.splitByParagraphs(content, atomicBlocks)

	var chunks []*store.Chunk
	var currentContent strings.Builder

	flush := func() {
		if currentContent.Len() == 0 {
			return
		}
		body := currentContent.String()
		chunks = append(chunks, c.buildChunk(input, body, sec.headerPath, classifyProse(body)))
		currentContent.Reset()
	}

	for i, para := range paragraphs {
		paraTokens := estimateTokens(para)
		currentTokens := estimateTokens(currentContent.String())

		if currentContent.Len() > 0 && currentTokens+paraTokens > c.options.MaxChunkTokens {
			flush()
			if i > 0 {
				currentContent.WriteString("<!-- Section: ")
				currentContent.WriteString(strings.Join(sec.headerPath, " > "))
				currentContent.WriteString(" -->\n\n")
			}
		}

		currentContent.WriteString(para)
		currentContent.WriteString("\n\n")
	}
	flush()

	return chunks
}

// findAtomicBlocks finds positions of blocks that shouldn't be split
func (c *MarkdownChunker) findAtomicBlocks(content string) [][]int {
	var blocks [][]int
	blocks = append(blocks, codeBlockPattern.FindAllStringIndex(content, -1)...)
	blocks = append(blocks, tablePattern.FindAllStringIndex(content, -1)...)
	blocks = append(blocks, mdxSelfClosingPattern.FindAllStringIndex(content, -1)...)
	blocks = append(blocks, c.findMDXBlockComponents(content)...)
	return blocks
}

// findMDXBlockComponents finds MDX block components without backreferences
func (c *MarkdownChunker) findMDXBlockComponents(content string) [][]int {
	var locs [][]int

	openTagPattern := regexp.MustCompile(`<([A-Z][a-zA-Z0-9]*)[^/>]*>`)
	matches := openTagPattern.FindAllStringSubmatchIndex(content, -1)

	for _, match := range matches {
		if len(match) >= 4 {
			tagName := content[match[2]:match[3]]
			closeTag := "</" + tagName + ">"
			startPos := match[0]

			closePos := strings.Index(content[match[1]:], closeTag)
			if closePos != -1 {
				endPos := match[1] + closePos + len(closeTag)
				locs = append(locs, []int{startPos, endPos})
			}
		}
	}

	return locs
}

// splitByParagraphs splits content by blank lines while preserving atomic blocks
func (c *MarkdownChunker) splitByParagraphs(content string, atomicBlocks [][]int) []string {
	parts := strings.Split(content, "\n\n")

	var paragraphs []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	return c.mergeAtomicBlocks(paragraphs)
}

// mergeAtomicBlocks merges paragraphs that are part of atomic blocks
func (c *MarkdownChunker) mergeAtomicBlocks(paragraphs []string) []string {
	var result []string
	var inCodeBlock bool
	var codeBlockBuilder strings.Builder

	for _, para := range paragraphs {
		if inCodeBlock {
			codeBlockBuilder.WriteString("\n\n")
			codeBlockBuilder.WriteString(para)
			if strings.Contains(para, "```") {
				result = append(result, codeBlockBuilder.String())
				codeBlockBuilder.Reset()
				inCodeBlock = false
			}
			continue
		}

		openCount := strings.Count(para, "```")
		if openCount > 0 && openCount%2 == 1 {
			inCodeBlock = true
			codeBlockBuilder.WriteString(para)
			continue
		}

		result = append(result, para)
	}

	if inCodeBlock {
		result = append(result, codeBlockBuilder.String())
	}

	return result
}

// chunkByParagraphs chunks content without headers by paragraphs
func (c *MarkdownChunker) chunkByParagraphs(input *Input, content string, headerPath []string) []*store.Chunk {
	paragraphs := strings.Split(content, "\n\n")

	var chunks []*store.Chunk
	var currentContent strings.Builder

	flush := func() {
		if currentContent.Len() == 0 {
			return
		}
		body := currentContent.String()
		chunks = append(chunks, c.buildChunk(input, body, headerPath, classifyProse(body)))
		currentContent.Reset()
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		paraTokens := estimateTokens(para)
		currentTokens := estimateTokens(currentContent.String())

		if currentContent.Len() > 0 && currentTokens+paraTokens > c.options.MaxChunkTokens {
			flush()
		}

		if currentContent.Len() > 0 {
			currentContent.WriteString("\n\n")
		}
		currentContent.WriteString(para)
	}
	flush()

	return chunks
}

// buildChunk assembles a store.Chunk with a heading-breadcrumb path.
func (c *MarkdownChunker) buildChunk(input *Input, content string, headerPath []string, types []string) *store.Chunk {
	content = strings.TrimRight(content, "\n ")
	path := append([]string{}, headerPath...)
	return &store.Chunk{
		ID:      generateChunkID(input.Path, strings.Join(path, "/")+":"+content),
		Content: content,
		Metadata: store.ChunkMetadata{
			Path:  path,
			Level: len(path),
			Types: types,
		},
	}
}

// classifyProse returns the Types set for a prose chunk body: a chunk that,
// apart from a leading heading line, is only a fenced code block is tagged
// "code", and a chunk containing a table is tagged "table", so assembly can
// treat it as an atomic unit rather than free text.
func classifyProse(content string) []string {
	trimmed := strings.TrimSpace(content)
	if first, rest, ok := strings.Cut(trimmed, "\n"); ok && headerPattern.MatchString(first) {
		trimmed = strings.TrimSpace(rest)
	}
	if codeBlockPattern.MatchString(trimmed) && len(codeBlockPattern.FindString(trimmed)) >= len(trimmed)-2 {
		return []string{"code"}
	}
	if tablePattern.MatchString(trimmed) {
		return []string{"table"}
	}
	return []string{"text"}
}
