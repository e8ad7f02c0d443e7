package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Aman-CERP/docindex/internal/store"
)

// CodeChunkerOptions configures the code chunker behavior
type CodeChunkerOptions struct {
	MaxChunkTokens int // Maximum tokens per chunk (default: DefaultMaxChunkTokens)
	OverlapTokens  int // Overlap between chunks when splitting (default: DefaultOverlapTokens)
}

// CodeChunker implements AST-aware code chunking using tree-sitter,
// producing chunks whose Metadata.Path mirrors the symbol's position in
// the enclosing container chain (module/class/method) rather than a flat
// list (§4.3.1).
type CodeChunker struct {
	parser    *Parser
	extractor *SymbolExtractor
	registry  *LanguageRegistry
	options   CodeChunkerOptions
}

// NewCodeChunker creates a new code chunker with default options
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithOptions(CodeChunkerOptions{})
}

// NewCodeChunkerWithOptions creates a new code chunker with custom options
func NewCodeChunkerWithOptions(opts CodeChunkerOptions) *CodeChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}

	registry := DefaultRegistry()
	return &CodeChunker{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
		options:   opts,
	}
}

// Close releases chunker resources
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// CanHandle reports whether mimeType names a language this chunker knows,
// or a generic source-code type handled by the line-based fallback.
func (c *CodeChunker) CanHandle(mimeType string) bool {
	switch mimeType {
	case "text/x-go", "text/x-python", "text/x-typescript", "text/javascript",
		"application/javascript", "text/x-source":
		return true
	}
	return false
}

// Chunk splits a fetched source file into hierarchical chunks.
func (c *CodeChunker) Chunk(ctx context.Context, input *Input) (*store.ScrapeResult, error) {
	if len(input.Content) == 0 {
		return &store.ScrapeResult{URL: input.URL, ContentType: store.ContentTypeCode}, nil
	}

	language := input.Language
	if language == "" {
		language = languageFromMime(input.MimeType)
	}

	var chunks []*store.Chunk
	var err error

	_, supported := c.registry.GetByName(language)
	if !supported {
		chunks = c.chunkByLines(input)
	} else {
		var tree *Tree
		tree, err = c.parser.Parse(ctx, input.Content, language)
		if err != nil || tree == nil {
			chunks = c.chunkByLines(input)
		} else {
			chunks, err = c.chunkTree(tree, input, language)
			if err != nil {
				return nil, err
			}
		}
	}

	for i, ch := range chunks {
		ch.SortOrder = i
	}

	return &store.ScrapeResult{
		URL:         input.URL,
		ContentType: store.ContentTypeCode,
		Chunks:      chunks,
	}, nil
}

// symbolNodeInfo holds a symbol node with its extracted symbol info and the
// nesting level at which it was discovered (0 = top level).
type symbolNodeInfo struct {
	node       *Node
	symbol     *Symbol
	ancestors  []string // names of enclosing symbols, outermost first
	isTopLevel bool
}

// chunkTree walks the parsed tree building one chunk per symbol, with
// chunks for container symbols (classes, interfaces) marked structural and
// their members carrying the container's name in their Metadata.Path.
func (c *CodeChunker) chunkTree(tree *Tree, input *Input, language string) ([]*store.Chunk, error) {
	fileContext := c.extractFileContext(tree, tree.Source, language)
	fileContext = c.enrichContextWithFilePath(input.Path, language, fileContext)

	config, _ := c.registry.GetByName(language)
	containerTypes := make(map[string]bool)
	for _, t := range config.ClassTypes {
		containerTypes[t] = true
	}
	for _, t := range config.InterfaceTypes {
		containerTypes[t] = true
	}

	symbolTypes := make(map[string]SymbolType)
	for _, t := range config.FunctionTypes {
		symbolTypes[t] = SymbolTypeFunction
	}
	for _, t := range config.MethodTypes {
		symbolTypes[t] = SymbolTypeMethod
	}
	for _, t := range config.ClassTypes {
		symbolTypes[t] = SymbolTypeClass
	}
	for _, t := range config.InterfaceTypes {
		symbolTypes[t] = SymbolTypeInterface
	}
	for _, t := range config.TypeDefTypes {
		symbolTypes[t] = SymbolTypeType
	}
	for _, t := range config.ConstantTypes {
		symbolTypes[t] = SymbolTypeConstant
	}
	for _, t := range config.VariableTypes {
		symbolTypes[t] = SymbolTypeVariable
	}

	var infos []*symbolNodeInfo
	c.walkSymbols(tree.Root, tree, language, symbolTypes, nil, &infos)

	chunks := make([]*store.Chunk, 0, len(infos))
	for _, info := range infos {
		_, isContainer := containerTypes[info.node.Type]
		hasMembers := isContainer && len(childSymbols(infos, info)) > 0
		chunks = append(chunks, c.chunksFromSymbol(info, tree, input, fileContext, hasMembers)...)
	}
	return chunks, nil
}

// walkSymbols recursively finds symbol-defining nodes, tracking the names
// of enclosing symbols so each discovered symbol carries its full path.
func (c *CodeChunker) walkSymbols(n *Node, tree *Tree, language string, symbolTypes map[string]SymbolType, ancestors []string, out *[]*symbolNodeInfo) {
	if n == nil {
		return
	}

	matched := false

	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		if sym := c.extractor.extractSpecialSymbol(n, tree.Source, language); sym != nil {
			sym.Path = append(append([]string{}, ancestors...), sym.Name)
			*out = append(*out, &symbolNodeInfo{node: n, symbol: sym, ancestors: ancestors, isTopLevel: len(ancestors) == 0})
			matched = true
		}
	}

	if !matched {
		if symType, isSymbol := symbolTypes[n.Type]; isSymbol {
			if sym := c.extractSymbol(n, tree, symType, language); sym != nil {
				sym.Path = append(append([]string{}, ancestors...), sym.Name)
				*out = append(*out, &symbolNodeInfo{node: n, symbol: sym, ancestors: ancestors, isTopLevel: len(ancestors) == 0})

				childAncestors := append(append([]string{}, ancestors...), sym.Name)
				for _, child := range n.Children {
					c.walkSymbols(child, tree, language, symbolTypes, childAncestors, out)
				}
				return
			}
		}
	}

	for _, child := range n.Children {
		c.walkSymbols(child, tree, language, symbolTypes, ancestors, out)
	}
}

// childSymbols returns the infos whose ancestor chain ends in info's symbol.
func childSymbols(all []*symbolNodeInfo, parent *symbolNodeInfo) []*symbolNodeInfo {
	var out []*symbolNodeInfo
	for _, candidate := range all {
		if len(candidate.ancestors) == len(parent.ancestors)+1 &&
			candidate.ancestors[len(candidate.ancestors)-1] == parent.symbol.Name {
			out = append(out, candidate)
		}
	}
	return out
}

// extractSymbol extracts symbol info from a node
func (c *CodeChunker) extractSymbol(n *Node, tree *Tree, symType SymbolType, language string) *Symbol {
	config, _ := c.registry.GetByName(language)
	name := c.extractor.extractName(n, tree.Source, config, language)
	if name == "" {
		return nil
	}

	docComment := c.extractDocComment(n, tree.Source, language)

	return &Symbol{
		Name:       name,
		Type:       symType,
		StartLine:  int(n.StartPoint.Row) + 1,
		EndLine:    int(n.EndPoint.Row) + 1,
		DocComment: docComment,
	}
}

// extractDocComment extracts doc comment for a node, looking for multi-line comments
func (c *CodeChunker) extractDocComment(n *Node, source []byte, language string) string {
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}

	if lineStart <= 1 {
		return ""
	}

	var commentLines []string
	pos := lineStart - 1

	for pos > 0 {
		prevLineEnd := pos
		pos--
		for pos > 0 && source[pos] != '\n' {
			pos--
		}
		prevLineStart := pos
		if pos > 0 {
			prevLineStart++
		}

		prevLine := strings.TrimSpace(string(source[prevLineStart:prevLineEnd]))

		switch language {
		case "go", "typescript", "tsx", "javascript", "jsx":
			if strings.HasPrefix(prevLine, "//") {
				commentLines = append([]string{strings.TrimPrefix(prevLine, "//")}, commentLines...)
				continue
			}
		case "python":
			if strings.HasPrefix(prevLine, "#") {
				commentLines = append([]string{strings.TrimPrefix(prevLine, "#")}, commentLines...)
				continue
			}
		}

		if prevLine != "" {
			break
		}
	}

	if len(commentLines) == 0 {
		return ""
	}

	return strings.TrimSpace(strings.Join(commentLines, "\n"))
}

// chunksFromSymbol creates one or more chunks from a symbol node. A
// container with members produces a separate structural overview chunk so
// the container's own signature/doc is retrievable without its full body.
func (c *CodeChunker) chunksFromSymbol(info *symbolNodeInfo, tree *Tree, input *Input, fileContext string, hasMembers bool) []*store.Chunk {
	node := info.node
	level := len(info.symbol.Path) - 1
	types := []string{"code"}
	if hasMembers {
		types = []string{"structural", "code"}
	}

	if hasMembers {
		overview := c.containerOverview(info, tree.Source)
		return []*store.Chunk{
			c.buildChunk(input, overview, fileContext, info.symbol.Path, level, types),
		}
	}

	rawContent := string(tree.Source[node.StartByte:node.EndByte])
	if info.symbol.DocComment != "" {
		rawContent = c.getRawContentWithDocComment(node, tree.Source, info.symbol.DocComment)
	}

	if estimateTokens(rawContent) <= c.options.MaxChunkTokens {
		return []*store.Chunk{c.buildChunk(input, rawContent, fileContext, info.symbol.Path, level, types)}
	}

	return c.splitByLines(rawContent, info.symbol.Path, level, input, fileContext, types)
}

// containerOverview extracts the container's signature line(s) and doc
// comment without its full member bodies, so the structural chunk stays
// small regardless of how large the container is.
func (c *CodeChunker) containerOverview(info *symbolNodeInfo, source []byte) string {
	node := info.node
	headerEnd := node.StartByte
	for _, child := range node.Children {
		if strings.Contains(child.Type, "body") || child.Type == "block" || child.Type == "class_body" {
			headerEnd = child.StartByte
			break
		}
	}
	if headerEnd <= node.StartByte {
		headerEnd = node.EndByte
	}
	header := strings.TrimRight(string(source[node.StartByte:headerEnd]), " \t\n{")
	if info.symbol.DocComment != "" {
		return info.symbol.DocComment + "\n" + header
	}
	return header
}

// getRawContentWithDocComment gets raw content including doc comment
func (c *CodeChunker) getRawContentWithDocComment(n *Node, source []byte, docComment string) string {
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}

	docLines := strings.Count(docComment, "\n") + 1
	for i := 0; i < docLines && lineStart > 0; i++ {
		lineStart--
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}
	}

	return string(source[lineStart:n.EndByte])
}

// splitByLines splits content into line-based chunks with overlap, each
// carrying the same structural path with an appended part marker.
func (c *CodeChunker) splitByLines(content string, path []string, level int, input *Input, fileContext string, types []string) []*store.Chunk {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return nil
	}

	maxLinesPerChunk := (c.options.MaxChunkTokens * TokensPerChar) / 80
	if maxLinesPerChunk < 20 {
		maxLinesPerChunk = 20
	}
	overlapLines := (c.options.OverlapTokens * TokensPerChar) / 80
	if overlapLines < 2 {
		overlapLines = 2
	}

	var chunks []*store.Chunk
	part := 1
	for i := 0; i < len(lines); {
		end := i + maxLinesPerChunk
		if end > len(lines) {
			end = len(lines)
		}

		chunkContent := strings.Join(lines[i:end], "\n")
		partPath := append(append([]string{}, path...), fmt.Sprintf("part%d", part))
		chunks = append(chunks, c.buildChunk(input, chunkContent, fileContext, partPath, level+1, types))
		part++

		i = end - overlapLines
		if i <= 0 || end >= len(lines) {
			break
		}
	}

	return chunks
}

// buildChunk assembles a store.Chunk with file context prepended to content
// and a hierarchical Metadata position.
func (c *CodeChunker) buildChunk(input *Input, rawContent, fileContext string, path []string, level int, types []string) *store.Chunk {
	content := combineContextAndContent(fileContext, rawContent)
	return &store.Chunk{
		ID:      generateChunkID(input.Path, strings.Join(path, "/")+":"+rawContent),
		Content: content,
		Metadata: store.ChunkMetadata{
			Path:  path,
			Level: level,
			Types: types,
		},
	}
}

// extractFileContext extracts package declaration and imports from a file
func (c *CodeChunker) extractFileContext(tree *Tree, source []byte, language string) string {
	var parts []string

	switch language {
	case "go":
		parts = c.extractGoContext(tree, source)
	case "typescript", "tsx":
		parts = c.extractTSContext(tree, source)
	case "javascript", "jsx":
		parts = c.extractJSContext(tree, source)
	case "python":
		parts = c.extractPythonContext(tree, source)
	}

	return strings.Join(parts, "\n\n")
}

func (c *CodeChunker) extractGoContext(tree *Tree, source []byte) []string {
	var parts []string

	for _, node := range tree.Root.Children {
		if node.Type == "package_clause" {
			parts = append(parts, node.GetContent(source))
			break
		}
	}

	for _, node := range tree.Root.Children {
		if node.Type == "import_declaration" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

func (c *CodeChunker) extractTSContext(tree *Tree, source []byte) []string {
	return c.extractJSContext(tree, source)
}

func (c *CodeChunker) extractJSContext(tree *Tree, source []byte) []string {
	var parts []string

	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

func (c *CodeChunker) extractPythonContext(tree *Tree, source []byte) []string {
	var parts []string

	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" || node.Type == "import_from_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

// chunkByLines is the fallback for unsupported languages or parse failures.
func (c *CodeChunker) chunkByLines(input *Input) []*store.Chunk {
	content := string(input.Content)
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	linesPerChunk := 128
	overlapLines := 16

	var chunks []*store.Chunk
	part := 1
	for i := 0; i < len(lines); {
		end := i + linesPerChunk
		if end > len(lines) {
			end = len(lines)
		}

		chunkContent := strings.Join(lines[i:end], "\n")
		path := []string{fmt.Sprintf("part%d", part)}
		chunks = append(chunks, c.buildChunk(input, chunkContent, "", path, 0, []string{"code"}))
		part++

		i = end - overlapLines
		if i <= 0 || end >= len(lines) {
			break
		}
	}

	return chunks
}

// generateChunkID generates a content-addressable chunk ID from a path and
// content, stable across re-chunking of unchanged content.
func generateChunkID(filePath string, content string) string {
	contentHash := sha256.Sum256([]byte(content))
	contentHashStr := hex.EncodeToString(contentHash[:])[:16]

	input := fmt.Sprintf("%s:%s", filePath, contentHashStr)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

// estimateTokens estimates the number of tokens in content
func estimateTokens(content string) int {
	return len(content) / TokensPerChar
}

// combineContextAndContent combines context and raw content into full content
func combineContextAndContent(context, rawContent string) string {
	if context == "" {
		return rawContent
	}
	return context + "\n\n" + rawContent
}

// enrichContextWithFilePath prepends a file path marker to the context, in
// the comment syntax of the source language.
func (c *CodeChunker) enrichContextWithFilePath(filePath, language, existingContext string) string {
	if filePath == "" {
		return existingContext
	}

	var marker string
	switch language {
	case "python":
		marker = fmt.Sprintf("# File: %s", filePath)
	default:
		marker = fmt.Sprintf("// File: %s", filePath)
	}

	if existingContext == "" {
		return marker
	}
	return marker + "\n" + existingContext
}

// languageFromMime maps a source MIME type to a tree-sitter language name.
func languageFromMime(mimeType string) string {
	switch mimeType {
	case "text/x-go":
		return "go"
	case "text/x-python":
		return "python"
	case "text/x-typescript":
		return "typescript"
	case "text/javascript", "application/javascript":
		return "javascript"
	default:
		return ""
	}
}
