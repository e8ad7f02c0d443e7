package pipeline

import (
	"context"

	"github.com/Aman-CERP/docindex/internal/store"
)

// Chunk size defaults (based on 2025 RAG research)
const (
	DefaultMaxChunkTokens = 512 // Optimal for 85-90% recall
	DefaultOverlapTokens  = 64  // ~12.5% overlap
	MinChunkTokens        = 100 // Minimum viable chunk
	TokensPerChar         = 4   // Rough approximation: 4 chars = 1 token
)

// Input is a fetched resource awaiting chunking into a page's content tree.
type Input struct {
	URL      string
	Path     string // local path or URL path component, used for chunk IDs
	Content  []byte
	MimeType string
	Language string // set by the caller for code sources; detected otherwise
}

// Pipeline turns a fetched resource into a store.ScrapeResult: a flat list
// of chunks each carrying its position in the resource's structural
// hierarchy (Metadata.Path/Level/Types, §3, §4.3). Implementations are
// selected by MIME type rather than composed into a class hierarchy, per
// the capability-interface pattern used throughout this codebase.
type Pipeline interface {
	// CanHandle reports whether this pipeline chunks content of mimeType.
	CanHandle(mimeType string) bool

	// Chunk splits a fetched resource into a ScrapeResult ready for
	// store.Catalog.AddDocuments.
	Chunk(ctx context.Context, input *Input) (*store.ScrapeResult, error)
}

// SymbolType represents the kind of code symbol
type SymbolType string

const (
	SymbolTypeFunction  SymbolType = "function"
	SymbolTypeClass     SymbolType = "class"
	SymbolTypeInterface SymbolType = "interface"
	SymbolTypeType      SymbolType = "type"
	SymbolTypeVariable  SymbolType = "variable"
	SymbolTypeConstant  SymbolType = "constant"
	SymbolTypeMethod    SymbolType = "method"
)

// Symbol represents a code symbol extracted from parsing, with its
// position in the ancestor chain of enclosing symbols (§4.3.1 path/level).
type Symbol struct {
	Name       string
	Type       SymbolType
	StartLine  int
	EndLine    int
	Signature  string
	DocComment string
	Path       []string // ancestor symbol names, innermost last, this symbol included
}

// Tree represents a parsed AST
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node represents a node in the AST
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point represents a position in the source code
type Point struct {
	Row    uint32 // 0-indexed line number
	Column uint32
}

// LanguageConfig holds configuration for a supported language
type LanguageConfig struct {
	Name       string
	Extensions []string

	// Node types that indicate function declarations
	FunctionTypes []string

	// Node types that indicate class/struct definitions
	ClassTypes []string

	// Node types that indicate interface definitions
	InterfaceTypes []string

	// Node types that indicate method definitions
	MethodTypes []string

	// Node types that indicate type definitions
	TypeDefTypes []string

	// Node types that indicate constant declarations
	ConstantTypes []string

	// Node types that indicate variable declarations
	VariableTypes []string

	// Node type for name identifier
	NameField string
}
