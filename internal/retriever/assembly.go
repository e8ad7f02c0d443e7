package retriever

import (
	"context"
	"sort"
	"strings"

	"github.com/Aman-CERP/docindex/internal/store"
)

// hit is one initial fused hit, grouped by the page it belongs to.
type hit struct {
	chunk *store.Chunk
	score float64
}

// assemblePage expands a URL group of hits into a single result, selecting
// the strategy by the page's content type: hierarchical for code/JSON,
// prose for everything else (markdown, HTML, plain text, unknown).
func (e *Engine) assemblePage(ctx context.Context, page *store.Page, hits []hit) (*SearchResult, error) {
	var ids []string
	var err error

	switch page.ContentType {
	case store.ContentTypeCode, store.ContentTypeJSON:
		ids, err = e.hierarchicalExpand(ctx, page, hits)
	default:
		ids, err = e.proseExpand(ctx, hits)
	}
	if err != nil {
		return nil, err
	}

	chunks, err := e.catalog.FindChunksByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	content := assembleContent(chunks)

	maxScore := 0.0
	for _, h := range hits {
		if h.score > maxScore {
			maxScore = h.score
		}
	}

	orderedIDs := make([]string, len(chunks))
	for i, c := range chunks {
		orderedIDs[i] = c.ID
	}

	return &SearchResult{
		URL:      page.URL,
		Title:    page.Title,
		Content:  content,
		MimeType: page.ContentType,
		Score:    maxScore,
		ChunkIDs: orderedIDs,
	}, nil
}

// assembleContent concatenates chunks, already sorted by sort_order, with a
// blank line between each.
func assembleContent(chunks []*store.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n\n")
}

// proseExpand implements the Prose strategy: for each hit, collect the chunk
// itself, its parent, 1 preceding and 2 subsequent siblings, and up to 3
// child chunks, deduplicated across hits.
func (e *Engine) proseExpand(ctx context.Context, hits []hit) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string

	add := func(c *store.Chunk) {
		if c == nil || seen[c.ID] {
			return
		}
		seen[c.ID] = true
		ids = append(ids, c.ID)
	}

	before := e.config.ProseSiblingsBefore
	after := e.config.ProseSiblingsAfter
	children := e.config.ProseChildren

	for _, h := range hits {
		add(h.chunk)

		parent, ok, err := e.catalog.FindParentChunk(ctx, h.chunk.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			add(parent)
		}

		preceding, err := e.catalog.FindPrecedingSiblingChunks(ctx, h.chunk.ID, before)
		if err != nil {
			return nil, err
		}
		for _, c := range preceding {
			add(c)
		}

		subsequent, err := e.catalog.FindSubsequentSiblingChunks(ctx, h.chunk.ID, after)
		if err != nil {
			return nil, err
		}
		for _, c := range subsequent {
			add(c)
		}

		kids, err := e.catalog.FindChildChunks(ctx, h.chunk.ID, children)
		if err != nil {
			return nil, err
		}
		for _, c := range kids {
			add(c)
		}
	}

	return ids, nil
}

// hierarchicalExpand implements the Hierarchical strategy for structured
// content (code, JSON). Single-hit pages walk the parent chain to the
// nearest structural ancestor (promoting to the top-level container if none
// exists) and include its full subtree plus the chain to the root.
// Multi-hit pages include the longest common path prefix plus every hit's
// subtree.
func (e *Engine) hierarchicalExpand(ctx context.Context, page *store.Page, hits []hit) ([]string, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	allChunks, err := e.catalog.FindChunksByURL(ctx, page.VersionID, page.URL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	add := func(c *store.Chunk) {
		if c == nil || seen[c.ID] {
			return
		}
		seen[c.ID] = true
		ids = append(ids, c.ID)
	}

	if len(hits) == 1 {
		h := hits[0]
		add(h.chunk)

		ancestor := e.nearestStructuralAncestor(ctx, allChunks, h.chunk)
		if ancestor == nil {
			ancestor = topLevelContainer(allChunks, h.chunk)
		}
		if ancestor != nil {
			for _, c := range subtreeOf(allChunks, ancestor) {
				add(c)
			}
			for _, c := range parentChainOf(allChunks, ancestor) {
				add(c)
			}
		}
		return ids, nil
	}

	prefix := commonPathPrefix(hits)
	for _, c := range chunksAtPrefix(allChunks, prefix) {
		add(c)
	}
	for _, h := range hits {
		add(h.chunk)
		for _, c := range subtreeOf(allChunks, h.chunk) {
			add(c)
		}
	}

	return ids, nil
}

// nearestStructuralAncestor walks the parent chain from chunk, tolerating
// gaps by trying progressively shorter path prefixes, until it finds a
// chunk whose types include "structural". Bounded by MaxParentWalk with
// cycle detection via the visited set.
func (e *Engine) nearestStructuralAncestor(_ context.Context, all []*store.Chunk, chunk *store.Chunk) *store.Chunk {
	maxWalk := e.config.MaxParentWalk
	if maxWalk <= 0 {
		maxWalk = 50
	}

	byPath := indexByPath(all)
	visited := make(map[string]bool)
	path := chunk.Metadata.Path

	for step := 0; step < maxWalk && len(path) > 0; step++ {
		path = path[:len(path)-1]
		key := strings.Join(path, "\x00")
		if visited[key] {
			break
		}
		visited[key] = true

		cand, ok := byPath[key]
		if !ok {
			continue
		}
		if cand.Metadata.HasType("structural") {
			return cand
		}
	}
	return nil
}

// topLevelContainer returns the chunk at path[0] of the hit, i.e. the
// top-level container identified by the first path segment.
func topLevelContainer(all []*store.Chunk, chunk *store.Chunk) *store.Chunk {
	if len(chunk.Metadata.Path) == 0 {
		return nil
	}
	top := chunk.Metadata.Path[0]
	for _, c := range all {
		if len(c.Metadata.Path) == 1 && c.Metadata.Path[0] == top {
			return c
		}
	}
	return nil
}

// subtreeOf returns every chunk whose path has root as a prefix, including
// root itself, in BFS-friendly sort_order.
func subtreeOf(all []*store.Chunk, root *store.Chunk) []*store.Chunk {
	var out []*store.Chunk
	for _, c := range all {
		if pathHasPrefix(c.Metadata.Path, root.Metadata.Path) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

// parentChainOf returns every ancestor chunk above root, from root's parent
// up to the document root, in root-first order.
func parentChainOf(all []*store.Chunk, root *store.Chunk) []*store.Chunk {
	byPath := indexByPath(all)
	var out []*store.Chunk
	path := root.Metadata.Path
	for len(path) > 0 {
		path = path[:len(path)-1]
		key := strings.Join(path, "\x00")
		if c, ok := byPath[key]; ok {
			out = append(out, c)
		}
	}
	return out
}

// commonPathPrefix computes the longest common path prefix across all hits.
func commonPathPrefix(hits []hit) []string {
	if len(hits) == 0 {
		return nil
	}
	prefix := append([]string{}, hits[0].chunk.Metadata.Path...)
	for _, h := range hits[1:] {
		prefix = commonPrefix(prefix, h.chunk.Metadata.Path)
	}
	return prefix
}

func commonPrefix(a, b []string) []string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

// chunksAtPrefix returns chunks whose path is exactly the given prefix
// (the opening/closing containers at that level).
func chunksAtPrefix(all []*store.Chunk, prefix []string) []*store.Chunk {
	var out []*store.Chunk
	for _, c := range all {
		if samePathSlice(c.Metadata.Path, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func indexByPath(all []*store.Chunk) map[string]*store.Chunk {
	m := make(map[string]*store.Chunk, len(all))
	for _, c := range all {
		m[strings.Join(c.Metadata.Path, "\x00")] = c
	}
	return m
}

func pathHasPrefix(path, prefix []string) bool {
	if len(path) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if path[i] != p {
			return false
		}
	}
	return true
}

func samePathSlice(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
