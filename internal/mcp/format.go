package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/Aman-CERP/docindex/internal/retriever"
)

// ToSearchResultOutput converts one assembled hybrid-search result to the
// tool-facing output shape, including a human-readable match reason.
func ToSearchResultOutput(r *retriever.SearchResult) SearchResultOutput {
	if r == nil {
		return SearchResultOutput{}
	}
	return SearchResultOutput{
		URL:         r.URL,
		Title:       r.Title,
		Content:     r.Content,
		MimeType:    string(r.MimeType),
		Score:       r.Score,
		ChunkIDs:    r.ChunkIDs,
		MatchReason: generateMatchReason(r),
	}
}

// generateMatchReason builds a short explanation of why a result matched,
// drawn from the engine's explain data when search was run with Explain set.
func generateMatchReason(r *retriever.SearchResult) string {
	if r == nil || r.Explain == nil {
		return ""
	}
	e := r.Explain
	var parts []string
	if e.Strategy != "" {
		parts = append(parts, fmt.Sprintf("%s assembly", e.Strategy))
	}
	switch {
	case e.BM25Only:
		parts = append(parts, "keyword-only search")
	case e.DimensionMismatch:
		parts = append(parts, "keyword search (embedding unavailable)")
	default:
		parts = append(parts, fmt.Sprintf("bm25=%.2f semantic=%.2f", e.Weights.BM25, e.Weights.Semantic))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ")
}

// clampLimit bounds a caller-supplied limit to [min, max], substituting
// defaultVal when the caller didn't specify one.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// fuzzySuggestions returns up to limit candidates from names whose normalized
// edit distance to target is within threshold, closest first. Grounded on
// §7's "bounded edit-distance search ... threshold ≈ 0.7" requirement.
func fuzzySuggestions(target string, names []string, threshold float64, limit int) []string {
	target = strings.ToLower(strings.TrimSpace(target))
	type scored struct {
		name string
		sim  float64
	}
	var candidates []scored
	for _, name := range names {
		norm := strings.ToLower(strings.TrimSpace(name))
		sim := similarity(target, norm)
		if sim >= threshold {
			candidates = append(candidates, scored{name: name, sim: sim})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.name
	}
	return out
}

// similarity returns 1 - normalized Levenshtein distance between a and b, in
// [0, 1]; identical strings score 1, completely disjoint strings score 0.
func similarity(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}
