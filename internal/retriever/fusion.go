// Package retriever provides hybrid search functionality combining BM25 and semantic search.
// Results are fused using Reciprocal Rank Fusion (RRF).
package retriever

import (
	"math"
	"sort"

	"github.com/Aman-CERP/docindex/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains (used by Azure AI Search, OpenSearch, etc.).
const DefaultRRFConstant = 60

// FusedResult represents a single result after RRF fusion.
type FusedResult struct {
	ChunkID      string   // Chunk identifier
	RRFScore     float64  // Combined RRF score, in (0, 2/(1+k)]
	BM25Score    float64  // Original BM25 score (preserved)
	BM25Rank     int      // Position in BM25 list (1-indexed, 0 if absent)
	VecScore     float64  // Original vector similarity score (preserved)
	VecRank      int      // Position in vector list (1-indexed, 0 if absent)
	InBothLists  bool     // Document appeared in both result lists
	MatchedTerms []string // BM25 matched terms (for highlighting)

	// insertOrder is the index at which this chunk was first seen across the
	// bm25 then vec scan; the final tie-break (§4.1 "insertion order").
	insertOrder int
}

// RRFFusion combines BM25 and vector search results using
// Reciprocal Rank Fusion algorithm.
//
// Algorithm: RRF_score(d) = Σ over present ranks of weight_i / (k + rank_i)
//
// Where:
//   - k = smoothing constant (default: 60)
//   - rank_i = position in ranked list i (1-indexed); a list a document
//     doesn't appear in contributes no term at all (§4.1)
//   - weight_i = weight for search source i
type RRFFusion struct {
	K int // RRF smoothing constant (default: 60)
}

// NewRRFFusion creates a new RRF fusion instance with default k=60.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// NewRRFFusionWithK creates a new RRF fusion with custom k value.
// If k <= 0, defaults to 60.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse combines BM25 and vector results using Reciprocal Rank Fusion. A
// document missing from one list contributes only the term for the list it
// appears in — there is no missing-rank term for the other side — which
// keeps every fused score within (0, 2/(1+K)] (§8 "RRF bounds").
//
// Results are sorted by: RRFScore (desc) → VecRank (lower first, absent
// last) → BM25Rank (lower first, absent last) → insertion order (§4.1).
func (f *RRFFusion) Fuse(
	bm25 []*store.BM25Result,
	vec []*store.VectorResult,
	weights Weights,
) []*FusedResult {
	// Return empty slice, not nil, for consistent API behavior.
	if len(bm25) == 0 && len(vec) == 0 {
		return []*FusedResult{}
	}

	capacity := len(bm25) + len(vec)
	scores := make(map[string]*FusedResult, capacity)

	for rank, r := range bm25 {
		result := f.getOrCreate(scores, r.DocID)
		result.BM25Score = r.Score
		result.BM25Rank = rank + 1
		result.MatchedTerms = r.MatchedTerms
		result.RRFScore += weights.BM25 / float64(f.K+rank+1)
	}

	for rank, r := range vec {
		result := f.getOrCreate(scores, r.ID)
		result.VecScore = float64(r.Score)
		result.VecRank = rank + 1
		result.RRFScore += weights.Semantic / float64(f.K+rank+1)
	}

	for _, r := range scores {
		r.InBothLists = r.BM25Rank > 0 && r.VecRank > 0
	}

	return f.toSortedSlice(scores)
}

// getOrCreate returns existing result or creates new one, recording the
// order it was first seen for the final tie-break.
func (f *RRFFusion) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ChunkID: id, insertOrder: len(m)}
	m[id] = r
	return r
}

// toSortedSlice converts map to slice and sorts by RRF score with tie-breaking.
func (f *RRFFusion) toSortedSlice(m map[string]*FusedResult) []*FusedResult {
	results := make([]*FusedResult, 0, len(m))
	for _, r := range m {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return f.compare(results[i], results[j])
	})

	return results
}

// compare implements deterministic comparison for sorting.
// Returns true if a should rank before b.
//
// Priority (§4.1):
//  1. Higher RRF score
//  2. Lower vec_rank (a result missing from the vector list ranks last)
//  3. Lower fts_rank/BM25 rank (same absent-ranks-last rule)
//  4. Insertion order
func (f *RRFFusion) compare(a, b *FusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}

	aVec, bVec := rankOrInfinite(a.VecRank), rankOrInfinite(b.VecRank)
	if aVec != bVec {
		return aVec < bVec
	}

	aBM25, bBM25 := rankOrInfinite(a.BM25Rank), rankOrInfinite(b.BM25Rank)
	if aBM25 != bBM25 {
		return aBM25 < bBM25
	}

	return a.insertOrder < b.insertOrder
}

// rankOrInfinite maps an absent rank (0) to +Inf so it always sorts after
// any present rank, per §4.1's "missing → ∞" rank assignment.
func rankOrInfinite(rank int) float64 {
	if rank <= 0 {
		return math.Inf(1)
	}
	return float64(rank)
}
