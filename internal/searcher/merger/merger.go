// Package merger combines the ranked hits of several sources into one
// top-k list.
package merger

import (
	"container/heap"

	"github.com/3worlds/aot/internal/searcher/ranker"
)

// DefaultLimit applies when Merge is given a non-positive limit.
const DefaultLimit = 10

// Merge returns the best limit docs across all per-source lists, best
// first, in ranker.Less order. The same key from two sources yields two
// hits. Inputs need not be sorted and are not modified.
func Merge(perSource [][]ranker.ScoredDoc, limit int) []ranker.ScoredDoc {
	if limit <= 0 {
		limit = DefaultLimit
	}
	// h keeps the current top limit docs with the weakest at the root.
	h := make(worstFirst, 0, limit+1)
	for _, docs := range perSource {
		for _, doc := range docs {
			if len(h) == limit {
				if !ranker.Less(h[0], doc) {
					continue
				}
				h[0] = doc
				heap.Fix(&h, 0)
				continue
			}
			heap.Push(&h, doc)
		}
	}

	out := make([]ranker.ScoredDoc, len(h))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(ranker.ScoredDoc)
	}
	return out
}

type worstFirst []ranker.ScoredDoc

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return ranker.Less(h[i], h[j]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *worstFirst) Push(x any) { *h = append(*h, x.(ranker.ScoredDoc)) }

func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	doc := old[n-1]
	*h = old[:n-1]
	return doc
}
