// Package index implements the flat (exact, brute-force) nearest-neighbor
// index: an unordered bag of (id, vector) pairs scored against a query one
// at a time. It backs both standalone flat queries and the leaf-level scan
// inside the hierarchical index in pkg/hat.
package index

import (
	"container/heap"

	"github.com/liliang-cn/hatvec"
)

// FlatIndex is an exact k-NN index over a bag of (id, vector) pairs.
type FlatIndex struct {
	dim     int
	prox    hatvec.ProximityFunc
	vectors map[hatvec.Id]hatvec.Point
}

// New creates an empty flat index for vectors of dimensionality dim,
// scored by prox.
func New(dim int, prox hatvec.ProximityFunc) *FlatIndex {
	return &FlatIndex{dim: dim, prox: prox, vectors: make(map[hatvec.Id]hatvec.Point)}
}

// Insert adds or replaces the vector stored under id.
func (f *FlatIndex) Insert(id hatvec.Id, v hatvec.Point) error {
	if len(v) != f.dim {
		return hatvec.ErrDimensionMismatch
	}
	cp := make(hatvec.Point, len(v))
	copy(cp, v)
	f.vectors[id] = cp
	return nil
}

// Remove deletes id from the index. Removing an unknown id is a no-op.
func (f *FlatIndex) Remove(id hatvec.Id) {
	delete(f.vectors, id)
}

// Len returns the number of vectors in the index.
func (f *FlatIndex) Len() int {
	return len(f.vectors)
}

// Rebuild clears all state.
func (f *FlatIndex) Rebuild() {
	f.vectors = make(map[hatvec.Id]hatvec.Point)
}

// minHeapItem is a (id, score) pair kept in a min-heap so the smallest of
// the current top-k can be evicted in O(log k) as better candidates arrive.
type minHeapItem struct {
	id    hatvec.Id
	score float32
}

type minHeap []minHeapItem

// worseThan reports whether a ranks behind b under the standard ordering
// rule (descending score, ties broken by ascending id): the heap root is
// always the worst-ranked item so it is what gets evicted for a better
// candidate, including one that only ties on score and wins on id.
func worseThan(a, b minHeapItem) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.id.Compare(b.id) > 0
}

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return worseThan(h[i], h[j]) }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(minHeapItem)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Near returns the top k entries by descending proximity to q, ties
// broken by ascending id. Returns ErrDimensionMismatch if q doesn't match
// the index's dimensionality.
func (f *FlatIndex) Near(q hatvec.Point, k int) ([]hatvec.Hit, error) {
	if len(q) != f.dim {
		return nil, hatvec.ErrDimensionMismatch
	}
	if k <= 0 || len(f.vectors) == 0 {
		return []hatvec.Hit{}, nil
	}

	h := &minHeap{}
	heap.Init(h)
	for id, v := range f.vectors {
		score, err := f.prox(q, v)
		if err != nil {
			return nil, err
		}
		candidate := minHeapItem{id: id, score: score}
		if h.Len() < k {
			heap.Push(h, candidate)
		} else if worseThan((*h)[0], candidate) {
			heap.Pop(h)
			heap.Push(h, candidate)
		}
	}

	hits := make([]hatvec.Hit, 0, h.Len())
	for h.Len() > 0 {
		item := heap.Pop(h).(minHeapItem)
		hits = append(hits, hatvec.Hit{ID: item.id, Score: item.score})
	}
	return hatvec.SortHits(hits), nil
}

// Within returns every entry with proximity >= tau to q, sorted by the
// standard ordering rule.
func (f *FlatIndex) Within(q hatvec.Point, tau float32) ([]hatvec.Hit, error) {
	if len(q) != f.dim {
		return nil, hatvec.ErrDimensionMismatch
	}
	var hits []hatvec.Hit
	for id, v := range f.vectors {
		score, err := f.prox(q, v)
		if err != nil {
			return nil, err
		}
		if score >= tau {
			hits = append(hits, hatvec.Hit{ID: id, Score: score})
		}
	}
	return hatvec.SortHits(hits), nil
}
