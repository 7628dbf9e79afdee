// Package merger selects the top k items of a result page with a bounded
// heap, so memory stays O(k) regardless of input size.
package merger

import "container/heap"

// TopK returns the k best items in order. better reports whether a should be
// emitted before b and must be a strict total order for stable output.
func TopK[T any](items []T, k int, better func(a, b T) bool) []T {
	if k <= 0 {
		return nil
	}
	h := &boundedHeap[T]{better: better}
	for _, it := range items {
		heap.Push(h, it)
		if h.Len() > k {
			heap.Pop(h)
		}
	}
	out := make([]T, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(T)
	}
	return out
}

// boundedHeap keeps the worst retained item at the root so it can be evicted.
type boundedHeap[T any] struct {
	items  []T
	better func(a, b T) bool
}

func (h *boundedHeap[T]) Len() int { return len(h.items) }

func (h *boundedHeap[T]) Less(i, j int) bool {
	return h.better(h.items[j], h.items[i])
}

func (h *boundedHeap[T]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *boundedHeap[T]) Push(x any) {
	h.items = append(h.items, x.(T))
}

func (h *boundedHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
