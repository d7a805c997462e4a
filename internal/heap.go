package internal

import "slices"

// PriorityHeap buckets entries by priority. Drain visits the highest
// priority first and keeps insertion order inside a bucket.
// It is not safe for concurrent use.
type PriorityHeap[T any] struct {
	buckets map[int][]T
	size    int
}

func NewHeap[T any]() *PriorityHeap[T] {
	return &PriorityHeap[T]{
		buckets: make(map[int][]T),
	}
}

func (h *PriorityHeap[T]) Insert(priority int, v T) {
	h.buckets[priority] = append(h.buckets[priority], v)
	h.size++
}

func (h *PriorityHeap[T]) Len() int {
	return h.size
}

// Drain processes each entry with the `process` function leaving the heap empty.
// Returning false from process stops the drain and discards the rest.
func (h *PriorityHeap[T]) Drain(process func(T) bool) {
	priorities := make([]int, 0, len(h.buckets))
	for p := range h.buckets {
		priorities = append(priorities, p)
	}
	slices.Sort(priorities)
	slices.Reverse(priorities)

	buckets := h.buckets
	h.buckets = make(map[int][]T)
	h.size = 0

	for _, p := range priorities {
		for _, v := range buckets[p] {
			if !process(v) {
				return
			}
		}
	}
}
