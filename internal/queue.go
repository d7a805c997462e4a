package internal

import "sync"

// Queue is a FIFO safe for concurrent producers and consumers.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
	}
}

func (q *Queue[T]) Enqueue(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, v)
}

// Dequeue pops the oldest item, ok is false when the queue is empty.
func (q *Queue[T]) Dequeue() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return v, false
	}

	v = q.items[0]

	var zero T
	q.items[0] = zero
	q.items = q.items[1:]

	// reclaim the backing array once drained
	if len(q.items) == 0 {
		q.items = q.items[:0:0]
	}

	return v, true
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}
