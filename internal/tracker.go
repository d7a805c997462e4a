package internal

import "sync"

// Tracker remembers a value per goroutine for the duration of Run.
type Tracker[T comparable] struct {
	current sync.Map // goroutine id -> T
}

func NewTracker[T comparable]() *Tracker[T] {
	return &Tracker[T]{}
}

// Run calls fn with v set as the current value of the calling goroutine.
// Nested calls restore the outer value once fn returns, even on panic.
func (t *Tracker[T]) Run(v T, fn func()) {
	gid := getGID()

	prev, hadPrev := t.current.Load(gid)
	t.current.Store(gid, v)
	defer func() {
		if hadPrev {
			t.current.Store(gid, prev)
		} else {
			t.current.Delete(gid)
		}
	}()

	fn()
}

// Current returns the value set by the innermost Run on this goroutine.
func (t *Tracker[T]) Current() (T, bool) {
	v, ok := t.current.Load(getGID())
	if !ok {
		var zero T
		return zero, false
	}

	return v.(T), true
}
