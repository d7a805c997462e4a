package cbgroup

import "weak"

// Ref is a non-owning reference. Holding a Ref never keeps its target alive;
// once the target is garbage collected the Ref resolves to absent.
type Ref[T any] struct {
	ptr weak.Pointer[T]
}

func MakeRef[T any](p *T) Ref[T] {
	if p == nil {
		return Ref[T]{}
	}

	return Ref[T]{weak.Make(p)}
}

// Resolve returns a strong pointer to the target, ok is false if it is gone.
func (r Ref[T]) Resolve() (*T, bool) {
	p := r.ptr.Value()
	return p, p != nil
}

// Value returns the target or nil.
func (r Ref[T]) Value() *T {
	return r.ptr.Value()
}

func (r Ref[T]) Expired() bool {
	return r.ptr.Value() == nil
}
