package queue

// Ring keeps the last Cap items pushed. It is not safe for concurrent use.
type Ring[T any] struct {
	items []T
	head  int
	full  bool
}

// NewRing creates a ring holding at most n items. n must be positive.
func NewRing[T any](n int) *Ring[T] {
	if n < 1 {
		n = 1
	}
	return &Ring[T]{items: make([]T, n)}
}

// Push appends an item, evicting the oldest when full.
func (r *Ring[T]) Push(item T) {
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	if r.head == 0 {
		r.full = true
	}
}

// Len returns the number of items held.
func (r *Ring[T]) Len() int {
	if r.full {
		return len(r.items)
	}
	return r.head
}

// Cap returns the ring's capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Items returns the held items, oldest first.
func (r *Ring[T]) Items() []T {
	if !r.full {
		return append([]T(nil), r.items[:r.head]...)
	}
	out := make([]T, 0, len(r.items))
	out = append(out, r.items[r.head:]...)
	return append(out, r.items[:r.head]...)
}

// Reset drops every item.
func (r *Ring[T]) Reset() {
	clear(r.items)
	r.head = 0
	r.full = false
}
