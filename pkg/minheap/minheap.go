// Package minheap provides an array-backed binary min-heap with a fixed
// capacity.
//
// The capacity models a memory budget: a [Heap] never grows past the size it
// was built with, and [Heap.Insert] fails with [ErrCapacityExceeded] instead.
// Sifting is implemented directly rather than through container/heap to avoid
// boxing every element in an interface.
package minheap

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded is returned by [Heap.Insert] when the heap is full.
	// It indicates a miscalculated memory budget in the caller.
	ErrCapacityExceeded = errors.New("minheap: capacity exceeded")

	// ErrEmpty is returned by [Heap.RemoveMin] when the heap holds no elements.
	ErrEmpty = errors.New("minheap: empty heap")

	// ErrInvalidSize is returned by [New] for inconsistent size arguments.
	ErrInvalidSize = errors.New("minheap: invalid size")
)

// Heap is a bounded min-heap ordered by a comparison function.
//
// Only items[:size] are live. Slots beyond size are zeroed storage.
// A Heap is not safe for concurrent use.
type Heap[T any] struct {
	items []T
	size  int
	cmp   func(a, b T) int
}

// New builds a heap of the given capacity from initial[:n].
//
// The elements are copied into storage owned by the heap, so the caller may
// reuse initial afterwards. cmp must define a strict weak order and return a
// negative number when a sorts before b.
func New[T any](initial []T, n, capacity int, cmp func(a, b T) int) (*Heap[T], error) {
	if cmp == nil {
		panic("minheap: cmp is nil")
	}

	if capacity < 0 || n < 0 || n > capacity || n > len(initial) {
		return nil, fmt.Errorf("%w: n=%d capacity=%d len(initial)=%d", ErrInvalidSize, n, capacity, len(initial))
	}

	h := &Heap[T]{
		items: make([]T, capacity),
		size:  n,
		cmp:   cmp,
	}

	copy(h.items, initial[:n])

	for i := n/2 - 1; i >= 0; i-- {
		h.down(i)
	}

	return h, nil
}

// Len returns the number of live elements.
func (h *Heap[T]) Len() int { return h.size }

// Cap returns the fixed capacity.
func (h *Heap[T]) Cap() int { return len(h.items) }

// Peek returns the minimum without removing it.
func (h *Heap[T]) Peek() (T, bool) {
	if h.size == 0 {
		var zero T

		return zero, false
	}

	return h.items[0], true
}

// Insert adds v to the heap.
func (h *Heap[T]) Insert(v T) error {
	if h.size == len(h.items) {
		return fmt.Errorf("%w: capacity %d", ErrCapacityExceeded, len(h.items))
	}

	h.items[h.size] = v
	h.size++
	h.up(h.size - 1)

	return nil
}

// RemoveMin removes and returns the minimum element.
func (h *Heap[T]) RemoveMin() (T, error) {
	var zero T

	if h.size == 0 {
		return zero, ErrEmpty
	}

	last := h.size - 1
	minimum := h.items[0]

	h.items[0] = h.items[last]
	h.items[last] = zero
	h.size = last

	if h.size > 0 {
		h.down(0)
	}

	return minimum, nil
}

func (h *Heap[T]) less(i, j int) bool {
	return h.cmp(h.items[i], h.items[j]) < 0
}

func (h *Heap[T]) up(j int) {
	for j > 0 {
		parent := (j - 1) / 2
		if !h.less(j, parent) {
			break
		}

		h.items[parent], h.items[j] = h.items[j], h.items[parent]
		j = parent
	}
}

func (h *Heap[T]) down(i int) {
	n := h.size

	for {
		left := 2*i + 1
		if left >= n || left < 0 { // left < 0 after int overflow
			break
		}

		child := left
		if right := left + 1; right < n && h.less(right, left) {
			child = right
		}

		if !h.less(child, i) {
			break
		}

		h.items[i], h.items[child] = h.items[child], h.items[i]
		i = child
	}
}
