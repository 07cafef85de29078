// Package dlist implements a doubly linked list whose nodes live in an arena
// and are addressed by [Handle] instead of pointers.
//
// Removal by handle is O(1). Freed slots are recycled through an internal
// free list, so a list that repeatedly fills and drains does not grow its
// arena beyond the peak length.
package dlist

import "iter"

// Handle addresses a node in a [List]. A Handle is only valid for the list
// that issued it and only until the node is removed.
type Handle int32

// Nil is the handle of no node.
const Nil Handle = -1

type node[T any] struct {
	value T
	prev  Handle
	next  Handle
	live  bool
}

// List is a doubly linked list of T.
//
// The zero value is an empty list ready to use.
type List[T comparable] struct {
	nodes []node[T]
	free  Handle
	head  Handle
	tail  Handle
	n     int
	init  bool
}

// New returns an empty list with arena space for hint nodes.
func New[T comparable](hint int) *List[T] {
	l := &List[T]{}
	l.lazyInit()

	if hint > 0 {
		l.nodes = make([]node[T], 0, hint)
	}

	return l
}

func (l *List[T]) lazyInit() {
	if l.init {
		return
	}

	l.free, l.head, l.tail = Nil, Nil, Nil
	l.init = true
}

func (l *List[T]) alloc(v T) Handle {
	if l.free != Nil {
		h := l.free
		l.free = l.nodes[h].next
		l.nodes[h] = node[T]{value: v, prev: Nil, next: Nil, live: true}

		return h
	}

	l.nodes = append(l.nodes, node[T]{value: v, prev: Nil, next: Nil, live: true})

	return Handle(len(l.nodes) - 1)
}

func (l *List[T]) release(h Handle) T {
	v := l.nodes[h].value
	l.nodes[h] = node[T]{prev: Nil, next: l.free}
	l.free = h

	return v
}

// Len returns the number of elements.
func (l *List[T]) Len() int { return l.n }

// InsertHead adds v at the front and returns its handle.
func (l *List[T]) InsertHead(v T) Handle {
	l.lazyInit()

	h := l.alloc(v)

	l.nodes[h].next = l.head
	if l.head != Nil {
		l.nodes[l.head].prev = h
	} else {
		l.tail = h
	}

	l.head = h
	l.n++

	return h
}

// InsertTail adds v at the back and returns its handle.
func (l *List[T]) InsertTail(v T) Handle {
	l.lazyInit()

	h := l.alloc(v)

	l.nodes[h].prev = l.tail
	if l.tail != Nil {
		l.nodes[l.tail].next = h
	} else {
		l.head = h
	}

	l.tail = h
	l.n++

	return h
}

// RemoveHead removes and returns the first element.
func (l *List[T]) RemoveHead() (T, bool) {
	if l.n == 0 {
		var zero T

		return zero, false
	}

	return l.Remove(l.head), true
}

// RemoveTail removes and returns the last element.
func (l *List[T]) RemoveTail() (T, bool) {
	if l.n == 0 {
		var zero T

		return zero, false
	}

	return l.Remove(l.tail), true
}

// Remove unlinks the node at h and returns its value.
// It panics if h does not address a live node.
func (l *List[T]) Remove(h Handle) T {
	if !l.valid(h) {
		panic("dlist: remove of invalid handle")
	}

	nd := l.nodes[h]

	if nd.prev != Nil {
		l.nodes[nd.prev].next = nd.next
	} else {
		l.head = nd.next
	}

	if nd.next != Nil {
		l.nodes[nd.next].prev = nd.prev
	} else {
		l.tail = nd.prev
	}

	l.n--

	return l.release(h)
}

// RemoveValue removes the first element equal to v.
func (l *List[T]) RemoveValue(v T) bool {
	h := l.find(v)
	if h == Nil {
		return false
	}

	l.Remove(h)

	return true
}

// Contains reports whether any element equals v.
func (l *List[T]) Contains(v T) bool {
	return l.find(v) != Nil
}

func (l *List[T]) find(v T) Handle {
	for h := l.Front(); h != Nil; h = l.nodes[h].next {
		if l.nodes[h].value == v {
			return h
		}
	}

	return Nil
}

// Clear removes all elements. The arena is kept for reuse.
func (l *List[T]) Clear() {
	l.nodes = l.nodes[:0]
	l.free, l.head, l.tail = Nil, Nil, Nil
	l.n = 0
	l.init = true
}

// At returns the element at index i, walking from whichever end is nearer.
func (l *List[T]) At(i int) (T, bool) {
	if i < 0 || i >= l.n {
		var zero T

		return zero, false
	}

	var h Handle

	if i <= l.n/2 {
		h = l.head
		for ; i > 0; i-- {
			h = l.nodes[h].next
		}
	} else {
		h = l.tail
		for j := l.n - 1; j > i; j-- {
			h = l.nodes[h].prev
		}
	}

	return l.nodes[h].value, true
}

// Front returns the handle of the first node, or [Nil].
func (l *List[T]) Front() Handle {
	if l.n == 0 {
		return Nil
	}

	return l.head
}

// Back returns the handle of the last node, or [Nil].
func (l *List[T]) Back() Handle {
	if l.n == 0 {
		return Nil
	}

	return l.tail
}

// Next returns the handle after h, or [Nil].
func (l *List[T]) Next(h Handle) Handle {
	if !l.valid(h) {
		return Nil
	}

	return l.nodes[h].next
}

// Prev returns the handle before h, or [Nil].
func (l *List[T]) Prev(h Handle) Handle {
	if !l.valid(h) {
		return Nil
	}

	return l.nodes[h].prev
}

// Value returns the element stored at h.
func (l *List[T]) Value(h Handle) (T, bool) {
	if !l.valid(h) {
		var zero T

		return zero, false
	}

	return l.nodes[h].value, true
}

// All iterates the elements front to back. The list must not be modified
// during iteration.
func (l *List[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for h := l.Front(); h != Nil; h = l.nodes[h].next {
			if !yield(l.nodes[h].value) {
				return
			}
		}
	}
}

func (l *List[T]) valid(h Handle) bool {
	return h >= 0 && int(h) < len(l.nodes) && l.nodes[h].live
}
