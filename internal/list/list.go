// Package list implements an intrusive doubly linked list whose nodes live
// in memory the allocator manages. A node is two machine words at its
// address: the previous node followed by the next node. Zero terminates
// both directions.
//
// A List is not safe for concurrent use.
package list

import "github.com/joshuapare/heapkit/internal/format"

const nextOff = 8

func prev(n uintptr) uintptr { return format.Word(n) }
func next(n uintptr) uintptr { return format.Word(n + nextOff) }
func setPrev(n, p uintptr)   { format.SetWord(n, p) }
func setNext(n, p uintptr)   { format.SetWord(n+nextOff, p) }

func link(a, b uintptr) {
	setNext(a, b)
	setPrev(b, a)
}

func clearLinks(n uintptr) {
	setPrev(n, 0)
	setNext(n, 0)
}

// List is a linear list with head and tail pointers.
type List struct {
	head, tail uintptr
	n          int
}

// Front returns the first node, or 0 for an empty list.
func (l *List) Front() uintptr { return l.head }

// Back returns the last node, or 0 for an empty list.
func (l *List) Back() uintptr { return l.tail }

// Len returns the number of nodes.
func (l *List) Len() int { return l.n }

// Next returns the node after n, or 0.
func (l *List) Next(n uintptr) uintptr { return next(n) }

// Prev returns the node before n, or 0.
func (l *List) Prev(n uintptr) uintptr { return prev(n) }

// PushFront inserts n at the head.
func (l *List) PushFront(n uintptr) {
	setPrev(n, 0)
	setNext(n, l.head)
	if l.head != 0 {
		setPrev(l.head, n)
	} else {
		l.tail = n
	}
	l.head = n
	l.n++
}

// PushBack inserts n at the tail.
func (l *List) PushBack(n uintptr) {
	setNext(n, 0)
	setPrev(n, l.tail)
	if l.tail != 0 {
		setNext(l.tail, n)
	} else {
		l.head = n
	}
	l.tail = n
	l.n++
}

// Remove unlinks n, which must be a member of l.
func (l *List) Remove(n uintptr) {
	p, nx := prev(n), next(n)
	if p != 0 {
		setNext(p, nx)
	} else {
		l.head = nx
	}
	if nx != 0 {
		setPrev(nx, p)
	} else {
		l.tail = p
	}
	clearLinks(n)
	l.n--
}

// PopFront removes and returns the head, or 0 for an empty list.
func (l *List) PopFront() uintptr {
	n := l.head
	if n != 0 {
		l.Remove(n)
	}
	return n
}

// MoveToFront moves member n to the head.
func (l *List) MoveToFront(n uintptr) {
	if l.head == n {
		return
	}
	l.Remove(n)
	l.PushFront(n)
}

// MoveToBack moves member n to the tail.
func (l *List) MoveToBack(n uintptr) {
	if l.tail == n {
		return
	}
	l.Remove(n)
	l.PushBack(n)
}

// Contains reports whether n is a member of l. It walks the list.
func (l *List) Contains(n uintptr) bool {
	for c := l.head; c != 0; c = next(c) {
		if c == n {
			return true
		}
	}
	return false
}

// Take appends every node of other to l and leaves other empty.
func (l *List) Take(other *List) {
	if other.head == 0 {
		return
	}
	if l.tail == 0 {
		l.head = other.head
	} else {
		link(l.tail, other.head)
	}
	l.tail = other.tail
	l.n += other.n
	*other = List{}
}
