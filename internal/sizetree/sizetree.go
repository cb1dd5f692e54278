// Package sizetree implements an intrusive red-black multiset keyed by an
// external size function. Nodes are FreeNodeSize bytes stored at arbitrary
// addresses, normally the payload of a free block:
//
//	0x00  left
//	0x08  right
//	0x10  parent
//	0x18  meta      bit 0 red, bit 1 chained
//	0x20  dup next
//	0x28  dup prev
//
// Keys are never copied. Equal keys form a duplicate chain hanging off the
// one node of that key that sits in the tree, so every operation on a chain
// member is O(1) and rebalancing only happens for distinct sizes.
//
// A Tree is not safe for concurrent use.
package sizetree

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/format"
)

const (
	offLeft    = 0x00
	offRight   = 0x08
	offParent  = 0x10
	offMeta    = 0x18
	offDupNext = 0x20
	offDupPrev = 0x28

	metaRed     = 1
	metaChained = 2
)

// KeyFunc returns the key of node n.
type KeyFunc func(n uintptr) uintptr

// Tree is the multiset root.
type Tree struct {
	root uintptr
	n    int
	key  KeyFunc
}

// New returns an empty tree ordered by key.
func New(key KeyFunc) *Tree {
	return &Tree{key: key}
}

func left(n uintptr) uintptr    { return format.Word(n + offLeft) }
func right(n uintptr) uintptr   { return format.Word(n + offRight) }
func parent(n uintptr) uintptr  { return format.Word(n + offParent) }
func meta(n uintptr) uintptr    { return format.Word(n + offMeta) }
func dupNext(n uintptr) uintptr { return format.Word(n + offDupNext) }
func dupPrev(n uintptr) uintptr { return format.Word(n + offDupPrev) }

func setLeft(n, v uintptr)    { format.SetWord(n+offLeft, v) }
func setRight(n, v uintptr)   { format.SetWord(n+offRight, v) }
func setParent(n, v uintptr)  { format.SetWord(n+offParent, v) }
func setMeta(n, v uintptr)    { format.SetWord(n+offMeta, v) }
func setDupNext(n, v uintptr) { format.SetWord(n+offDupNext, v) }
func setDupPrev(n, v uintptr) { format.SetWord(n+offDupPrev, v) }

func isRed(n uintptr) bool     { return n != 0 && meta(n)&metaRed != 0 }
func isChained(n uintptr) bool { return meta(n)&metaChained != 0 }

func setRed(n uintptr) { setMeta(n, meta(n)|metaRed) }

func setBlack(n uintptr) {
	if n != 0 {
		setMeta(n, meta(n)&^metaRed)
	}
}

func copyColor(dst, src uintptr) {
	setMeta(dst, meta(dst)&^metaRed|meta(src)&metaRed)
}

// Len returns the number of nodes, duplicates included.
func (t *Tree) Len() int { return t.n }

// Empty reports whether the tree holds no nodes.
func (t *Tree) Empty() bool { return t.root == 0 }

// Insert adds node n. Its key must not change while it is a member.
func (t *Tree) Insert(n uintptr) {
	setLeft(n, 0)
	setRight(n, 0)
	setParent(n, 0)
	setMeta(n, 0)
	setDupNext(n, 0)
	setDupPrev(n, 0)
	t.n++

	k := t.key(n)
	var p uintptr
	cur := t.root
	for cur != 0 {
		kc := t.key(cur)
		if k == kc {
			first := dupNext(cur)
			setDupNext(n, first)
			if first != 0 {
				setDupPrev(first, n)
			}
			setDupPrev(n, cur)
			setDupNext(cur, n)
			setMeta(n, metaChained)
			return
		}
		p = cur
		if k < kc {
			cur = left(cur)
		} else {
			cur = right(cur)
		}
	}

	setParent(n, p)
	switch {
	case p == 0:
		t.root = n
	case k < t.key(p):
		setLeft(p, n)
	default:
		setRight(p, n)
	}
	setRed(n)
	t.insertFixup(n)
}

func (t *Tree) insertFixup(z uintptr) {
	for z != t.root && isRed(parent(z)) {
		p := parent(z)
		g := parent(p)
		if p == left(g) {
			u := right(g)
			if isRed(u) {
				setBlack(p)
				setBlack(u)
				setRed(g)
				z = g
				continue
			}
			if z == right(p) {
				z = p
				t.rotateLeft(z)
				p = parent(z)
			}
			setBlack(p)
			setRed(g)
			t.rotateRight(g)
		} else {
			u := left(g)
			if isRed(u) {
				setBlack(p)
				setBlack(u)
				setRed(g)
				z = g
				continue
			}
			if z == left(p) {
				z = p
				t.rotateRight(z)
				p = parent(z)
			}
			setBlack(p)
			setRed(g)
			t.rotateLeft(g)
		}
	}
	setBlack(t.root)
}

func (t *Tree) replaceChild(p, old, repl uintptr) {
	switch {
	case p == 0:
		t.root = repl
	case left(p) == old:
		setLeft(p, repl)
	default:
		setRight(p, repl)
	}
}

func (t *Tree) rotateLeft(x uintptr) {
	y := right(x)
	setRight(x, left(y))
	if left(y) != 0 {
		setParent(left(y), x)
	}
	setParent(y, parent(x))
	t.replaceChild(parent(x), x, y)
	setLeft(y, x)
	setParent(x, y)
}

func (t *Tree) rotateRight(x uintptr) {
	y := left(x)
	setLeft(x, right(y))
	if right(y) != 0 {
		setParent(right(y), x)
	}
	setParent(y, parent(x))
	t.replaceChild(parent(x), x, y)
	setRight(y, x)
	setParent(x, y)
}

func (t *Tree) transplant(u, v uintptr) {
	t.replaceChild(parent(u), u, v)
	if v != 0 {
		setParent(v, parent(u))
	}
}

// Remove deletes member n.
func (t *Tree) Remove(n uintptr) {
	t.n--

	if isChained(n) {
		p, nx := dupPrev(n), dupNext(n)
		setDupNext(p, nx)
		if nx != 0 {
			setDupPrev(nx, p)
		}
		return
	}

	if m := dupNext(n); m != 0 {
		// Promote the first duplicate into n's position.
		setLeft(m, left(n))
		setRight(m, right(n))
		setParent(m, parent(n))
		setMeta(m, meta(n)&metaRed)
		setDupPrev(m, 0)
		t.replaceChild(parent(n), n, m)
		if l := left(m); l != 0 {
			setParent(l, m)
		}
		if r := right(m); r != 0 {
			setParent(r, m)
		}
		return
	}

	var x, xParent uintptr
	z := n
	yRed := isRed(z)
	switch {
	case left(z) == 0:
		x = right(z)
		xParent = parent(z)
		t.transplant(z, x)
	case right(z) == 0:
		x = left(z)
		xParent = parent(z)
		t.transplant(z, x)
	default:
		y := subtreeMin(right(z))
		yRed = isRed(y)
		x = right(y)
		if parent(y) == z {
			xParent = y
		} else {
			xParent = parent(y)
			t.transplant(y, x)
			setRight(y, right(z))
			setParent(right(y), y)
		}
		t.transplant(z, y)
		setLeft(y, left(z))
		setParent(left(y), y)
		copyColor(y, z)
	}
	if !yRed {
		t.removeFixup(x, xParent)
	}
}

func (t *Tree) removeFixup(x, xp uintptr) {
	for x != t.root && !isRed(x) {
		if x == left(xp) {
			w := right(xp)
			if isRed(w) {
				setBlack(w)
				setRed(xp)
				t.rotateLeft(xp)
				w = right(xp)
			}
			if !isRed(left(w)) && !isRed(right(w)) {
				setRed(w)
				x = xp
				xp = parent(x)
				continue
			}
			if !isRed(right(w)) {
				setBlack(left(w))
				setRed(w)
				t.rotateRight(w)
				w = right(xp)
			}
			copyColor(w, xp)
			setBlack(xp)
			setBlack(right(w))
			t.rotateLeft(xp)
			x = t.root
		} else {
			w := left(xp)
			if isRed(w) {
				setBlack(w)
				setRed(xp)
				t.rotateRight(xp)
				w = left(xp)
			}
			if !isRed(left(w)) && !isRed(right(w)) {
				setRed(w)
				x = xp
				xp = parent(x)
				continue
			}
			if !isRed(left(w)) {
				setBlack(right(w))
				setRed(w)
				t.rotateLeft(w)
				w = left(xp)
			}
			copyColor(w, xp)
			setBlack(xp)
			setBlack(left(w))
			t.rotateRight(xp)
			x = t.root
		}
	}
	setBlack(x)
}

func subtreeMin(n uintptr) uintptr {
	for left(n) != 0 {
		n = left(n)
	}
	return n
}

func subtreeMax(n uintptr) uintptr {
	for right(n) != 0 {
		n = right(n)
	}
	return n
}

// Min returns the tree node with the smallest key, or 0.
func (t *Tree) Min() uintptr {
	if t.root == 0 {
		return 0
	}
	return subtreeMin(t.root)
}

// Max returns the tree node with the largest key, or 0.
func (t *Tree) Max() uintptr {
	if t.root == 0 {
		return 0
	}
	return subtreeMax(t.root)
}

// Successor returns the tree node following tree node n in key order, or 0.
func (t *Tree) Successor(n uintptr) uintptr {
	if r := right(n); r != 0 {
		return subtreeMin(r)
	}
	p := parent(n)
	for p != 0 && n == right(p) {
		n = p
		p = parent(p)
	}
	return p
}

// LowerBound returns the tree node with the smallest key >= k, or 0.
func (t *Tree) LowerBound(k uintptr) uintptr {
	var best uintptr
	for cur := t.root; cur != 0; {
		if t.key(cur) >= k {
			best = cur
			cur = left(cur)
		} else {
			cur = right(cur)
		}
	}
	return best
}

// UpperBound returns the tree node with the smallest key > k, or 0.
func (t *Tree) UpperBound(k uintptr) uintptr {
	var best uintptr
	for cur := t.root; cur != 0; {
		if t.key(cur) > k {
			best = cur
			cur = left(cur)
		} else {
			cur = right(cur)
		}
	}
	return best
}

// Cheapest returns the member of n's key that can be removed without
// rebalancing: the first duplicate when one exists, otherwise n itself.
func (t *Tree) Cheapest(n uintptr) uintptr {
	if n == 0 {
		return 0
	}
	if d := dupNext(n); d != 0 {
		return d
	}
	return n
}

// NextDuplicate returns the chain member after n, or 0. For a tree node it
// returns the first member of its chain.
func (t *Tree) NextDuplicate(n uintptr) uintptr {
	return dupNext(n)
}

// Walk calls fn for every member in ascending key order. fn may remove the
// node it is given.
func (t *Tree) Walk(fn func(n uintptr)) {
	for n := t.Min(); n != 0; {
		succ := t.Successor(n)
		for d := dupNext(n); d != 0; {
			nx := dupNext(d)
			fn(d)
			d = nx
		}
		fn(n)
		n = succ
	}
}

// Validate checks ordering, coloring, parent links, duplicate chains and
// the member count.
func (t *Tree) Validate() error {
	if isRed(t.root) {
		return errors.New("sizetree: red root")
	}
	if t.root != 0 && parent(t.root) != 0 {
		return errors.New("sizetree: root has a parent")
	}
	count := 0
	if _, err := t.validate(t.root, 0, ^uintptr(0), &count); err != nil {
		return err
	}
	if count != t.n {
		return errors.Newf("sizetree: counted %d members, expected %d", count, t.n)
	}
	return nil
}

func (t *Tree) validate(n, lo, hi uintptr, count *int) (int, error) {
	if n == 0 {
		return 1, nil
	}
	k := t.key(n)
	if k < lo || k > hi {
		return 0, errors.Newf("sizetree: key %d of %#x outside [%d, %d]", k, n, lo, hi)
	}
	if isChained(n) {
		return 0, errors.Newf("sizetree: tree node %#x marked chained", n)
	}
	if isRed(n) && (isRed(left(n)) || isRed(right(n))) {
		return 0, errors.Newf("sizetree: red node %#x has a red child", n)
	}
	*count++
	prev := n
	for d := dupNext(n); d != 0; d = dupNext(d) {
		if !isChained(d) || dupPrev(d) != prev {
			return 0, errors.Newf("sizetree: broken duplicate chain at %#x", d)
		}
		if t.key(d) != k {
			return 0, errors.Newf("sizetree: duplicate %#x has key %d, expected %d", d, t.key(d), k)
		}
		*count++
		prev = d
	}
	for _, c := range []uintptr{left(n), right(n)} {
		if c != 0 && parent(c) != n {
			return 0, errors.Newf("sizetree: child %#x of %#x has parent %#x", c, n, parent(c))
		}
	}
	var lh, rh int
	var err error
	if k > 0 {
		lh, err = t.validate(left(n), lo, k-1, count)
	} else if left(n) != 0 {
		return 0, errors.Newf("sizetree: node %#x with key 0 has a left child", n)
	} else {
		lh = 1
	}
	if err != nil {
		return 0, err
	}
	if k < ^uintptr(0) {
		rh, err = t.validate(right(n), k+1, hi, count)
	} else {
		rh = 1
	}
	if err != nil {
		return 0, err
	}
	if lh != rh {
		return 0, errors.Newf("sizetree: black height mismatch at %#x", n)
	}
	if !isRed(n) {
		lh++
	}
	return lh, nil
}
