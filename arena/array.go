package arena

import (
	"fmt"

	"github.com/gorv6/rvkernel/lock"
	"github.com/gorv6/rvkernel/refcell"
)

// ArrayArena is a fixed array of refcell.Cell slots, serialized under a
// single raw lock. It scans in index order, so it is used where matching
// existing entries is the common case and entries carry explicit logical
// keys baked into T (inode: device+inum, file: none — files never match,
// only Alloc is used).
type ArrayArena[T any] struct {
	name     string
	lk       *lock.Spinlock
	cells    []refcell.Cell[T]
	finalize Finalize[T]
}

// NewArrayArena creates an arena of the given capacity. cpuFunc may be nil
// to default to a single virtual CPU (id 0), suitable for tests and
// single-core boots.
func NewArrayArena[T any](name string, capacity int, cpuFunc func() (int, bool), finalize Finalize[T]) *ArrayArena[T] {
	return &ArrayArena[T]{
		name:     name,
		lk:       newArenaLock(name, cpuFunc),
		cells:    make([]refcell.Cell[T], capacity),
		finalize: finalize,
	}
}

// ArrayHandle is a live borrow of one ArrayArena slot. The zero value is
// not valid; obtain one from FindOrAlloc, Alloc, or Dup.
type ArrayHandle[T any] struct {
	a   *ArrayArena[T]
	idx int
}

// Data returns a pointer to the borrowed payload. Valid only while this
// handle (or a dup of it) has not been deallocated.
func (h *ArrayHandle[T]) Data() *T { return h.a.cells[h.idx].Data() }

// Index returns the slot index this handle refers to, for diagnostics.
func (h *ArrayHandle[T]) Index() int { return h.idx }

// FindOrAlloc scans every slot: a borrowed slot (count>0) matching c
// commits as a new immutable borrow; the first free slot seen is
// remembered. Matching wins over allocating even when seen later, so the
// whole array is scanned before an allocation is committed (spec.md
// §4.D's two-pass-in-one-pass rule).
func (a *ArrayArena[T]) FindOrAlloc(matches func(*T) bool, init func(*T)) (*ArrayHandle[T], bool) {
	g := a.lk.Lock()
	defer g.Unlock()

	freeIdx := -1
	for i := range a.cells {
		c := &a.cells[i]
		if c.Count() == 0 {
			if freeIdx < 0 {
				freeIdx = i
			}
			continue
		}
		if matches(c.Data()) {
			if _, ok := c.TryBorrow(); !ok {
				panic(fmt.Sprintf("arena %q: slot %d matched but could not be borrowed", a.name, i))
			}
			return &ArrayHandle[T]{a: a, idx: i}, true
		}
	}

	if freeIdx < 0 {
		return nil, false
	}
	c := &a.cells[freeIdx]
	p, ok := c.TryBorrowMut()
	if !ok {
		panic(fmt.Sprintf("arena %q: free slot %d was not actually free", a.name, freeIdx))
	}
	init(p)
	c.Downgrade()
	return &ArrayHandle[T]{a: a, idx: freeIdx}, true
}

// Alloc is the simpler allocation-only form used by open files and pipes:
// scan for any free slot, initialize it, and borrow it.
func (a *ArrayArena[T]) Alloc(init func(*T)) (*ArrayHandle[T], bool) {
	g := a.lk.Lock()
	defer g.Unlock()

	for i := range a.cells {
		c := &a.cells[i]
		if c.Count() != 0 {
			continue
		}
		p, ok := c.TryBorrowMut()
		if !ok {
			continue
		}
		init(p)
		c.Downgrade()
		return &ArrayHandle[T]{a: a, idx: i}, true
	}
	return nil, false
}

// Dup re-acquires the arena lock and increments the slot's refcount,
// returning a new handle to the same slot.
func (a *ArrayArena[T]) Dup(h *ArrayHandle[T]) *ArrayHandle[T] {
	g := a.lk.Lock()
	defer g.Unlock()
	c := &a.cells[h.idx]
	if _, ok := c.TryBorrow(); !ok {
		panic(fmt.Sprintf("arena %q: dup on slot %d that is not borrowed", a.name, h.idx))
	}
	return &ArrayHandle[T]{a: a, idx: h.idx}
}

// Dealloc re-acquires the arena lock; if h is the last reference to its
// slot, its payload is finalized (possibly performing blocking I/O via
// reacquireAfter) before the slot is freed. Otherwise the refcount is
// simply decremented.
//
// The sole borrow is kept as a shareable immutable borrow (count stays
// at 1) throughout finalize rather than promoted to the exclusive
// sentinel (spec.md §9's recommendation): reacquireAfter drops the arena
// lock to let finalize perform blocking I/O, and a concurrent
// FindOrAlloc that key-matches this slot during that window must be able
// to TryBorrow it instead of panicking on an exclusively-held cell.
func (a *ArrayArena[T]) Dealloc(h *ArrayHandle[T]) {
	g := a.lk.Lock()
	c := &a.cells[h.idx]

	if c.Count() != 1 {
		c.Release()
		g.Unlock()
		return
	}

	p := c.Data()
	if a.finalize != nil {
		reacquireAfter := func(f func()) {
			g.Unlock()
			f()
			g = a.lk.Lock()
		}
		a.finalize(p, reacquireAfter)
	}
	c.Release()
	g.Unlock()
}
