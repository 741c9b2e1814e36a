package arena

import (
	"fmt"

	"github.com/gorv6/rvkernel/list"
	"github.com/gorv6/rvkernel/lock"
	"github.com/gorv6/rvkernel/refcell"
)

// mruSlot is one entry of an MruArena: a refcell payload plus the
// intrusive list node used for MRU/LRU ordering. The list node carries an
// explicit back-pointer to its own index (list.Entry.SetOwner) rather than
// the upstream offset-of hack spec.md §9 flags as language-specific.
type mruSlot[T any] struct {
	node list.Entry
	cell refcell.Cell[T]
}

// MruArena is an ArrayArena augmented with an intrusive list so that
// FindOrAlloc searches most-recently-used first, fresh allocations are
// taken from the least-recently-used end, and finalizing an entry moves it
// to the MRU end (spec.md §4.D) — used for the buffer cache so that
// unpin moves a buffer to MRU status and a re-hit stays warm.
type MruArena[T any] struct {
	name     string
	lk       *lock.Spinlock
	slots    []mruSlot[T]
	order    *list.List
	finalize Finalize[T]
}

// NewMruArena creates an MRU arena of the given capacity.
func NewMruArena[T any](name string, capacity int, cpuFunc func() (int, bool), finalize Finalize[T]) *MruArena[T] {
	m := &MruArena[T]{
		name:     name,
		lk:       newArenaLock(name, cpuFunc),
		slots:    make([]mruSlot[T], capacity),
		order:    list.New(),
		finalize: finalize,
	}
	for i := range m.slots {
		m.slots[i].node.SetOwner(i)
		m.order.PushFront(&m.slots[i].node)
	}
	return m
}

// MruHandle is a live borrow of one MruArena slot.
type MruHandle[T any] struct {
	a   *MruArena[T]
	idx int
}

// Data returns a pointer to the borrowed payload.
func (h *MruHandle[T]) Data() *T { return h.a.slots[h.idx].cell.Data() }

// Index returns the slot index, for diagnostics.
func (h *MruHandle[T]) Index() int { return h.idx }

// FindOrAlloc searches front-to-back (most recently used first) for a
// borrowed slot matching matches; if none matches, it allocates the
// least-recently-used free slot found by scanning from the back.
func (a *MruArena[T]) FindOrAlloc(matches func(*T) bool, init func(*T)) (*MruHandle[T], bool) {
	g := a.lk.Lock()
	defer g.Unlock()

	foundIdx := -1
	a.order.ForwardEach(func(e *list.Entry) bool {
		idx := e.Owner().(int)
		c := &a.slots[idx].cell
		if c.Count() > 0 && matches(c.Data()) {
			foundIdx = idx
			return false
		}
		return true
	})
	if foundIdx >= 0 {
		c := &a.slots[foundIdx].cell
		if _, ok := c.TryBorrow(); !ok {
			panic(fmt.Sprintf("mru arena %q: matched slot %d could not be borrowed", a.name, foundIdx))
		}
		return &MruHandle[T]{a: a, idx: foundIdx}, true
	}

	allocIdx := -1
	a.order.BackwardEach(func(e *list.Entry) bool {
		idx := e.Owner().(int)
		if a.slots[idx].cell.Count() == 0 {
			allocIdx = idx
			return false
		}
		return true
	})
	if allocIdx < 0 {
		return nil, false
	}
	c := &a.slots[allocIdx].cell
	p, ok := c.TryBorrowMut()
	if !ok {
		panic(fmt.Sprintf("mru arena %q: free slot %d was not actually free", a.name, allocIdx))
	}
	init(p)
	c.Downgrade()
	return &MruHandle[T]{a: a, idx: allocIdx}, true
}

// Alloc scans strictly for a free slot (no matching), used by callers that
// never look an existing entry up by key.
func (a *MruArena[T]) Alloc(init func(*T)) (*MruHandle[T], bool) {
	g := a.lk.Lock()
	defer g.Unlock()
	allocIdx := -1
	a.order.BackwardEach(func(e *list.Entry) bool {
		idx := e.Owner().(int)
		if a.slots[idx].cell.Count() == 0 {
			allocIdx = idx
			return false
		}
		return true
	})
	if allocIdx < 0 {
		return nil, false
	}
	c := &a.slots[allocIdx].cell
	p, _ := c.TryBorrowMut()
	init(p)
	c.Downgrade()
	return &MruHandle[T]{a: a, idx: allocIdx}, true
}

// Dup increments the slot's refcount and returns a new handle to it.
func (a *MruArena[T]) Dup(h *MruHandle[T]) *MruHandle[T] {
	g := a.lk.Lock()
	defer g.Unlock()
	c := &a.slots[h.idx].cell
	if _, ok := c.TryBorrow(); !ok {
		panic(fmt.Sprintf("mru arena %q: dup on slot %d that is not borrowed", a.name, h.idx))
	}
	return &MruHandle[T]{a: a, idx: h.idx}
}

// Dealloc drops h; on the last reference, the payload is finalized and the
// slot is moved to the MRU (front) end of the list.
//
// As in ArrayArena.Dealloc, the sole borrow stays at count 1 (a
// shareable immutable borrow) through finalize instead of being
// promoted to the exclusive sentinel, so a concurrent FindOrAlloc
// matching this slot during reacquireAfter's blocking-I/O window can
// TryBorrow it rather than panicking (spec.md §9).
func (a *MruArena[T]) Dealloc(h *MruHandle[T]) {
	g := a.lk.Lock()
	c := &a.slots[h.idx].cell

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
	list.Remove(&a.slots[h.idx].node)
	a.order.PushFront(&a.slots[h.idx].node)
	g.Unlock()
}
