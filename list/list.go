// Package list implements an intrusive circular doubly linked list. Nodes
// are embedded inside the structures that use them (arena entries); the
// list never allocates, copies, or owns a node — it requires that nodes be
// pinned in memory for their entire lifetime, which the arena guarantees
// by allocating its backing array once, at construction, and never
// relocating it.
package list

// Entry is an intrusive list node. Embed it by value inside the struct
// you want to link. The zero value is not a valid singleton list until
// Init is called; List.PushFront/PushBack set both links themselves, so a
// zero-value entry may be pushed directly.
type Entry struct {
	prev, next *Entry
	owner      any // the enclosing struct, set by callers that need it back
}

// Init makes e a singleton circular list (its own head), matching the
// source's convention that every node be self-linked until inserted.
func (e *Entry) Init() {
	e.prev = e
	e.next = e
}

// SetOwner records a back-pointer from the node to its enclosing struct.
// Spec.md §9 notes the MRU arena's upstream implementation relies on an
// offset-of hack to recover the enclosing MruEntry from a bare ListEntry
// pointer; Go has no offsetof to abuse, so we store the back-pointer
// explicitly instead, as the spec's own design notes recommend.
func (e *Entry) SetOwner(v any) { e.owner = v }

// Owner returns the back-pointer set by SetOwner.
func (e *Entry) Owner() any { return e.owner }

// List is the circular sentinel head of an intrusive doubly linked list.
type List struct {
	head Entry
}

// New returns a ready, empty List.
func New() *List {
	l := &List{}
	l.head.Init()
	return l
}

// Empty reports whether the list has no entries.
func (l *List) Empty() bool { return l.head.next == &l.head }

// PushFront inserts e immediately after the head (the "most recently
// used" end).
func (l *List) PushFront(e *Entry) {
	e.next = l.head.next
	e.prev = &l.head
	l.head.next.prev = e
	l.head.next = e
}

// PushBack inserts e immediately before the head (the "least recently
// used" end).
func (l *List) PushBack(e *Entry) {
	e.prev = l.head.prev
	e.next = &l.head
	l.head.prev.next = e
	l.head.prev = e
}

// Remove unlinks e from whatever list it is in. Safe to call on an entry
// that is its own singleton list (a no-op).
func Remove(e *Entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = e
	e.next = e
}

// Front returns the first (most recently pushed to the front) entry, or
// nil if the list is empty.
func (l *List) Front() *Entry {
	if l.Empty() {
		return nil
	}
	return l.head.next
}

// Back returns the last (most recently pushed to the back) entry, or nil
// if the list is empty.
func (l *List) Back() *Entry {
	if l.Empty() {
		return nil
	}
	return l.head.prev
}

// ForwardEach visits entries from front to back, stopping early if fn
// returns false.
func (l *List) ForwardEach(fn func(*Entry) bool) {
	for e := l.head.next; e != &l.head; e = e.next {
		if !fn(e) {
			return
		}
	}
}

// BackwardEach visits entries from back to front, stopping early if fn
// returns false.
func (l *List) BackwardEach(fn func(*Entry) bool) {
	for e := l.head.prev; e != &l.head; e = e.prev {
		if !fn(e) {
			return
		}
	}
}
