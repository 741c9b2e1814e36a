// Package pipe implements the 512-byte ring-buffer pipe: a fixed-capacity
// arena of pipes, each with independent read and write endpoints sharing
// one ring, a spinlock, and two wait channels ("space available" and
// "data available") (spec.md §4.B).
package pipe

import (
	"github.com/gorv6/rvkernel/arena"
	"github.com/gorv6/rvkernel/lock"
	"github.com/gorv6/rvkernel/waitchan"
)

// Size is the capacity of a pipe's ring buffer in bytes.
const Size = 512

type ring struct {
	lk         *lock.Spinlock
	buf        [Size]byte
	nread      uint32
	nwrite     uint32
	readOpen   bool
	writeOpen  bool
	spaceAvail *waitchan.Channel
	dataAvail  *waitchan.Channel
}

// Arena is a fixed-capacity pool of pipes, allocation-only (pipes are
// never looked up by key, only created), per spec.md §4.C's "alloc(init)"
// form.
type Arena struct {
	a       *arena.ArrayArena[ring]
	cpuFunc func() (int, bool)
}

// New creates a pipe arena with the given capacity. cpuFunc reports the
// calling virtual CPU's id and interrupt state for the per-pipe spinlock;
// nil defaults to a single virtual CPU, suitable for tests.
func New(capacity int, cpuFunc func() (int, bool)) *Arena {
	return &Arena{
		a:       arena.NewArrayArena[ring]("pipe", capacity, cpuFunc, finalizeRing),
		cpuFunc: cpuFunc,
	}
}

func finalizeRing(p *ring, _ func(func())) {
	// Nothing to release: the ring lives entirely in the slot's own
	// memory, and both endpoints have already flipped readOpen/writeOpen
	// to false in Close before the last Dealloc gets here.
}

// End is one endpoint (read or write) of a pipe.
type End struct {
	arena    *Arena
	h        *arena.ArrayHandle[ring]
	writable bool
}

// ErrNoFreePipe is returned by Alloc when every pipe slot is in use.
var ErrNoFreePipe = errNoFreePipe{}

type errNoFreePipe struct{}

func (errNoFreePipe) Error() string { return "pipe: no free pipe slots" }

// Alloc creates a new pipe and returns its read end and write end. The
// two ends share one underlying ring via an arena dup, exactly as the
// read and write halves of a File pair share one Pipe object.
func (a *Arena) Alloc() (*End, *End, error) {
	h, ok := a.a.Alloc(func(p *ring) {
		p.lk = lock.NewSpinlock("pipe", a.cpuFunc)
		p.spaceAvail = waitchan.New()
		p.dataAvail = waitchan.New()
		p.readOpen = true
		p.writeOpen = true
	})
	if !ok {
		return nil, nil, ErrNoFreePipe
	}
	wh := a.a.Dup(h)
	return &End{arena: a, h: h, writable: false}, &End{arena: a, h: wh, writable: true}, nil
}

// Write copies data into the ring, blocking on spaceAvail while full.
// Per spec.md §8's boundary behavior, a write larger than the ring with
// no reader does not error: it returns the partial count already written
// once the peer read end has closed.
func (e *End) Write(data []byte) (int, error) {
	p := e.h.Data()
	g := p.lk.Lock()
	i := 0
	for i < len(data) {
		if !p.readOpen {
			g.Unlock()
			return i, nil
		}
		if p.nwrite == p.nread+Size {
			p.dataAvail.Wakeup()
			p.spaceAvail.Sleep(g, func() { g = p.lk.Lock() })
			continue
		}
		p.buf[p.nwrite%Size] = data[i]
		p.nwrite++
		i++
	}
	p.dataAvail.Wakeup()
	g.Unlock()
	return i, nil
}

// Read copies up to len(dst) available bytes from the ring, blocking on
// dataAvail while empty and the write end is still open. Per spec.md
// §8's boundary behavior, a read on an empty pipe whose write end has
// closed returns 0 (EOF), not an error.
func (e *End) Read(dst []byte) (int, error) {
	p := e.h.Data()
	g := p.lk.Lock()
	for p.nread == p.nwrite && p.writeOpen {
		p.dataAvail.Sleep(g, func() { g = p.lk.Lock() })
	}
	if p.nread == p.nwrite {
		g.Unlock()
		return 0, nil
	}
	n := 0
	for n < len(dst) && p.nread != p.nwrite {
		dst[n] = p.buf[p.nread%Size]
		p.nread++
		n++
	}
	p.spaceAvail.Wakeup()
	g.Unlock()
	return n, nil
}

// Close closes this endpoint, waking any peer blocked on the ring so it
// observes the new open/closed state, then releases the arena borrow
// (freeing the pipe once both ends have been closed).
func (e *End) Close() {
	p := e.h.Data()
	g := p.lk.Lock()
	if e.writable {
		p.writeOpen = false
	} else {
		p.readOpen = false
	}
	p.dataAvail.WakeupAll()
	p.spaceAvail.WakeupAll()
	g.Unlock()
	e.arena.a.Dealloc(e.h)
}

// Writable reports whether this endpoint is the write side.
func (e *End) Writable() bool { return e.writable }
