// Package bcache is the buffer cache of spec.md §4.G: an MruArena of
// 1024-byte disk blocks keyed by (device, block number). bread loads (or
// re-borrows) a block and returns it already sleep-locked; bwrite
// persists a locked, dirty buffer; brelse (Buf.Release) drops the
// borrow, moving the slot to the MRU end once its refcount reaches zero.
package bcache

import (
	"errors"
	"fmt"

	"github.com/gorv6/rvkernel/arena"
	"github.com/gorv6/rvkernel/diskio"
	"github.com/gorv6/rvkernel/lock"
)

// ErrNoFreeBuffer is returned when every buffer slot is pinned or borrowed.
var ErrNoFreeBuffer = errors.New("bcache: no free buffer")

// buffer is one MruArena payload: the cache key, validity, and the data
// itself, guarded by its own sleep lock since loading it from disk can
// block (spec.md §3 "Buffer").
type buffer struct {
	dev   uint32
	bno   uint32
	valid bool
	lock  *lock.Sleeplock
	data  [diskio.BlockSize]byte
}

// Cache is the buffer cache: a fixed-capacity MruArena in front of a disk.
type Cache struct {
	arena *arena.MruArena[buffer]
	disk  *diskio.Disk
}

// New creates a buffer cache of the given capacity (spec.md §4.G suggests
// 30) in front of disk. cpuFunc is forwarded to the arena's own spinlock;
// pass nil for a single-CPU boot or tests.
func New(capacity int, disk *diskio.Disk, cpuFunc func() (int, bool)) *Cache {
	return &Cache{
		arena: arena.NewMruArena[buffer]("bcache", capacity, cpuFunc, finalizeBuffer),
		disk:  disk,
	}
}

// finalizeBuffer is a no-op: spec.md §4.D says buffer finalization simply
// leaves the data in place until the slot is reused, unlike inode or file
// finalization.
func finalizeBuffer(*buffer, func(func())) {}

// Buf is a borrowed, sleep-locked buffer. Callers must call Release
// exactly once.
type Buf struct {
	c          *Cache
	h          *arena.MruHandle[buffer]
	guard      *lock.SleeplockGuard
	held       int
	ownsBorrow bool // false when backed by a Pinned handle the log still owns
}

// Bno returns the buffer's block number.
func (b *Buf) Bno() uint32 { return b.h.Data().bno }

// Data returns the buffer's 1024-byte payload. Valid only while the
// caller holds the returned *Buf (i.e. before Release).
func (b *Buf) Data() []byte { return b.h.Data().data[:] }

// Bread finds or loads block (dev, bno), returning it sleep-locked and
// with valid on-disk contents. holder identifies the caller (a pid) for
// Sleeplock diagnostics.
func (c *Cache) Bread(dev, bno uint32, holder int) (*Buf, error) {
	h, ok := c.arena.FindOrAlloc(
		func(b *buffer) bool { return b.dev == dev && b.bno == bno },
		func(b *buffer) {
			b.dev, b.bno, b.valid = dev, bno, false
			b.lock = lock.NewSleeplock(fmt.Sprintf("buf(%d,%d)", dev, bno))
		},
	)
	if !ok {
		return nil, ErrNoFreeBuffer
	}

	buf := h.Data()
	g := buf.lock.Lock(holder)
	if !buf.valid {
		if err := c.disk.Read(bno, buf.data[:]); err != nil {
			g.Unlock()
			c.arena.Dealloc(h)
			return nil, err
		}
		buf.valid = true
	}
	return &Buf{c: c, h: h, guard: g, held: holder, ownsBorrow: true}, nil
}

// Bwrite persists b's current contents to disk. b must still be held
// (not yet Released).
func (b *Buf) Bwrite() error {
	buf := b.h.Data()
	if !buf.lock.Holding(b.held) {
		panic("bcache: Bwrite on a buffer this caller does not hold")
	}
	return b.c.disk.Write(buf.bno, buf.data[:])
}

// Release (brelse) unlocks the sleep lock and, if this *Buf owns its
// arena borrow, drops it — moving the slot to the MRU end of the
// eviction order once the refcount reaches zero. A *Buf obtained from
// Pinned.Lock does not own its borrow: Release only unlocks it, leaving
// the pin in place until Pinned.Unpin is called.
func (b *Buf) Release() {
	b.guard.Unlock()
	if b.ownsBorrow {
		b.c.arena.Dealloc(b.h)
	}
}

// Pinned is an arena borrow held without the buffer's sleep lock — the
// log's way of keeping a buffer resident in cache (spec.md §4.G "buffers
// used by the log are pinned... refcount kept non-zero until commit")
// across the time its owning *Buf has already been Released.
type Pinned struct {
	c *Cache
	h *arena.MruHandle[buffer]
}

// Bno returns the pinned buffer's block number.
func (p *Pinned) Bno() uint32 { return p.h.Data().bno }

// Pin increments b's refcount and returns a handle that outlives b's own
// Release, so the buffer cannot be evicted until Unpin is called.
func (c *Cache) Pin(b *Buf) *Pinned {
	return &Pinned{c: c, h: c.arena.Dup(b.h)}
}

// Lock re-acquires the sleep lock on a pinned buffer (e.g. during log
// commit, to read its data back out) and returns it as an ordinary *Buf.
// Callers must Release it like any other *Buf when done; the pin itself
// persists until Unpin.
func (p *Pinned) Lock(holder int) *Buf {
	buf := p.h.Data()
	g := buf.lock.Lock(holder)
	return &Buf{c: p.c, h: p.h, guard: g, held: holder, ownsBorrow: false}
}

// Unpin drops the pinned reference. It must not be called while the
// buffer is Lock()ed via this Pinned handle without a matching Release.
func (p *Pinned) Unpin() {
	p.c.arena.Dealloc(p.h)
}
