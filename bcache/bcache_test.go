package bcache

import (
	"path/filepath"
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"github.com/gorv6/rvkernel/diskio"
)

func newTestCache(t *testing.T, capacity int, nblock uint32) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := diskio.Attach(path, nblock)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return New(capacity, d, nil)
}

func TestBreadLoadsAndCaches(t *testing.T) {
	c := newTestCache(t, 4, 16)

	b, err := c.Bread(0, 5, 1)
	if err != nil {
		t.Fatalf("Bread: %v", err)
	}
	copy(b.Data(), []byte("hello"))
	if err := b.Bwrite(); err != nil {
		t.Fatalf("Bwrite: %v", err)
	}
	b.Release()

	b2, err := c.Bread(0, 5, 1)
	if err != nil {
		t.Fatalf("second Bread: %v", err)
	}
	if string(b2.Data()[:5]) != "hello" {
		t.Fatalf("data = %q, want hello", b2.Data()[:5])
	}
	b2.Release()
}

// TestBufferCacheLRU reproduces spec.md §8 scenario 5: cache size 3, read
// A, B, C, release all, read D — A (the LRU entry) is evicted.
func TestBufferCacheLRU(t *testing.T) {
	c := newTestCache(t, 3, 16)

	a, _ := c.Bread(0, 1, 1)
	b, _ := c.Bread(0, 2, 1)
	cc, _ := c.Bread(0, 3, 1)
	aIdx, bIdx, cIdx := a.h.Index(), b.h.Index(), cc.h.Index()
	a.Release()
	b.Release()
	cc.Release()

	d, err := c.Bread(0, 4, 1)
	if err != nil {
		t.Fatalf("Bread D: %v", err)
	}
	if d.h.Index() != aIdx {
		t.Fatalf("D took slot %d, want A's slot %d (LRU eviction)", d.h.Index(), aIdx)
	}
	d.Release()

	b2, _ := c.Bread(0, 2, 1)
	if b2.h.Index() != bIdx {
		t.Fatal("B was evicted; expected A to be evicted instead")
	}
	b2.Release()
	c2, _ := c.Bread(0, 3, 1)
	if c2.h.Index() != cIdx {
		t.Fatal("C was evicted; expected A to be evicted instead")
	}
	c2.Release()
}

func TestPinKeepsBufferResidentAcrossRelease(t *testing.T) {
	c := newTestCache(t, 1, 16)

	b, _ := c.Bread(0, 1, 1)
	pinned := c.Pin(b)
	b.Release() // ordinary borrow dropped; the pin keeps the slot alive

	locked := pinned.Lock(1)
	if locked.Bno() != 1 {
		t.Fatalf("Bno = %d, want 1", locked.Bno())
	}
	locked.Release()
	pinned.Unpin()
}

// snapshot is a minimal comparable view of a Buf, used only to exercise
// pretty.Compare the way the teacher's own tests diff struct snapshots
// instead of asserting on individual fields one at a time.
type snapshot struct{ Bno uint32 }

func TestBreadSnapshotMatchesRequestedBlock(t *testing.T) {
	c := newTestCache(t, 2, 16)
	b, err := c.Bread(0, 5, 1)
	if err != nil {
		t.Fatalf("Bread: %v", err)
	}
	got := snapshot{Bno: b.Bno()}
	want := snapshot{Bno: 5}
	if diff := pretty.Compare(got, want); diff != "" {
		t.Fatalf("buffer snapshot differs (-got +want):\n%s", diff)
	}
	b.Release()
}
