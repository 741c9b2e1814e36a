// Package arena implements the fixed-capacity, homogeneous,
// reference-counted object pool used uniformly for inodes, open files,
// pipes and buffer-cache entries (spec.md §4.D). Two flavors are
// provided: ArrayArena, which scans in index order and is meant for
// entries with explicit logical keys (inodes, files), and MruArena, which
// additionally orders entries by recency of use for the buffer cache.
package arena

import "github.com/gorv6/rvkernel/lock"

// Finalize is invoked exactly once, under the arena lock, when the last
// handle to a slot is dropped. It is permitted to perform further
// blocking work (e.g. inode truncation through the journal) by calling
// reacquireAfter, which releases the arena lock for the duration of f and
// re-acquires it before returning — this is the only way finalize may
// safely block, per spec.md §4.D's reacquire_after escape hatch.
type Finalize[T any] func(payload *T, reacquireAfter func(f func()))

// cpuFuncDefault is used when a caller passes a nil cpuFunc: the arena's
// lock then always reports virtual CPU 0. kernel.Boot passes nil for
// every arena.
func cpuFuncDefault() (int, bool) { return 0, true }

// newArenaLock returns a fresh, named arena lock.
func newArenaLock(name string, cpuFunc func() (int, bool)) *lock.Spinlock {
	if cpuFunc == nil {
		cpuFunc = cpuFuncDefault
	}
	return lock.NewSpinlock(name, cpuFunc)
}
