package lock

import "fmt"

// owner is implemented by every raw lock/guard pair in this package so
// RemoteLock can verify, at runtime, that a presented guard really
// originates from the lock it was constructed against.
type owner interface{ identity() uintptr }

func (l *Spinlock) identity() uintptr      { return uintptrOf(l) }
func (g *SpinlockGuard) lockIdentity() uintptr { return uintptrOf(g.l) }

func (l *Sleeplock) identity() uintptr          { return uintptrOf(l) }
func (g *SleeplockGuard) lockIdentity() uintptr { return uintptrOf(g.l) }

func (l *Sleepablelock) identity() uintptr          { return uintptrOf(l) }
func (g *SleepablelockGuard) lockIdentity() uintptr { return uintptrOf(g.l) }

// RemoteLock pairs a data cell with a borrow of some other lock's critical
// section. It exposes no acquisition of its own: the holder of the
// referenced lock's guard must present it to Get in order to obtain the
// cell, letting many logically distinct cells (e.g. every process's parent
// pointer) share one underlying lock (e.g. the wait-lock).
type RemoteLock[T any] struct {
	lockID uintptr
	data   T
}

// NewSpinlockRemote creates a RemoteLock[T] whose critical section is
// borrowed from l.
func NewSpinlockRemote[T any](l *Spinlock, data T) *RemoteLock[T] {
	return &RemoteLock[T]{lockID: l.identity(), data: data}
}

// Get returns a pointer to the remote cell's data, given a guard from the
// lock this RemoteLock borrowed from. Panics if guard was obtained from a
// different lock instance.
func (r *RemoteLock[T]) Get(guard *SpinlockGuard) *T {
	if guard.lockIdentity() != r.lockID {
		panic(fmt.Sprintf("remotelock: guard does not originate from the lock this cell borrowed (want %x got %x)", r.lockID, guard.lockIdentity()))
	}
	return &r.data
}
