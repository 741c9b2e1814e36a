package lock

import (
	"fmt"
	"sync"

	"github.com/gorv6/rvkernel/waitchan"
)

// Sleepablelock is a spinlock whose guard can additionally Sleep: release
// the lock, park on an internal wait channel, and re-acquire on wake, all
// atomically with respect to other lockers. Used by the console output
// path and the tick counter.
type Sleepablelock struct {
	name string
	mu   sync.Mutex
	ch   *waitchan.Channel
}

// NewSleepablelock creates a named sleepable spinlock.
func NewSleepablelock(name string) *Sleepablelock {
	return &Sleepablelock{name: name, ch: waitchan.New()}
}

// SleepablelockGuard is the scope-bounded handle returned by Lock.
type SleepablelockGuard struct {
	l        *Sleepablelock
	released bool
}

// Lock acquires the lock.
func (l *Sleepablelock) Lock() *SleepablelockGuard {
	l.mu.Lock()
	return &SleepablelockGuard{l: l}
}

// Unlock releases the guard exactly once.
func (g *SleepablelockGuard) Unlock() {
	if g.released {
		panic(fmt.Sprintf("sleepablelock %q: double unlock", g.l.name))
	}
	g.released = true
	g.l.mu.Unlock()
}

// Sleep atomically releases the lock, parks the caller until woken, and
// re-acquires the lock before returning. The guard remains valid and must
// still be Unlock()-ed exactly once by the caller afterwards.
func (g *SleepablelockGuard) Sleep() {
	if g.released {
		panic(fmt.Sprintf("sleepablelock %q: Sleep on released guard", g.l.name))
	}
	g.l.ch.Sleep(guardUnlocker{g.l}, func() { g.l.mu.Lock() })
}

type guardUnlocker struct{ l *Sleepablelock }

func (u guardUnlocker) Unlock() { u.l.mu.Unlock() }

// WakeupAll wakes every goroutine sleeping on l, intended to be called by
// a holder of l (e.g. after incrementing the tick counter).
func (l *Sleepablelock) WakeupAll() {
	l.ch.WakeupAll()
}
