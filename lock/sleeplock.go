package lock

import (
	"fmt"
	"sync"

	"github.com/gorv6/rvkernel/waitchan"
)

// Sleeplock is a mutex built atop an internal spinlock and a wait channel:
// a contending caller parks instead of busy-waiting, and interrupts remain
// enabled while blocked. It is the lock used for inode payloads and
// buffer-cache payloads, which must be held across blocking disk I/O.
type Sleeplock struct {
	name string
	mu   sync.Mutex // protects locked/holder; the "spinlock" half
	ch   *waitchan.Channel
	locked bool
	holder int // -1 if unlocked
}

// NewSleeplock creates a named sleep lock.
func NewSleeplock(name string) *Sleeplock {
	return &Sleeplock{name: name, ch: waitchan.New(), holder: noHolder}
}

// SleeplockGuard is the scope-bounded handle returned by Lock.
type SleeplockGuard struct {
	l        *Sleeplock
	released bool
}

type innerGuard struct{ mu *sync.Mutex }

func (g innerGuard) Unlock() { g.mu.Unlock() }

// Lock acquires the sleep lock for the given holder identity (a pid or
// goroutine tag used only for diagnostics), parking the caller on the
// internal wait channel while contended.
func (l *Sleeplock) Lock(holder int) *SleeplockGuard {
	l.mu.Lock()
	for l.locked {
		l.ch.Sleep(innerGuard{&l.mu}, l.mu.Lock)
	}
	l.locked = true
	l.holder = holder
	l.mu.Unlock()
	return &SleeplockGuard{l: l}
}

// Holding reports whether the lock is currently held by holder.
func (l *Sleeplock) Holding(holder int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked && l.holder == holder
}

// Unlock releases the guard and wakes one waiter, if any.
func (g *SleeplockGuard) Unlock() {
	if g.released {
		panic(fmt.Sprintf("sleeplock %q: double unlock", g.l.name))
	}
	g.released = true
	l := g.l
	l.mu.Lock()
	l.locked = false
	l.holder = noHolder
	l.mu.Unlock()
	l.ch.Wakeup()
}
