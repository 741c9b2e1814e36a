// Package waitchan implements condition-variable-style wait channels: a
// zero-byte address whose identity is the condition. Any lock's guard can
// be presented to Sleep; wakeups are level-triggered, so every caller must
// loop "for !condition { Sleep(guard) }".
package waitchan

import "sync"

// Guard is anything that can be released and re-acquired around a sleep,
// which is every guard type in package lock plus test doubles.
type Guard interface {
	Unlock()
}

// Channel is one wait channel. Most guards in this kernel are single-use
// (a fresh guard is obtained from the lock they came from), so Sleep
// takes a relock function alongside the guard rather than asking the
// guard to re-acquire itself.
type Channel struct {
	mu   sync.Mutex
	cond *sync.Cond
	// generation increments on every Wakeup/WakeupAll; Sleep waits until
	// it changes relative to the generation read before parking, so a
	// Wakeup racing ahead of a Sleep can never be missed.
	generation uint64
}

// New returns a new, ready wait channel. Its own address is its identity;
// equality of *Channel pointers is the "same condition" test used by
// Wakeup/WakeupAll.
func New() *Channel {
	c := &Channel{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Sleep atomically releases guard, parks the calling goroutine on the
// channel, and re-acquires the lock via relock before returning. Per
// spec.md §4.E, wakeups are level-triggered: callers must re-check their
// condition in a loop after Sleep returns, since a spurious wakeup (or a
// wakeup meant for a different logical waiter on the same channel) must be
// tolerated.
func (c *Channel) Sleep(guard Guard, relock func()) {
	c.mu.Lock()
	gen := c.generation
	guard.Unlock()
	for c.generation == gen {
		c.cond.Wait()
	}
	c.mu.Unlock()
	relock()
}

// Wakeup wakes one goroutine parked on the channel.
func (c *Channel) Wakeup() {
	c.mu.Lock()
	c.generation++
	c.mu.Unlock()
	c.cond.Signal()
}

// WakeupAll wakes every goroutine parked on the channel.
func (c *Channel) WakeupAll() {
	c.mu.Lock()
	c.generation++
	c.mu.Unlock()
	c.cond.Broadcast()
}
