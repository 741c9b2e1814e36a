// Package lock implements the kernel's raw lock family: a spinlock with
// per-virtual-CPU interrupt push/pop, a cooperatively yielding sleep lock,
// a sleepable spinlock with condition-variable-style waiting, and a remote
// lock that lets several data cells share one raw lock's critical section.
package lock

import "sync"

// Cpu tracks the interrupt-disable nesting depth and the prior interrupt
// state for one virtual CPU. Real RISC-V/ARM kernels push and pop the
// processor's interrupt-enable bit; we simulate the same bookkeeping with
// a per-virtual-CPU counter so the push/pop nesting of spinlock
// acquisition is still observable.
type Cpu struct {
	mu       sync.Mutex
	noff     int  // depth of push_off nesting
	intStart bool // were interrupts enabled before the first push?
}

// cpus is indexed by a caller-supplied virtual CPU id. A real kernel reads
// this off a CPU-local register (tp on RISC-V); we thread it explicitly
// since Go has no notion of "current CPU" for a goroutine.
var (
	cpusMu sync.Mutex
	cpus   = map[int]*Cpu{}
)

// CurrentCPU returns the Cpu bookkeeping record for id, creating it on
// first use.
func CurrentCPU(id int) *Cpu {
	cpusMu.Lock()
	defer cpusMu.Unlock()
	c, ok := cpus[id]
	if !ok {
		c = &Cpu{}
		cpus[id] = c
	}
	return c
}

// PushOff disables interrupts on the calling CPU, incrementing the nesting
// depth. The first push records whether interrupts were enabled so PopOff
// can restore it.
func (c *Cpu) PushOff(interruptsWereEnabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.noff == 0 {
		c.intStart = interruptsWereEnabled
	}
	c.noff++
}

// PopOff decrements the nesting depth, reporting whether interrupts should
// now be re-enabled (true only when the depth reaches zero and interrupts
// were enabled before the outermost push).
func (c *Cpu) PopOff() (restoreEnabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.noff == 0 {
		panic("lock: PopOff without matching PushOff")
	}
	c.noff--
	if c.noff == 0 {
		return c.intStart
	}
	return false
}

// Depth returns the current push_off nesting depth. Used by tests to check
// invariant I-8 of spec.md: pushes == pops between returns to user space.
func (c *Cpu) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.noff
}
