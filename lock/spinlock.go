package lock

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// Spinlock busy-waits on an atomic test-and-set. Acquiring it pushes
// "interrupts off" onto the calling CPU's depth counter (see Cpu); holder
// identity is recorded so recursive acquisition is detected and reported.
// Sleeping while a spinlock is held is not detected.
type Spinlock struct {
	name    string
	state   int32 // 0 = free, 1 = held
	holder  int32 // CPU id of the holder, or -1
	cpuFunc func() (id int, interruptsEnabled bool)
}

const noHolder = -1

// NewSpinlock creates a named spinlock. cpuFunc reports the id of the
// calling virtual CPU and whether interrupts are currently enabled on it;
// tests may supply a fixed single-CPU function.
func NewSpinlock(name string, cpuFunc func() (int, bool)) *Spinlock {
	return &Spinlock{name: name, holder: noHolder, cpuFunc: cpuFunc}
}

// SpinlockGuard is the scope-bounded handle returned by Lock. It must be
// released exactly once, on every exit path.
type SpinlockGuard struct {
	l        *Spinlock
	cpu      *Cpu
	released bool
}

// Lock acquires the spinlock, busy-waiting until the test-and-set
// succeeds, and returns a guard. Panics if the calling CPU already holds
// this lock.
func (l *Spinlock) Lock() *SpinlockGuard {
	id, intEnabled := l.cpuFunc()
	cpu := CurrentCPU(id)
	cpu.PushOff(intEnabled)

	if atomic.LoadInt32(&l.holder) == int32(id) && atomic.LoadInt32(&l.state) == 1 {
		panic(fmt.Sprintf("spinlock %q: recursive acquire by cpu %d", l.name, id))
	}

	for !atomic.CompareAndSwapInt32(&l.state, 0, 1) {
		runtime.Gosched()
	}
	atomic.StoreInt32(&l.holder, int32(id))
	return &SpinlockGuard{l: l, cpu: cpu}
}

// Holding reports whether the calling CPU currently holds l.
func (l *Spinlock) Holding(id int) bool {
	return atomic.LoadInt32(&l.state) == 1 && atomic.LoadInt32(&l.holder) == int32(id)
}

// Unlock releases the guard. Calling it more than once panics, matching
// the "release happens exactly once" contract.
func (g *SpinlockGuard) Unlock() {
	if g.released {
		panic(fmt.Sprintf("spinlock %q: double unlock", g.l.name))
	}
	g.released = true
	atomic.StoreInt32(&g.l.holder, noHolder)
	atomic.StoreInt32(&g.l.state, 0)
	if restore := g.cpu.PopOff(); restore {
		// Interrupts would be re-enabled here on real hardware.
		_ = restore
	}
}
