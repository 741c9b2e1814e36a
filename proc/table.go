package proc

import (
	"github.com/gorv6/rvkernel/lock"
)

// Table is the fixed-size process table plus the single global wait-lock
// that guards every process's parent pointer (spec.md §4.F). Acquisition
// order whenever both are needed: waitLock before any process's infoLock.
type Table struct {
	waitLock *lock.Spinlock
	procs    []*Process
	parents  []*lock.RemoteLock[int] // parents[i] holds procs[i]'s parent slot index, or -1
	cpuFunc  func() (int, bool)
	initSlot int // slot index of the process adopting orphans, or -1 until the first Fork(nil, ...)
}

const noParent = -1

// NewTable creates a process table with the given fixed capacity.
// cpuFunc reports the calling virtual CPU's id and interrupt-enabled
// state, exactly as required by package lock; pass nil for single-CPU use
// (tests, or a uniprocessor boot).
func NewTable(capacity int, cpuFunc func() (int, bool)) *Table {
	if cpuFunc == nil {
		cpuFunc = func() (int, bool) { return 0, true }
	}
	t := &Table{
		waitLock: lock.NewSpinlock("wait-lock", cpuFunc),
		procs:    make([]*Process, capacity),
		parents:  make([]*lock.RemoteLock[int], capacity),
		cpuFunc:  cpuFunc,
		initSlot: noParent,
	}
	for i := range t.procs {
		p := &Process{
			infoLock: lock.NewSpinlock("proc-info", cpuFunc),
			state:    Unused,
			table:    t,
			slot:     i,
		}
		t.procs[i] = p
		t.parents[i] = lock.NewSpinlockRemote[int](t.waitLock, noParent)
	}
	return t
}

// parentOf and setParent both require the wait-lock; callers acquire it
// themselves so several slots can be touched (e.g. reparenting every
// child of an exiting process) under one critical section.
func (t *Table) parentOf(g *lock.SpinlockGuard, slot int) int {
	return *t.parents[slot].Get(g)
}

func (t *Table) setParent(g *lock.SpinlockGuard, slot int, parent int) {
	*t.parents[slot].Get(g) = parent
}

// Capacity returns the fixed number of process slots.
func (t *Table) Capacity() int { return len(t.procs) }

// Snapshot returns a point-in-time (pid, name, state) triple for every
// non-UNUSED slot, for diagnostics (the `ps` scenario of spec.md §8.6).
type ProcInfo struct {
	Pid   int
	Name  string
	State State
}

func (t *Table) Snapshot() []ProcInfo {
	var out []ProcInfo
	for _, p := range t.procs {
		g := p.infoLock.Lock()
		st := p.state
		pid := p.pid
		name := p.name
		g.Unlock()
		if st != Unused {
			out = append(out, ProcInfo{Pid: pid, Name: name, State: st})
		}
	}
	return out
}
