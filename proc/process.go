// Package proc implements the process system: a fixed-size process table,
// a per-CPU scheduler, context switch, and fork/exit/wait/kill semantics
// with the strict wait-lock → info-lock acquisition order (spec.md §4.F).
//
// Each process is backed by a real goroutine standing in for a stackful
// kernel thread (spec.md §9's "coroutine-style suspension" design note:
// the externally observed sleep/wakeup semantics are identical whether the
// implementation uses a stack per process or a stackless state machine —
// we take the former, since it is what the Go runtime already gives us).
package proc

import (
	"sync/atomic"

	"github.com/gorv6/rvkernel/lock"
	"github.com/gorv6/rvkernel/waitchan"
)

// State is one of the six lifecycle states a process slot may be in.
type State int

const (
	Unused State = iota
	Used
	Sleeping
	Runnable
	Running
	Zombie
)

func (s State) String() string {
	switch s {
	case Unused:
		return "UNUSED"
	case Used:
		return "USED"
	case Sleeping:
		return "SLEEPING"
	case Runnable:
		return "RUNNABLE"
	case Running:
		return "RUNNING"
	case Zombie:
		return "ZOMBIE"
	default:
		return "?"
	}
}

// Resources is whatever a process must release on exit: its open files and
// current-working-directory inode handle. Exit calls Close without
// opening a log transaction; proc stays independent of the filesystem/log
// packages by taking this as an injected callback, the same pattern arena
// uses for Finalize.
type Resources interface {
	// Close releases every resource. Called at most once, from exit(),
	// never concurrently with any other method on the owning process.
	Close()
}

type noopResources struct{}

func (noopResources) Close() {}

// Process is one process-table slot. Per spec.md §3: the info sub-record
// (state, xstate, killed, waitChan, pid) is guarded by the process's own
// lock; the parent pointer is guarded by the table's single global
// wait-lock (via a RemoteLock, see Table.parents); the resources are owned
// exclusively by whichever goroutine is RUNNING on behalf of this process.
type Process struct {
	infoLock *lock.Spinlock

	pid     int
	state   State
	xstate  int
	killed  bool
	waitCh  *waitchan.Channel // channel this process is SLEEPING on, or nil
	childCh *waitchan.Channel // wakeup target for this process's wait()
	name    string

	resources  Resources
	resume     chan struct{} // closed once, by the scheduler, to release the backing goroutine
	dispatched bool          // whether resume has already been closed
	done       chan struct{} // closed when the backing goroutine returns

	table *Table
	slot  int
}

// Pid returns the process id.
func (p *Process) Pid() int { return p.pid }

// State returns the current lifecycle state under the info lock.
func (p *Process) State() State {
	g := p.infoLock.Lock()
	defer g.Unlock()
	return p.state
}

// Name returns the process's recorded name.
func (p *Process) Name() string { return p.name }

// Resources returns the process's resource bundle (its usr.Context, in
// practice). Safe to call only from the goroutine currently RUNNING on
// this process's behalf — the same ownership rule spec.md §3 states for
// the rest of the "data sub-record".
func (p *Process) Resources() Resources { return p.resources }

// Killed reports whether kill(pid) has been requested for this process.
// Per spec.md §4.F, this is advisory: callers must check it at designated
// points (typically before returning to user mode).
func (p *Process) Killed() bool {
	g := p.infoLock.Lock()
	defer g.Unlock()
	return p.killed
}

var nextPid int64 // monotonically assigned, per spec.md §3

func allocPid() int { return int(atomic.AddInt64(&nextPid, 1)) }
