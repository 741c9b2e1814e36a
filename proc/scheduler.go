package proc

import (
	"context"
	"runtime"
)

// Scheduler runs the per-CPU dispatch loop described in spec.md §4.F:
// round-robin over the table, handing RUNNABLE slots the CPU. Each
// process slot is backed by a goroutine parked on its resume channel
// (see Table.Fork); dispatching a process for the first time is
// therefore a channel close rather than a register-level context
// switch, but the externally visible effect — a RUNNABLE process
// becomes RUNNING and executes with the table's locks released — is
// the same. Once a process has run once, later RUNNABLE transitions
// (after a Sleep/Wakeup) are the goroutine resuming itself; the
// scheduler only needs to flip its bookkeeping state to RUNNING.
type Scheduler struct {
	table *Table
}

// NewScheduler attaches a scheduler to t.
func NewScheduler(t *Table) *Scheduler { return &Scheduler{table: t} }

// Run is one virtual CPU's dispatch loop. It scans the table forever,
// promoting each RUNNABLE slot it finds to RUNNING, until ctx is
// cancelled. Re-enabling interrupts at the top of each iteration
// (spec.md's "scheduler never holds a lock across an iteration") has no
// separate counterpart here since Go goroutines are preemptible by the
// runtime; Cpu.PushOff/PopOff bookkeeping happens inside Spinlock itself.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		dispatched := false
		for _, p := range s.table.procs {
			g := p.infoLock.Lock()
			if p.state != Runnable {
				g.Unlock()
				continue
			}
			p.state = Running
			firstRun := !p.dispatched
			p.dispatched = true
			resume := p.resume
			g.Unlock()

			dispatched = true
			if firstRun {
				close(resume)
			}
		}

		if !dispatched {
			runtime.Gosched()
		}
	}
}
