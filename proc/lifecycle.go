package proc

import "github.com/gorv6/rvkernel/waitchan"

// Fork finds an UNUSED slot, initializes it, records parent under the
// wait-lock, transitions the child to RUNNABLE, and returns it. body is
// the child's "user program": the goroutine backing the slot blocks until
// the scheduler dispatches it, then runs body(child). If body returns
// without calling Table.Exit itself, the child exits with status 0 — the
// same behavior as a user program falling off the end of main without
// calling exit(). The very first process forked with parent == nil is
// remembered as the initial process (pid 1's role: spec.md Glossary
// "Initial process"), the adoptive parent of every orphan.
func (t *Table) Fork(parent *Process, name string, resources Resources, body func(self *Process)) (*Process, bool) {
	if resources == nil {
		resources = noopResources{}
	}

	for i, p := range t.procs {
		g := p.infoLock.Lock()
		if p.state != Unused {
			g.Unlock()
			continue
		}
		p.state = Used
		p.pid = allocPid()
		p.name = name
		p.resources = resources
		p.killed = false
		p.xstate = 0
		p.waitCh = nil
		p.childCh = waitchan.New()
		p.resume = make(chan struct{})
		p.done = make(chan struct{})
		g.Unlock()

		wg := t.waitLock.Lock()
		parentSlot := noParent
		if parent != nil {
			parentSlot = parent.slot
		} else if t.initSlot < 0 {
			t.initSlot = i
		}
		t.setParent(wg, i, parentSlot)
		wg.Unlock()

		go func(p *Process) {
			<-p.resume
			body(p)
			if p.State() != Zombie {
				t.Exit(p, 0)
			}
			close(p.done)
		}(p)

		g = p.infoLock.Lock()
		p.state = Runnable
		g.Unlock()
		return p, true
	}
	return nil, false
}

// Exit closes the process's resources, reparents its children to the
// initial process, wakes its parent's child-wait channel, and marks it a
// ZOMBIE carrying status. Per spec.md §4.F it never leaves children
// dangling: every child still in the table at the time of exit is
// reparented, orphan or not.
func (t *Table) Exit(p *Process, status int) {
	p.resources.Close()

	wg := t.waitLock.Lock()
	for i := range t.procs {
		if t.parentOf(wg, i) == p.slot {
			t.setParent(wg, i, t.initSlot)
		}
	}
	parentSlot := t.parentOf(wg, p.slot)
	wg.Unlock()

	if parentSlot >= 0 && parentSlot != p.slot {
		t.procs[parentSlot].childCh.WakeupAll()
	}

	g := p.infoLock.Lock()
	p.xstate = status
	p.state = Zombie
	g.Unlock()
}

// Wait blocks until a ZOMBIE child exists, reaps it (freeing its slot),
// and returns its pid and exit status. Returns ok=false if parent has no
// children or has been killed, matching spec.md §4.F's error case.
func (t *Table) Wait(parent *Process) (pid int, status int, ok bool) {
	for {
		wg := t.waitLock.Lock()
		haveChildren := false
		for i := range t.procs {
			if t.parentOf(wg, i) != parent.slot {
				continue
			}
			haveChildren = true
			child := t.procs[i]
			g := child.infoLock.Lock()
			if child.state == Zombie {
				pid, status = child.pid, child.xstate
				g.Unlock()
				t.setParent(wg, i, noParent)
				wg.Unlock()
				t.freeSlot(child)
				return pid, status, true
			}
			g.Unlock()
		}
		if !haveChildren || parent.Killed() {
			wg.Unlock()
			return 0, 0, false
		}
		parent.childCh.Sleep(wg, func() { wg = t.waitLock.Lock() })
		wg.Unlock()
	}
}

// freeSlot returns a reaped ZOMBIE slot to UNUSED.
func (t *Table) freeSlot(p *Process) {
	g := p.infoLock.Lock()
	p.state = Unused
	p.pid = 0
	p.name = ""
	p.resources = nil
	p.killed = false
	p.waitCh = nil
	g.Unlock()
}

// Kill marks pid as having a pending kill request. If it is currently
// SLEEPING, it is made RUNNABLE and its wait channel is signalled so it
// can observe Killed() and unwind. Per spec.md §4.F, kill is advisory: it
// takes effect only when the target next checks Killed().
func (t *Table) Kill(pid int) bool {
	for _, p := range t.procs {
		g := p.infoLock.Lock()
		if p.state == Unused || p.pid != pid {
			g.Unlock()
			continue
		}
		p.killed = true
		var ch *waitchan.Channel
		if p.state == Sleeping {
			p.state = Runnable
			ch = p.waitCh
		}
		g.Unlock()
		if ch != nil {
			ch.WakeupAll()
		}
		return true
	}
	return false
}

// Sleep atomically records channel as the process's wait channel, sets
// its state to SLEEPING, and parks the calling goroutine until a matching
// Wakeup/WakeupAll. Per spec.md §4.E wakeups are level-triggered: callers
// must still re-check their own condition after Sleep returns.
func (p *Process) Sleep(channel *waitchan.Channel) {
	g := p.infoLock.Lock()
	p.waitCh = channel
	p.state = Sleeping
	channel.Sleep(g, func() { g = p.infoLock.Lock() })
	p.waitCh = nil
	p.state = Running
	g.Unlock()
}

// Wakeup transitions every SLEEPING process in the table waiting on
// channel to RUNNABLE and signals one of them to resume.
func (t *Table) Wakeup(channel *waitchan.Channel) {
	for _, p := range t.procs {
		g := p.infoLock.Lock()
		if p.state == Sleeping && p.waitCh == channel {
			p.state = Runnable
		}
		g.Unlock()
	}
	channel.Wakeup()
}

// WakeupAll is Wakeup but resumes every matching sleeper, not just one.
func (t *Table) WakeupAll(channel *waitchan.Channel) {
	for _, p := range t.procs {
		g := p.infoLock.Lock()
		if p.state == Sleeping && p.waitCh == channel {
			p.state = Runnable
		}
		g.Unlock()
	}
	channel.WakeupAll()
}
