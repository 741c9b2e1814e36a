package proc

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gorv6/rvkernel/waitchan"
)

func fixedCPU(id int) func() (int, bool) {
	return func() (int, bool) { return id, true }
}

type fakeResources struct{ closed *bool }

func (r fakeResources) Close() {
	if r.closed != nil {
		*r.closed = true
	}
}

func newTestTable(t *testing.T, capacity int) (*Table, context.CancelFunc) {
	t.Helper()
	tbl := NewTable(capacity, fixedCPU(0))
	ctx, cancel := context.WithCancel(context.Background())
	sched := NewScheduler(tbl)
	go sched.Run(ctx)
	return tbl, cancel
}

// TestForkExitWait reproduces spec.md §8 scenario 1: a parent forks a
// child, the child exits(42), and the parent's wait() returns the
// child's pid together with xstate == 42.
func TestForkExitWait(t *testing.T) {
	tbl, cancel := newTestTable(t, 8)
	defer cancel()

	closed := false
	parent, ok := tbl.Fork(nil, "parent", nil, func(self *Process) {
		child, ok := tbl.Fork(self, "child", fakeResources{&closed}, func(c *Process) {
			tbl.Exit(c, 42)
		})
		if !ok {
			t.Error("fork of child failed")
			return
		}
		pid, xstate, ok := tbl.Wait(self)
		if !ok {
			t.Error("wait returned no child")
			return
		}
		if pid != child.Pid() {
			t.Errorf("wait pid = %d, want %d", pid, child.Pid())
		}
		if xstate != 42 {
			t.Errorf("wait xstate = %d, want 42", xstate)
		}
		tbl.Exit(self, 0)
	})
	if !ok {
		t.Fatal("fork of parent failed")
	}

	select {
	case <-parent.done:
	case <-time.After(2 * time.Second):
		t.Fatal("parent never finished")
	}
	if !closed {
		t.Fatal("child's resources were never closed on exit")
	}
}

// TestWaitReapsSlotForReuse checks that a reaped ZOMBIE's slot becomes
// UNUSED and can be handed to a new Fork.
func TestWaitReapsSlotForReuse(t *testing.T) {
	tbl, cancel := newTestTable(t, 2)
	defer cancel()

	done := make(chan struct{})
	parent, ok := tbl.Fork(nil, "parent", nil, func(self *Process) {
		defer close(done)
		_, ok := tbl.Fork(self, "child", nil, func(c *Process) {
			tbl.Exit(c, 7)
		})
		if !ok {
			t.Error("expected room for one child in a capacity-2 table")
			return
		}
		_, _, _ = tbl.Wait(self)

		// The reaped slot must be free for a second child now.
		_, ok = tbl.Fork(self, "child2", nil, func(c *Process) {
			tbl.Exit(c, 8)
		})
		if !ok {
			t.Error("reaped slot was not returned to the free pool")
			return
		}
		_, _, _ = tbl.Wait(self)
	})
	if !ok {
		t.Fatal("fork of parent failed")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for parent body")
	}
	<-parent.done
}

// TestWaitWithNoChildrenFails checks wait()'s error case: a process with
// no children returns ok == false immediately.
func TestWaitWithNoChildrenFails(t *testing.T) {
	tbl, cancel := newTestTable(t, 4)
	defer cancel()

	result := make(chan bool, 1)
	_, ok := tbl.Fork(nil, "lonely", nil, func(self *Process) {
		_, _, waited := tbl.Wait(self)
		result <- waited
	})
	if !ok {
		t.Fatal("fork failed")
	}
	select {
	case waited := <-result:
		if waited {
			t.Fatal("wait succeeded despite no children")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

// TestKillWakesSleeper checks that Kill on a SLEEPING process makes it
// RUNNABLE and signals its wait channel so it can observe Killed().
func TestKillWakesSleeper(t *testing.T) {
	tbl, cancel := newTestTable(t, 4)
	defer cancel()

	woke := make(chan bool, 1)
	ch := make(chan *Process, 1)
	_, ok := tbl.Fork(nil, "sleeper", nil, func(self *Process) {
		ch <- self
		channel := waitchan.New()
		self.Sleep(channel)
		woke <- self.Killed()
	})
	if !ok {
		t.Fatal("fork failed")
	}

	var self *Process
	select {
	case self = <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("process never started")
	}

	// Wait for it to actually reach SLEEPING before killing it.
	deadline := time.Now().Add(2 * time.Second)
	for self.State() != Sleeping && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if self.State() != Sleeping {
		t.Fatal("process never reached SLEEPING")
	}

	if !tbl.Kill(self.Pid()) {
		t.Fatal("kill of a live pid failed")
	}

	select {
	case killed := <-woke:
		if !killed {
			t.Fatal("process woke but Killed() is false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("killed process never woke")
	}
}

// TestSnapshotReportsForkedProcess compares a Snapshot() entry against
// its expected shape with cmp.Diff, the deep-equality tool used
// elsewhere in this tree for comparing process/inode snapshots.
func TestSnapshotReportsForkedProcess(t *testing.T) {
	tbl, cancel := newTestTable(t, 4)
	defer cancel()
	p, ok := tbl.Fork(nil, "snaptest", nil, func(self *Process) {})
	if !ok {
		t.Fatal("fork failed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.State() != Zombie && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	var got ProcInfo
	for _, info := range tbl.Snapshot() {
		if info.Pid == p.Pid() {
			got = info
		}
	}
	want := ProcInfo{Pid: p.Pid(), Name: "snaptest", State: Zombie}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot entry differs (-want +got):\n%s", diff)
	}
}
