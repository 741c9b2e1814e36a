package syscall

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorv6/rvkernel/bcache"
	"github.com/gorv6/rvkernel/diskio"
	"github.com/gorv6/rvkernel/fsys"
	"github.com/gorv6/rvkernel/kernel"
	"github.com/gorv6/rvkernel/proc"
	"github.com/gorv6/rvkernel/ulog"
	"github.com/gorv6/rvkernel/usr"
)

const (
	testLogStart  = 2
	testLogSize   = 8
	testInodeStrt = testLogStart + testLogSize + 1
	testNInodes   = 32
	testBmapStart = testInodeStrt + (testNInodes/fsys.IPB + 1)
	testNBlocks   = 64
)

// formatDisk lays down a superblock and an empty root directory on a
// fresh disk image, the way a real boot path's mkfs step would, then
// releases the file descriptor so kernel.Boot can reattach it.
func formatDisk(t *testing.T) (path string, total uint32) {
	t.Helper()
	path = filepath.Join(t.TempDir(), "disk.img")
	total = uint32(testBmapStart + testNBlocks/fsys.BPB + 1 + testNBlocks)

	d, err := diskio.Attach(path, total)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	sb := fsys.Superblock{
		Size:       total,
		NBlocks:    testNBlocks,
		NInodes:    testNInodes,
		NLog:       testLogSize,
		LogStart:   testLogStart,
		InodeStart: testInodeStrt,
		BmapStart:  testBmapStart,
	}
	if err := fsys.WriteSuperblock(d, sb); err != nil {
		t.Fatalf("WriteSuperblock: %v", err)
	}

	cache := bcache.New(16, d, nil)
	log := ulog.New(d, cache, 0, testLogStart, testLogSize, 3, nil)
	if err := log.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	fs := fsys.New(d, cache, log, sb, 0, 8, nil)

	log.BeginOp()
	rli, err := fs.Ialloc(0, fsys.TypeDir)
	if err != nil {
		t.Fatalf("Ialloc root: %v", err)
	}
	rli.SetNlink(1)
	if err := rli.Iupdate(); err != nil {
		t.Fatalf("Iupdate root: %v", err)
	}
	if err := fsys.Dirlink(rli, ".", fsys.RootInum, -1); err != nil {
		t.Fatalf("Dirlink .: %v", err)
	}
	if err := fsys.Dirlink(rli, "..", fsys.RootInum, -1); err != nil {
		t.Fatalf("Dirlink ..: %v", err)
	}
	rli.UnlockPut()
	if err := log.EndOp(); err != nil {
		t.Fatalf("EndOp: %v", err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path, total
}

// bootTestKernel boots a kernel against a freshly formatted disk image
// and starts it running in the background, returning a cancel func the
// caller must call to stop the virtual CPUs.
func bootTestKernel(t *testing.T) (*kernel.Kernel, context.CancelFunc) {
	t.Helper()
	path, total := formatDisk(t)

	k, err := kernel.Boot(kernel.Config{
		NCPU:           2,
		DiskPath:       path,
		DiskBlocks:     total,
		ProcTableSize:  8,
		FileTableSize:  16,
		PipeTableSize:  4,
		InodeCacheSize: 8,
		BufferCacheCap: 16,
		LogSize:        testLogSize,
		MaxOpBlocks:    3,
	})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go k.Run(ctx)
	return k, cancel
}

// rootMachine forks the table's initial process (no parent) rooted at
// "/", mirroring cmd/rvkernel's forkInit, and hands body a *Machine to
// drive the rest of the scenario from.
func rootMachine(t *testing.T, k *kernel.Kernel, body func(m *Machine)) {
	t.Helper()
	root, err := k.FS.Iget(k.FS.Dev(), fsys.RootInum)
	if err != nil {
		t.Fatalf("Iget root: %v", err)
	}
	ctx := usr.New(root)
	_, ok := k.Procs.Fork(nil, "test-root", ctx, func(self *proc.Process) {
		body(For(k, self))
	})
	if !ok {
		t.Fatal("process table full")
	}
}

// TestForkExitWait reproduces spec.md §8 scenario 1: a parent forks a
// child that exits with a distinguished status, and the parent's wait
// reports that pid and status back.
func TestForkExitWait(t *testing.T) {
	k, cancel := bootTestKernel(t)
	defer cancel()

	done := make(chan struct{})
	var gotPid, gotStatus int
	var childPid int
	var forkErr, waitErr error

	rootMachine(t, k, func(m *Machine) {
		defer close(done)
		childPid, forkErr = m.Fork("child", func(child *Machine) {
			child.Exit(42)
		})
		if forkErr != nil {
			return
		}
		gotPid, gotStatus, waitErr = m.Wait()
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scenario did not complete")
	}

	if forkErr != nil {
		t.Fatalf("Fork: %v", forkErr)
	}
	if waitErr != nil {
		t.Fatalf("Wait: %v", waitErr)
	}
	if gotPid != childPid {
		t.Fatalf("Wait pid = %d, want %d", gotPid, childPid)
	}
	if gotStatus != 42 {
		t.Fatalf("Wait status = %d, want 42", gotStatus)
	}
}

// TestPipeEcho reproduces spec.md §8 scenario 2: a parent creates a
// pipe, forks a child that writes "HELLO\n" to the write end and exits,
// and the parent reads it back from the read end before reaping the
// child.
func TestPipeEcho(t *testing.T) {
	k, cancel := bootTestKernel(t)
	defer cancel()

	const msg = "HELLO\n"
	done := make(chan struct{})
	var got string
	var childPid, waitPid int
	var err error

	rootMachine(t, k, func(m *Machine) {
		defer close(done)

		rfd, wfd, perr := m.Pipe()
		if perr != nil {
			err = perr
			return
		}

		childPid, err = m.Fork("writer", func(child *Machine) {
			if _, werr := child.Write(wfd, []byte(msg)); werr != nil {
				err = werr
			}
			child.Close(wfd)
			child.Close(rfd)
			child.Exit(0)
		})
		if err != nil {
			return
		}

		if cerr := m.Close(wfd); cerr != nil {
			err = cerr
			return
		}

		buf := make([]byte, len(msg))
		n, rerr := m.Read(rfd, buf)
		if rerr != nil {
			err = rerr
			return
		}
		got = string(buf[:n])

		waitPid, _, err = m.Wait()
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scenario did not complete")
	}

	if err != nil {
		t.Fatalf("scenario: %v", err)
	}
	if got != msg {
		t.Fatalf("Read = %q, want %q", got, msg)
	}
	if waitPid != childPid {
		t.Fatalf("Wait pid = %d, want %d", waitPid, childPid)
	}
}

// TestOpenTrunc reproduces spec.md §6's O_TRUNC flag: reopening an
// existing file with O_TRUNC discards its old contents.
func TestOpenTrunc(t *testing.T) {
	k, cancel := bootTestKernel(t)
	defer cancel()

	done := make(chan struct{})
	var size uint32
	var err error

	rootMachine(t, k, func(m *Machine) {
		defer close(done)

		fd, oerr := m.Open("/f", OCREATE|OWRONLY)
		if oerr != nil {
			err = oerr
			return
		}
		if _, err = m.Write(fd, []byte("hello, world")); err != nil {
			return
		}
		if err = m.Close(fd); err != nil {
			return
		}

		fd, err = m.Open("/f", OWRONLY|OTRUNC)
		if err != nil {
			return
		}
		defer m.Close(fd)

		var st Stat
		st, err = m.Fstat(fd)
		if err != nil {
			return
		}
		size = st.Size
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scenario did not complete")
	}

	if err != nil {
		t.Fatalf("scenario: %v", err)
	}
	if size != 0 {
		t.Fatalf("size after O_TRUNC = %d, want 0", size)
	}
}
