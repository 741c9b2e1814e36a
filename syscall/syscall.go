// Package syscall is the system-call surface of spec.md §6: one method
// per call on Machine, dispatching into proc/fsys/pipe/file. Methods take
// Go arguments and return Go (value, error) results; ErrVal names the
// max-word sentinel, but nothing in this package converts an error to it,
// and there is no dispatch by call number. Grounded on
// kernel-rs/src/syscall.rs + sysproc.rs.
package syscall

import (
	"errors"
	"fmt"

	"github.com/gorv6/rvkernel/file"
	"github.com/gorv6/rvkernel/fsys"
	"github.com/gorv6/rvkernel/kernel"
	"github.com/gorv6/rvkernel/proc"
	"github.com/gorv6/rvkernel/usr"
)

// ErrVal is the sentinel every failing system call returns in place of a
// machine word, standing in for the source's usize::MAX (spec.md §7:
// "on error, system call returns max-word; no errno").
const ErrVal = ^uintptr(0)

// Open flags (spec.md §6).
const (
	ORDONLY = 0x000
	OWRONLY = 0x001
	ORDWR   = 0x002
	OCREATE = 0x200
	OTRUNC  = 0x400
)

var ErrNotImplemented = errors.New("syscall: exec is an external collaborator, out of scope")

// Machine is the per-process dispatch context: the booted kernel plus
// the calling process and its resource bundle. One Machine is created
// per process body closure (see kernel-rs's per-process trap handling).
type Machine struct {
	K    *kernel.Kernel
	Self *proc.Process
	Ctx  *usr.Context
}

// For returns a Machine for self, recovering its usr.Context from
// Process.Resources() (the concrete type Fork was given).
func For(k *kernel.Kernel, self *proc.Process) *Machine {
	ctx, _ := self.Resources().(*usr.Context)
	return &Machine{K: k, Self: self, Ctx: ctx}
}

// Fork creates a child process running body, duplicating the caller's
// open files and cwd (spec.md §4.F). body is invoked with a *Machine
// already bound to the new child.
func (m *Machine) Fork(name string, body func(child *Machine)) (int, error) {
	childCtx := m.Ctx.Fork(m.K.FS)
	child, ok := m.K.Procs.Fork(m.Self, name, childCtx, func(self *proc.Process) {
		body(&Machine{K: m.K, Self: self, Ctx: childCtx})
	})
	if !ok {
		childCtx.Close()
		return 0, fmt.Errorf("syscall: fork: process table full")
	}
	return child.Pid(), nil
}

// Exit marks the calling process a ZOMBIE carrying status, then returns
// to its caller: code after it in the body still runs, and the backing
// goroutine ends only when the body returns to proc.Table.Fork's wrapper.
func (m *Machine) Exit(status int) {
	m.K.Procs.Exit(m.Self, status)
}

// Wait blocks for a zombie child, reaps it, and returns its pid and exit
// status.
func (m *Machine) Wait() (pid int, status int, err error) {
	pid, status, ok := m.K.Procs.Wait(m.Self)
	if !ok {
		return 0, 0, fmt.Errorf("syscall: wait: no children")
	}
	return pid, status, nil
}

// Getpid returns the caller's pid.
func (m *Machine) Getpid() int { return m.Self.Pid() }

// Kill requests termination of pid.
func (m *Machine) Kill(pid int) error {
	if !m.K.Procs.Kill(pid) {
		return fmt.Errorf("syscall: kill: no such pid %d", pid)
	}
	return nil
}

// Sleep blocks the caller for n ticks (sys_sleep).
func (m *Machine) Sleep(ticks uint32) { m.K.SleepTicks(ticks) }

// Uptime returns the tick counter (sys_uptime).
func (m *Machine) Uptime() uint32 { return m.K.Uptime() }

// Poweroff is advisory: it calls Kernel.Panic, which sets the kernel's
// panicked flag and logs the exit code. No CPU dispatch loop reads that
// flag, so the CPUs keep running until Run's context is cancelled.
func (m *Machine) Poweroff(code int) { m.K.Panic("poweroff(%d)", code) }

// Clock reports the tick counter, an alias sys_clock historically used
// by user code that wants wall-clock-like readings without going
// through uptime's name.
func (m *Machine) Clock() uint32 { return m.K.Uptime() }

// Pipe creates a pipe and installs both ends as new fds in the caller's
// file table, returning (readFd, writeFd).
func (m *Machine) Pipe() (readFd, writeFd int, err error) {
	r, w, err := m.K.Pipes.Alloc()
	if err != nil {
		return 0, 0, err
	}
	rf, err := m.K.Files.OpenPipe(r)
	if err != nil {
		r.Close()
		w.Close()
		return 0, 0, err
	}
	wf, err := m.K.Files.OpenPipe(w)
	if err != nil {
		rf.Close()
		w.Close()
		return 0, 0, err
	}
	readFd, err = m.Ctx.AllocFd(rf)
	if err != nil {
		rf.Close()
		wf.Close()
		return 0, 0, err
	}
	writeFd, err = m.Ctx.AllocFd(wf)
	if err != nil {
		m.Ctx.CloseFd(readFd)
		wf.Close()
		return 0, 0, err
	}
	return readFd, writeFd, nil
}

// Read reads up to len(buf) bytes from fd.
func (m *Machine) Read(fd int, buf []byte) (uint32, error) {
	f, err := m.Ctx.File(fd)
	if err != nil {
		return 0, err
	}
	return f.Read(buf)
}

// Write writes buf to fd.
func (m *Machine) Write(fd int, buf []byte) (uint32, error) {
	f, err := m.Ctx.File(fd)
	if err != nil {
		return 0, err
	}
	return f.Write(buf)
}

// Close closes fd.
func (m *Machine) Close(fd int) error { return m.Ctx.CloseFd(fd) }

// Dup duplicates fd, returning the new descriptor.
func (m *Machine) Dup(fd int) (int, error) {
	f, err := m.Ctx.File(fd)
	if err != nil {
		return 0, err
	}
	return m.Ctx.AllocFd(f.Dup())
}

// Chdir changes the caller's working directory.
func (m *Machine) Chdir(path string) error {
	ih, err := m.K.FS.Lookup(path, m.Ctx.Cwd(), m.Self.Pid())
	if err != nil {
		return err
	}
	li, err := ih.Ilock(m.Self.Pid())
	if err != nil {
		ih.Put()
		return err
	}
	isDir := li.Type() == fsys.TypeDir
	li.Unlock()
	if !isDir {
		ih.Put()
		return fsys.ErrNotDir
	}
	m.Ctx.Chdir(ih)
	return nil
}

// Mkdir creates a new directory.
func (m *Machine) Mkdir(path string) error {
	return m.K.FS.Mkdir(path, m.Ctx.Cwd(), m.Self.Pid())
}

// Mknod creates a device special file.
func (m *Machine) Mknod(path string, major, minor uint16) error {
	li, err := m.K.FS.Create(path, fsys.TypeDev, major, minor, m.Ctx.Cwd(), m.Self.Pid())
	if err != nil {
		return err
	}
	li.UnlockPut()
	return nil
}

// Link adds newPath as another name for oldPath.
func (m *Machine) Link(oldPath, newPath string) error {
	return m.K.FS.Link(oldPath, newPath, m.Ctx.Cwd(), m.Self.Pid())
}

// Unlink removes path's directory entry.
func (m *Machine) Unlink(path string) error {
	return m.K.FS.Unlink(path, m.Ctx.Cwd(), m.Self.Pid())
}

// Open opens (optionally creating) path with flags, returning a new fd.
func (m *Machine) Open(path string, flags int) (int, error) {
	readable := flags&ORDWR != 0 || flags&OWRONLY == 0
	writable := flags&OWRONLY != 0 || flags&ORDWR != 0

	var ih *fsys.InodeHandle
	var typ uint16
	if flags&OCREATE != 0 {
		li, err := m.K.FS.Create(path, fsys.TypeFile, 0, 0, m.Ctx.Cwd(), m.Self.Pid())
		if err != nil {
			return 0, err
		}
		typ = li.Type()
		ih = dupHandleAndUnlock(li)
	} else {
		var err error
		ih, err = m.K.FS.Lookup(path, m.Ctx.Cwd(), m.Self.Pid())
		if err != nil {
			return 0, err
		}
		li, err := ih.Ilock(m.Self.Pid())
		if err != nil {
			ih.Put()
			return 0, err
		}
		typ = li.Type()
		if typ == fsys.TypeDir && writable {
			li.Unlock()
			ih.Put()
			return 0, fmt.Errorf("syscall: open: O_WRONLY/O_RDWR incompatible with a directory")
		}
		li.Unlock()
	}

	var f *file.File
	var err error
	if typ == fsys.TypeDev {
		li, lerr := ih.Ilock(m.Self.Pid())
		if lerr != nil {
			ih.Put()
			return 0, lerr
		}
		major := li.Major()
		li.Unlock()
		f, err = m.K.Files.OpenDevice(ih, major, readable, writable)
	} else {
		f, err = m.K.Files.OpenInode(ih, readable, writable)
	}
	if err != nil {
		ih.Put()
		return 0, err
	}
	if flags&OTRUNC != 0 && typ == fsys.TypeFile {
		if err := m.K.FS.Ftruncate(ih, m.Self.Pid()); err != nil {
			f.Close()
			return 0, err
		}
	}
	return m.Ctx.AllocFd(f)
}

// dupHandleAndUnlock releases li's lock but keeps its arena borrow,
// handing back a plain (unlocked) handle for Files.OpenInode to adopt.
func dupHandleAndUnlock(li *fsys.LockedInode) *fsys.InodeHandle {
	h := li.Handle()
	li.Unlock()
	return h
}

// Fstat describes fd's inode, where applicable.
type Stat struct {
	Type  uint16
	Nlink uint16
	Size  uint32
}

// Fstat fills in st for an inode- or device-backed fd.
func (m *Machine) Fstat(fd int) (Stat, error) {
	f, err := m.Ctx.File(fd)
	if err != nil {
		return Stat{}, err
	}
	ih := f.InodeHandle()
	if ih == nil {
		return Stat{}, fmt.Errorf("syscall: fstat: fd %d is not inode-backed", fd)
	}
	li, err := ih.Ilock(m.Self.Pid())
	if err != nil {
		return Stat{}, err
	}
	st := Stat{Type: li.Type(), Nlink: li.Nlink(), Size: li.Size()}
	li.Unlock()
	return st, nil
}

// Sbrk is out of scope: user memory management belongs to the paging
// subsystem spec.md §1 explicitly excludes. Reports ErrNotImplemented
// rather than silently returning a bogus address.
func (m *Machine) Sbrk(n int) (uintptr, error) { return 0, ErrNotImplemented }

// Exec is out of scope per spec.md §1 ("ELF exec loader... may be
// reimplemented straightforwardly once the CORE is in place").
func (m *Machine) Exec(path string, argv []string) error { return ErrNotImplemented }
