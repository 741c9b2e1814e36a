// Package usr holds the per-process resources spec.md §3 lists on the
// Process record but that live outside package proc to avoid an import
// cycle: the fixed small open-file-table array and the current-working-
// directory inode handle. It implements proc.Resources so Table.Exit can
// release them at exit (spec.md §4.F). The release opens no enclosing log
// transaction; an inode whose last reference drops is finalized in a
// transaction of its own.
package usr

import (
	"errors"

	"github.com/gorv6/rvkernel/file"
	"github.com/gorv6/rvkernel/fsys"
)

// MaxOpenFiles bounds the per-process descriptor table, mirroring xv6's
// NOFILE.
const MaxOpenFiles = 16

var (
	ErrTooManyOpenFiles = errors.New("usr: process file table full")
	ErrBadFd            = errors.New("usr: bad file descriptor")
)

// Context is one process's open-file table plus its working directory,
// the "data sub-record" of spec.md §3 owned exclusively by whichever
// goroutine is RUNNING on its behalf.
type Context struct {
	files [MaxOpenFiles]*file.File
	cwd   *fsys.InodeHandle
}

// New creates an empty context rooted at cwd (which it takes ownership
// of — callers should Dup before passing in if they still need it).
func New(cwd *fsys.InodeHandle) *Context {
	return &Context{cwd: cwd}
}

// Fork duplicates every open file and the cwd handle for a child
// process, per spec.md §4.F ("copies open files and the working-
// directory handle, increments inode refcount").
func (c *Context) Fork(fsv *fsys.FS) *Context {
	child := &Context{cwd: fsv.Dup(c.cwd)}
	for i, f := range c.files {
		if f != nil {
			child.files[i] = f.Dup()
		}
	}
	return child
}

// AllocFd installs f in the first free slot, returning its descriptor.
func (c *Context) AllocFd(f *file.File) (int, error) {
	for i, existing := range c.files {
		if existing == nil {
			c.files[i] = f
			return i, nil
		}
	}
	return 0, ErrTooManyOpenFiles
}

// File returns the file at fd, or ErrBadFd if it is out of range or
// unused.
func (c *Context) File(fd int) (*file.File, error) {
	if fd < 0 || fd >= MaxOpenFiles || c.files[fd] == nil {
		return nil, ErrBadFd
	}
	return c.files[fd], nil
}

// CloseFd closes and clears fd.
func (c *Context) CloseFd(fd int) error {
	f, err := c.File(fd)
	if err != nil {
		return err
	}
	f.Close()
	c.files[fd] = nil
	return nil
}

// Cwd returns the current working directory handle (not a dup; callers
// must Dup it themselves if they intend to keep a reference past a
// Chdir).
func (c *Context) Cwd() *fsys.InodeHandle { return c.cwd }

// Chdir replaces cwd with ih, releasing the previous one.
func (c *Context) Chdir(ih *fsys.InodeHandle) {
	old := c.cwd
	c.cwd = ih
	old.Put()
}

// Close implements proc.Resources: release every open file and the cwd
// handle. Close itself opens no log transaction; each inode finalized by
// a dropped reference runs in its own transaction.
func (c *Context) Close() {
	for i, f := range c.files {
		if f != nil {
			f.Close()
			c.files[i] = nil
		}
	}
	if c.cwd != nil {
		c.cwd.Put()
		c.cwd = nil
	}
}
