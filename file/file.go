// Package file implements the open-file object of spec.md §3: a fixed
// ArrayArena of File slots, each one of three variants (inode-backed with
// a seek offset, a raw device, or one end of a pipe), shared between
// processes by refcounted dup rather than copy.
package file

import (
	"errors"

	"github.com/gorv6/rvkernel/arena"
	"github.com/gorv6/rvkernel/fsys"
	"github.com/gorv6/rvkernel/pipe"
)

// Variant distinguishes the three kinds of open file spec.md §3 names.
type Variant int

const (
	VariantInode Variant = iota
	VariantDevice
	VariantPipe
)

var (
	// ErrNoFreeFile is returned when the file arena is exhausted.
	ErrNoFreeFile = errors.New("file: no free file slots")
	// ErrBadFd reports a read/write against the wrong direction.
	ErrBadFd = errors.New("file: not open for this operation")
)

// payload is the File arena entry (spec.md §3 "File"): variant,
// readable, writable, refcount (the refcount itself is the arena slot's
// own refcount, not duplicated here).
type payload struct {
	variant  Variant
	readable bool
	writable bool

	inode  *fsys.InodeHandle // VariantInode, VariantDevice
	off    uint32            // VariantInode: seek offset
	major  uint16            // VariantDevice
	dev    *DeviceTable       // VariantDevice: owning registry, for Read/Write dispatch
	pend   *pipe.End         // VariantPipe
}

// Arena is the fixed-capacity pool of open files.
type Arena struct {
	a     *arena.ArrayArena[payload]
	devs  *DeviceTable
	fs    *fsys.FS
	owner int // holder identity passed to fsys inode locks
}

// New creates a file arena of the given capacity. fs may be nil if the
// boot configuration has no attached disk (devices/pipes still work).
func New(capacity int, fs *fsys.FS, devs *DeviceTable, holder int) *Arena {
	return &Arena{
		a:     arena.NewArrayArena[payload]("files", capacity, nil, finalizePayload),
		devs:  devs,
		fs:    fs,
		owner: holder,
	}
}

func finalizePayload(p *payload, reacquireAfter func(func())) {
	switch p.variant {
	case VariantInode, VariantDevice:
		if p.inode != nil {
			reacquireAfter(func() { p.inode.Put() })
		}
	case VariantPipe:
		if p.pend != nil {
			reacquireAfter(func() { p.pend.Close() })
		}
	}
}

// File is a handle to one open-file slot.
type File struct {
	a *Arena
	h *arena.ArrayHandle[payload]
}

func (a *Arena) alloc(init func(*payload)) (*File, error) {
	h, ok := a.a.Alloc(init)
	if !ok {
		return nil, ErrNoFreeFile
	}
	return &File{a: a, h: h}, nil
}

// OpenInode wraps an already-locked-then-unlocked inode handle as a
// file, seeked to 0.
func (a *Arena) OpenInode(ih *fsys.InodeHandle, readable, writable bool) (*File, error) {
	return a.alloc(func(p *payload) {
		p.variant, p.readable, p.writable, p.inode, p.off = VariantInode, readable, writable, ih, 0
	})
}

// OpenDevice wraps a device major number as a file.
func (a *Arena) OpenDevice(ih *fsys.InodeHandle, major uint16, readable, writable bool) (*File, error) {
	return a.alloc(func(p *payload) {
		p.variant, p.readable, p.writable = VariantDevice, readable, writable
		p.inode, p.major, p.dev = ih, major, a.devs
	})
}

// OpenPipe wraps one pipe endpoint as a file.
func (a *Arena) OpenPipe(end *pipe.End) (*File, error) {
	return a.alloc(func(p *payload) {
		p.variant = VariantPipe
		p.readable = !end.Writable()
		p.writable = end.Writable()
		p.pend = end
	})
}

// Dup increments the file's refcount (spec.md §4.F: "fork... copies open
// files", which is a dup of each slot, not a deep copy).
func (a *Arena) Dup(f *File) *File {
	return &File{a: a, h: a.a.Dup(f.h)}
}

// Dup is the same operation called on the handle itself, so callers that
// only have a *File (not its owning Arena) can still duplicate it.
func (f *File) Dup() *File { return f.a.Dup(f) }

// Close drops f's reference; on the last reference the underlying
// variant is released (inode Put, or pipe End Close).
func (f *File) Close() { f.a.a.Dealloc(f.h) }

// Read reads into dst, dispatching by variant. For VariantInode the seek
// offset advances by the number of bytes read.
func (f *File) Read(dst []byte) (uint32, error) {
	p := f.h.Data()
	if !p.readable {
		return 0, ErrBadFd
	}
	switch p.variant {
	case VariantInode:
		li, err := p.inode.Ilock(f.a.owner)
		if err != nil {
			return 0, err
		}
		n, err := fsys.Readi(li, dst, p.off)
		li.Unlock()
		p.off += n
		return n, err
	case VariantDevice:
		return p.dev.Read(p.major, dst)
	case VariantPipe:
		n, err := p.pend.Read(dst)
		return uint32(n), err
	}
	return 0, ErrBadFd
}

// Write writes src, dispatching by variant, wrapping inode writes in
// their own log transaction (spec.md §4.I).
func (f *File) Write(src []byte) (uint32, error) {
	p := f.h.Data()
	if !p.writable {
		return 0, ErrBadFd
	}
	switch p.variant {
	case VariantInode:
		fs := f.a.fs
		fs.LogBeginOp()
		li, err := p.inode.Ilock(f.a.owner)
		if err != nil {
			fs.LogEndOp()
			return 0, err
		}
		n, err := fsys.Writei(li, src, p.off)
		if err == nil {
			err = li.Iupdate()
		}
		li.Unlock()
		fs.LogEndOp()
		p.off += n
		return n, err
	case VariantDevice:
		return p.dev.Write(p.major, src)
	case VariantPipe:
		n, err := p.pend.Write(src)
		return uint32(n), err
	}
	return 0, ErrBadFd
}

// Readable/Writable report the open mode, for fstat.
func (f *File) Readable() bool { return f.h.Data().readable }
func (f *File) Writable() bool { return f.h.Data().writable }

// InodeHandle returns the underlying inode handle for VariantInode and
// VariantDevice files, or nil for VariantPipe.
func (f *File) InodeHandle() *fsys.InodeHandle {
	p := f.h.Data()
	if p.variant == VariantPipe {
		return nil
	}
	return p.inode
}
