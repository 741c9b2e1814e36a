package fsys

import (
	"encoding/binary"
	"fmt"

	"github.com/gorv6/rvkernel/arena"
	"github.com/gorv6/rvkernel/lock"
)

// dinode is the on-disk inode record (spec.md §6): type, major, minor,
// nlink (all uint16), size (uint32), and 13 block pointers (12 direct +
// 1 indirect), each uint32.
type dinode struct {
	typ         uint16
	major       uint16
	minor       uint16
	nlink       uint16
	size        uint32
	addrs       [NDIRECT + 1]uint32
}

func decodeDinode(b []byte) dinode {
	var d dinode
	d.typ = binary.LittleEndian.Uint16(b[0:2])
	d.major = binary.LittleEndian.Uint16(b[2:4])
	d.minor = binary.LittleEndian.Uint16(b[4:6])
	d.nlink = binary.LittleEndian.Uint16(b[6:8])
	d.size = binary.LittleEndian.Uint32(b[8:12])
	for i := range d.addrs {
		off := 12 + 4*i
		d.addrs[i] = binary.LittleEndian.Uint32(b[off : off+4])
	}
	return d
}

func encodeDinode(b []byte, d dinode) {
	binary.LittleEndian.PutUint16(b[0:2], d.typ)
	binary.LittleEndian.PutUint16(b[2:4], d.major)
	binary.LittleEndian.PutUint16(b[4:6], d.minor)
	binary.LittleEndian.PutUint16(b[6:8], d.nlink)
	binary.LittleEndian.PutUint32(b[8:12], d.size)
	for i, a := range d.addrs {
		off := 12 + 4*i
		binary.LittleEndian.PutUint32(b[off:off+4], a)
	}
}

// Inode is the in-memory representation of one on-disk inode (spec.md
// §3 "Inode"): an ArrayArena payload keyed by (dev, inum), metadata
// loaded lazily on first Ilock, guarded by its own sleep lock.
type Inode struct {
	fs    *FS
	dev   uint32
	inum  uint32
	valid bool
	lk    *lock.Sleeplock
	dinode
}

// InodeArena is the fixed-capacity pool of in-memory inode handles.
type InodeArena struct {
	a *arena.ArrayArena[Inode]
}

func newInodeArena(fs *FS, capacity int, cpuFunc func() (int, bool)) *InodeArena {
	ia := &InodeArena{}
	ia.a = arena.NewArrayArena[Inode]("inodes", capacity, cpuFunc, func(ip *Inode, reacquireAfter func(func())) {
		finalizeInode(ip, reacquireAfter)
	})
	return ia
}

// finalizeInode runs when the last reference to an inode drops. If it
// has no on-disk links left, its blocks and disk inode are freed
// (spec.md §4.D finalizer policy), via reacquireAfter since itrunc must
// perform journaled, and therefore blocking, writes.
func finalizeInode(ip *Inode, reacquireAfter func(func())) {
	if !ip.valid || ip.nlink != 0 {
		return
	}
	reacquireAfter(func() {
		ip.fs.log.BeginOp()
		ip.fs.itrunc(ip)
		ip.typ = TypeFree
		ip.fs.writeDinodeLocked(ip)
		ip.fs.log.EndOp()
	})
	ip.valid = false
}

// InodeHandle is a borrowed, not-yet-locked reference to an inode slot.
type InodeHandle struct {
	fs *FS
	h  *arena.ArrayHandle[Inode]
}

// Iget returns the in-memory handle for (dev, inum), allocating a slot
// if none is resident yet (metadata is not loaded until Ilock).
func (fs *FS) Iget(dev, inum uint32) (*InodeHandle, error) {
	h, ok := fs.inodes.a.FindOrAlloc(
		func(ip *Inode) bool { return ip.dev == dev && ip.inum == inum },
		func(ip *Inode) {
			ip.fs, ip.dev, ip.inum, ip.valid = fs, dev, inum, false
			ip.lk = lock.NewSleeplock(fmt.Sprintf("inode(%d,%d)", dev, inum))
		},
	)
	if !ok {
		return nil, ErrNoFreeInode
	}
	return &InodeHandle{fs: fs, h: h}, nil
}

// Dup increments the inode's refcount, used when forking a process or
// duplicating an open-file's inode reference.
func (fs *FS) Dup(ih *InodeHandle) *InodeHandle {
	return &InodeHandle{fs: fs, h: fs.inodes.a.Dup(ih.h)}
}

// Put drops ih's reference; on the last reference, finalizeInode runs.
func (ih *InodeHandle) Put() { ih.fs.inodes.a.Dealloc(ih.h) }

func (ih *InodeHandle) Inum() uint32 { return ih.h.Data().inum }
func (ih *InodeHandle) Dev() uint32  { return ih.h.Data().dev }

// LockedInode is an inode handle with its sleep lock held and its
// metadata guaranteed loaded from disk.
type LockedInode struct {
	ih    *InodeHandle
	g     *lock.SleeplockGuard
	held  int
}

// Ilock acquires ih's sleep lock, loading its on-disk metadata on first
// use (spec.md §4.I "ilock loads on-disk metadata if invalid").
func (ih *InodeHandle) Ilock(holder int) (*LockedInode, error) {
	ip := ih.h.Data()
	g := ip.lk.Lock(holder)
	if !ip.valid {
		buf, err := ih.fs.cache.Bread(ip.dev, blockOfInum(ih.fs.sb, ip.inum), holder)
		if err != nil {
			g.Unlock()
			return nil, err
		}
		off := (ip.inum % IPB) * dinodeSize
		ip.dinode = decodeDinode(buf.Data()[off : off+dinodeSize])
		buf.Release()
		ip.valid = true
		if ip.typ == TypeFree {
			g.Unlock()
			return nil, fmt.Errorf("fsys: ilock(%d,%d): no such inode (type free)", ip.dev, ip.inum)
		}
	}
	return &LockedInode{ih: ih, g: g, held: holder}, nil
}

// Unlock releases the sleep lock without dropping the arena reference.
func (li *LockedInode) Unlock() { li.g.Unlock() }

// Handle returns the (still-borrowed) arena handle underlying li, for
// callers that want to keep the inode reference alive past Unlock
// (e.g. installing it into an open-file object).
func (li *LockedInode) Handle() *InodeHandle { return li.ih }

// UnlockPut is the common "done with this inode" idiom: unlock then Put.
func (li *LockedInode) UnlockPut() {
	li.g.Unlock()
	li.ih.Put()
}

func (li *LockedInode) payload() *Inode { return li.ih.h.Data() }

func (li *LockedInode) Type() uint16  { return li.payload().typ }
func (li *LockedInode) Size() uint32  { return li.payload().size }
func (li *LockedInode) Nlink() uint16 { return li.payload().nlink }
func (li *LockedInode) Major() uint16 { return li.payload().major }
func (li *LockedInode) Minor() uint16 { return li.payload().minor }

// SetNlink adjusts the link count in memory; callers must Iupdate to
// persist it.
func (li *LockedInode) SetNlink(n uint16) { li.payload().nlink = n }

// InitNew fills in a freshly allocated inode's type/major/minor and
// resets nlink/size, used by Ialloc.
func (li *LockedInode) initNew(typ, major, minor uint16) {
	p := li.payload()
	p.typ, p.major, p.minor, p.nlink, p.size = typ, major, minor, 0, 0
	p.addrs = [NDIRECT + 1]uint32{}
}

// Iupdate writes the in-memory inode back to its disk block through the
// log (spec.md §4.I "iupdate writes through the log"). Caller must
// already be inside a log transaction (BeginOp/EndOp).
func (li *LockedInode) Iupdate() error {
	return li.ih.fs.writeDinodeLocked(li.payload())
}

func (fs *FS) writeDinodeLocked(ip *Inode) error {
	buf, err := fs.cache.Bread(ip.dev, blockOfInum(fs.sb, ip.inum), -1)
	if err != nil {
		return err
	}
	off := (ip.inum % IPB) * dinodeSize
	encodeDinode(buf.Data()[off:off+dinodeSize], ip.dinode)
	fs.log.LogWrite(buf)
	buf.Release()
	return nil
}

// Ialloc scans the inode region for a free (type 0) dinode, claims it by
// writing its type through the log, and returns it locked. Caller must
// already be inside a log transaction.
func (fs *FS) Ialloc(dev uint32, typ uint16) (*LockedInode, error) {
	tmp := make([]byte, dinodeSize)
	for inum := uint32(1); inum < fs.sb.NInodes; inum++ {
		buf, err := fs.cache.Bread(dev, blockOfInum(fs.sb, inum), -1)
		if err != nil {
			return nil, err
		}
		off := (inum % IPB) * dinodeSize
		copy(tmp, buf.Data()[off:off+dinodeSize])
		d := decodeDinode(tmp)
		if d.typ == TypeFree {
			d.typ = typ
			encodeDinode(buf.Data()[off:off+dinodeSize], d)
			fs.log.LogWrite(buf)
			buf.Release()

			ih, err := fs.Iget(dev, inum)
			if err != nil {
				return nil, err
			}
			li, err := ih.Ilock(-1)
			if err != nil {
				return nil, err
			}
			li.initNew(typ, 0, 0)
			return li, nil
		}
		buf.Release()
	}
	return nil, ErrNoFreeInode
}
