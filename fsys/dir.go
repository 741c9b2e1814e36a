package fsys

import (
	"encoding/binary"
	"strings"
)

// RootInum is the well-known inode number of the root directory.
const RootInum = 1

func packDirEnt(inum uint16, name string) []byte {
	b := make([]byte, dirEntSize)
	binary.LittleEndian.PutUint16(b[0:2], inum)
	copy(b[2:2+DirSize], name)
	return b
}

func unpackDirEnt(b []byte) (inum uint16, name string) {
	inum = binary.LittleEndian.Uint16(b[0:2])
	raw := b[2 : 2+DirSize]
	if i := indexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return inum, string(raw)
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

// Dirlookup scans dp (which must be TypeDir) for name, returning the
// matching entry's inode handle and its byte offset within dp (so
// Unlink can clear that entry).
func Dirlookup(dp *LockedInode, name string, holder int) (*InodeHandle, uint32, error) {
	if dp.Type() != TypeDir {
		return nil, 0, ErrNotDir
	}
	if len(name) > DirSize {
		return nil, 0, ErrNameTooLong
	}
	buf := make([]byte, dirEntSize)
	for off := uint32(0); off < dp.Size(); off += dirEntSize {
		if _, err := Readi(dp, buf, off); err != nil {
			return nil, 0, err
		}
		inum, ent := unpackDirEnt(buf)
		if inum == 0 || ent != name {
			continue
		}
		ih, err := dp.ih.fs.Iget(dp.ih.Dev(), uint32(inum))
		if err != nil {
			return nil, 0, err
		}
		return ih, off, nil
	}
	return nil, 0, ErrNotFound
}

// isDirEmpty reports whether dp (which must be TypeDir) contains any
// entry besides "." and "..", the same check sysfile.rs's isdirempty
// makes before allowing a directory to be unlinked.
func isDirEmpty(dp *LockedInode, holder int) (bool, error) {
	buf := make([]byte, dirEntSize)
	for off := uint32(2 * dirEntSize); off < dp.Size(); off += dirEntSize {
		if _, err := Readi(dp, buf, off); err != nil {
			return false, err
		}
		if inum, _ := unpackDirEnt(buf); inum != 0 {
			return false, nil
		}
	}
	return true, nil
}

// Dirlink appends (or reuses a freed slot for) a directory entry mapping
// name to inum inside dp. Caller must be inside a log transaction and
// must Iupdate dp afterward if its size grew.
func Dirlink(dp *LockedInode, name string, inum uint32, holder int) error {
	if len(name) > DirSize {
		return ErrNameTooLong
	}
	if existing, _, err := Dirlookup(dp, name, holder); err == nil {
		existing.Put()
		return ErrExists
	}

	buf := make([]byte, dirEntSize)
	off := uint32(0)
	for ; off < dp.Size(); off += dirEntSize {
		if _, err := Readi(dp, buf, off); err != nil {
			return err
		}
		if existingInum, _ := unpackDirEnt(buf); existingInum == 0 {
			break
		}
	}
	_, err := Writei(dp, packDirEnt(uint16(inum), name), off)
	return err
}

// Lookup resolves a '/'-separated path to a borrowed (unlocked) inode
// handle, starting from
// the root if path is absolute or from cwd otherwise. '.' and '..' are
// handled by re-reading the parent directory on disk, never via an
// in-memory parent pointer (spec.md §9 "resolved by keeping no
// in-memory parent pointer").
func (fs *FS) Lookup(path string, cwd *InodeHandle, holder int) (*InodeHandle, error) {
	cur, err := fs.startOf(path, cwd)
	if err != nil {
		return nil, err
	}
	for _, comp := range splitPath(path) {
		if len(comp) > DirSize {
			cur.Put()
			return nil, ErrNameTooLong
		}
		li, err := cur.Ilock(holder)
		if err != nil {
			cur.Put()
			return nil, err
		}
		next, _, err := Dirlookup(li, comp, holder)
		li.UnlockPut()
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// LookupParent resolves every path component but the last, returning the
// locked... rather, the borrowed (unlocked) parent directory handle and
// the final component's name, for callers that want to create or remove
// an entry in that directory themselves.
func (fs *FS) LookupParent(path string, cwd *InodeHandle, holder int) (*InodeHandle, string, error) {
	comps := splitPath(path)
	if len(comps) == 0 {
		return nil, "", ErrNotFound
	}
	cur, err := fs.startOf(path, cwd)
	if err != nil {
		return nil, "", err
	}
	for _, comp := range comps[:len(comps)-1] {
		li, err := cur.Ilock(holder)
		if err != nil {
			cur.Put()
			return nil, "", err
		}
		next, _, err := Dirlookup(li, comp, holder)
		li.UnlockPut()
		if err != nil {
			return nil, "", err
		}
		cur = next
	}
	last := comps[len(comps)-1]
	if len(last) > DirSize {
		cur.Put()
		return nil, "", ErrNameTooLong
	}
	return cur, last, nil
}

func (fs *FS) startOf(path string, cwd *InodeHandle) (*InodeHandle, error) {
	if strings.HasPrefix(path, "/") || cwd == nil {
		return fs.Iget(fs.dev, RootInum)
	}
	return fs.Dup(cwd), nil
}

func splitPath(path string) []string {
	var out []string
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
