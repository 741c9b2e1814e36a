// Package fsys is the inode/directory layer of spec.md §4.I: on-disk
// inodes and directories layered on top of the buffer cache and the
// write-ahead log, with an ArrayArena of in-memory inode handles keyed
// by (device, inum).
package fsys

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gorv6/rvkernel/bcache"
	"github.com/gorv6/rvkernel/diskio"
	"github.com/gorv6/rvkernel/ulog"
)

// Inode types (dinode.typ), per spec.md §6.
const (
	TypeFree = 0
	TypeDir  = 1
	TypeFile = 2
	TypeDev  = 3
)

// NDIRECT direct block pointers plus one indirect block of NINDIRECT
// pointers (1024/4 = 256) bound the maximum file size, per spec.md §3
// ("12 direct + 1 indirect block pointers") and §6 (1024-byte blocks).
const (
	NDIRECT   = 12
	NINDIRECT = diskio.BlockSize / 4
	MaxFile   = NDIRECT + NINDIRECT
)

// DirSize bounds a path component's length (spec.md §8 boundary
// behavior: "path components > DIRSIZ rejected").
const DirSize = 14

// dirEntSize is the fixed 16-byte directory record: inum (2 bytes) plus
// a DirSize-byte name (spec.md §6).
const dirEntSize = 2 + DirSize

var (
	ErrNotFound     = errors.New("fsys: no such path component")
	ErrNotDir       = errors.New("fsys: not a directory")
	ErrNameTooLong  = errors.New("fsys: path component too long")
	ErrFileTooLarge = errors.New("fsys: file exceeds MAXFILE blocks")
	ErrNoFreeInode  = errors.New("fsys: no free inode")
	ErrNoFreeBlock  = errors.New("fsys: no free data block")
	ErrExists       = errors.New("fsys: name already exists")
	ErrDirNotEmpty  = errors.New("fsys: directory not empty")
	ErrInvalidName  = errors.New("fsys: \".\" and \"..\" cannot be unlinked")
)

// Superblock is the fixed on-disk layout descriptor (spec.md §6, block 1).
type Superblock struct {
	Magic      uint32
	Size       uint32 // total blocks
	NBlocks    uint32 // data blocks
	NInodes    uint32
	NLog       uint32
	LogStart   uint32
	InodeStart uint32
	BmapStart  uint32
}

const superblockMagic = 0x10203040

// IPB is inodes per block; BPB is bitmap bits per block — both derived
// from the fixed block size (spec.md Glossary).
const (
	dinodeSize = 2 + 2 + 2 + 2 + 4 + 4*13 // typ, major, minor, nlink, size, addrs[13]
	IPB        = diskio.BlockSize / dinodeSize
	BPB        = diskio.BlockSize * 8
)

// ReadSuperblock loads block 1 and decodes it.
func ReadSuperblock(disk *diskio.Disk) (Superblock, error) {
	buf := make([]byte, diskio.BlockSize)
	if err := disk.Read(1, buf); err != nil {
		return Superblock{}, err
	}
	sb := Superblock{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Size:       binary.LittleEndian.Uint32(buf[4:8]),
		NBlocks:    binary.LittleEndian.Uint32(buf[8:12]),
		NInodes:    binary.LittleEndian.Uint32(buf[12:16]),
		NLog:       binary.LittleEndian.Uint32(buf[16:20]),
		LogStart:   binary.LittleEndian.Uint32(buf[20:24]),
		InodeStart: binary.LittleEndian.Uint32(buf[24:28]),
		BmapStart:  binary.LittleEndian.Uint32(buf[28:32]),
	}
	if sb.Magic != superblockMagic {
		return Superblock{}, fmt.Errorf("fsys: bad superblock magic %#x", sb.Magic)
	}
	return sb, nil
}

// WriteSuperblock encodes and persists sb to block 1 (used only by
// image-formatting tools and tests; a live kernel treats it read-only
// after boot).
func WriteSuperblock(disk *diskio.Disk, sb Superblock) error {
	buf := make([]byte, diskio.BlockSize)
	sb.Magic = superblockMagic
	binary.LittleEndian.PutUint32(buf[0:4], sb.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], sb.Size)
	binary.LittleEndian.PutUint32(buf[8:12], sb.NBlocks)
	binary.LittleEndian.PutUint32(buf[12:16], sb.NInodes)
	binary.LittleEndian.PutUint32(buf[16:20], sb.NLog)
	binary.LittleEndian.PutUint32(buf[20:24], sb.LogStart)
	binary.LittleEndian.PutUint32(buf[24:28], sb.InodeStart)
	binary.LittleEndian.PutUint32(buf[28:32], sb.BmapStart)
	return disk.Write(1, buf)
}

// FS bundles the on-disk parameters with the buffer cache and log that
// every inode/directory/bitmap operation goes through.
type FS struct {
	disk  *diskio.Disk
	cache *bcache.Cache
	log   *ulog.Log
	sb    Superblock
	dev   uint32
	inodes *InodeArena
}

// New wires a filesystem over an already-recovered log and cache.
func New(disk *diskio.Disk, cache *bcache.Cache, log *ulog.Log, sb Superblock, dev uint32, inodeArenaCapacity int, cpuFunc func() (int, bool)) *FS {
	fs := &FS{disk: disk, cache: cache, log: log, sb: sb, dev: dev}
	fs.inodes = newInodeArena(fs, inodeArenaCapacity, cpuFunc)
	return fs
}

func blockOfInum(sb Superblock, inum uint32) uint32 {
	return sb.InodeStart + inum/IPB
}

// Dev returns the device number this filesystem is mounted on.
func (fs *FS) Dev() uint32 { return fs.dev }

// LogBeginOp/LogEndOp expose the underlying journal's transaction
// brackets to callers outside this package (package file's inode-backed
// Write), so every mutating write is wrapped in a transaction per
// spec.md §4.I without file needing its own handle to *ulog.Log.
func (fs *FS) LogBeginOp() { fs.log.BeginOp() }
func (fs *FS) LogEndOp() error { return fs.log.EndOp() }
