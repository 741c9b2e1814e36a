// Package diskio backs the on-disk layout (block 0 boot sector, block 1
// superblock, log region, inode region, bitmap region, data region) with a
// plain host file, standing in for the virtio-blk driver spec.md §1 keeps
// out of scope. Reads and writes are block-granular and go straight to the
// file descriptor via pread/pwrite, matching the teacher's loopback
// filesystem's direct use of `golang.org/x/sys/unix` against real file
// descriptors instead of buffered *os.File I/O.
package diskio

import (
	"fmt"
	"os"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

// BlockSize is the fixed on-disk block size (spec.md §6): 1024 bytes.
const BlockSize = 1024

// Disk is a fixed-size block device backed by a single host file.
type Disk struct {
	f      *os.File
	nblock uint32
}

// Attach opens path as a disk image of nblock blocks (creating and
// zero-extending it if it does not exist). It refuses to attach a path
// that is itself a live mountpoint — attaching a mounted filesystem's
// backing file while it is mounted would let writes race the host's own
// page cache — the same defensive check the teacher's mount-state layer
// performs before handing a path to the kernel.
func Attach(path string, nblock uint32) (*Disk, error) {
	mounts, err := mountinfo.GetMounts(mountinfo.SingleEntryFilter(path))
	if err != nil {
		return nil, fmt.Errorf("diskio: checking mount state of %s: %w", path, err)
	}
	if len(mounts) > 0 {
		return nil, fmt.Errorf("diskio: refusing to attach %s: it is a live mountpoint", path)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("diskio: open %s: %w", path, err)
	}
	size := int64(nblock) * BlockSize
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("diskio: truncate %s to %d bytes: %w", path, size, err)
	}
	return &Disk{f: f, nblock: nblock}, nil
}

// NBlock returns the device's fixed block count.
func (d *Disk) NBlock() uint32 { return d.nblock }

// Close releases the underlying file descriptor.
func (d *Disk) Close() error { return d.f.Close() }

// Read fills buf (which must be exactly BlockSize bytes) with block bno's
// contents. An out-of-range bno or short read is a fatal I/O error
// (spec.md §7: "treated as fatal... the virtio layer is assumed
// reliable"), reported here as an error for the caller to turn into a
// panic at the point it knows the device name.
func (d *Disk) Read(bno uint32, buf []byte) error {
	if err := d.checkBlock(bno, buf); err != nil {
		return err
	}
	n, err := unix.Pread(int(d.f.Fd()), buf, int64(bno)*BlockSize)
	if err != nil {
		return fmt.Errorf("diskio: pread block %d: %w", bno, err)
	}
	if n != BlockSize {
		return fmt.Errorf("diskio: short read on block %d: got %d bytes", bno, n)
	}
	return nil
}

// Write persists buf (exactly BlockSize bytes) to block bno.
func (d *Disk) Write(bno uint32, buf []byte) error {
	if err := d.checkBlock(bno, buf); err != nil {
		return err
	}
	n, err := unix.Pwrite(int(d.f.Fd()), buf, int64(bno)*BlockSize)
	if err != nil {
		return fmt.Errorf("diskio: pwrite block %d: %w", bno, err)
	}
	if n != BlockSize {
		return fmt.Errorf("diskio: short write on block %d: wrote %d bytes", bno, n)
	}
	return nil
}

func (d *Disk) checkBlock(bno uint32, buf []byte) error {
	if bno >= d.nblock {
		return fmt.Errorf("diskio: block %d out of range (nblock=%d)", bno, d.nblock)
	}
	if len(buf) != BlockSize {
		return fmt.Errorf("diskio: buffer is %d bytes, want %d", len(buf), BlockSize)
	}
	return nil
}
