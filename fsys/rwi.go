package fsys

import "github.com/gorv6/rvkernel/diskio"

// bmap returns the absolute block number holding file-relative block n
// of li, allocating it (direct or, for n >= NDIRECT, via the single
// indirect block) if it does not yet exist. Caller must be inside a log
// transaction.
func bmap(li *LockedInode, n uint32) (uint32, error) {
	p := li.payload()
	if n < NDIRECT {
		if p.addrs[n] == 0 {
			bno, err := li.ih.fs.Balloc(p.dev)
			if err != nil {
				return 0, err
			}
			p.addrs[n] = bno
		}
		return p.addrs[n], nil
	}

	n -= NDIRECT
	if n >= NINDIRECT {
		return 0, ErrFileTooLarge
	}
	if p.addrs[NDIRECT] == 0 {
		bno, err := li.ih.fs.Balloc(p.dev)
		if err != nil {
			return 0, err
		}
		p.addrs[NDIRECT] = bno
	}
	ibuf, err := li.ih.fs.cache.Bread(p.dev, p.addrs[NDIRECT], li.held)
	if err != nil {
		return 0, err
	}
	entry := le32(ibuf.Data(), n)
	if entry == 0 {
		bno, err := li.ih.fs.Balloc(p.dev)
		if err != nil {
			ibuf.Release()
			return 0, err
		}
		putLe32(ibuf.Data(), n, bno)
		li.ih.fs.log.LogWrite(ibuf)
		entry = bno
	}
	ibuf.Release()
	return entry, nil
}

func le32(b []byte, i uint32) uint32 {
	off := 4 * i
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

func putLe32(b []byte, i uint32, v uint32) {
	off := 4 * i
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

// Readi copies min(len(dst), size-off) bytes starting at off into dst,
// traversing direct and indirect block pointers. Returns the number of
// bytes actually read.
func Readi(li *LockedInode, dst []byte, off uint32) (uint32, error) {
	p := li.payload()
	if off > p.size {
		return 0, nil
	}
	n := uint32(len(dst))
	if off+n > p.size {
		n = p.size - off
	}
	var total uint32
	for total < n {
		bn := (off + total) / diskio.BlockSize
		boff := (off + total) % diskio.BlockSize
		bno, err := bmap(li, bn)
		if err != nil {
			return total, err
		}
		buf, err := li.ih.fs.cache.Bread(p.dev, bno, li.held)
		if err != nil {
			return total, err
		}
		m := diskio.BlockSize - boff
		if m > n-total {
			m = n - total
		}
		copy(dst[total:total+m], buf.Data()[boff:boff+m])
		buf.Release()
		total += m
	}
	return total, nil
}

// Writei writes src at offset off, growing the file (and allocating
// blocks) as needed, up to MaxFile blocks (spec.md §8 boundary
// behavior: "file larger than MAXFILE*BSIZE rejected"). Caller must be
// inside a log transaction and must Iupdate afterward to persist the
// new size.
func Writei(li *LockedInode, src []byte, off uint32) (uint32, error) {
	p := li.payload()
	n := uint32(len(src))
	if off+n < off {
		return 0, ErrFileTooLarge
	}
	if off+n > MaxFile*diskio.BlockSize {
		return 0, ErrFileTooLarge
	}

	var total uint32
	for total < n {
		bn := (off + total) / diskio.BlockSize
		boff := (off + total) % diskio.BlockSize
		bno, err := bmap(li, bn)
		if err != nil {
			return total, err
		}
		buf, err := li.ih.fs.cache.Bread(p.dev, bno, li.held)
		if err != nil {
			return total, err
		}
		m := diskio.BlockSize - boff
		if m > n-total {
			m = n - total
		}
		copy(buf.Data()[boff:boff+m], src[total:total+m])
		li.ih.fs.log.LogWrite(buf)
		buf.Release()
		total += m
	}
	if off+total > p.size {
		p.size = off + total
	}
	return total, nil
}

// itrunc frees every block owned by ip (direct and, if present,
// indirect) and resets its size, run from finalizeInode with nlink == 0.
// Caller must be inside a log transaction.
func (fs *FS) itrunc(ip *Inode) {
	for i := 0; i < NDIRECT; i++ {
		if ip.addrs[i] != 0 {
			fs.Bfree(ip.dev, ip.addrs[i])
			ip.addrs[i] = 0
		}
	}
	if ip.addrs[NDIRECT] != 0 {
		ibuf, err := fs.cache.Bread(ip.dev, ip.addrs[NDIRECT], -1)
		if err == nil {
			for i := uint32(0); i < NINDIRECT; i++ {
				if bno := le32(ibuf.Data(), i); bno != 0 {
					fs.Bfree(ip.dev, bno)
				}
			}
			ibuf.Release()
		}
		fs.Bfree(ip.dev, ip.addrs[NDIRECT])
		ip.addrs[NDIRECT] = 0
	}
	ip.size = 0
}
