package fsys

import "github.com/gorv6/rvkernel/diskio"

// dataStart is the first absolute block number of the data region,
// derived from the bitmap region's size (spec.md §6: "1 bit per data
// block").
func (fs *FS) dataStart() uint32 {
	bitmapBlocks := (fs.sb.NBlocks + BPB - 1) / BPB
	return fs.sb.BmapStart + bitmapBlocks
}

// Balloc finds a free data block, zeroes it, marks it used through the
// log, and returns its absolute block number.
func (fs *FS) Balloc(dev uint32) (uint32, error) {
	for b := uint32(0); b < fs.sb.NBlocks; b += BPB {
		bmapBlock := fs.sb.BmapStart + b/BPB
		buf, err := fs.cache.Bread(dev, bmapBlock, -1)
		if err != nil {
			return 0, err
		}
		limit := b + BPB
		if limit > fs.sb.NBlocks {
			limit = fs.sb.NBlocks
		}
		for bi := b; bi < limit; bi++ {
			byteIdx := (bi - b) / 8
			mask := byte(1) << uint((bi-b)%8)
			if buf.Data()[byteIdx]&mask != 0 {
				continue
			}
			buf.Data()[byteIdx] |= mask
			fs.log.LogWrite(buf)
			buf.Release()

			bno := fs.dataStart() + bi
			zero := make([]byte, diskio.BlockSize)
			zbuf, err := fs.cache.Bread(dev, bno, -1)
			if err != nil {
				return 0, err
			}
			copy(zbuf.Data(), zero)
			fs.log.LogWrite(zbuf)
			zbuf.Release()
			return bno, nil
		}
		buf.Release()
	}
	return 0, ErrNoFreeBlock
}

// Bfree clears bno's bitmap bit through the log. Freeing an
// already-free block is a programmer-detectable invariant violation
// (spec.md §7) and panics.
func (fs *FS) Bfree(dev, bno uint32) {
	bi := bno - fs.dataStart()
	bmapBlock := fs.sb.BmapStart + bi/BPB
	buf, err := fs.cache.Bread(dev, bmapBlock, -1)
	if err != nil {
		panic(err)
	}
	byteIdx := (bi % BPB) / 8
	mask := byte(1) << uint((bi%BPB)%8)
	if buf.Data()[byteIdx]&mask == 0 {
		buf.Release()
		panic("fsys: freeing free block")
	}
	buf.Data()[byteIdx] &^= mask
	fs.log.LogWrite(buf)
	buf.Release()
}
