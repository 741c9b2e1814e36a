// Package ulog is the write-ahead journal (UFS) of spec.md §4.H: it
// groups a system call's buffer-cache mutations into one atomic
// transaction, replaying the header block's pinned list on boot so a
// crash mid-commit is never observed as a partial write.
package ulog

import (
	"encoding/binary"
	"fmt"

	"github.com/gorv6/rvkernel/bcache"
	"github.com/gorv6/rvkernel/diskio"
	"github.com/gorv6/rvkernel/lock"
	"github.com/gorv6/rvkernel/waitchan"
)

// Log is the in-memory log state layered over a fixed on-disk region:
// one header block at logStart followed by size data blocks.
type Log struct {
	lk          *lock.Spinlock
	ch          *waitchan.Channel
	disk        *diskio.Disk
	cache       *bcache.Cache
	dev         uint32
	logStart    uint32
	size        int
	maxOpBlocks int

	outstanding int
	committing  bool
	blocks      []uint32 // home block numbers currently logged, in log-slot order
	pins        []*bcache.Pinned
}

// New attaches a journal to the region [logStart, logStart+size] on disk,
// with room for at most maxOpBlocks dirty blocks per transaction. It does
// not perform recovery — callers must call Recover once at boot before
// any BeginOp.
func New(disk *diskio.Disk, cache *bcache.Cache, dev, logStart uint32, size, maxOpBlocks int, cpuFunc func() (int, bool)) *Log {
	if (diskio.BlockSize-4)/4 < size {
		panic(fmt.Sprintf("ulog: log size %d cannot be indexed by a single %d-byte header block", size, diskio.BlockSize))
	}
	return &Log{
		lk:          lock.NewSpinlock("log", cpuFunc),
		ch:          waitchan.New(),
		disk:        disk,
		cache:       cache,
		dev:         dev,
		logStart:    logStart,
		size:        size,
		maxOpBlocks: maxOpBlocks,
	}
}

// header is the decoded form of the on-disk header block.
type header struct {
	n      uint32
	blocks []uint32
}

func (l *Log) readHeader() (header, error) {
	buf := make([]byte, diskio.BlockSize)
	if err := l.disk.Read(l.logStart, buf); err != nil {
		return header{}, err
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	h := header{n: n, blocks: make([]uint32, n)}
	for i := uint32(0); i < n; i++ {
		h.blocks[i] = binary.LittleEndian.Uint32(buf[4+4*i : 8+4*i])
	}
	return h, nil
}

func (l *Log) writeHeader(blocks []uint32) error {
	buf := make([]byte, diskio.BlockSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(blocks)))
	for i, bno := range blocks {
		binary.LittleEndian.PutUint32(buf[4+4*i:8+4*i], bno)
	}
	return l.disk.Write(l.logStart, buf)
}

// Recover replays a header left by a crash mid-transaction: if N > 0,
// every logged block is installed from its log slot to its home block,
// then the header is rewritten with N = 0. Called once at boot, before
// any BeginOp/EndOp.
func (l *Log) Recover() error {
	h, err := l.readHeader()
	if err != nil {
		return err
	}
	if h.n == 0 {
		return nil
	}
	tmp := make([]byte, diskio.BlockSize)
	for i, bno := range h.blocks {
		if err := l.disk.Read(l.logStart+1+uint32(i), tmp); err != nil {
			return err
		}
		if err := l.disk.Write(bno, tmp); err != nil {
			return err
		}
	}
	return l.writeHeader(nil)
}

// BeginOp admits one more concurrent transaction, sleeping while a
// commit is in progress or while admitting one would risk overflowing
// the log region (spec.md §4.H capacity admission: every concurrent
// transaction must be able to append up to maxOpBlocks).
func (l *Log) BeginOp() {
	g := l.lk.Lock()
	for l.committing || (l.outstanding+1)*l.maxOpBlocks > l.size {
		l.ch.Sleep(g, func() { g = l.lk.Lock() })
	}
	l.outstanding++
	g.Unlock()
}

// LogWrite records that buf (held locked by the caller) has been
// modified and must be durably committed before the transaction ends.
// If buf's block is already logged in this transaction, its slot is
// reused ("absorption"); otherwise it is appended and pinned in the
// buffer cache so it cannot be evicted before commit.
func (l *Log) LogWrite(buf *bcache.Buf) {
	g := l.lk.Lock()
	defer g.Unlock()

	for _, bno := range l.blocks {
		if bno == buf.Bno() {
			return
		}
	}
	if len(l.blocks) >= l.size {
		panic("ulog: log_write overflowed the log region; begin_op admission was violated")
	}
	l.blocks = append(l.blocks, buf.Bno())
	l.pins = append(l.pins, l.cache.Pin(buf))
}

// EndOp closes a transaction. On the last outstanding op, it performs the
// commit (copy to log, write header, install, clear header, unpin) and
// wakes every BeginOp waiter; otherwise it just wakes waiters, since
// capacity may have freed up.
func (l *Log) EndOp() error {
	g := l.lk.Lock()
	l.outstanding--
	doCommit := l.outstanding == 0
	if doCommit {
		l.committing = true
	}
	g.Unlock()

	var err error
	if doCommit {
		err = l.commit()
		g = l.lk.Lock()
		l.committing = false
		g.Unlock()
	}
	l.ch.WakeupAll()
	return err
}

// commit performs the five steps of spec.md §4.H: copy cached data to
// the log, write the header with N, install log slots to their home
// blocks, rewrite the header with N = 0, and unpin every buffer.
func (l *Log) commit() error {
	g := l.lk.Lock()
	blocks := append([]uint32(nil), l.blocks...)
	pins := append([]*bcache.Pinned(nil), l.pins...)
	g.Unlock()

	if len(blocks) == 0 {
		return nil
	}

	tmp := make([]byte, diskio.BlockSize)
	for i, p := range pins {
		locked := p.Lock(-1)
		copy(tmp, locked.Data())
		locked.Release()
		if err := l.disk.Write(l.logStart+1+uint32(i), tmp); err != nil {
			return err
		}
	}
	if err := l.writeHeader(blocks); err != nil {
		return err
	}
	for i, bno := range blocks {
		if err := l.disk.Read(l.logStart+1+uint32(i), tmp); err != nil {
			return err
		}
		if err := l.disk.Write(bno, tmp); err != nil {
			return err
		}
	}
	if err := l.writeHeader(nil); err != nil {
		return err
	}
	for _, p := range pins {
		p.Unpin()
	}

	g = l.lk.Lock()
	l.blocks = nil
	l.pins = nil
	g.Unlock()
	return nil
}
