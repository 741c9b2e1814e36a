// Package kernel implements the one-shot HAL/KERNEL singleton of
// spec.md §9's "Global mutable state" design note: constructed exactly
// once, gated by the boot CPU finishing initialization before any
// secondary CPU proceeds (the source's atomic STARTED flag), then shared
// read-only across every virtual CPU goroutine.
package kernel

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/gorv6/rvkernel/bcache"
	"github.com/gorv6/rvkernel/diskio"
	"github.com/gorv6/rvkernel/file"
	"github.com/gorv6/rvkernel/fsys"
	"github.com/gorv6/rvkernel/lock"
	"github.com/gorv6/rvkernel/pipe"
	"github.com/gorv6/rvkernel/proc"
	"github.com/gorv6/rvkernel/ulog"
)

// Config is the boot-time shape of the kernel, gathered by package
// config from CLI flags.
type Config struct {
	NCPU           int
	DiskPath       string
	DiskBlocks     uint32
	ProcTableSize  int
	FileTableSize  int
	PipeTableSize  int
	InodeCacheSize int
	BufferCacheCap int
	LogSize        int
	MaxOpBlocks    int
}

// Kernel bundles every subsystem spec.md names, mirroring the Rust
// source's Kernel/HAL split collapsed into one struct since Go has no
// equivalent of pre-MMU "hardware-only" initialization phase.
type Kernel struct {
	cfg Config

	Console *Console
	Procs   *proc.Table
	Sched   *proc.Scheduler
	Devices *file.DeviceTable
	Pipes   *pipe.Arena
	Files   *file.Arena
	Disk    *diskio.Disk
	Cache   *bcache.Cache
	Log     *ulog.Log
	FS      *fsys.FS

	ticksLock *lock.Sleepablelock
	ticks     uint32

	panicked int32
}

var (
	startMu    sync.Mutex
	started    bool
	instance   *Kernel
	errBooted  = fmt.Errorf("kernel: Boot called more than once")
)

// bootCPUFunc reports a fixed identity (virtual CPU 0, interrupts
// enabled). Boot itself passes nil to every constructor, which defaults to
// the same identity, and Run gives its CPU goroutines no identity of
// their own.
func bootCPUFunc() (int, bool) { return 0, true }

// Boot constructs the singleton Kernel exactly once. A second call
// returns errBooted without touching the existing instance — mirroring
// the source's "HAL must be called only once" contract, made safe
// instead of unchecked-unsafe.
func Boot(cfg Config) (*Kernel, error) {
	startMu.Lock()
	defer startMu.Unlock()
	if started {
		return nil, errBooted
	}

	k := &Kernel{
		cfg:       cfg,
		Console:   newConsole(),
		Devices:   file.NewDeviceTable(),
		ticksLock: lock.NewSleepablelock("ticks"),
	}
	k.Procs = proc.NewTable(cfg.ProcTableSize, nil)
	k.Sched = proc.NewScheduler(k.Procs)
	k.Pipes = pipe.New(cfg.PipeTableSize, nil)
	k.Devices.Register(ConsoleMajor, k.Console)

	if cfg.DiskPath != "" {
		disk, err := diskio.Attach(cfg.DiskPath, cfg.DiskBlocks)
		if err != nil {
			return nil, fmt.Errorf("kernel: attach disk: %w", err)
		}
		k.Disk = disk
		k.Cache = bcache.New(cfg.BufferCacheCap, disk, nil)

		sb, err := fsys.ReadSuperblock(disk)
		if err != nil {
			return nil, fmt.Errorf("kernel: read superblock: %w", err)
		}
		k.Log = ulog.New(disk, k.Cache, 0, sb.LogStart, cfg.LogSize, cfg.MaxOpBlocks, nil)
		if err := k.Log.Recover(); err != nil {
			return nil, fmt.Errorf("kernel: log recovery: %w", err)
		}
		k.FS = fsys.New(disk, k.Cache, k.Log, sb, 0, cfg.InodeCacheSize, nil)
	}
	k.Files = file.New(cfg.FileTableSize, k.FS, k.Devices, 0)

	instance = k
	started = true
	return k, nil
}

// Instance returns the booted singleton, or nil if Boot has not run.
func Instance() *Kernel {
	startMu.Lock()
	defer startMu.Unlock()
	return instance
}

// Run supervises cfg.NCPU virtual-CPU goroutines, each running the
// scheduler's dispatch loop, under one errgroup.Group so a fatal panic
// on any one CPU cancels the others (spec.md §7: "fatal kernel failures
// stop all CPUs via an atomic panicked flag"). It also runs the tick
// goroutine (spec.md §4.A "sleepable spinlock... used for... the tick
// counter"). Run blocks until ctx is cancelled or a CPU goroutine fails.
func (k *Kernel) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		k.tickLoop(ctx)
		return nil
	})

	for i := 0; i < k.cfg.NCPU; i++ {
		cpu := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					k.Panic("cpu %d: %v", cpu, r)
					err = fmt.Errorf("cpu %d panicked: %v", cpu, r)
				}
			}()
			k.Sched.Run(ctx)
			return nil
		})
	}

	return g.Wait()
}

// Panic records the kernel as panicked in an atomic flag (reported by
// Panicked) and logs the message through the console. The dispatch loops
// started by Run do not read the flag; they stop only when Run's context
// is cancelled or a CPU goroutine panics.
func (k *Kernel) Panic(format string, args ...any) {
	atomic.StoreInt32(&k.panicked, 1)
	k.Console.log.Output(2, fmt.Sprintf("kernel panic: "+format, args...))
}

// Panicked reports whether any CPU has called Panic.
func (k *Kernel) Panicked() bool { return atomic.LoadInt32(&k.panicked) == 1 }

// Console is the kernel's serial console: a sleepable-lock-guarded
// logger standing in for spec.md §4.A's "sleepable spinlock... used for
// the console input queue", collapsed here to its output half since
// input devices are an external collaborator per spec.md §1.
type Console struct {
	mu  *lock.Sleepablelock
	log *log.Logger
}

func newConsole() *Console {
	return &Console{mu: lock.NewSleepablelock("console"), log: log.Default()}
}

// Printf writes a line to the console, serialized under the console's
// lock exactly as spec.md's Console::write_fmt path does.
func (c *Console) Printf(format string, args ...any) {
	g := c.mu.Lock()
	defer g.Unlock()
	c.log.Printf(format, args...)
}

// ConsoleMajor is the device major number the console registers itself
// under, matching the small fixed device numbers xv6-style kernels use
// for built-in drivers.
const ConsoleMajor = 1

// Write implements file.Device so /dev/console (major ConsoleMajor) can
// be opened and written to through the ordinary write(2) syscall path.
func (c *Console) Write(src []byte) (uint32, error) {
	g := c.mu.Lock()
	defer g.Unlock()
	n, err := c.log.Writer().Write(src)
	return uint32(n), err
}

// Read is a stub: console input is a UART driver, an external
// collaborator out of scope per spec.md §1.
func (c *Console) Read(dst []byte) (uint32, error) { return 0, nil }
