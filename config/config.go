// Package config parses the boot-time CLI flags into a kernel.Config,
// in the flag style of calvinalkan-agent-task's internal/cli package
// (a pflag.FlagSet built fresh per invocation, long/short pairs, an
// explicit ContinueOnError so callers format their own error output).
package config

import (
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/gorv6/rvkernel/kernel"
)

// Defaults mirror the scenario sizes used throughout spec.md §8 (a 3-CPU
// boot, a modest buffer cache, room for a handful of concurrent
// transactions).
const (
	DefaultNCPU           = 3
	DefaultDiskBlocks     = 2000
	DefaultProcTableSize  = 64
	DefaultFileTableSize  = 100
	DefaultPipeTableSize  = 32
	DefaultInodeCacheSize = 50
	DefaultBufferCacheCap = 30
	DefaultLogSize        = 30
	DefaultMaxOpBlocks    = 10
)

// Parse builds a kernel.Config from args (excluding the program name,
// i.e. os.Args[1:]), applying the defaults above for anything unset.
func Parse(args []string) (kernel.Config, error) {
	fs := flag.NewFlagSet("rvkernel", flag.ContinueOnError)
	fs.SetOutput(&strings.Builder{}) // callers format their own error output

	ncpu := fs.IntP("ncpu", "n", DefaultNCPU, "number of virtual CPUs to boot")
	disk := fs.StringP("disk", "d", "", "path to the backing disk image (empty = no filesystem)")
	diskBlocks := fs.Uint32("disk-blocks", DefaultDiskBlocks, "total blocks in the disk image, when creating one")
	procTable := fs.Int("proc-table-size", DefaultProcTableSize, "fixed process table capacity")
	fileTable := fs.Int("file-table-size", DefaultFileTableSize, "fixed open-file arena capacity")
	pipeTable := fs.Int("pipe-table-size", DefaultPipeTableSize, "fixed pipe arena capacity")
	inodeCache := fs.Int("inode-cache-size", DefaultInodeCacheSize, "fixed in-memory inode arena capacity")
	bufCache := fs.Int("buffer-cache-size", DefaultBufferCacheCap, "fixed buffer cache capacity (blocks)")
	logSize := fs.Int("log-size", DefaultLogSize, "write-ahead log capacity, in blocks")
	maxOpBlocks := fs.Int("max-op-blocks", DefaultMaxOpBlocks, "max blocks a single transaction may log")

	if err := fs.Parse(args); err != nil {
		return kernel.Config{}, err
	}

	cfg := kernel.Config{
		NCPU:           *ncpu,
		DiskPath:       *disk,
		DiskBlocks:     *diskBlocks,
		ProcTableSize:  *procTable,
		FileTableSize:  *fileTable,
		PipeTableSize:  *pipeTable,
		InodeCacheSize: *inodeCache,
		BufferCacheCap: *bufCache,
		LogSize:        *logSize,
		MaxOpBlocks:    *maxOpBlocks,
	}
	if err := validate(cfg); err != nil {
		return kernel.Config{}, err
	}
	return cfg, nil
}

func validate(cfg kernel.Config) error {
	if cfg.NCPU <= 0 {
		return fmt.Errorf("config: ncpu must be positive, got %d", cfg.NCPU)
	}
	if cfg.ProcTableSize <= 0 {
		return fmt.Errorf("config: proc-table-size must be positive, got %d", cfg.ProcTableSize)
	}
	if cfg.DiskPath != "" && cfg.DiskBlocks == 0 {
		return fmt.Errorf("config: disk-blocks must be positive when --disk is set")
	}
	return nil
}
