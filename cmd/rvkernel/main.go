// Command rvkernel boots the kernel: parses flags, attaches a disk image
// (which must already hold a file system; nothing here formats one),
// starts the configured number of virtual CPUs, and forks
// the initial process (pid 1) that every orphan is reparented to.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/gorv6/rvkernel/config"
	"github.com/gorv6/rvkernel/fsys"
	"github.com/gorv6/rvkernel/kernel"
	"github.com/gorv6/rvkernel/proc"
	"github.com/gorv6/rvkernel/syscall"
	"github.com/gorv6/rvkernel/usr"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rvkernel:", err)
		return 2
	}

	k, err := kernel.Boot(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rvkernel: boot:", err)
		return 1
	}
	k.Console.Printf("booted %d virtual CPUs", cfg.NCPU)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if k.FS != nil {
		if err := forkInit(k); err != nil {
			fmt.Fprintln(os.Stderr, "rvkernel: init:", err)
			return 1
		}
	}

	if err := k.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "rvkernel:", err)
		return 1
	}
	return 0
}

// forkInit creates the initial process (pid 1), rooted at "/", the
// adoptive parent of every orphaned process (spec.md Glossary).
func forkInit(k *kernel.Kernel) error {
	root, err := k.FS.Iget(k.FS.Dev(), fsys.RootInum)
	if err != nil {
		return fmt.Errorf("iget root: %w", err)
	}
	initCtx := usr.New(root)

	_, ok := k.Procs.Fork(nil, "init", initCtx, func(self *proc.Process) {
		runInit(syscall.For(k, self))
	})
	if !ok {
		initCtx.Close()
		return fmt.Errorf("process table full")
	}
	return nil
}

// runInit is pid 1's body: repeatedly reap any zombie orphan reparented
// to it. Every real init also forks a shell; spawning user-space
// programs is out of scope (spec.md §1: "user-space programs" is an
// external collaborator).
func runInit(m *syscall.Machine) {
	for {
		if _, _, err := m.Wait(); err != nil {
			m.Sleep(10)
		}
	}
}
