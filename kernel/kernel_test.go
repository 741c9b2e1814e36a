package kernel

import (
	"context"
	"testing"
	"time"
)

// resetForTest clears the package-level boot singleton so each test gets
// a fresh Boot call. Production code never needs this: Boot really is
// called once per process.
func resetForTest() {
	startMu.Lock()
	started = false
	instance = nil
	startMu.Unlock()
}

func TestBootIsSingleShot(t *testing.T) {
	resetForTest()
	defer resetForTest()

	cfg := Config{NCPU: 2, ProcTableSize: 4, FileTableSize: 4, PipeTableSize: 2}
	k, err := Boot(cfg)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if Instance() != k {
		t.Fatal("Instance() did not return the booted kernel")
	}
	if _, err := Boot(cfg); err != errBooted {
		t.Fatalf("second Boot = %v, want errBooted", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	resetForTest()
	defer resetForTest()

	k, err := Boot(Config{NCPU: 2, ProcTableSize: 4, FileTableSize: 4, PipeTableSize: 2})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil after cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestUptimeAdvances(t *testing.T) {
	resetForTest()
	defer resetForTest()

	k, err := Boot(Config{NCPU: 1, ProcTableSize: 2, FileTableSize: 2, PipeTableSize: 1})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go k.Run(ctx)

	start := k.Uptime()
	k.SleepTicks(3)
	if k.Uptime() < start+3 {
		t.Fatalf("Uptime() = %d, want >= %d", k.Uptime(), start+3)
	}
}

func TestPanicSetsPanicked(t *testing.T) {
	resetForTest()
	defer resetForTest()

	k, err := Boot(Config{NCPU: 1, ProcTableSize: 2, FileTableSize: 2, PipeTableSize: 1})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if k.Panicked() {
		t.Fatal("Panicked() true before any panic")
	}
	k.Panic("test panic %d", 1)
	if !k.Panicked() {
		t.Fatal("Panicked() false after Panic()")
	}
}
