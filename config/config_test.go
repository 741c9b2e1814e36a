package config

import "testing"

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.NCPU != DefaultNCPU {
		t.Fatalf("NCPU = %d, want %d", cfg.NCPU, DefaultNCPU)
	}
	if cfg.DiskPath != "" {
		t.Fatalf("DiskPath = %q, want empty", cfg.DiskPath)
	}
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse([]string{"--ncpu", "8", "--disk", "/tmp/x.img", "--disk-blocks", "5000"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.NCPU != 8 || cfg.DiskPath != "/tmp/x.img" || cfg.DiskBlocks != 5000 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestParseRejectsNonPositiveNCPU(t *testing.T) {
	if _, err := Parse([]string{"--ncpu", "0"}); err == nil {
		t.Fatal("expected error for --ncpu 0")
	}
}

func TestParseRejectsZeroDiskBlocksWithDisk(t *testing.T) {
	if _, err := Parse([]string{"--disk", "/tmp/x.img", "--disk-blocks", "0"}); err == nil {
		t.Fatal("expected error for --disk-blocks 0 with --disk set")
	}
}
