package file

import (
	"bytes"
	"testing"

	"github.com/gorv6/rvkernel/pipe"
)

type echoDevice struct{ buf []byte }

func (d *echoDevice) Read(dst []byte) (uint32, error) {
	n := copy(dst, d.buf)
	return uint32(n), nil
}

func (d *echoDevice) Write(src []byte) (uint32, error) {
	d.buf = append(d.buf[:0], src...)
	return uint32(len(src)), nil
}

func TestOpenPipeReadWrite(t *testing.T) {
	devs := NewDeviceTable()
	arena := New(8, nil, devs, 1)
	pipes := pipe.New(4, nil)

	rEnd, wEnd, err := pipes.Alloc()
	if err != nil {
		t.Fatalf("pipe Alloc: %v", err)
	}
	rf, err := arena.OpenPipe(rEnd)
	if err != nil {
		t.Fatalf("OpenPipe r: %v", err)
	}
	wf, err := arena.OpenPipe(wEnd)
	if err != nil {
		t.Fatalf("OpenPipe w: %v", err)
	}
	if !rf.Readable() || rf.Writable() {
		t.Fatal("read end has wrong mode")
	}
	if !wf.Writable() || wf.Readable() {
		t.Fatal("write end has wrong mode")
	}

	n, err := wf.Write([]byte("hi"))
	if err != nil || n != 2 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
	got := make([]byte, 2)
	n, err = rf.Read(got)
	if err != nil || n != 2 || !bytes.Equal(got, []byte("hi")) {
		t.Fatalf("Read: n=%d err=%v got=%q", n, err, got)
	}

	wf.Close()
	rf.Close()
}

func TestDeviceDispatch(t *testing.T) {
	devs := NewDeviceTable()
	devs.Register(1, &echoDevice{})
	arena := New(4, nil, devs, 1)

	f, err := arena.OpenDevice(nil, 1, true, true)
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}
	if _, err := f.Write([]byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := make([]byte, 3)
	n, err := f.Read(got)
	if err != nil || n != 3 || string(got) != "abc" {
		t.Fatalf("Read: n=%d err=%v got=%q", n, err, got)
	}
}

func TestReadOnNonReadableFails(t *testing.T) {
	devs := NewDeviceTable()
	arena := New(4, nil, devs, 1)
	pipes := pipe.New(2, nil)
	_, wEnd, err := pipes.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	wf, err := arena.OpenPipe(wEnd)
	if err != nil {
		t.Fatalf("OpenPipe: %v", err)
	}
	if _, err := wf.Read(make([]byte, 1)); err != ErrBadFd {
		t.Fatalf("Read on write-only end = %v, want ErrBadFd", err)
	}
}
