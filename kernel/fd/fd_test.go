package fd

import (
	"errors"
	"testing"

	"github.com/ryanbreen/breenix/kernel/errno"
)

func TestTableCloseThenUseReturnsEBADF(t *testing.T) {
	table := NewConsoleTable()

	if err := table.Close(1); err != nil {
		t.Fatalf("Close(1) = %v, want nil", err)
	}

	if _, err := table.Get(1); !errors.Is(err, errno.EBADF) {
		t.Fatalf("Get(1) after close = %v, want EBADF", err)
	}

	if err := table.Close(1); !errors.Is(err, errno.EBADF) {
		t.Fatalf("second Close(1) = %v, want EBADF", err)
	}
}

func TestTableInstallReusesClosedSlot(t *testing.T) {
	table := NewConsoleTable()
	if err := table.Close(1); err != nil {
		t.Fatal(err)
	}

	r, _ := NewPipe()
	newFd, ok := table.Install(r)
	if !ok || newFd != 1 {
		t.Fatalf("Install after close = (%d, %v), want (1, true)", newFd, ok)
	}
}

func TestTableDupSharesUnderlyingFile(t *testing.T) {
	table := NewConsoleTable()
	dupFd, err := table.Dup(1)
	if err != nil {
		t.Fatalf("Dup(1) error: %v", err)
	}

	f1, _ := table.Get(1)
	f2, _ := table.Get(dupFd)
	if f1 != f2 {
		t.Fatal("Dup did not share the same File value")
	}
}

func TestPipeReadWriteRoundTrip(t *testing.T) {
	r, w := NewPipe()

	n, err := w.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write = (%d, %v), want (5, nil)", n, err)
	}

	buf := make([]byte, 16)
	n, err = r.Read(buf)
	if err != nil || string(buf[:n]) != "hello" {
		t.Fatalf("Read = (%q, %v), want (\"hello\", nil)", buf[:n], err)
	}
}

func TestPipeReadEmptyNonBlockingReturnsEAGAIN(t *testing.T) {
	r, _ := NewPipe()
	buf := make([]byte, 16)
	_, err := r.Read(buf)
	if !errors.Is(err, errno.EAGAIN) {
		t.Fatalf("Read on empty pipe = %v, want EAGAIN", err)
	}
}

func TestPipeWriteAfterReadCloseReturnsEPIPE(t *testing.T) {
	r, w := NewPipe()
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("x")); !errors.Is(err, errno.EPIPE) {
		t.Fatalf("Write after read end closed = %v, want EPIPE", err)
	}
}

func TestPipeReadyReflectsData(t *testing.T) {
	r, w := NewPipe()
	if r.Ready(PollIn) != 0 {
		t.Fatal("empty pipe reported PollIn ready")
	}
	w.Write([]byte("x"))
	if r.Ready(PollIn) == 0 {
		t.Fatal("pipe with data did not report PollIn ready")
	}
}
