package proc

import (
	"testing"

	"github.com/ryanbreen/breenix/kernel/errno"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem"
)

type fakeContextOps struct{}

func (fakeContextOps) NewContext(ctx *hal.Context, stackBase, stackSize uintptr, entry func(uintptr), arg uintptr) {
	ctx.SP = stackBase + stackSize
}
func (fakeContextOps) Switch(prev, next *hal.Context) {}

func init() {
	hal.Contexts = fakeContextOps{}
}

func fakeStackAlloc(backing *[]byte) func(uintptr) (uintptr, error) {
	return func(size uintptr) (uintptr, error) {
		buf := make([]byte, size)
		*backing = buf
		return uintptr(0x1000), nil
	}
}

func TestNewKernelProcessAssignsDistinctIDs(t *testing.T) {
	var buf []byte
	entry := func(uintptr) {}

	p1, t1, err := NewKernelProcess(entry, 0, fakeStackAlloc(&buf))
	if err != nil {
		t.Fatal(err)
	}
	p2, t2, err := NewKernelProcess(entry, 0, fakeStackAlloc(&buf))
	if err != nil {
		t.Fatal(err)
	}

	if p1.ID == p2.ID {
		t.Fatal("two processes got the same ProcessID")
	}
	if t1.ID == t2.ID {
		t.Fatal("two threads got the same ThreadID")
	}
	if len(p1.Threads) != 1 || p1.Threads[0] != t1 {
		t.Fatal("kernel process does not own exactly its one thread")
	}
}

func TestThreadInGuardPage(t *testing.T) {
	var buf []byte
	p, th, err := NewKernelProcess(func(uintptr) {}, 0, fakeStackAlloc(&buf))
	if err != nil {
		t.Fatal(err)
	}
	_ = p

	guardAddr := th.stackBase - 1
	if !th.InGuardPage(guardAddr) {
		t.Fatal("address one below stack base not reported as guard page")
	}
	if th.InGuardPage(th.stackBase) {
		t.Fatal("stack base itself reported as guard page")
	}
	if th.InGuardPage(th.stackBase - uintptr(mem.PageSize) - 1) {
		t.Fatal("address below the single guard page reported as guard page")
	}
}

func TestExitReleasesAddressSpaceAndBecomesZombie(t *testing.T) {
	var buf []byte
	p, _, err := NewKernelProcess(func(uintptr) {}, 0, fakeStackAlloc(&buf))
	if err != nil {
		t.Fatal(err)
	}

	p.Exit(7, nil, nil)

	state, _ := p.State()
	if state != StateZombie {
		t.Fatalf("State() = %v, want StateZombie", state)
	}
	if p.ExitStatus != 7 {
		t.Fatalf("ExitStatus = %d, want 7", p.ExitStatus)
	}
	if p.FDs != nil || p.AddressSpace != nil {
		t.Fatal("zombie process still holds FDs or address space")
	}
}

func TestReapChildReturnsEAGAINBeforeExitAndECHILDWithNone(t *testing.T) {
	var buf []byte
	parent, _, err := NewKernelProcess(func(uintptr) {}, 0, fakeStackAlloc(&buf))
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := parent.ReapChild(); err != errno.ECHILD {
		t.Fatalf("ReapChild() on childless process = %v, want ECHILD", err)
	}

	child, _, err := NewUserProcess(parent, nil, fakeStackAlloc(&buf))
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := parent.ReapChild(); err != errno.EAGAIN {
		t.Fatalf("ReapChild() before child exit = %v, want EAGAIN", err)
	}

	child.Exit(3, nil, nil)

	id, status, err := parent.ReapChild()
	if err != nil {
		t.Fatalf("ReapChild() after exit: %v", err)
	}
	if id != child.ID || status != 3 {
		t.Fatalf("ReapChild() = (%d, %d), want (%d, 3)", id, status, child.ID)
	}

	if _, _, err := parent.ReapChild(); err != errno.ECHILD {
		t.Fatalf("second ReapChild() = %v, want ECHILD", err)
	}
}
