package syscall

import (
	"testing"
	"unsafe"

	"github.com/ryanbreen/breenix/kernel/errno"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem/pmm"
	"github.com/ryanbreen/breenix/kernel/mem/vmm"
	"github.com/ryanbreen/breenix/kernel/proc"
	"github.com/ryanbreen/breenix/kernel/sched"
	"gvisor.dev/gvisor/pkg/abi/linux"
)

type fakeContexts struct{}

func (fakeContexts) NewContext(ctx *hal.Context, base, size uintptr, entry func(uintptr), arg uintptr) {
	ctx.SP = base + size
	ctx.Entry = entry
	ctx.Arg = arg
}
func (fakeContexts) Switch(prev, next *hal.Context) {}

// setupLifecycle extends setupProcess with the pieces fork needs: a context
// capability and a kernel stack allocator.
func setupLifecycle(t *testing.T) *proc.Process {
	t.Helper()
	p := setupProcess(t)

	savedContexts, savedAlloc := hal.Contexts, sched.AllocStack
	savedBlock, savedUnblock, savedExit := blockCurrent, unblockThread, exitCurrent
	hal.Contexts = fakeContexts{}
	next := uintptr(0xffff_ff00_0000_0000)
	sched.AllocStack = func(size uintptr) (uintptr, error) {
		base := next
		next += size + 0x1000
		return base, nil
	}
	t.Cleanup(func() {
		hal.Contexts = savedContexts
		sched.AllocStack = savedAlloc
		blockCurrent, unblockThread, exitCurrent = savedBlock, savedUnblock, savedExit
	})
	return p
}

func TestForkChildStartsAtParentPCWithZeroReturn(t *testing.T) {
	p := setupLifecycle(t)

	f := callFrame(SysFork)
	f.pc, f.sp = 0x40_1000, 0x7fff_f000
	f.args[3] = 0xbeef
	Dispatch(f)

	childPID := int64(f.ReturnValue())
	if childPID <= 0 {
		t.Fatalf("fork returned %d", childPID)
	}
	child := proc.Lookup(proc.ProcessID(childPID))
	if child == nil {
		t.Fatalf("child pid %d not in the process table", childPID)
	}
	t.Cleanup(func() { proc.Unregister(child.ID) })

	if child.Parent != p {
		t.Fatal("child does not point back at the forking process")
	}
	if child.FDs == nil || child.Signals == nil || child.AddressSpace == nil {
		t.Fatal("child is missing an inherited resource")
	}
	th := child.Threads[0]
	if th.User.PC != f.pc || th.User.SP != f.sp {
		t.Fatalf("child resumes at (%#x, %#x), want parent's (%#x, %#x)",
			th.User.PC, th.User.SP, f.pc, f.sp)
	}
	if th.User.Args[3] != 0xbeef {
		t.Fatal("child did not inherit the parent's argument registers")
	}
	if th.User.ReturnValue != 0 {
		t.Fatalf("child's return register = %d, want 0", th.User.ReturnValue)
	}
}

func TestWaitReapsExitedChildStatus(t *testing.T) {
	p := setupLifecycle(t)

	child, _, err := proc.NewUserProcess(p, &vmm.AddressSpace{}, sched.AllocStack)
	if err != nil {
		t.Fatal(err)
	}
	child.Exit((42&0xff)<<8, nil, nil)

	var status uint32
	statusAddr := uint64(uintptr(unsafe.Pointer(&status)))
	f := callFrame(SysWait, statusAddr)
	Dispatch(f)

	if got := int64(f.ReturnValue()); got != int64(child.ID) {
		t.Fatalf("wait returned %d, want child pid %d", got, child.ID)
	}
	if code := (status >> 8) & 0xff; code != 42 {
		t.Fatalf("exit code = %d, want 42", code)
	}
	if status&0xff != 0 {
		t.Fatalf("low byte = %#x, want 0 for a normal exit", status&0xff)
	}
	if proc.Lookup(child.ID) != nil {
		t.Fatal("reaped child still in the process table")
	}
}

func TestWaitObservesSignalTerminatedChild(t *testing.T) {
	p := setupLifecycle(t)

	child, _, err := proc.NewUserProcess(p, &vmm.AddressSpace{}, sched.AllocStack)
	if err != nil {
		t.Fatal(err)
	}
	child.Exit(int(linux.SIGFPE), nil, nil)

	var status uint32
	statusAddr := uint64(uintptr(unsafe.Pointer(&status)))
	f := callFrame(SysWait, statusAddr)
	Dispatch(f)

	if got := int64(f.ReturnValue()); got != int64(child.ID) {
		t.Fatalf("wait returned %d, want child pid %d", got, child.ID)
	}
	if sig := status & 0xff; sig != uint32(linux.SIGFPE) {
		t.Fatalf("terminating signal = %d, want SIGFPE", sig)
	}
}

func TestWaitWithNoChildrenReturnsECHILD(t *testing.T) {
	setupLifecycle(t)

	f := callFrame(SysWait, 0)
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != -int64(errno.ECHILD) {
		t.Fatalf("wait = %d, want -ECHILD", got)
	}
}

func TestWaitBlocksUntilChildExits(t *testing.T) {
	p := setupLifecycle(t)

	child, _, err := proc.NewUserProcess(p, &vmm.AddressSpace{}, sched.AllocStack)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { proc.Unregister(child.ID) })

	// The child has not exited, so wait parks; the fake block stands in
	// for the child running to completion and waking the parent.
	blocked := 0
	blockCurrent = func() {
		blocked++
		child.Exit((7&0xff)<<8, nil, nil)
	}

	var status uint32
	statusAddr := uint64(uintptr(unsafe.Pointer(&status)))
	f := callFrame(SysWait, statusAddr)
	Dispatch(f)

	if blocked != 1 {
		t.Fatalf("wait parked %d times, want 1", blocked)
	}
	if got := int64(f.ReturnValue()); got != int64(child.ID) {
		t.Fatalf("wait returned %d, want child pid %d", got, child.ID)
	}
	if code := (status >> 8) & 0xff; code != 7 {
		t.Fatalf("exit code = %d, want 7", code)
	}
}

func TestWaitInterruptedBySignalReturnsEINTR(t *testing.T) {
	p := setupLifecycle(t)

	child, _, err := proc.NewUserProcess(p, &vmm.AddressSpace{}, sched.AllocStack)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { proc.Unregister(child.ID) })

	blockCurrent = func() { p.Signals.Raise(linux.SIGTERM) }

	f := callFrame(SysWait, 0)
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != -int64(errno.EINTR) {
		t.Fatalf("interrupted wait = %d, want -EINTR", got)
	}
}

func TestKillRaisesSignalOnTarget(t *testing.T) {
	p := setupLifecycle(t)

	child, _, err := proc.NewUserProcess(p, &vmm.AddressSpace{}, sched.AllocStack)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { proc.Unregister(child.ID) })

	f := callFrame(SysKill, uint64(child.ID), uint64(linux.SIGTERM))
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != 0 {
		t.Fatalf("kill = %d, want 0", got)
	}
	if !child.Signals.HasDeliverable() {
		t.Fatal("SIGTERM not pending on the target after kill")
	}
}

func TestKillUnknownPIDReturnsESRCH(t *testing.T) {
	setupLifecycle(t)

	f := callFrame(SysKill, 999999, uint64(linux.SIGTERM))
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != -int64(errno.ESRCH) {
		t.Fatalf("kill(unknown pid) = %d, want -ESRCH", got)
	}
}

func TestExecUnknownImageReturnsENOENT(t *testing.T) {
	setupLifecycle(t)

	path := append([]byte("/bin/no-such-program"), 0)
	pathAddr := uint64(uintptr(unsafe.Pointer(&path[0])))
	f := callFrame(SysExec, pathAddr, 0)
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != -int64(errno.ENOENT) {
		t.Fatalf("exec of unregistered image = %d, want -ENOENT", got)
	}
}

func TestExitMarksProcessZombieAndWakesParent(t *testing.T) {
	p := setupLifecycle(t)

	child, th, err := proc.NewUserProcess(p, &vmm.AddressSpace{}, sched.AllocStack)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { proc.Unregister(child.ID) })

	// Run exit as the child.
	currentThread = func() *proc.Thread { return th }

	woken := false
	p.SetWaitWake(func() { woken = true })

	exited := false
	exitCurrent = func(status int, _ []vmm.Region, _ func(pmm.Frame)) {
		exited = true
		child.Exit(status, nil, nil)
	}

	f := callFrame(SysExit, 42)
	Dispatch(f)

	if !exited {
		t.Fatal("exit never reached the scheduler")
	}
	state, _ := child.State()
	if state != proc.StateZombie {
		t.Fatalf("child state = %v, want Zombie", state)
	}
	if child.AddressSpace != nil || child.FDs != nil {
		t.Fatal("zombie retains its address space or FD table")
	}
	if child.ExitStatus != (42&0xff)<<8 {
		t.Fatalf("zombie status = %#x, want 42<<8", child.ExitStatus)
	}
	if !woken {
		t.Fatal("parent's wait waker never fired")
	}
}
