package syscall

import (
	"testing"
	"time"
	"unsafe"

	"github.com/ryanbreen/breenix/kernel/errno"
	"github.com/ryanbreen/breenix/kernel/fd"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem/vmm"
	"github.com/ryanbreen/breenix/kernel/proc"
	"github.com/ryanbreen/breenix/kernel/signal"
	"gvisor.dev/gvisor/pkg/abi/linux"
)

// Test doubles: a CPU with nothing to mask, a page table that says yes to
// any low address, and an exception frame backed by plain fields.

type fakeCPU struct{}

func (fakeCPU) EnableInterrupts()          {}
func (fakeCPU) DisableInterrupts()         {}
func (fakeCPU) InterruptsEnabled() bool    { return false }
func (fakeCPU) Halt()                      {}
func (fakeCPU) HaltWithInterrupts()        {}
func (fakeCPU) WithoutInterrupts(f func()) { f() }

type fakePageTable struct{}

func (fakePageTable) Map(root, va, pa uintptr, flags hal.PageFlags) error { return nil }
func (fakePageTable) Unmap(root, va uintptr) (uintptr, error)             { return 0, nil }
func (fakePageTable) Protect(root, va uintptr, flags hal.PageFlags) error { return nil }
func (fakePageTable) Translate(root, va uintptr) (uintptr, hal.PageFlags, error) {
	return va, hal.PageFlags(1), nil
}
func (fakePageTable) Activate(root uintptr)                          {}
func (fakePageTable) InvalidatePage(va uintptr)                      {}
func (fakePageTable) NewRootTable() (uintptr, error)                 { return 0, nil }
func (fakePageTable) SetKernelRoot(root uintptr)                     {}
func (fakePageTable) IsUserAccessible(flags hal.PageFlags) bool      { return true }
func (fakePageTable) IsWritable(flags hal.PageFlags) bool            { return true }
func (fakePageTable) IsCopyOnWrite(flags hal.PageFlags) bool         { return false }
func (fakePageTable) Writable(flags hal.PageFlags) hal.PageFlags     { return flags }
func (fakePageTable) UserAccessible(flags hal.PageFlags) hal.PageFlags { return flags }
func (fakePageTable) MakeCopyOnWrite(flags hal.PageFlags) hal.PageFlags { return flags }

type fakeTimer struct {
	ticks uint64
}

func (t *fakeTimer) NowTicks() uint64 {
	t.ticks += 7
	return t.ticks
}
func (t *fakeTimer) Frequency() uint64            { return 1000 }
func (t *fakeTimer) SetOneshot(d time.Duration)   {}

type fakePriv struct{ user bool }

func (p fakePriv) IsKernel() bool { return !p.user }
func (p fakePriv) IsUser() bool   { return p.user }

type fakeFrame struct {
	pc, sp, ret uint64
	num         uint64
	args        [6]uint64
	priv        hal.Privilege
}

func (f *fakeFrame) PC() uint64                   { return f.pc }
func (f *fakeFrame) SetPC(v uint64)               { f.pc = v }
func (f *fakeFrame) SP() uint64                   { return f.sp }
func (f *fakeFrame) SetSP(v uint64)               { f.sp = v }
func (f *fakeFrame) Arg(i int) uint64             { return f.args[i] }
func (f *fakeFrame) SetArg(i int, v uint64)       { f.args[i] = v }
func (f *fakeFrame) ReturnValue() uint64          { return f.ret }
func (f *fakeFrame) SetReturnValue(v uint64)      { f.ret = v }
func (f *fakeFrame) SyscallNumber() uint64        { return f.num }
func (f *fakeFrame) Privilege() hal.Privilege     { return f.priv }
func (f *fakeFrame) SetPrivilege(p hal.Privilege) { f.priv = p }
func (f *fakeFrame) Cause() hal.TrapCause         { return hal.CauseSystemCall }
func (f *fakeFrame) PageFault() hal.PageFaultInfo { return hal.PageFaultInfo{} }
func (f *fakeFrame) FaultKind() hal.FaultKind     { return hal.FaultOther }
func (f *fakeFrame) IRQNumber() int               { return -1 }

// setupProcess installs the fake HAL surfaces and a synthetic current
// process, undone at test cleanup.
func setupProcess(t *testing.T) *proc.Process {
	t.Helper()

	savedCPU, savedPT := hal.CPU, hal.PageTable
	hal.CPU = fakeCPU{}
	hal.PageTable = fakePageTable{}

	p := &proc.Process{
		ID:           42,
		FDs:          fd.NewConsoleTable(),
		Signals:      signal.NewState(),
		AddressSpace: &vmm.AddressSpace{},
	}
	th := &proc.Thread{ID: 7, Process: p}

	savedCurrent, savedYield := currentThread, yieldNow
	currentThread = func() *proc.Thread { return th }
	yieldNow = func() {}

	t.Cleanup(func() {
		hal.CPU = savedCPU
		hal.PageTable = savedPT
		currentThread = savedCurrent
		yieldNow = savedYield
	})
	return p
}

func callFrame(num Number, args ...uint64) *fakeFrame {
	f := &fakeFrame{num: uint64(num), priv: fakePriv{user: true}}
	copy(f.args[:], args)
	return f
}

func TestDispatchUnknownNumberReturnsENOSYS(t *testing.T) {
	setupProcess(t)
	f := callFrame(Number(999))
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != -38 {
		t.Fatalf("syscall 999 returned %d, want -38 exactly", got)
	}
}

func TestPipeWriteReadThroughSyscalls(t *testing.T) {
	p := setupProcess(t)

	r, w := fd.NewPipe()
	rNum, _ := p.FDs.Install(r)
	wNum, _ := p.FDs.Install(w)

	userBuf := make([]byte, 64)
	base := uint64(uintptr(unsafe.Pointer(&userBuf[0])))
	copy(userBuf, "HELLO\n")

	f := callFrame(SysWrite, uint64(wNum), base, 6)
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != 6 {
		t.Fatalf("write returned %d, want 6", got)
	}

	readBuf := make([]byte, 16)
	readBase := uint64(uintptr(unsafe.Pointer(&readBuf[0])))
	f = callFrame(SysRead, uint64(rNum), readBase, 16)
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != 6 {
		t.Fatalf("read returned %d, want 6", got)
	}
	if string(readBuf[:6]) != "HELLO\n" {
		t.Fatalf("read data = %q, want HELLO\\n", readBuf[:6])
	}
}

func TestCloseThenUseReturnsEBADF(t *testing.T) {
	p := setupProcess(t)

	r, _ := fd.NewPipe()
	num, _ := p.FDs.Install(r)

	f := callFrame(SysClose, uint64(num))
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != 0 {
		t.Fatalf("close returned %d, want 0", got)
	}

	buf := make([]byte, 8)
	base := uint64(uintptr(unsafe.Pointer(&buf[0])))
	f = callFrame(SysRead, uint64(num), base, 8)
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != -int64(errno.EBADF) {
		t.Fatalf("read on closed fd returned %d, want -EBADF", got)
	}
}

func TestDupSharesTheUnderlyingFile(t *testing.T) {
	p := setupProcess(t)

	r, w := fd.NewPipe()
	rNum, _ := p.FDs.Install(r)
	p.FDs.Install(w)

	f := callFrame(SysDup, uint64(rNum))
	Dispatch(f)
	dupNum := int64(f.ReturnValue())
	if dupNum < 0 {
		t.Fatalf("dup returned %d", dupNum)
	}

	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	base := uint64(uintptr(unsafe.Pointer(&buf[0])))
	f = callFrame(SysRead, uint64(dupNum), base, 4)
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != 1 || buf[0] != 'x' {
		t.Fatalf("read through dup'd fd = (%d, %q), want (1, x)", got, buf[0])
	}
}

func TestGetPIDAndGetTID(t *testing.T) {
	setupProcess(t)

	f := callFrame(SysGetPID)
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != 42 {
		t.Fatalf("getpid = %d, want 42", got)
	}

	f = callFrame(SysGetTID)
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != 7 {
		t.Fatalf("gettid = %d, want 7", got)
	}
}

func TestSigprocmaskBlockUnblock(t *testing.T) {
	p := setupProcess(t)

	var set uint64 = 1 << uint(linux.SIGUSR1)
	setAddr := uint64(uintptr(unsafe.Pointer(&set)))

	f := callFrame(SysSigprocmask, sigBlock, setAddr, 0)
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != 0 {
		t.Fatalf("sigprocmask(BLOCK) = %d", got)
	}
	if p.Signals.Blocked()&set == 0 {
		t.Fatal("SIGUSR1 not blocked after SIG_BLOCK")
	}

	f = callFrame(SysSigprocmask, sigUnblock, setAddr, 0)
	Dispatch(f)
	if p.Signals.Blocked()&set != 0 {
		t.Fatal("SIGUSR1 still blocked after SIG_UNBLOCK")
	}
}

func TestSigprocmaskCannotBlockKill(t *testing.T) {
	p := setupProcess(t)

	var set uint64 = 1 << uint(linux.SIGKILL)
	setAddr := uint64(uintptr(unsafe.Pointer(&set)))

	f := callFrame(SysSigprocmask, sigBlock, setAddr, 0)
	Dispatch(f)
	if p.Signals.Blocked()&(1<<uint(linux.SIGKILL)) != 0 {
		t.Fatal("SIGKILL ended up in the blocked mask")
	}
}

func TestEpollRoundTrip(t *testing.T) {
	p := setupProcess(t)

	f := callFrame(SysEpollCreate1, 0)
	Dispatch(f)
	epFd := int64(f.ReturnValue())
	if epFd < 0 {
		t.Fatalf("epoll_create1 = %d", epFd)
	}

	r, w := fd.NewPipe()
	rNum, _ := p.FDs.Install(r)
	p.FDs.Install(w)

	// struct epoll_event: events(4) + data(8), packed.
	var ev [epollEventSize]byte
	putUint32(ev[0:4], fd.PollIn)
	putUint64(ev[4:12], 0xdead)
	evAddr := uint64(uintptr(unsafe.Pointer(&ev[0])))

	f = callFrame(SysEpollCtl, uint64(epFd), uint64(fd.EpollCtlAdd), uint64(rNum), evAddr)
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != 0 {
		t.Fatalf("epoll_ctl(ADD) = %d", got)
	}

	// Nothing readable yet: zero timeout reports no events.
	var out [epollEventSize]byte
	outAddr := uint64(uintptr(unsafe.Pointer(&out[0])))
	f = callFrame(SysEpollWait, uint64(epFd), outAddr, 1, 0)
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != 0 {
		t.Fatalf("epoll_wait on idle pipe = %d, want 0", got)
	}

	if _, err := w.Write([]byte("z")); err != nil {
		t.Fatal(err)
	}
	f = callFrame(SysEpollWait, uint64(epFd), outAddr, 1, 0)
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != 1 {
		t.Fatalf("epoll_wait on readable pipe = %d, want 1", got)
	}
	if getUint32(out[0:4])&fd.PollIn == 0 || getUint64(out[4:12]) != 0xdead {
		t.Fatalf("epoll event = (%#x, %#x), want (POLLIN, 0xdead)", getUint32(out[0:4]), getUint64(out[4:12]))
	}
}

func TestPollReportsReadiness(t *testing.T) {
	p := setupProcess(t)

	r, w := fd.NewPipe()
	rNum, _ := p.FDs.Install(r)
	p.FDs.Install(w)
	if _, err := w.Write([]byte("q")); err != nil {
		t.Fatal(err)
	}

	var pfd [pollfdSize]byte
	putUint32(pfd[0:4], uint32(rNum))
	putUint16(pfd[4:6], uint16(fd.PollIn))
	addr := uint64(uintptr(unsafe.Pointer(&pfd[0])))

	f := callFrame(SysPoll, addr, 1, 0)
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != 1 {
		t.Fatalf("poll = %d, want 1", got)
	}
	if uint32(getUint16(pfd[6:8]))&fd.PollIn == 0 {
		t.Fatal("poll did not set POLLIN in revents")
	}
}

func TestClockGettimeMonotonicNonDecreasing(t *testing.T) {
	setupProcess(t)

	savedTimer := hal.SysTimer
	hal.SysTimer = &fakeTimer{}
	t.Cleanup(func() { hal.SysTimer = savedTimer })

	read := func() (int64, int64) {
		var ts [16]byte
		addr := uint64(uintptr(unsafe.Pointer(&ts[0])))
		f := callFrame(SysClockGettime, 0, addr)
		Dispatch(f)
		if got := int64(f.ReturnValue()); got != 0 {
			t.Fatalf("clock_gettime = %d", got)
		}
		return int64(getUint64(ts[0:8])), int64(getUint64(ts[8:16]))
	}

	s1, n1 := read()
	s2, n2 := read()
	if s2 < s1 || (s2 == s1 && n2 < n1) {
		t.Fatalf("MONOTONIC went backwards: %d.%09d then %d.%09d", s1, n1, s2, n2)
	}
}

func TestClockGettimeRejectsUnknownClock(t *testing.T) {
	setupProcess(t)
	f := callFrame(SysClockGettime, 99, 0)
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != -int64(errno.EINVAL) {
		t.Fatalf("clock_gettime(99) = %d, want -EINVAL", got)
	}
}

func TestMmapRejectsNonAnonymous(t *testing.T) {
	setupProcess(t)

	f := callFrame(SysMmap, 0, 4096, protRead, 0)
	Dispatch(f)
	if got := int64(f.ReturnValue()); got != -int64(errno.EINVAL) {
		t.Fatalf("file-backed mmap = %d, want -EINVAL", got)
	}
}
