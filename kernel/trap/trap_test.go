package trap

import (
	"testing"

	"github.com/ryanbreen/breenix/kernel/hal"
	"gvisor.dev/gvisor/pkg/abi/linux"
)

// fakeCPU satisfies hal.CPUOps for tests; there is no interrupt state to
// mask on a test host.
type fakeCPU struct{}

func (fakeCPU) EnableInterrupts()        {}
func (fakeCPU) DisableInterrupts()       {}
func (fakeCPU) InterruptsEnabled() bool  { return false }
func (fakeCPU) Halt()                    {}
func (fakeCPU) HaltWithInterrupts()      {}
func (fakeCPU) WithoutInterrupts(f func()) { f() }

type fakePIC struct {
	eois []int
}

func (f *fakePIC) Mask(vector int)           {}
func (f *fakePIC) Unmask(vector int)         {}
func (f *fakePIC) EndOfInterrupt(vector int) { f.eois = append(f.eois, vector) }

type fakePriv struct{ user bool }

func (p fakePriv) IsKernel() bool { return !p.user }
func (p fakePriv) IsUser() bool   { return p.user }

// fakeFrame is a minimal hal.ExceptionFrame double.
type fakeFrame struct {
	pc, sp, ret uint64
	num         uint64
	args        [6]uint64
	priv        hal.Privilege
	cause       hal.TrapCause
	irq         int
	fault       hal.FaultKind
}

func (f *fakeFrame) PC() uint64                    { return f.pc }
func (f *fakeFrame) SetPC(v uint64)                { f.pc = v }
func (f *fakeFrame) SP() uint64                    { return f.sp }
func (f *fakeFrame) SetSP(v uint64)                { f.sp = v }
func (f *fakeFrame) Arg(i int) uint64              { return f.args[i] }
func (f *fakeFrame) SetArg(i int, v uint64)        { f.args[i] = v }
func (f *fakeFrame) ReturnValue() uint64           { return f.ret }
func (f *fakeFrame) SetReturnValue(v uint64)       { f.ret = v }
func (f *fakeFrame) SyscallNumber() uint64         { return f.num }
func (f *fakeFrame) Privilege() hal.Privilege      { return f.priv }
func (f *fakeFrame) SetPrivilege(p hal.Privilege)  { f.priv = p }
func (f *fakeFrame) Cause() hal.TrapCause          { return f.cause }
func (f *fakeFrame) PageFault() hal.PageFaultInfo  { return hal.PageFaultInfo{} }
func (f *fakeFrame) FaultKind() hal.FaultKind      { return f.fault }
func (f *fakeFrame) IRQNumber() int                { return f.irq }

func withFakeHAL(t *testing.T) *fakePIC {
	t.Helper()
	savedCPU, savedPIC := hal.CPU, hal.Interrupts
	pic := &fakePIC{}
	hal.CPU = fakeCPU{}
	hal.Interrupts = pic
	t.Cleanup(func() {
		hal.CPU = savedCPU
		hal.Interrupts = savedPIC
	})
	return pic
}

func TestDispatchUnknownSyscallReturnsENOSYS(t *testing.T) {
	withFakeHAL(t)

	saved := syscallFn
	syscallFn = nil
	t.Cleanup(func() { syscallFn = saved })

	frame := &fakeFrame{
		cause: hal.CauseSystemCall,
		num:   999,
		priv:  fakePriv{user: false},
	}
	Dispatch(frame)

	if got := int64(frame.ReturnValue()); got != -38 {
		t.Fatalf("unknown syscall return = %d, want -38", got)
	}
}

func TestDispatchRoutesIRQAndAcknowledges(t *testing.T) {
	pic := withFakeHAL(t)

	fired := false
	RegisterIRQHandler(5, func() { fired = true })
	t.Cleanup(func() { irqHandlers[5] = nil })

	frame := &fakeFrame{
		cause: hal.CauseExternalInterrupt,
		irq:   5,
		priv:  fakePriv{user: false},
	}
	Dispatch(frame)

	if !fired {
		t.Fatal("registered IRQ handler did not run")
	}
	if len(pic.eois) != 1 || pic.eois[0] != 5 {
		t.Fatalf("EndOfInterrupt calls = %v, want exactly [5]", pic.eois)
	}
}

func TestDispatchUnhandledIRQStillAcknowledges(t *testing.T) {
	pic := withFakeHAL(t)

	frame := &fakeFrame{
		cause: hal.CauseExternalInterrupt,
		irq:   9,
		priv:  fakePriv{user: false},
	}
	Dispatch(frame)

	if len(pic.eois) != 1 || pic.eois[0] != 9 {
		t.Fatalf("EndOfInterrupt calls = %v, want exactly [9]", pic.eois)
	}
}

func TestSignalForFault(t *testing.T) {
	cases := []struct {
		kind hal.FaultKind
		want linux.Signal
	}{
		{hal.FaultDivideByZero, linux.SIGFPE},
		{hal.FaultIllegalInstruction, linux.SIGILL},
		{hal.FaultGeneralProtection, linux.SIGSEGV},
		{hal.FaultOther, linux.SIGSEGV},
	}
	for _, c := range cases {
		if got := signalForFault(c.kind); got != c.want {
			t.Errorf("signalForFault(%v) = %v, want %v", c.kind, got, c.want)
		}
	}
}
