package arm64

import "github.com/ryanbreen/breenix/kernel/hal"

// Regs is the exact memory layout trapEntry (trap_arm64.s) builds on the
// interrupted thread's own kernel stack: x0-x30 in push order, followed by
// the exception-entry state (ELR_EL1 the resume PC, SPSR_EL1 the saved
// PSTATE, SP_EL0 the user stack pointer, and the ESR_EL1/FAR_EL1 pair the
// entry stub captures for classification). Like kernel/hal/amd64.Regs, this
// addresses live stack memory rather than a copy, so a write through a
// Frame method lands directly in the state ERET resumes with.
type Regs struct {
	X [31]uint64 // x0-x30; x30 is the link register

	ELR   uint64
	SPSR  uint64
	SPEL0 uint64

	ESR uint64 // ESR_EL1, captured at entry; EC field classifies the trap
	FAR uint64 // FAR_EL1, valid only for data/instruction aborts
}

// Frame is AArch64's hal.ExceptionFrame: a thin view over the live Regs on
// the kernel stack, plus the classification kernel/hal/arm64's dispatcher
// glue stamps on. The syscall ABI reads the number from x8 and
// arguments from x0-x5, matching Linux's AArch64 convention.
type Frame struct {
	regs *Regs

	cause     hal.TrapCause
	pageFault hal.PageFaultInfo
	irq       int
}

// NewFrame wraps regs, the live register block trapEntry built on the
// stack, in a Frame.
func NewFrame(regs *Regs) *Frame {
	return &Frame{regs: regs}
}

func (f *Frame) PC() uint64     { return f.regs.ELR }
func (f *Frame) SetPC(v uint64) { f.regs.ELR = v }
func (f *Frame) SP() uint64     { return f.regs.SPEL0 }
func (f *Frame) SetSP(v uint64) { f.regs.SPEL0 = v }

func (f *Frame) Arg(i int) uint64 {
	if i < 0 || i > 5 {
		return 0
	}
	return f.regs.X[i]
}

func (f *Frame) SetArg(i int, v uint64) {
	if i < 0 || i > 5 {
		return
	}
	f.regs.X[i] = v
}

func (f *Frame) ReturnValue() uint64     { return f.regs.X[0] }
func (f *Frame) SetReturnValue(v uint64) { f.regs.X[0] = v }
func (f *Frame) SyscallNumber() uint64   { return f.regs.X[8] }

// spsrELMask is SPSR_EL1.M[3:0], the saved exception level; 0b0000 is EL0t.
const spsrELMask = 0xf

func (f *Frame) Privilege() hal.Privilege {
	if f.regs.SPSR&spsrELMask == 0 {
		return el0
	}
	return el1
}

func (f *Frame) SetPrivilege(p hal.Privilege) {
	f.regs.SPSR &^= spsrELMask
	if p.IsKernel() {
		f.regs.SPSR |= 0x4 // EL1t
	}
}

func (f *Frame) Cause() hal.TrapCause        { return f.cause }
func (f *Frame) PageFault() hal.PageFaultInfo { return f.pageFault }

// FaultKind maps ESR_EL1's exception class to the architecture-neutral
// fault class; meaningful only when Cause() == hal.CauseFault. AArch64 has
// no hardware divide-by-zero trap and no general-protection vector, so the
// only class this target can report besides FaultOther is an undefined
// instruction (EC 0b000000, the "unknown reason" class UDF raises).
func (f *Frame) FaultKind() hal.FaultKind {
	if esrEC(f.regs.ESR) == 0 {
		return hal.FaultIllegalInstruction
	}
	return hal.FaultOther
}

// ESR returns the raw ESR_EL1 value captured at entry, for classification
// by this package's dispatcher glue.
func (f *Frame) ESR() uint64 { return f.regs.ESR }

// IRQNumber returns the interrupt ID gic.AckInterrupt read from GICC_IAR at
// entry; meaningful only when Cause() == hal.CauseExternalInterrupt.
func (f *Frame) IRQNumber() int { return f.irq }

// SetIRQ records the interrupt ID this package's dispatcher glue already
// acknowledged via GICC_IAR.
func (f *Frame) SetIRQ(irq int) { f.irq = irq }

// SaveUserState snapshots the complete general-purpose file plus PC/SP into
// st, in the layout userMode.Enter reads back, so a forked child resumes
// with register-exact parent state.
func (f *Frame) SaveUserState(st *hal.UserState) {
	st.Regs = f.regs.X
	st.HasRegs = true
	st.ReturnValue = f.regs.X[0]
	st.PC = f.regs.ELR
	st.SP = f.regs.SPEL0
	for i := 0; i < 6; i++ {
		st.Args[i] = f.Arg(i)
	}
}

// SetCause lets the arm64 dispatcher glue stamp the frame with why it was
// built, before handing it to kernel/trap.
func (f *Frame) SetCause(c hal.TrapCause) { f.cause = c }

// SetPageFault decodes a data/instruction abort's ESR_EL1.DFSC/IFSC class
// into the architecture-neutral hal.PageFaultInfo. wnr is ESR_EL1.WnR (1 for
// a write); present distinguishes a permission fault (DFSC class 0b0011x)
// from a translation fault (not yet mapped at all).
func (f *Frame) SetPageFault(wnr bool, present bool, exec bool) {
	f.pageFault = hal.PageFaultInfo{
		Addr:    uintptr(f.regs.FAR),
		Write:   wnr,
		Exec:    exec,
		Present: present,
		User:    f.Privilege().IsUser(),
	}
}
