package amd64

import "github.com/ryanbreen/breenix/kernel/hal"

// Regs is the exact memory layout trapCommon (trap_amd64.s) builds on the
// interrupted thread's own kernel stack: the general-purpose registers in
// push order, the vector number and error code the entry stub pushed, and
// the CPU's own IRETQ frame. Field order matters here — unlike Frame below,
// a *Regs is never copied; it addresses real stack memory that IRETQ reads
// back after the Go handler returns, so a write through a Frame method
// lands directly in the register state the CPU resumes with.
type Regs struct {
	R15, R14, R13, R12, R11, R10, R9, R8 uint64
	RBP, RDI, RSI, RDX, RCX, RBX, RAX    uint64

	Vector    uint64
	ErrorCode uint64

	RIP, CS, RFlags, RSP, SS uint64
}

// Frame is x86_64's hal.ExceptionFrame: a thin view over the live Regs on
// the kernel stack, plus the classification kernel/hal/amd64's dispatcher
// glue stamps on before handing it to kernel/trap. The syscall ABI reads
// the number from RAX and arguments from RDI, RSI, RDX, R10, R8, R9.
type Frame struct {
	regs *Regs

	cause     hal.TrapCause
	pageFault hal.PageFaultInfo
}

// NewFrame wraps regs, the live register block trapCommon built on the
// stack, in a Frame. Called once per trap by trapDispatchGo.
func NewFrame(regs *Regs) *Frame {
	return &Frame{regs: regs}
}

func (f *Frame) PC() uint64     { return f.regs.RIP }
func (f *Frame) SetPC(v uint64) { f.regs.RIP = v }
func (f *Frame) SP() uint64     { return f.regs.RSP }
func (f *Frame) SetSP(v uint64) { f.regs.RSP = v }

// Arg follows the x86_64 syscall argument register order:
// rdi, rsi, rdx, r10, r8, r9.
func (f *Frame) Arg(i int) uint64 {
	switch i {
	case 0:
		return f.regs.RDI
	case 1:
		return f.regs.RSI
	case 2:
		return f.regs.RDX
	case 3:
		return f.regs.R10
	case 4:
		return f.regs.R8
	case 5:
		return f.regs.R9
	default:
		return 0
	}
}

func (f *Frame) SetArg(i int, v uint64) {
	switch i {
	case 0:
		f.regs.RDI = v
	case 1:
		f.regs.RSI = v
	case 2:
		f.regs.RDX = v
	case 3:
		f.regs.R10 = v
	case 4:
		f.regs.R8 = v
	case 5:
		f.regs.R9 = v
	}
}

func (f *Frame) ReturnValue() uint64     { return f.regs.RAX }
func (f *Frame) SetReturnValue(v uint64) { f.regs.RAX = v }
func (f *Frame) SyscallNumber() uint64   { return f.regs.RAX }

func (f *Frame) Privilege() hal.Privilege {
	// The CPL is carried in the low two bits of the CS selector.
	if f.regs.CS&0x3 == 0 {
		return ring0
	}
	return ring3
}

func (f *Frame) SetPrivilege(p hal.Privilege) {
	if p.IsKernel() {
		f.regs.CS &^= 0x3
	} else {
		f.regs.CS |= 0x3
	}
}

func (f *Frame) Cause() hal.TrapCause        { return f.cause }
func (f *Frame) PageFault() hal.PageFaultInfo { return f.pageFault }

// FaultKind maps the exception vector to the architecture-neutral fault
// class; meaningful only when Cause() == hal.CauseFault.
func (f *Frame) FaultKind() hal.FaultKind {
	switch f.regs.Vector {
	case vectorDivideByZero:
		return hal.FaultDivideByZero
	case vectorInvalidOpcode:
		return hal.FaultIllegalInstruction
	case vectorGeneralProtection:
		return hal.FaultGeneralProtection
	default:
		return hal.FaultOther
	}
}

// Vector is the IDT vector number this trap entered through, amd64-specific
// classification detail kernel/trap never needs (it only asks Cause()).
func (f *Frame) Vector() uint64 { return f.regs.Vector }

// IRQNumber reports the PIC-relative IRQ line (0-15) for a frame whose
// Cause is CauseExternalInterrupt, by subtracting the remapped base vector.
func (f *Frame) IRQNumber() int {
	if f.regs.Vector < vectorIRQBase {
		return -1
	}
	return int(f.regs.Vector - vectorIRQBase)
}

// SaveUserState snapshots the complete general-purpose file plus PC/SP into
// st, in the order userMode.Enter reads it back, so a forked child resumes
// with register-exact parent state.
func (f *Frame) SaveUserState(st *hal.UserState) {
	r := f.regs
	st.Regs = [31]uint64{
		r.R15, r.R14, r.R13, r.R12, r.R11, r.R10, r.R9, r.R8,
		r.RBP, r.RDI, r.RSI, r.RDX, r.RCX, r.RBX, r.RAX,
	}
	st.HasRegs = true
	st.ReturnValue = r.RAX
	st.PC = r.RIP
	st.SP = r.RSP
	for i := 0; i < 6; i++ {
		st.Args[i] = f.Arg(i)
	}
}

// SetCause lets the amd64 dispatcher glue (one per vector) stamp the frame
// with why it was built, before handing it to kernel/trap.
func (f *Frame) SetCause(c hal.TrapCause) { f.cause = c }

// SetPageFault decodes the x86_64 page-fault error code (bit 0: present,
// bit 1: write, bit 2: user, bit 4: instruction fetch) into the
// architecture-neutral hal.PageFaultInfo.
func (f *Frame) SetPageFault(addr uintptr, errorCode uint64) {
	f.pageFault = hal.PageFaultInfo{
		Addr:     addr,
		Present:  errorCode&0x1 != 0,
		Write:    errorCode&0x2 != 0,
		User:     errorCode&0x4 != 0,
		Reserved: errorCode&0x8 != 0,
		Exec:     errorCode&0x10 != 0,
	}
}
