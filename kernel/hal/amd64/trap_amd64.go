package amd64

import (
	"unsafe"

	"github.com/ryanbreen/breenix/kernel/hal"
)

// Vector numbers this kernel assigns meaning to. 0-31 are the
// architecturally-defined exception range; 32-47 are the 8259 PIC's IRQ
// lines after pic_amd64.go's remap; 128 (0x80) is the x86_64 syscall gate.
const (
	vectorDivideByZero      = 0
	vectorBreakpoint        = 3
	vectorInvalidOpcode     = 6
	vectorGeneralProtection = 13
	vectorPageFault         = 14
	vectorIRQBase           = 32
	vectorIRQCount          = 16
	vectorTimer             = vectorIRQBase // IRQ0
	vectorSyscall           = 0x80
)

// kernelCodeSelector is the ring-0 code segment selector the boot handoff's
// GDT establishes; 0x08 is the conventional second GDT entry a flat-model long-mode
// loader sets up, matching every IDT gate this package installs.
const kernelCodeSelector = 0x08

// idtEntry is one 16-byte long-mode IDT gate descriptor.
type idtEntry struct {
	offsetLow  uint16
	selector   uint16
	istAndZero uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

const (
	idtSize            = 256
	gateInterruptDPL0  = 0x8E // present, DPL0, 64-bit interrupt gate
	gateInterruptDPL3  = 0xEE // present, DPL3, 64-bit interrupt gate (int 0x80 from ring3)
)

var idt [idtSize]idtEntry

func (e *idtEntry) set(addr uintptr, selector uint16, typeAttr uint8) {
	e.offsetLow = uint16(addr)
	e.selector = selector
	e.istAndZero = 0
	e.typeAttr = typeAttr
	e.offsetMid = uint16(addr >> 16)
	e.offsetHigh = uint32(addr >> 32)
	e.reserved = 0
}

// idtr is the 10-byte pseudo-descriptor LIDT loads: a 16-bit limit followed
// by a 64-bit base address.
type idtr struct {
	limit uint16
	base  uint64
}

// lidt has no Go body; see trap_amd64.s.
func lidt(descriptor uintptr)

// readCR2 returns the faulting address latched by the last page fault; see
// trap_amd64.s.
func readCR2() uintptr

// installIDT populates every vector this package assigns a stub to and
// loads the IDT. Vectors
// with no stub are left non-present: a trap through one of those is a
// kernel-fatal condition the CPU turns into a triple fault rather than
// something this kernel recovers from.
func installIDT() {
	for vector, addrFn := range vectorStubAddr {
		dpl := uint8(gateInterruptDPL0)
		if vector == vectorSyscall {
			dpl = gateInterruptDPL3
		}
		idt[vector].set(addrFn(), kernelCodeSelector, dpl)
	}

	desc := idtr{
		limit: uint16(unsafe.Sizeof(idt) - 1),
		base:  uint64(uintptr(unsafe.Pointer(&idt[0]))),
	}
	lidt(uintptr(unsafe.Pointer(&desc)))
}

// currentRegs hands trapCommon's saved register block to trapDispatchGo.
// A single package-level slot is safe because nested interrupts are not
// supported (the kernel is single-stacked per CPU): the slot is
// consumed before any other trap could overwrite it, the same reasoning
// context_amd64.go's pendingEntry/pendingArg pair already relies on.
var currentRegs *Regs

// trapDispatchGo is called (with no arguments, from assembly) by
// trapCommon once the register file is safely saved on the stack. It
// classifies the trap and calls through to hal.Trap,
// which kernel/trap.Init has wired to the architecture-neutral dispatcher.
// Any field trap.Init's handler mutates on the frame is written straight
// back into the live Regs block trapCommon is about to restore.
//
//go:nosplit
func trapDispatchGo() {
	regs := currentRegs
	frame := NewFrame(regs)
	classify(frame, regs)

	if hal.Trap != nil {
		hal.Trap(frame)
	}
}

// classify fills in frame's Cause (and PageFault, when applicable) from the
// vector number and error code the entry stub captured.
func classify(f *Frame, r *Regs) {
	switch {
	case r.Vector == vectorSyscall:
		f.SetCause(hal.CauseSystemCall)
	case r.Vector == vectorPageFault:
		f.SetCause(hal.CausePageFault)
		f.SetPageFault(readCR2(), r.ErrorCode)
	case r.Vector == vectorBreakpoint:
		f.SetCause(hal.CauseBreakpoint)
	case r.Vector < vectorIRQBase:
		f.SetCause(hal.CauseFault)
	default:
		f.SetCause(hal.CauseExternalInterrupt)
	}
}

// TimerVector is the IDT vector the PIT's IRQ0 arrives on, exported so
// kernel/trap can recognize the timer tick without naming amd64 PIC
// internals itself beyond this one constant.
const TimerVector = vectorTimer

// SyscallVector is the IDT vector x86_64's syscall gate (`int 0x80`)
// enters through.
const SyscallVector = vectorSyscall
