package arm64

import "github.com/ryanbreen/breenix/kernel/hal"

// ESR_EL1 exception class (EC) values this dispatcher recognizes.
const (
	ecSVC64             = 0x15
	ecInstrAbortLowerEL = 0x20
	ecInstrAbortSameEL  = 0x21
	ecDataAbortLowerEL  = 0x24
	ecDataAbortSameEL   = 0x25
	ecBRK64             = 0x3c
)

func esrEC(esr uint64) uint64 { return (esr >> 26) & 0x3f }

// dfscClass returns the ESR_EL1.ISS data/instruction fault status code
// (bits 5:0). Its low 2 bits give the faulting level; with them masked off
// by dfscTranslationFaultMask, 0x04 is a translation fault and 0x0c a
// permission fault.
func dfscClass(esr uint64) uint64 { return esr & 0x3f }

const (
	dfscTranslationFaultMask = 0x3c // clears the two level bits
	dfscTranslationFault     = 0x04
	dfscPermissionFault      = 0x0c
)

// wnr is ESR_EL1.ISS bit 6 for a data abort: 1 when the faulting access was
// a write.
func wnr(esr uint64) bool { return esr&(1<<6) != 0 }

// lidt has no AArch64 equivalent; VBAR_EL1 plays the same role. writeVBAR
// has no Go body; see trap_arm64.s.
func writeVBAR(addr uintptr)

// vectorTableAddr returns the address of the exception vector table trap_arm64.s
// defines, for installVectors to load into VBAR_EL1.
func vectorTableAddr() uintptr

// installVectors loads VBAR_EL1 with this package's exception vector
// table: AArch64's single entry point per exception class, one table of
// sixteen 128-byte slots rather than x86_64's 256-entry IDT.
func installVectors() {
	writeVBAR(vectorTableAddr())
}

// currentRegs hands trapEntry's saved register block to trapDispatchGo.
// See kernel/hal/amd64/trap_amd64.go's currentRegs for why a single
// package-level slot is safe given the no-nested-interrupts rule.
var currentRegs *Regs

// currentIsIRQ is set by each vector-table entry (trap_arm64.s) before it
// branches to trapEntry, so trapDispatchGo knows whether it landed
// via the IRQ slot or the synchronous-exception slot without having to
// infer it from ESR_EL1, which IRQ entry never populates meaningfully.
var currentIsIRQ bool

// trapDispatchGo is called (with no arguments, from assembly) by
// trapEntry once the register file is safely saved on the stack.
//
//go:nosplit
func trapDispatchGo() {
	regs := currentRegs
	frame := NewFrame(regs)
	classify(frame, regs, currentIsIRQ)

	if hal.Trap != nil {
		hal.Trap(frame)
	}
}

// classify fills in frame's Cause (and PageFault, when applicable) from the
// ESR_EL1 value trapEntry captured. isIRQ tells whether an IRQ slot or a
// synchronous-exception slot of the vector table landed here;
// for IRQ entries the cause is always CauseExternalInterrupt regardless of
// ESR, which is only meaningful for synchronous entries.
// TimerVector is the GIC interrupt ID QEMU virt wires the non-secure EL1
// physical timer (the one timer_arm64.go programs) to as a PPI.
const TimerVector = 30

// SyscallVector has no AArch64 analogue: SVC64 is recognized by ESR_EL1's
// exception class, not a vector number, so kernel/trap tells syscalls from
// other synchronous traps via Cause() == hal.CauseSystemCall alone.

func classify(f *Frame, r *Regs, isIRQ bool) {
	if isIRQ {
		f.SetCause(hal.CauseExternalInterrupt)
		f.SetIRQ(AckInterrupt())
		return
	}

	ec := esrEC(r.ESR)
	switch ec {
	case ecSVC64:
		f.SetCause(hal.CauseSystemCall)
	case ecDataAbortLowerEL, ecDataAbortSameEL, ecInstrAbortLowerEL, ecInstrAbortSameEL:
		f.SetCause(hal.CausePageFault)
		class := dfscClass(r.ESR) &^ 0x3
		present := class == dfscPermissionFault&^0x3
		isExec := ec == ecInstrAbortLowerEL || ec == ecInstrAbortSameEL
		f.SetPageFault(wnr(r.ESR), present, isExec)
	case ecBRK64:
		f.SetCause(hal.CauseBreakpoint)
	default:
		f.SetCause(hal.CauseFault)
	}
}
