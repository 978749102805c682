package arm64

import (
	"unsafe"

	"github.com/ryanbreen/breenix/kernel/hal"
)

// contextOps implements hal.ContextOps for AArch64 by saving/restoring the
// AAPCS64 callee-saved registers (X19-X28, FP, LR) on the thread's own
// kernel stack, the same xv6-style "swtch" idiom kernel/hal/amd64 uses.
type contextOps struct{}

// Contexts is the package's singleton hal.ContextOps implementation.
var Contexts contextOps

// pendingEntry/pendingArg hand a brand-new thread's entry point to
// threadBootstrapGo; they are loaded from the incoming Context at Switch
// time, see kernel/hal/amd64/context_amd64.go for the rationale.
var (
	pendingEntry func(uintptr)
	pendingArg   uintptr
)

// savedRegs is the number of callee-saved registers switchContext's
// prologue pushes: X19-X28 (10) plus FP and LR.
const savedRegs = 12

// NewContext primes ctx's stack so that switchContext's final RET lands on
// threadBootstrap instead of returning to a real caller.
func (contextOps) NewContext(ctx *hal.Context, stackBase, stackSize uintptr, entry func(uintptr), arg uintptr) {
	top := (stackBase + stackSize) &^ 0xf

	// switchContext restores LR (X30) from the last of the savedRegs slots.
	frame := top - uintptr(8*savedRegs)
	words := (*[savedRegs]uintptr)(unsafe.Pointer(frame))
	for i := range words[:savedRegs-1] {
		words[i] = 0
	}
	words[savedRegs-1] = threadBootstrapAddr()

	ctx.SP = frame
	ctx.Entry, ctx.Arg = entry, arg
}

// Switch saves the calling thread's callee-saved registers and SP into
// prev, then loads next's SP and resumes there. See context_arm64.s.
func (contextOps) Switch(prev, next *hal.Context) {
	if next.Entry != nil {
		pendingEntry, pendingArg = next.Entry, next.Arg
		next.Entry = nil
	}
	switchContext(&prev.SP, &next.SP)
}

// switchContext has no Go body; see context_arm64.s.
func switchContext(prevSP, nextSP *uintptr)

// threadBootstrapAddr returns the address of the threadBootstrap symbol
// defined in context_arm64.s, for use as a synthetic return address.
func threadBootstrapAddr() uintptr

// threadBootstrapGo is called (with no arguments, from assembly) the first
// time a freshly created Context is switched into.
//
//go:nosplit
func threadBootstrapGo() {
	entry, arg := pendingEntry, pendingArg
	entry(arg)
	asmHalt()
}
