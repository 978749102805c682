package amd64

import (
	"unsafe"

	"github.com/ryanbreen/breenix/kernel/hal"
)

// contextOps implements hal.ContextOps for x86_64 by saving/restoring the
// System V callee-saved registers (RBX, RBP, R12-R15) on the thread's own
// kernel stack, exactly the xv6-style "swtch" idiom: the only thing that
// crosses from one thread's call frame to the next is a stack pointer.
type contextOps struct{}

// Contexts is the package's singleton hal.ContextOps implementation.
var Contexts contextOps

// pendingEntry/pendingArg hand a brand-new thread's entry point to
// threadBootstrapGo. They are loaded from the incoming Context at Switch
// time, immediately before the stack changes hands, so any number of
// threads can be created before the first of them runs; this kernel's
// single logical CPU guarantees the slot is
// consumed before another Switch can overwrite it.
var (
	pendingEntry func(uintptr)
	pendingArg   uintptr
)

// NewContext primes ctx's stack so that switchContext's RET lands on
// threadBootstrap instead of returning to a real caller, handing control
// to threadBootstrapGo, which invokes entry(arg).
func (contextOps) NewContext(ctx *hal.Context, stackBase, stackSize uintptr, entry func(uintptr), arg uintptr) {
	top := (stackBase + stackSize) &^ 0xf

	// switchContext's epilogue pops 6 callee-saved registers (RBX, RBP,
	// R12-R15) before RET; reserve that much space below the synthetic
	// return address so the first Switch into ctx pops harmless zeroes
	// into them instead of reading off the end of the stack.
	const savedRegs = 6
	frame := top - uintptr(8*(savedRegs+1))
	words := (*[savedRegs + 1]uintptr)(unsafe.Pointer(frame))
	for i := range words[:savedRegs] {
		words[i] = 0
	}
	words[savedRegs] = threadBootstrapAddr()

	ctx.SP = frame
	ctx.Entry, ctx.Arg = entry, arg
}

// Switch saves the calling thread's callee-saved registers and RSP into
// prev, then loads next's RSP and pops its callee-saved registers,
// resuming execution there. See context_amd64.s.
func (contextOps) Switch(prev, next *hal.Context) {
	if next.Entry != nil {
		pendingEntry, pendingArg = next.Entry, next.Arg
		next.Entry = nil
	}
	switchContext(&prev.SP, &next.SP)
}

// switchContext has no Go body; see context_amd64.s.
func switchContext(prevSP, nextSP *uintptr)

// threadBootstrapAddr returns the address of the threadBootstrap symbol
// defined in context_amd64.s, for use as a synthetic return address in
// NewContext. Go forbids taking a function value's code pointer directly,
// so the address is produced by a tiny asm stub instead, the same
// no-body-plus-assembly convention used throughout this package.
func threadBootstrapAddr() uintptr

// threadBootstrapGo is called (with no arguments, from assembly) the first
// time a freshly created Context is switched into. It hands off to the
// entry function recorded by NewContext and halts if that function ever
// returns, since a kernel/user thread's entry point must not.
//
//go:nosplit
func threadBootstrapGo() {
	entry, arg := pendingEntry, pendingArg
	entry(arg)
	asmHalt()
}
