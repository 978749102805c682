// Package trap is the architecture-independent trap and interrupt
// dispatcher. Every exception vector on every target funnels into Dispatch
// through hal.Trap: the HAL's entry stub builds an ExceptionFrame on the
// interrupted thread's kernel stack, classifies it, and hands it here.
// Dispatch routes the trap (timer tick to the scheduler, device IRQ to its
// registered handler, syscall to kernel/syscall's table, page fault to the
// resolver-or-signal path) and then runs the return-to-user gate just
// before the HAL restores the frame.
//
// Interrupts stay disabled for the entire dispatch; nested interrupts are
// not supported and the kernel is single-stacked per CPU.
package trap

import (
	"github.com/ryanbreen/breenix/kernel"
	"github.com/ryanbreen/breenix/kernel/errno"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem/pmm"
	"github.com/ryanbreen/breenix/kernel/mem/vmm"
	"github.com/ryanbreen/breenix/kernel/sched"
	"github.com/ryanbreen/breenix/kernel/trace"
	"gvisor.dev/gvisor/pkg/abi/linux"
)

// maxIRQ bounds the IRQ handler table. It covers both the 8259 PIC's 16
// lines and the GIC interrupt IDs QEMU's virt machine hands out for PPIs.
const maxIRQ = 64

var (
	irqHandlers [maxIRQ]func()

	// syscallFn is kernel/syscall's dispatch entry, registered at boot.
	// Until it is wired, a syscall trap answers ENOSYS rather than
	// panicking: the dispatcher's behavior must not depend on package
	// initialization order.
	syscallFn func(hal.ExceptionFrame)
)

// RegisterIRQHandler binds fn to irq. Each handler runs with interrupts
// disabled and must not block; EndOfInterrupt is Dispatch's job, not the
// handler's.
func RegisterIRQHandler(irq int, fn func()) {
	if irq < 0 || irq >= maxIRQ {
		kernel.Panic(&kernel.Error{Module: "trap", Message: "IRQ handler registration out of range"})
	}
	irqHandlers[irq] = fn
}

// RegisterSyscallHandler wires kernel/syscall's dispatch function.
func RegisterSyscallHandler(fn func(hal.ExceptionFrame)) {
	syscallFn = fn
}

// Init wires Dispatch as the HAL's trap entry. It must run before
// hal.CPU.EnableInterrupts is ever called.
func Init() {
	hal.Trap = Dispatch
}

func nowTicks() uint64 {
	if hal.SysTimer == nil {
		return 0
	}
	return hal.SysTimer.NowTicks()
}

// Dispatch is the single entry point named in the package comment. The
// frame it receives addresses live register state: every mutation a handler
// performs lands in the state the HAL restores when Dispatch returns.
func Dispatch(ef hal.ExceptionFrame) {
	fromUser := ef.Privilege().IsUser()

	switch ef.Cause() {
	case hal.CauseExternalInterrupt:
		irq := ef.IRQNumber()
		trace.IRQTotal.Inc()
		trace.Record(0, trace.IRQ, trace.IRQEntry, uint32(irq), nowTicks())
		if irq >= 0 && irq < maxIRQ && irqHandlers[irq] != nil {
			irqHandlers[irq]()
		}
		hal.Interrupts.EndOfInterrupt(irq)
		trace.Record(0, trace.IRQ, trace.IRQExit, uint32(irq), nowTicks())

	case hal.CauseSystemCall:
		trace.SyscallTotal.Inc()
		trace.Record(0, trace.Syscall, trace.SyscallEntry, uint32(ef.SyscallNumber()), nowTicks())
		if syscallFn != nil {
			syscallFn(ef)
		} else {
			enosys := int64(errno.ENOSYS)
			ef.SetReturnValue(uint64(-enosys))
		}
		trace.Record(0, trace.Syscall, trace.SyscallExit, uint32(ef.ReturnValue()), nowTicks())

	case hal.CausePageFault:
		handlePageFault(ef)

	case hal.CauseBreakpoint:
		if fromUser {
			raiseCurrent(linux.SIGTRAP)
		}
		// A kernel-mode breakpoint is a debugger artifact; resume past it.

	case hal.CauseFault:
		if fromUser {
			raiseCurrent(signalForFault(ef.FaultKind()))
		} else {
			kernel.Panic(&kernel.Error{Module: "trap", Message: "fault in kernel mode"})
		}
	}

	returnGate(ef, fromUser)
}

// signalForFault maps a non-page-fault CPU fault onto the POSIX signal a
// user process receives for it.
func signalForFault(kind hal.FaultKind) linux.Signal {
	switch kind {
	case hal.FaultDivideByZero:
		return linux.SIGFPE
	case hal.FaultIllegalInstruction:
		return linux.SIGILL
	default:
		return linux.SIGSEGV
	}
}

// raiseCurrent marks sig pending on the current process; the return gate
// this same trap runs through delivers it before the frame is restored.
func raiseCurrent(sig linux.Signal) {
	cur := sched.Current()
	if cur == nil || cur.Process == nil || cur.Process.Signals == nil {
		kernel.Panic(&kernel.Error{Module: "trap", Message: "user fault with no current process"})
	}
	cur.Process.Signals.Raise(sig)
}

// handlePageFault classifies and routes a page fault: a kernel-mode
// fault in a thread's guard page panics with a distinctive message, any
// other kernel-mode fault goes to the kernel resolver (heap demand paging)
// or panics; a user-mode fault is offered to the copy-on-write resolver and
// escalates to SIGSEGV if unresolvable.
func handlePageFault(ef hal.ExceptionFrame) {
	info := ef.PageFault()

	if !info.User {
		if cur := sched.Current(); cur != nil && cur.InGuardPage(info.Addr) {
			kernel.PanicGuardPageFault(uint64(cur.ID), info.Addr)
		}
		if err := vmm.KernelPageFaultHandler(info); err != nil {
			kernel.Panic(err)
		}
		return
	}

	cur := sched.Current()
	if cur == nil || cur.Process == nil || cur.Process.AddressSpace == nil {
		kernel.Panic(&kernel.Error{Module: "trap", Message: "user page fault with no current address space"})
	}
	err := vmm.ResolveUserPageFault(cur.Process.AddressSpace, info, allocFrame)
	if err != nil {
		cur.Process.Signals.Raise(linux.SIGSEGV)
	}
}

func allocFrame() (pmm.Frame, *kernel.Error) {
	if pmm.AllocFrame == nil {
		return 0, &kernel.Error{Module: "trap", Message: "frame allocator not wired"}
	}
	return pmm.AllocFrame()
}
