package kernel

import (
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/kfmt/early"
)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
	cpuHaltFn = func() { hal.CPU.Halt() }

	errRuntimePanic = &Error{Module: "rt", Message: "unknown cause"}
)

// Panic outputs the supplied error (if not nil) to the console and halts the
// CPU. Calls to Panic never return. Panic also works as a redirection target
// for calls to panic() (resolved via runtime.gopanic).
//
// Panic is the kernel's sole fatal error path: it is
// reserved for invariant violations (double free, kernel-mode page fault,
// corrupted run-queue, failed HAL contract) and never for user-recoverable
// conditions, which are converted to errno at the syscall boundary instead.
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	early.Printf("\n-----------------------------------\n")
	if err != nil {
		early.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	early.Printf("*** kernel panic: system halted ***")
	early.Printf("\n-----------------------------------\n")

	if hal.DebugExit != nil {
		hal.DebugExit(false)
	}
	cpuHaltFn()
}

// PanicGuardPageFault is the distinctive panic raised when a fault targets
// the unmapped guard page immediately below a kernel stack: overruns must
// halt loudly, never silently corrupt the adjacent stack.
func PanicGuardPageFault(threadID uint64, addr uintptr) {
	early.Printf("[proc] guard page fault: thread %d overran its kernel stack at 0x%x\n", threadID, addr)
	Panic(&Error{
		Module:  "proc",
		Message: "kernel stack guard page fault",
	})
}
