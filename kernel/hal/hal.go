// Package hal defines the hardware abstraction layer capability surface.
// The core kernel (mem, trap, proc, sched,
// syscall, signal, trace) imports only the interfaces in this package; it
// never names an architecture-specific type directly. Exactly one concrete
// implementation is wired per build target (kernel/hal/amd64,
// kernel/hal/arm64), selected at compile time by Go build tags so that
// interrupt entry and context switch never pay for dynamic dispatch.
package hal

import "time"

// Privilege is the two-valued privilege level the HAL maps onto
// Ring0/Ring3 (x86_64) or EL1/EL0 (AArch64).
type Privilege interface {
	IsKernel() bool
	IsUser() bool
}

// PrivilegeOps resolves the canonical kernel/user privilege values for the
// active architecture.
type PrivilegeOps interface {
	Kernel() Privilege
	User() Privilege
}

// TrapCause classifies why control entered the dispatcher.
type TrapCause int

const (
	CauseExternalInterrupt TrapCause = iota
	CauseSystemCall
	CausePageFault
	CauseFault
	CauseBreakpoint
)

// FaultKind refines CauseFault into the handful of classes the dispatcher
// maps onto signals for a user-mode trap.
type FaultKind int

const (
	FaultOther FaultKind = iota
	FaultDivideByZero
	FaultIllegalInstruction
	FaultGeneralProtection
)

// PageFaultInfo carries the architecture-neutral page fault classification
// bits (user/kernel, read/write/exec, present/not-present).
type PageFaultInfo struct {
	Addr     uintptr
	User     bool
	Write    bool
	Exec     bool
	Present  bool
	Reserved bool // reserved bit set in the page table entry
}

// ExceptionFrame is the architecture-neutral view of CPU state captured at
// trap entry. Reads are pure; writes take
// effect the next time the HAL restores and returns from the frame.
type ExceptionFrame interface {
	PC() uint64
	SetPC(uint64)
	SP() uint64
	SetSP(uint64)

	// Arg/SetArg read or write one of the architecture's syscall-argument
	// registers by ABI position (0..5).
	Arg(i int) uint64
	SetArg(i int, v uint64)

	// ReturnValue/SetReturnValue address the register that carries a
	// syscall's return value (rax on x86_64, x0 on AArch64).
	ReturnValue() uint64
	SetReturnValue(v uint64)

	SyscallNumber() uint64

	Privilege() Privilege
	SetPrivilege(Privilege)

	// Cause and PageFault describe why the dispatcher was entered; only
	// PageFault is meaningful when Cause() == CausePageFault, and only
	// FaultKind when Cause() == CauseFault.
	Cause() TrapCause
	PageFault() PageFaultInfo
	FaultKind() FaultKind

	// IRQNumber identifies which interrupt line fired; only meaningful when
	// Cause() == CauseExternalInterrupt. It is the value kernel/trap passes
	// to InterruptController.EndOfInterrupt and uses to index its IRQ
	// handler table. amd64 derives it from the IDT vector; arm64 derives it
	// from the GICC_IAR read the entry stub already performed.
	IRQNumber() int
}

// PageFlags is an opaque, architecture-specific bitset of mapping
// permissions (present, writable, user-accessible, no-execute, ...). The
// core never inspects individual bits; it composes flag values exported
// by the concrete HAL package (e.g. hal/amd64.FlagRW).
type PageFlags uint64

// PageTableOps is the HAL's page table mutation/query surface. All
// addresses are virtual unless named pa/Frame.
type PageTableOps interface {
	// Map creates a new mapping from va to the frame at pa with the
	// given flags. It does not check for an existing mapping at va; one
	// that is already present is replaced.
	Map(root uintptr, va uintptr, pa uintptr, flags PageFlags) error
	// Unmap removes the mapping for va and returns the physical address
	// that was mapped there.
	Unmap(root uintptr, va uintptr) (pa uintptr, err error)
	// Protect narrows or widens the permission flags for va.
	Protect(root uintptr, va uintptr, flags PageFlags) error
	// Translate returns the current mapping for va.
	Translate(root uintptr, va uintptr) (pa uintptr, flags PageFlags, err error)
	// Activate loads root as the current address space's root table and
	// performs a full TLB invalidation.
	Activate(root uintptr)
	// InvalidatePage invalidates a single TLB entry for va.
	InvalidatePage(va uintptr)
	// NewRootTable allocates a fresh root page table with the kernel-half
	// entries copied from the canonical kernel table and the user half
	// empty, returning its physical address.
	NewRootTable() (uintptr, error)
	// SetKernelRoot marks root as the canonical kernel table whose
	// kernel-half entries NewRootTable copies into every address space
	// created afterwards. Called exactly once, by
	// kernel/mem/vmm.BootstrapKernelAddressSpace.
	SetKernelRoot(root uintptr)

	// IsUserAccessible and IsWritable report whether flags, as returned by
	// Translate, permits user-mode access and write access respectively;
	// kernel/uaccess's pointer validation walks mappings through these two
	// predicates instead of decoding the architecture's flag encoding.
	IsUserAccessible(flags PageFlags) bool
	IsWritable(flags PageFlags) bool

	// IsCopyOnWrite reports whether flags, as returned by Translate, marks
	// a lazily-shared page kernel/mem/vmm's page-fault resolver should
	// copy on the next write instead of treating as a segfault.
	IsCopyOnWrite(flags PageFlags) bool
	// Writable clears the copy-on-write bit and sets the writable bit,
	// the transformation applied once a CoW fault has been resolved by
	// giving the faulting address space its own private frame.
	Writable(flags PageFlags) PageFlags
	// UserAccessible sets the user-access bit; the core composes user
	// mapping flags from Writable/UserAccessible instead of naming any
	// architecture's flag constants.
	UserAccessible(flags PageFlags) PageFlags
	// MakeCopyOnWrite clears the writable bit and sets the copy-on-write
	// bit, the transformation fork applies to every writable page it
	// shares between parent and child.
	MakeCopyOnWrite(flags PageFlags) PageFlags
}

// PerCPU resolves the current CPU's private data block in O(1). On the
// single-logical-CPU configuration this kernel targets it always resolves
// to CPU 0, but the indirection is kept so per-CPU state (run queue,
// trace ring, tick counters) stays correctly scoped if SMP is ever
// enabled.
type PerCPU interface {
	ID() int
	Count() int
}

// InterruptController is the HAL's IRQ routing surface.
type InterruptController interface {
	Mask(vector int)
	Unmask(vector int)
	// EndOfInterrupt acknowledges vector; idempotent per received IRQ.
	EndOfInterrupt(vector int)
}

// Timer is the HAL's monotonic clock + oneshot programming surface.
type Timer interface {
	NowTicks() uint64
	Frequency() uint64
	SetOneshot(d time.Duration)
}

// CPUOps is the HAL's interrupt-mask/halt/mutual-exclusion surface. It is
// the only primitive the core uses for mutual exclusion against
// interrupts.
type CPUOps interface {
	EnableInterrupts()
	DisableInterrupts()
	InterruptsEnabled() bool
	Halt()
	HaltWithInterrupts()
	// WithoutInterrupts runs f with interrupts masked, restoring the
	// prior enabled/disabled state on every exit path, including a
	// panic unwinding through f.
	WithoutInterrupts(f func())
}

// Context is the CPU register save area behind ContextOps.Switch, the
// single low-level operation a context switch is built from. Its only
// portable field is the saved stack pointer: the
// callee-saved registers themselves live on the owning thread's own kernel
// stack, just below SP, in a layout only the architecture's Switch
// implementation ever reads or writes. kernel/proc embeds one Context per
// Thread and never inspects it beyond taking its address.
type Context struct {
	SP uintptr

	// Entry and Arg carry a fresh thread's entry point from NewContext to
	// the first Switch into this context, which consumes them (clearing
	// Entry) before resuming the thread. Holding them per-context rather
	// than in a package global means any number of threads can be created
	// before the first of them ever runs.
	Entry func(uintptr)
	Arg   uintptr
}

// ContextOps is the HAL's context-switch capability. Exactly one call
// switches a CPU from running one thread to running another: it saves the
// outgoing thread's callee-saved registers into prev, switches the stack,
// and resumes at the point recorded in next. kernel/sched is the only core
// package that calls it, and it does so without an intervening interface
// dispatch on the hot path by holding the single resolved implementation
// directly (see kernel/hal/amd64.Contexts, kernel/hal/arm64.Contexts).
type ContextOps interface {
	// NewContext primes ctx so that the first Switch into it begins
	// execution at entry(arg), running on the stack
	// [stackBase, stackBase+stackSize).
	NewContext(ctx *Context, stackBase, stackSize uintptr, entry func(uintptr), arg uintptr)
	// Switch saves the calling thread's state into prev and resumes the
	// thread described by next. It returns to its caller only when some
	// other thread later switches back into prev.
	Switch(prev, next *Context)
}

// UserState is the register state a thread first enters user mode with. A
// spawn or exec fills PC, SP, and the ABI argument registers; fork instead
// snapshots the parent's complete general-purpose file (via the concrete
// frame's SaveUserState) so the child resumes with register-exact state.
// Regs uses the architecture's own register-file layout; the core never
// indexes into it.
type UserState struct {
	PC   uint64
	SP   uint64
	Args [6]uint64

	Regs    [31]uint64
	HasRegs bool

	// ReturnValue overrides the ABI return register when HasRegs is set;
	// fork uses it to hand the child its 0 while the parent's snapshot
	// still carries the parent's own return value.
	ReturnValue uint64
}

// UserModeOps drops the calling thread into user mode with the given
// state. Enter never returns: the thread's next transition back into the
// kernel is a trap: a user thread is entered by returning from a trap
// into user mode, never by a call.
type UserModeOps interface {
	Enter(st *UserState)
}

// Package-level singletons wired by the concrete per-architecture package
// init() (kernel/hal/amd64, kernel/hal/arm64). The core never constructs
// these itself; it only ever calls through them.
var (
	CPU        CPUOps
	Privileges PrivilegeOps
	PageTable  PageTableOps
	PerCpu     PerCPU
	Interrupts InterruptController
	SysTimer   Timer
	Contexts   ContextOps
	User       UserModeOps
)

// DebugExit signals a test-harness emulator that the kernel is done,
// successfully or not, via whatever exit device the target offers. Nil on
// targets without one; kernel.Panic reports failure through it when wired.
var DebugExit func(success bool)

// Trap is the single entry point every architecture's assembly trap
// trampoline calls through once it has built an ExceptionFrame.
// kernel/trap.Init wires this during boot; it must be set before
// hal.CPU.EnableInterrupts is ever called, and it never returns to its
// caller by any path other than the trampoline's own IRETQ/ERET.
var Trap func(ExceptionFrame)
