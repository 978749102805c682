// Package sched implements the preemptive, priority-free round-robin
// scheduler: a single ready queue per CPU, context
// switch through hal.ContextOps, and the block/unblock/yield/tick/exit
// surface kernel/trap and kernel/syscall call into.
package sched

import (
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem/pmm"
	"github.com/ryanbreen/breenix/kernel/mem/vmm"
	"github.com/ryanbreen/breenix/kernel/proc"
	"github.com/ryanbreen/breenix/kernel/sync"
	"github.com/ryanbreen/breenix/kernel/trace"
)

// Quantum is the compile-time tick count a thread runs before tick()
// requests a reschedule. Quantum length is a compile-time constant.
const Quantum = 10

// AllocStack is wired at Init time to the kernel stack allocator
// kernel/kmain sets up (a fixed pool carved out of the kernel half, each
// entry bracketed by an unmapped guard page).
var AllocStack func(size uintptr) (uintptr, error)

type node struct {
	thread *proc.Thread
	next   *node
}

// runQueue is a singly-linked FIFO; SMP is out of scope, so one run queue
// for the single logical CPU this kernel targets is sufficient.
type runQueue struct {
	head, tail *node
}

func (q *runQueue) push(t *proc.Thread) {
	n := &node{thread: t}
	if q.tail == nil {
		q.head, q.tail = n, n
		return
	}
	q.tail.next = n
	q.tail = n
}

func (q *runQueue) pop() *proc.Thread {
	if q.head == nil {
		return nil
	}
	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	return n.thread
}

var (
	lock sync.SpinLock

	ready runQueue

	current        *proc.Thread
	quantumLeft    int
	rescheduleFlag bool

	// idle runs whenever the ready queue is empty; it is never itself
	// placed on the ready queue.
	idle *proc.Thread
)

// Init wires AllocStack and creates the idle thread. kernel/kmain calls
// this once, after kernel/mem is initialized and before enabling
// interrupts.
func Init(allocStack func(size uintptr) (uintptr, error)) error {
	AllocStack = allocStack
	sync.SetYieldFn(YieldNow)

	_, th, err := proc.NewKernelProcess(idleLoop, 0, AllocStack)
	if err != nil {
		return err
	}
	idle = th
	current = th
	quantumLeft = Quantum
	return nil
}

func idleLoop(uintptr) {
	for {
		hal.CPU.HaltWithInterrupts()
	}
}

// Current returns the thread presently running on this CPU.
func Current() *proc.Thread {
	return current
}

// SpawnKernelThread creates a kernel thread running entry(arg) and places
// it on the ready queue.
func SpawnKernelThread(entry func(uintptr), arg uintptr) (proc.ThreadID, error) {
	_, th, err := proc.NewKernelProcess(entry, arg, AllocStack)
	if err != nil {
		return 0, err
	}
	lock.Acquire()
	ready.push(th)
	lock.Release()
	return th.ID, nil
}

// SpawnUserProcess creates a user process owning addrSpace with one thread
// that first enters user mode at entry with the given user stack top and
// ABI argument registers, and places it on the ready queue.
func SpawnUserProcess(parent *proc.Process, addrSpace *vmm.AddressSpace, entry, stackTop uintptr, args [6]uint64) (proc.ProcessID, error) {
	p, th, err := proc.NewUserProcess(parent, addrSpace, AllocStack)
	if err != nil {
		return 0, err
	}
	th.User.PC = uint64(entry)
	th.User.SP = uint64(stackTop)
	th.User.Args = args

	lock.Acquire()
	ready.push(th)
	lock.Release()
	return p.ID, nil
}

// EnqueueThread places an already-constructed thread (fork's child) on the
// ready queue.
func EnqueueThread(th *proc.Thread) {
	lock.Acquire()
	ready.push(th)
	lock.Release()
}

// pickNext pops the next ready thread, or idle if the queue is empty.
// Caller must hold lock.
func pickNext() *proc.Thread {
	if t := ready.pop(); t != nil {
		return t
	}
	return idle
}

// switchTo performs the actual context switch away from current to next,
// including the address-space switch when the owning process changes. The
// new address space is activated before hal.Contexts.Switch, while still
// on prev's kernel stack; it is not deferred until after the kernel stack
// switch. Both steps run in the kernel half every address space shares.
// Caller must have already updated `current` and released lock.
func switchTo(prev, next *proc.Thread) {
	trace.Record(0, trace.Sched, trace.SchedPick, uint32(next.ID), 0)
	if next.Process != nil && next.Process.AddressSpace != nil &&
		(prev.Process == nil || prev.Process.AddressSpace != next.Process.AddressSpace) {
		next.Process.AddressSpace.Activate()
	}
	hal.Contexts.Switch(&prev.Context, &next.Context)
}

// YieldNow puts current at the tail of the ready queue and picks next.
func YieldNow() {
	lock.Acquire()
	prev := current
	if prev != idle {
		ready.push(prev)
	}
	next := pickNext()
	current = next
	quantumLeft = Quantum
	lock.Release()

	if next != prev {
		switchTo(prev, next)
	}
}

// Block implements block(reason): dequeue current, park it, pick next.
// The caller is responsible for recording reason on current's process
// before or after calling Block; Block only performs the switch.
func Block() {
	lock.Acquire()
	prev := current
	next := pickNext()
	current = next
	quantumLeft = Quantum
	lock.Release()

	switchTo(prev, next)
}

// Unblock implements unblock(tid): move th from blocked to ready. The
// caller has already verified th was blocked.
func Unblock(th *proc.Thread) {
	lock.Acquire()
	ready.push(th)
	lock.Release()
}

// Tick implements tick(): called from the timer IRQ handler once per timer
// interrupt. It decrements the current thread's quantum and latches a
// reschedule request on expiry; the actual switch happens at the
// return-to-user gate.
func Tick() {
	trace.Record(0, trace.Sched, trace.SchedResched, 0, 0)
	lock.Acquire()
	quantumLeft--
	if quantumLeft <= 0 {
		rescheduleFlag = true
	}
	lock.Release()
}

// RescheduleRequested reports and clears the latched reschedule flag; the
// return-to-user gate (kernel/trap) calls this exactly once per trap
// return.
func RescheduleRequested() bool {
	lock.Acquire()
	r := rescheduleFlag
	rescheduleFlag = false
	lock.Release()
	return r
}

// Reschedule performs the switch RescheduleRequested's caller asked for:
// put current at the tail of ready (if it is still runnable) and pick
// next.
func Reschedule() {
	YieldNow()
}

// ExitCurrent implements exit_current(status): mark the current process a
// zombie, release its resources, wake any waiters, and pick next. It does
// not return.
func ExitCurrent(status int, regions []vmm.Region, freeFrame func(pmm.Frame)) {
	prev := current
	if prev.Process != nil {
		prev.Process.Exit(status, regions, freeFrame)
	}

	lock.Acquire()
	next := pickNext()
	current = next
	quantumLeft = Quantum
	lock.Release()

	switchTo(prev, next)
	panic("sched: ExitCurrent returned")
}
