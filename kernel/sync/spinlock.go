// Package sync provides the kernel's only mutual-exclusion primitive: a
// spinlock built on hal.CPUOps.WithoutInterrupts. The busy-wait body gives
// up the rest of the waiting thread's quantum through kernel/sched's yield instead
// of spinning blind.
package sync

import (
	"sync/atomic"

	"github.com/ryanbreen/breenix/kernel/hal"
)

// SpinLock implements a lock where each thread trying to acquire it
// busy-waits until the lock becomes available. Every acquire/release runs
// inside hal.CPUOps.WithoutInterrupts: the lock is always held with interrupts masked, so a timer
// tick can never preempt the holder and deadlock against itself.
//
// Lock order: process table -> process -> signal -> FD table
// -> VFS. SpinLock does not enforce this; callers must respect it.
type SpinLock struct {
	state uint32
}

// yieldFn is overridden by kernel/sched's init to avoid an import cycle
// (kernel/sched needs kernel/sync, not the other way around); until sched
// wires it, busy-wait is a plain spin.
var yieldFn = func() {}

// SetYieldFn lets kernel/sched register its YieldNow so SpinLock.Acquire's
// busy-wait gives up the remainder of the current thread's quantum instead
// of spinning blind while interrupts are re-enabled between attempts.
func SetYieldFn(f func()) { yieldFn = f }

// withoutInterrupts is overridden by tests, which run with no HAL wired up
// (hal.CPU is nil outside a real build); automatically inlined otherwise.
var withoutInterrupts = func(f func()) { hal.CPU.WithoutInterrupts(f) }

// Acquire blocks until the lock can be acquired by the currently running
// thread. Re-acquiring a lock already held by the caller deadlocks.
func (l *SpinLock) Acquire() {
	for {
		acquired := false
		withoutInterrupts(func() {
			acquired = atomic.CompareAndSwapUint32(&l.state, 0, 1)
		})
		if acquired {
			return
		}
		yieldFn()
	}
}

// TryToAcquire attempts to acquire the lock without blocking, returning
// true if it succeeded.
func (l *SpinLock) TryToAcquire() bool {
	var acquired bool
	withoutInterrupts(func() {
		acquired = atomic.CompareAndSwapUint32(&l.state, 0, 1)
	})
	return acquired
}

// Release relinquishes a held lock. Calling Release on an unheld lock has
// no effect.
func (l *SpinLock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
