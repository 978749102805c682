// Package amd64 is the x86_64 implementation of the kernel/hal capability
// surface. It is the only package in the tree allowed to
// know about rings, the IDT, CR3, or raw port I/O.
package amd64

// cpuOps implements hal.CPUOps for x86_64. It carries no state: the actual
// interrupt-enable flag lives in EFLAGS, not in Go memory.
type cpuOps struct{}

// CPU is the package's singleton hal.CPUOps implementation, wired into
// hal.CPU by init().
var CPU cpuOps

// The following functions have no Go body; their implementations live in
// cpu_amd64.s, the package's no-body-plus-assembly convention.

func asmEnableInterrupts()
func asmDisableInterrupts()
func asmInterruptsEnabled() bool
func asmHalt()
func asmHaltWithInterrupts()

// outb/inb back the PIC and PIT port I/O in pic_amd64.go/timer_amd64.go.
func outb(port uint16, val uint8)
func inb(port uint16) uint8

func (cpuOps) EnableInterrupts()  { asmEnableInterrupts() }
func (cpuOps) DisableInterrupts() { asmDisableInterrupts() }
func (cpuOps) InterruptsEnabled() bool {
	return asmInterruptsEnabled()
}
func (cpuOps) Halt()              { asmHalt() }
func (cpuOps) HaltWithInterrupts() { asmHaltWithInterrupts() }

// WithoutInterrupts runs f with interrupts masked and restores the prior
// enabled/disabled state on every exit path, including a panic unwinding
// through f. This is the sole mutual-exclusion primitive the core uses
//; kernel/sync.SpinLock is built on top of it.
func (c cpuOps) WithoutInterrupts(f func()) {
	wasEnabled := c.InterruptsEnabled()
	c.DisableInterrupts()
	defer func() {
		if wasEnabled {
			c.EnableInterrupts()
		}
	}()
	f()
}
