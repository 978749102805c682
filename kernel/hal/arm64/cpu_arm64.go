// Package arm64 is the AArch64 implementation of the kernel/hal capability
// surface, mirroring kernel/hal/amd64's structure: one
// concrete type per capability, wired into the hal singletons by init().
package arm64

// cpuOps implements hal.CPUOps for AArch64 via the DAIF interrupt mask bits
// (PSTATE.I gates IRQs) instead of x86_64's single EFLAGS.IF bit.
type cpuOps struct{}

// CPU is the package's singleton hal.CPUOps implementation.
var CPU cpuOps

func asmEnableInterrupts()
func asmDisableInterrupts()
func asmInterruptsEnabled() bool
func asmHalt()
func asmHaltWithInterrupts()

func (cpuOps) EnableInterrupts()       { asmEnableInterrupts() }
func (cpuOps) DisableInterrupts()      { asmDisableInterrupts() }
func (cpuOps) InterruptsEnabled() bool { return asmInterruptsEnabled() }
func (cpuOps) Halt()                   { asmHalt() }
func (cpuOps) HaltWithInterrupts()     { asmHaltWithInterrupts() }

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
