package kmain

import (
	"github.com/ryanbreen/breenix/kernel"
	"github.com/ryanbreen/breenix/kernel/hal/arm64"
	"github.com/ryanbreen/breenix/kernel/sched"
	"github.com/ryanbreen/breenix/kernel/trap"
)

// archMemInit on AArch64: the direct physical map established by the boot
// stub backs page-table access, so there is no recursive-mapping engine to
// bring up; the frame allocator hooks are wired by the boot stub before
// Kmain runs.
func archMemInit(kernelStart, kernelEnd uintptr) *kernel.Error {
	return nil
}

// archIRQInit installs the exception vector table, brings up the GICv2,
// programs the generic timer, and routes its PPI to the timer tick.
func archIRQInit() {
	arm64.Init()
	trap.RegisterIRQHandler(arm64.TimerVector, func() {
		arm64.TimerTick()
		sched.Tick()
	})
}
