package kmain

import (
	"github.com/ryanbreen/breenix/kernel"
	"github.com/ryanbreen/breenix/kernel/goruntime"
	"github.com/ryanbreen/breenix/kernel/hal/amd64"
	"github.com/ryanbreen/breenix/kernel/mem/pmm"
	"github.com/ryanbreen/breenix/kernel/mem/pmm/allocator"
	"github.com/ryanbreen/breenix/kernel/mem/vmm"
	"github.com/ryanbreen/breenix/kernel/sched"
	"github.com/ryanbreen/breenix/kernel/trap"
)

// archMemInit brings up the two-phase physical allocator (bootmem, then
// the bitmap pool), the recursive page-table engine, and the Go runtime's
// allocator bootstrap, then publishes the live allocator through the
// kernel-wide pmm hooks.
func archMemInit(kernelStart, kernelEnd uintptr) *kernel.Error {
	if err := allocator.Init(kernelStart, kernelEnd); err != nil {
		return err
	}
	if err := vmm.Init(); err != nil {
		return err
	}
	if err := goruntime.Init(); err != nil {
		return err
	}

	pmm.AllocFrame = allocator.AllocFrame
	pmm.FreeFrame = allocator.FreeFrame
	amd64.SetFrameAllocator(allocator.AllocFrame)
	return nil
}

// archIRQInit installs the IDT, remaps the 8259 PIC, programs the PIT,
// and routes IRQ0 to the timer tick.
func archIRQInit() {
	amd64.Init()
	trap.RegisterIRQHandler(0, func() {
		amd64.TickIRQ0()
		sched.Tick()
	})
}
