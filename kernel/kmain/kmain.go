// Package kmain drives kernel initialization: memory management first,
// then the trap dispatcher, the syscall table, and the scheduler, in an
// order where each subsystem's dependencies are live before it is. The
// architecture-specific halves (allocator bring-up, interrupt controller
// and timer programming) live in the per-target files alongside this one.
package kmain

import (
	"github.com/ryanbreen/breenix/kernel"
	"github.com/ryanbreen/breenix/kernel/fd"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/hal/multiboot"
	"github.com/ryanbreen/breenix/kernel/kfmt/early"
	"github.com/ryanbreen/breenix/kernel/mem"
	"github.com/ryanbreen/breenix/kernel/mem/pmm"
	"github.com/ryanbreen/breenix/kernel/mem/vmm"
	"github.com/ryanbreen/breenix/kernel/sched"
	"github.com/ryanbreen/breenix/kernel/syscall"
	"github.com/ryanbreen/breenix/kernel/trap"
)

// kernelAS is the canonical kernel address space every process's kernel
// half is copied from.
var kernelAS *vmm.AddressSpace

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. This function is invoked by the rt0 assembly code
// after setting up the GDT and setting up a minimal g0 struct that allows
// Go code to use the small stack allocated by the assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided
// by the bootloader as well as the physical addresses for the kernel
// start/end.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the
// CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	hal.InitTerminal()
	hal.ActiveTerminal.Clear()
	early.Printf("Starting breenix\n")

	if err := archMemInit(kernelStart, kernelEnd); err != nil {
		panic(err)
	}

	var err *kernel.Error
	if kernelAS, err = bootstrapAddressSpaces(); err != nil {
		panic(err)
	}

	if fbInfo := multiboot.GetFramebufferInfo(); fbInfo != nil {
		fd.SetFramebufferInfo(fd.FramebufferInfo{
			Width:         fbInfo.Width,
			Height:        fbInfo.Height,
			Stride:        fbInfo.Pitch,
			BytesPerPixel: uint32(fbInfo.Bpp) / 8,
		})
	}

	trap.Init()
	syscall.Init()
	if serr := sched.Init(allocKernelStack); serr != nil {
		panic(serr)
	}

	// Interrupt controller, timer programming, and the timer-tick IRQ
	// handler registration.
	archIRQInit()

	early.Printf("breenix: core services up, enabling interrupts\n")
	hal.CPU.EnableInterrupts()

	if pid, ierr := syscall.SpawnInit("/bin/init"); ierr == nil {
		early.Printf("breenix: init spawned as pid %d\n", uint64(pid))
	}

	// Hand the boot CPU over to the scheduler: from here on this thread
	// acts as the idle loop, preempted whenever anything is runnable.
	for {
		sched.YieldNow()
		hal.CPU.HaltWithInterrupts()
	}
}

// bootstrapAddressSpaces establishes the canonical kernel address space so
// process address-space creation can copy its kernel half.
func bootstrapAddressSpaces() (*vmm.AddressSpace, *kernel.Error) {
	as, err := vmm.BootstrapKernelAddressSpace()
	if err != nil {
		if kerr, isKernelErr := err.(*kernel.Error); isKernelErr {
			return nil, kerr
		}
		return nil, &kernel.Error{Module: "kmain", Message: err.Error()}
	}
	return as, nil
}

// allocKernelStack carves one kernel stack out of the kernel half: size
// bytes of mapped, kernel-only, writable memory with one unmapped guard
// page below, so a stack overrun faults instead of silently corrupting
// whatever is adjacent.
func allocKernelStack(size uintptr) (uintptr, error) {
	guard := uintptr(mem.PageSize)
	base, kerr := vmm.EarlyReserveRegion(mem.Size(size + guard))
	if kerr != nil {
		return 0, kerr
	}

	stackBase := base + guard
	flags := hal.PageTable.Writable(0)
	for va := stackBase; va < stackBase+size; va += uintptr(mem.PageSize) {
		frame, ferr := pmm.AllocFrame()
		if ferr != nil {
			return 0, ferr
		}
		if err := kernelAS.Map(va, frame.Address(), flags); err != nil {
			return 0, err
		}
	}
	return stackBase, nil
}
