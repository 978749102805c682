package vmm

import (
	"unsafe"

	"github.com/ryanbreen/breenix/kernel"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem"
	"github.com/ryanbreen/breenix/kernel/mem/pmm"
)

// ErrSegFault is returned by a page fault resolver when the fault could not
// be resolved by copy-on-write and the caller (kernel/trap) must escalate —
// killing the faulting process for a user-mode access, or panicking for a
// kernel-mode one.
var ErrSegFault = &kernel.Error{Module: "vmm", Message: "unresolvable page fault"}

// KernelPageFaultHandler resolves a page fault whose faulting address lies
// in the kernel half of the address space. It defaults to always failing;
// the amd64 target's own init() (kernel/mem/vmm/vmm_amd64.go) wires the
// real CoW-capable implementation, since only that target's legacy
// recursively self-mapped engine backs the Go runtime heap bootstrap
// (kernel/goruntime) today. AArch64 kernel-heap demand paging is not yet
// implemented (see DESIGN.md).
var KernelPageFaultHandler = func(info hal.PageFaultInfo) *kernel.Error { return ErrSegFault }

// scratchSrc and scratchDst are a pair of reserved kernel virtual pages
// used to read/write physical frames by content without any address space
// being specifically active, for lazy/CoW handling. They
// are established once, by initScratch, on the first call to CopyFrame,
// WriteFrame or ZeroFrame.
var (
	scratchSrc, scratchDst uintptr
	scratchReady           bool
)

func initScratch() *kernel.Error {
	if scratchReady {
		return nil
	}
	base, err := EarlyReserveRegion(mem.Size(2 * mem.PageSize))
	if err != nil {
		return err
	}
	scratchSrc = base
	scratchDst = base + uintptr(mem.PageSize)
	scratchReady = true
	return nil
}

// scratchFlags grants the kernel-only read/write access CopyFrame and
// ZeroFrame need. It is derived from hal.PageTable.Writable(0) rather than
// composed from any concrete Flag* constant, since hal.PageFlags bits are an
// architecture-specific encoding this package must never assume the layout
// of (see hal.PageFlags's doc comment).
func scratchFlags() hal.PageFlags {
	return hal.PageTable.Writable(0)
}

// CopyFrame copies one page's worth of data from the physical frame src to
// the physical frame dst, using a pair of scratch mappings in the
// canonical kernel address space. It is the architecture-neutral
// replacement for the legacy engine's map-temporary-then-Memcopy dance,
// built directly on hal.PageTableOps so it works identically on every
// target the HAL supports.
func CopyFrame(dst, src pmm.Frame) *kernel.Error {
	if err := initScratch(); err != nil {
		return err
	}
	if err := kernelAddressSpace.Map(scratchSrc, src.Address(), scratchFlags()); err != nil {
		return toKernelError(err)
	}
	defer kernelAddressSpace.Unmap(scratchSrc)
	if err := kernelAddressSpace.Map(scratchDst, dst.Address(), scratchFlags()); err != nil {
		return toKernelError(err)
	}
	defer kernelAddressSpace.Unmap(scratchDst)

	mem.Memcopy(scratchSrc, scratchDst, mem.PageSize)
	return nil
}

// WriteFrame copies data into the physical frame dst starting at byte
// offset off, via the same scratch-mapping mechanism CopyFrame uses; the
// program loader uses it to fill freshly mapped image pages regardless of
// which address space is active.
func WriteFrame(dst pmm.Frame, off uintptr, data []byte) *kernel.Error {
	if off+uintptr(len(data)) > uintptr(mem.PageSize) {
		return &kernel.Error{Module: "vmm", Message: "WriteFrame write exceeds frame"}
	}
	if err := initScratch(); err != nil {
		return err
	}
	if err := kernelAddressSpace.Map(scratchDst, dst.Address(), scratchFlags()); err != nil {
		return toKernelError(err)
	}
	defer kernelAddressSpace.Unmap(scratchDst)

	src := uintptr(unsafe.Pointer(&data[0]))
	mem.Memcopy(src, scratchDst+off, mem.Size(len(data)))
	return nil
}

// ZeroFrame zeroes one page's worth of physical memory at dst via the same
// scratch-mapping mechanism CopyFrame uses.
func ZeroFrame(dst pmm.Frame) *kernel.Error {
	if err := initScratch(); err != nil {
		return err
	}
	if err := kernelAddressSpace.Map(scratchDst, dst.Address(), scratchFlags()); err != nil {
		return toKernelError(err)
	}
	defer kernelAddressSpace.Unmap(scratchDst)

	mem.Memset(scratchDst, 0, mem.PageSize)
	return nil
}

func toKernelError(err error) *kernel.Error {
	if err == nil {
		return nil
	}
	if kerr, ok := err.(*kernel.Error); ok {
		return kerr
	}
	return &kernel.Error{Module: "vmm", Message: err.Error()}
}

// ResolveUserPageFault implements the sole recoverable fault case for a
// user process's own address space: a write fault against a
// page hal.PageTable.IsCopyOnWrite reports as lazily shared. It allocates a
// private frame, copies the shared page's contents into it, and installs
// it in place of the shared mapping so the dispatcher can retry the
// faulting instruction. Every other cause returns ErrSegFault, which the
// caller (kernel/trap) escalates to SIGSEGV for a user-mode fault or a
// kernel panic for a kernel-mode one.
func ResolveUserPageFault(as *AddressSpace, info hal.PageFaultInfo, allocFrame func() (pmm.Frame, *kernel.Error)) *kernel.Error {
	if !info.Write || !info.Present {
		return ErrSegFault
	}

	va := info.Addr &^ uintptr(mem.PageSize-1)
	pa, flags, err := as.Translate(va)
	if err != nil || !hal.PageTable.IsCopyOnWrite(flags) {
		return ErrSegFault
	}

	newFrame, kerr := allocFrame()
	if kerr != nil {
		return kerr
	}

	srcFrame := pmm.Frame(pa >> mem.PageShift)
	if kerr := CopyFrame(newFrame, srcFrame); kerr != nil {
		return kerr
	}

	// Replace the shared mapping with the private copy: unmap the shared
	// page, then map the private frame in its place.
	if _, err := as.Unmap(va); err != nil {
		return toKernelError(err)
	}
	newFlags := hal.PageTable.Writable(flags)
	if err := as.Map(va, newFrame.Address(), newFlags); err != nil {
		return toKernelError(err)
	}
	hal.PageTable.InvalidatePage(va)

	// This address space no longer references the shared frame; if it was
	// the last sharer, the frame goes back to the allocator.
	pmm.ReleaseAndMaybeFree(srcFrame)
	return nil
}
