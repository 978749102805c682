package allocator

import (
	"github.com/ryanbreen/breenix/kernel"
	"github.com/ryanbreen/breenix/kernel/hal/multiboot"
	"github.com/ryanbreen/breenix/kernel/kfmt/early"
	"github.com/ryanbreen/breenix/kernel/mem"
	"github.com/ryanbreen/breenix/kernel/mem/pmm"
)

var (
	// earlyAllocator is the package's boot-time allocator instance. Init
	// seeds it with the kernel image's frame range; BitmapAllocator.init
	// later decommissions it by replaying its allocations as reservations
	// against the bitmap pools.
	earlyAllocator bootMemAllocator

	errBootAllocOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
)

// bootMemAllocator implements a rudimentary physical memory allocator used
// to bootstrap the kernel before the bitmap-backed allocator takes over.
//
// The allocator scans the memory region information provided by the
// bootloader to find the next available free frame. Allocations are tracked
// via a counter plus the last allocated frame index; since the allocator
// cannot free frames, BitmapAllocator.init recovers the exact set of frames
// it handed out by resetting that counter to zero and replaying the
// allocation sequence deterministically.
type bootMemAllocator struct {
	initialized bool

	// kernelStartFrame and kernelEndFrame bound the frames occupied by
	// the kernel image itself; they are never handed out by AllocFrame
	// but must still be flagged reserved in the bitmap pools.
	kernelStartFrame, kernelEndFrame pmm.Frame

	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// lastAllocIndex tracks the last allocated frame index.
	lastAllocIndex int64

	// lastAllocFrame mirrors lastAllocIndex as a pmm.Frame for callers
	// that want the most recently returned frame without re-deriving it.
	lastAllocFrame pmm.Frame
}

// init sets up the boot memory allocator's internal state from the kernel
// image's physical extents, restarting the allocation sequence, and prints
// where the kernel image was loaded.
func (alloc *bootMemAllocator) init(kernelStart, kernelEnd uintptr) {
	alloc.allocCount = 0
	alloc.lastAllocIndex = -1
	alloc.initialized = true
	alloc.kernelStartFrame = pmm.Frame(kernelStart >> mem.PageShift)
	alloc.kernelEndFrame = pmm.Frame(kernelEnd >> mem.PageShift)

	if kernelEnd != 0 {
		early.Printf("[boot_mem_alloc] kernel loaded at 0x%x - 0x%x\n", kernelStart, kernelEnd)
	}
}

// printMemoryMap logs the bootloader-reported memory regions and the total
// free memory.
func (alloc *bootMemAllocator) printMemoryMap() {
	early.Printf("[boot_mem_alloc] system memory map:\n")
	var totalFree mem.Size
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		early.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())

		if region.Type == multiboot.MemAvailable {
			totalFree += mem.Size(region.Length)
		}
		return true
	})
	early.Printf("[boot_mem_alloc] available memory: %dKb\n", uint64(totalFree/mem.Kb))
}

// AllocFrame scans the system memory regions reported by the bootloader and
// reserves the next available free frame.
func (alloc *bootMemAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	if !alloc.initialized {
		alloc.init(0, 0)
	}

	var (
		foundPageIndex                           int64 = -1
		regionStartPageIndex, regionEndPageIndex int64
	)
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable {
			return true
		}

		// Align region start address to a page boundary and find the start
		// and end page indices for the region
		regionStartPageIndex = int64(((mem.Size(region.PhysAddress) + (mem.PageSize - 1)) & ^(mem.PageSize - 1)) >> mem.PageShift)
		regionEndPageIndex = int64(((mem.Size(region.PhysAddress+region.Length) - (mem.PageSize - 1)) & ^(mem.PageSize - 1)) >> mem.PageShift)

		// Ignore already allocated regions
		if alloc.lastAllocIndex >= regionEndPageIndex {
			return true
		}

		// We found a block that can be allocated. The last allocated
		// index will be either pointing to a previous region or will
		// point inside this region. In the first case we just need to
		// select the regionStartPageIndex. In the latter case we can
		// simply select the next available page in the current region.
		if alloc.lastAllocIndex < regionStartPageIndex {
			foundPageIndex = regionStartPageIndex
		} else {
			foundPageIndex = alloc.lastAllocIndex + 1
		}
		return false
	})

	if foundPageIndex == -1 {
		return pmm.InvalidFrame, errBootAllocOutOfMemory
	}

	alloc.allocCount++
	alloc.lastAllocIndex = foundPageIndex
	alloc.lastAllocFrame = pmm.Frame(foundPageIndex)

	return alloc.lastAllocFrame, nil
}
