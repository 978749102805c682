package vmm

import (
	"github.com/ryanbreen/breenix/kernel"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem"
	"github.com/ryanbreen/breenix/kernel/mem/pmm"
)

var (
	// frameAllocator points to the frame allocator function registered via
	// SetFrameAllocator; both Init and the page fault path use it.
	frameAllocator FrameAllocatorFn

	// ReservedZeroedFrame is a single physical frame, permanently zeroed,
	// that lazy allocation maps read-only with FlagCopyOnWrite wherever a
	// page's first write should trigger an allocation instead of reading
	// stale data.
	ReservedZeroedFrame pmm.Frame

	// protectReservedZeroedPage becomes true once ReservedZeroedFrame is
	// established; Map asserts against mapping it RW directly.
	protectReservedZeroedPage bool
)

// SetFrameAllocator registers the frame allocator function the vmm package
// uses whenever a new physical frame must be allocated.
func SetFrameAllocator(allocFn FrameAllocatorFn) {
	frameAllocator = allocFn
}

// HandlePageFault attempts to resolve a page fault reported by the HAL trap
// dispatcher. It implements the sole recoverable case:
// a write to a read-only page carrying FlagCopyOnWrite, which is resolved by
// allocating a private copy, installing it in place of the shared frame, and
// letting the dispatcher retry the faulting instruction. Every other cause
// returns ErrSegFault.
func HandlePageFault(info hal.PageFaultInfo) *kernel.Error {
	faultPage := PageFromAddress(info.Addr)
	var pageEntry *pageTableEntry

	walk(faultPage.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		nextIsPresent := pte.HasFlags(FlagPresent)
		if pteLevel == pageLevels-1 && nextIsPresent {
			pageEntry = pte
		}
		return nextIsPresent
	})

	if pageEntry == nil || pageEntry.HasFlags(FlagRW) || !pageEntry.HasFlags(FlagCopyOnWrite) {
		return ErrSegFault
	}

	copyFrame, err := frameAllocator()
	if err != nil {
		return err
	}

	tmpPage, err := mapTemporaryFn(copyFrame, frameAllocator)
	if err != nil {
		return err
	}

	mem.Memcopy(faultPage.Address(), tmpPage.Address(), mem.PageSize)
	if err := unmapFn(tmpPage); err != nil {
		return err
	}

	pageEntry.ClearFlags(FlagCopyOnWrite)
	pageEntry.SetFlags(FlagPresent | FlagRW)
	pageEntry.SetFrame(copyFrame)
	flushTLBEntryFn(faultPage.Address())

	return nil
}

// reserveZeroedFrame reserves the physical frame backing ReservedZeroedFrame
// and zeroes it out.
func reserveZeroedFrame() *kernel.Error {
	frame, err := frameAllocator()
	if err != nil {
		return err
	}

	tempPage, err := mapTemporaryFn(frame, frameAllocator)
	if err != nil {
		return err
	}
	mem.Memset(tempPage.Address(), 0, mem.PageSize)
	if err := unmapFn(tempPage); err != nil {
		return err
	}

	ReservedZeroedFrame = frame
	protectReservedZeroedPage = true
	return nil
}

// Init reserves the zeroed CoW source frame. Fault delivery itself is wired
// by kernel/trap, which calls HandlePageFault for hal.CausePageFault traps.
func Init() *kernel.Error {
	return reserveZeroedFrame()
}

func init() {
	KernelPageFaultHandler = HandlePageFault
}
