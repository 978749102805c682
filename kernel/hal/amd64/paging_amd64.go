package amd64

import (
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem/pmm"
	"github.com/ryanbreen/breenix/kernel/mem/vmm"
)

// toPTEFlags translates the architecture-neutral hal.PageFlags bitset into
// the amd64 PTE flag bits defined in kernel/mem/vmm/constants_amd64.go. The
// core composes hal.PageFlags from the exported Flag* constants below; only
// this package knows how those map onto real PTE bits.
func toPTEFlags(flags hal.PageFlags) vmm.PageTableEntryFlag {
	var out vmm.PageTableEntryFlag
	if flags&FlagRW != 0 {
		out |= vmm.FlagRW
	}
	if flags&FlagUser != 0 {
		out |= vmm.FlagUserAccessible
	}
	if flags&FlagCopyOnWrite != 0 {
		out |= vmm.FlagCopyOnWrite
	}
	if flags&FlagNoExecute != 0 {
		out |= vmm.FlagNoExecute
	}
	return out
}

// Page flag bits exposed to the core; the core composes
// these without ever naming an amd64 PTE bit directly.
const (
	FlagRW hal.PageFlags = 1 << iota
	FlagUser
	FlagCopyOnWrite
	FlagNoExecute
)

// fromPTEFlags is toPTEFlags's inverse: it translates the raw amd64 PTE
// flag bits Translate reads back into the architecture-neutral hal.PageFlags
// bitset kernel/mem/vmm's page-fault resolver inspects.
func fromPTEFlags(flags vmm.PageTableEntryFlag) hal.PageFlags {
	var out hal.PageFlags
	if flags&vmm.FlagRW != 0 {
		out |= FlagRW
	}
	if flags&vmm.FlagUserAccessible != 0 {
		out |= FlagUser
	}
	if flags&vmm.FlagCopyOnWrite != 0 {
		out |= FlagCopyOnWrite
	}
	if flags&vmm.FlagNoExecute != 0 {
		out |= FlagNoExecute
	}
	return out
}

// IsUserAccessible reports whether flags grants user-mode access.
func (pageTables) IsUserAccessible(flags hal.PageFlags) bool {
	return flags&FlagUser != 0
}

// IsWritable reports whether flags grants write access. A CopyOnWrite page
// is considered writable: the fault resolver gives the writer its own frame.
func (pageTables) IsWritable(flags hal.PageFlags) bool {
	return flags&FlagRW != 0 || flags&FlagCopyOnWrite != 0
}

// IsCopyOnWrite reports whether flags (as returned by Translate) carries
// the lazily-shared-page bit.
func (pageTables) IsCopyOnWrite(flags hal.PageFlags) bool {
	return flags&FlagCopyOnWrite != 0
}

// Writable clears CopyOnWrite and sets RW, the transformation a resolved
// CoW fault applies before retrying the faulting store.
func (pageTables) Writable(flags hal.PageFlags) hal.PageFlags {
	return (flags &^ FlagCopyOnWrite) | FlagRW
}

// UserAccessible sets the user-access bit.
func (pageTables) UserAccessible(flags hal.PageFlags) hal.PageFlags {
	return flags | FlagUser
}

// MakeCopyOnWrite clears RW and sets CopyOnWrite, fork's share-then-fault
// transformation.
func (pageTables) MakeCopyOnWrite(flags hal.PageFlags) hal.PageFlags {
	return (flags &^ FlagRW) | FlagCopyOnWrite
}

// pageTables implements hal.PageTableOps for x86_64 by delegating to the
// recursively-self-mapped PageDirectoryTable in kernel/mem/vmm. root
// addresses identify a PDT by its physical frame address.
type pageTables struct{}

// PageTable is the package's singleton hal.PageTableOps implementation.
var PageTable pageTables

// pdtFor wraps an already-bootstrapped PDT frame. It must never be used on
// a frame that hasn't gone through PageDirectoryTable.Init (see
// NewRootTable): Init is the only safe place to clear a table's contents.
func pdtFor(root uintptr) vmm.PageDirectoryTable {
	return vmm.PDTFromFrame(pmm.Frame(root >> 12))
}

// earlyFrameAllocFn is the frame allocator Map and NewRootTable use for new
// page tables. It is nil until SetFrameAllocator wires it; kernel/kmain's
// archMemInit does so once kernel/mem/pmm/allocator.Init has run.
var earlyFrameAllocFn vmm.FrameAllocatorFn

// canonicalRootFrame is the frame NewRootTable copies kernel-half entries
// from, once SetKernelRoot has wired it. It stays zero-valued (no copy
// performed) for the very first root table ever created: the kernel's own,
// which becomes canonical the moment kernel/mem/vmm.BootstrapKernelAddressSpace
// calls SetKernelRoot on it.
var canonicalRootFrame pmm.Frame

// SetFrameAllocator wires the live physical frame allocator into the HAL
// once it is available.
func SetFrameAllocator(fn vmm.FrameAllocatorFn) {
	earlyFrameAllocFn = fn
}

func (pageTables) Map(root, va, pa uintptr, flags hal.PageFlags) error {
	pdt := pdtFor(root)
	if err := pdt.Map(vmm.PageFromAddress(va), pmm.Frame(pa>>12), toPTEFlags(flags), earlyFrameAllocFn); err != nil {
		return err
	}
	return nil
}

func (pageTables) Unmap(root, va uintptr) (uintptr, error) {
	pdt := pdtFor(root)
	pa, kerr := vmm.Translate(va)
	if kerr != nil {
		return 0, kerr
	}
	if err := pdt.Unmap(vmm.PageFromAddress(va)); err != nil {
		return 0, err
	}
	return pa, nil
}

func (pageTables) Protect(root, va uintptr, flags hal.PageFlags) error {
	pa, err := vmm.Translate(va)
	if err != nil {
		return err
	}
	return PageTable.Map(root, va, pa, flags)
}

func (pageTables) Translate(root, va uintptr) (uintptr, hal.PageFlags, error) {
	pa, flags, err := vmm.TranslateWithFlags(va)
	if err != nil {
		return 0, 0, err
	}
	return pa, fromPTEFlags(flags), nil
}

func (pageTables) Activate(root uintptr) {
	pdt := pdtFor(root)
	pdt.Activate()
}

func (pageTables) InvalidatePage(va uintptr) {
	vmm.FlushTLBEntry(va)
}

func (pageTables) NewRootTable() (uintptr, error) {
	frame, kerr := earlyFrameAllocFn()
	if kerr != nil {
		return 0, kerr
	}
	var pdt vmm.PageDirectoryTable
	if err := pdt.Init(frame, earlyFrameAllocFn); err != nil {
		return 0, err
	}
	if canonicalRootFrame != 0 {
		if err := pdt.CopyKernelHalf(canonicalRootFrame, earlyFrameAllocFn); err != nil {
			return 0, err
		}
	}
	return frame.Address(), nil
}

// SetKernelRoot marks root as the canonical kernel table; every
// NewRootTable call afterwards copies its kernel-half entries from root
// instead of leaving them empty.
func (pageTables) SetKernelRoot(root uintptr) {
	canonicalRootFrame = pmm.Frame(root >> 12)
}
