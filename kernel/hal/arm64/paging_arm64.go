package arm64

import (
	"errors"
	"unsafe"

	"github.com/ryanbreen/breenix/kernel/hal"
)

// errNotMapped is returned by Unmap/Protect/Translate when va has no
// mapping in the table rooted at the given root.
var errNotMapped = errors.New("arm64: address not mapped")

// AArch64 page table geometry for a 4KB granule, 4-level translation
// (levels 0-3), 48-bit virtual addresses, 9 bits of index per level.
const (
	pageShift      = 12
	entriesPerPage = 512
	levelBits      = 9
	levels         = 4

	pteValid    = 1 << 0
	pteTable    = 1 << 1  // vs. block, at levels 0-2
	pteAPEL0    = 1 << 6  // AP[1]: set to permit EL0 access at all
	pteAPRO     = 1 << 7  // AP[2]: set to make the mapping read-only
	pteAF       = 1 << 10 // access flag; must be set or every access faults
	ptePXN      = 1 << 53 // privileged execute-never
	pteUXN      = 1 << 54 // unprivileged execute-never
	pteCopyOnWrite = 1 << 55 // software-defined bit (OS-reserved 55-58 range)
	pteAddrMask = 0x0000fffffffff000
)

// directMapBase is the virtual offset at which all physical memory is
// mapped 1:1, used to dereference page table frames without amd64's
// recursive self-mapping trick (ARM64's translation table format has no
// equivalent single-bit recursion point). kernel/mem/vmm seeds this during
// early boot, before any address space but the identity map exists.
var directMapBase uintptr

// SetDirectMapBase wires the kernel's physical-memory direct map offset,
// established once by the arm64 boot sequence.
func SetDirectMapBase(base uintptr) { directMapBase = base }

func tableAt(pa uintptr) *[entriesPerPage]uint64 {
	return (*[entriesPerPage]uint64)(unsafe.Pointer(directMapBase + pa))
}

func levelIndex(va uintptr, level int) uintptr {
	shift := pageShift + uintptr(levels-1-level)*levelBits
	return (va >> shift) & (entriesPerPage - 1)
}

func toPTEAttrs(flags hal.PageFlags) uint64 {
	attrs := uint64(pteValid | pteAF)
	if flags&FlagUser != 0 {
		attrs |= pteAPEL0
	} else {
		attrs |= pteUXN
	}
	if flags&FlagRW == 0 || flags&FlagCopyOnWrite != 0 {
		attrs |= pteAPRO
	}
	if flags&FlagCopyOnWrite != 0 {
		attrs |= pteCopyOnWrite
	}
	if flags&FlagNoExecute != 0 {
		attrs |= ptePXN | pteUXN
	}
	return attrs
}

// fromPTEAttrs is toPTEAttrs's inverse, used by Translate to report the
// current mapping's permissions back to the architecture-neutral core.
func fromPTEAttrs(entry uint64) hal.PageFlags {
	var out hal.PageFlags
	if entry&pteAPRO == 0 {
		out |= FlagRW
	}
	if entry&pteAPEL0 != 0 {
		out |= FlagUser
	}
	if entry&pteCopyOnWrite != 0 {
		out |= FlagCopyOnWrite
	}
	if entry&(ptePXN|pteUXN) != 0 {
		out |= FlagNoExecute
	}
	return out
}

// Page flag bits exposed to the core (mirrors kernel/hal/amd64's FlagRW,
// FlagUser, FlagNoExecute). AArch64 tracks writability via AP bits the core
// never composes directly; toPTEAttrs turns FlagRW into the AP encoding.
const (
	FlagRW hal.PageFlags = 1 << iota
	FlagUser
	FlagCopyOnWrite
	FlagNoExecute
)

type pageTables struct{}

// PageTable is the package's singleton hal.PageTableOps implementation.
var PageTable pageTables

// walk descends the 4-level table rooted at root, allocating intermediate
// tables via allocFn as needed, and returns a pointer to the leaf PTE.
func walk(root uintptr, va uintptr, allocFn func() (uintptr, error)) (*uint64, error) {
	tableAddr := root
	for level := 0; level < levels-1; level++ {
		idx := levelIndex(va, level)
		entry := &tableAt(tableAddr)[idx]

		if *entry&pteValid == 0 {
			if allocFn == nil {
				return nil, errNotMapped
			}
			childFrame, err := allocFn()
			if err != nil {
				return nil, err
			}
			*entry = uint64(childFrame&pteAddrMask) | pteValid | pteTable
		}

		tableAddr = uintptr(*entry & pteAddrMask)
	}

	idx := levelIndex(va, levels-1)
	return &tableAt(tableAddr)[idx], nil
}

func (pageTables) Map(root, va, pa uintptr, flags hal.PageFlags) error {
	pte, err := walk(root, va, defaultAllocFn)
	if err != nil {
		return err
	}
	*pte = uint64(pa&pteAddrMask) | toPTEAttrs(flags)
	return nil
}

func (pageTables) Unmap(root, va uintptr) (uintptr, error) {
	pte, err := walk(root, va, nil)
	if err != nil {
		return 0, err
	}
	pa := uintptr(*pte & pteAddrMask)
	*pte = 0
	invalidateVA(va)
	return pa, nil
}

func (pageTables) Protect(root, va uintptr, flags hal.PageFlags) error {
	pte, err := walk(root, va, nil)
	if err != nil {
		return err
	}
	pa := uintptr(*pte & pteAddrMask)
	*pte = uint64(pa&pteAddrMask) | toPTEAttrs(flags)
	invalidateVA(va)
	return nil
}

func (pageTables) Translate(root, va uintptr) (uintptr, hal.PageFlags, error) {
	pte, err := walk(root, va, nil)
	if err != nil {
		return 0, 0, err
	}
	if *pte&pteValid == 0 {
		return 0, 0, errNotMapped
	}
	return uintptr(*pte & pteAddrMask), fromPTEAttrs(*pte), nil
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
// the software-defined lazily-shared-page bit.
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

func (pageTables) Activate(root uintptr) {
	writeTTBR0(uint64(root))
	invalidateAll()
}

func (pageTables) InvalidatePage(va uintptr) {
	invalidateVA(va)
}

// kernelRootFrame is the physical frame of the canonical kernel table, wired
// once by SetKernelRoot. Unlike amd64's recursive-mapping scheme, arm64's
// direct physical map lets NewRootTable read the source table's entries
// straight through tableAt without any temporary-mapping dance.
var kernelRootFrame uintptr

func (pageTables) NewRootTable() (uintptr, error) {
	frame, err := defaultAllocFn()
	if err != nil {
		return 0, err
	}
	table := tableAt(frame)
	for i := range table {
		table[i] = 0
	}
	if kernelRootFrame != 0 {
		src := tableAt(kernelRootFrame)
		copy(table[entriesPerPage/2:], src[entriesPerPage/2:])
	}
	return frame, nil
}

// SetKernelRoot marks root as the canonical kernel table; every
// NewRootTable call afterwards copies its upper-half (kernel) entries from
// root instead of leaving them empty.
func (pageTables) SetKernelRoot(root uintptr) {
	kernelRootFrame = root
}

// defaultAllocFn is wired by kernel/mem once the physical frame allocator is
// available; until then any call panics, matching the amd64 HAL's
// bootstrap-ordering assumption.
var defaultAllocFn = func() (uintptr, error) { panic("arm64: frame allocator not wired") }

// SetFrameAllocator lets kernel/mem wire the live physical frame allocator
// into the HAL.
func SetFrameAllocator(fn func() (uintptr, error)) { defaultAllocFn = fn }

func writeTTBR0(root uint64)
func invalidateVA(va uintptr)
func invalidateAll()
