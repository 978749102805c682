package vmm

import "math"

const (
	// pageLevels indicates the number of page table levels on amd64 (PML4,
	// PDPT, PD, PT).
	pageLevels = 4

	// ptePhysPageMask extracts the physical address a page table entry
	// points to; bits 12-51 on amd64.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// tempMappingAddr is a reserved virtual page used for temporary
	// physical page mappings (e.g. accessing an inactive PDT). On amd64
	// this resolves to table indices 510, 511, 511, 511.
	tempMappingAddr = uintptr(0xffffff7ffffff000)
)

var (
	// pdtVirtualAddr exploits the recursive self-mapping installed in the
	// last PML4 entry: setting every page-level index bit to 1 makes the
	// MMU follow that entry at every level, landing back on the PML4
	// itself when dereferenced.
	pdtVirtualAddr = uintptr(math.MaxUint64 &^ ((1 << 12) - 1))

	// pageLevelBits is the number of virtual address bits consumed by
	// each page level; amd64 uses 9 bits (512 entries) per level.
	pageLevelBits = [pageLevels]uint8{9, 9, 9, 9}

	// pageLevelShifts is the shift required to extract each level's index
	// from a virtual address.
	pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
)

const (
	// FlagPresent is set when the page is resident in memory.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page is writable.
	FlagRW

	// FlagUserAccessible is set if user-mode code may access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching selects write-through caching when set.
	FlagWriteThroughCaching

	// FlagDoNotCache disables caching for this page when set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU the first time the page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when the page is written to.
	FlagDirty

	// FlagHugePage selects a 2MB mapping instead of a 4KB one.
	FlagHugePage

	// FlagGlobal prevents the TLB from dropping this entry on a CR3 switch.
	FlagGlobal

	// FlagCopyOnWrite marks a read-only page whose fault handler should
	// allocate a private copy on write.
	// Mutually exclusive with FlagRW.
	FlagCopyOnWrite PageTableEntryFlag = 1 << 9

	// FlagNoExecute marks a page as containing non-executable data.
	FlagNoExecute PageTableEntryFlag = 1 << 63
)
