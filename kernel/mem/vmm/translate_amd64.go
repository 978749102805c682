package vmm

import "github.com/ryanbreen/breenix/kernel"

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pa, _, err := TranslateWithFlags(virtAddr)
	return pa, err
}

// TranslateWithFlags is Translate plus the leaf entry's raw flag bits, so
// kernel/hal/amd64.pageTables.Translate can hand the architecture-neutral
// core a real PageFlags value instead of always reporting zero.
func TranslateWithFlags(virtAddr uintptr) (uintptr, PageTableEntryFlag, *kernel.Error) {
	pte, err := pteForAddress(virtAddr)
	if err != nil {
		return 0, 0, err
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	physAddr := pte.Frame().Address() + (virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1))

	return physAddr, pte.Flags(), nil
}
