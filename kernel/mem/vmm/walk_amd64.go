package vmm

import (
	"unsafe"

	"github.com/ryanbreen/breenix/kernel/mem"
)

// ptePtrFn returns a pointer to the supplied entry address. Tests override
// this to exercise walk() against a fake in-memory table; the kernel build
// inlines it away.
var ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
	return unsafe.Pointer(entryAddr)
}

// pageTableWalker is invoked by walk for each page table level with the
// level index and the entry pointer at that level. Returning false aborts
// the walk.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for virtAddr using the recursive
// self-mapping installed by PageDirectoryTable.Init, invoking walkFn once
// per level from the top-most table down to the leaf entry.
func walk(virtAddr uintptr, walkFn pageTableWalker) {
	var (
		level                            uint8
		tableAddr, entryAddr, entryIndex uintptr
		ok                               bool
	)

	for level, tableAddr = uint8(0), pdtVirtualAddr; level < pageLevels; level, tableAddr = level+1, entryAddr {
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		entryAddr = tableAddr + (entryIndex << mem.PointerShift)

		if ok = walkFn(level, (*pageTableEntry)(ptePtrFn(entryAddr))); !ok {
			return
		}

		entryAddr <<= pageLevelBits[level]
	}
}
