package vmm

import (
	"github.com/ryanbreen/breenix/kernel"
	"github.com/ryanbreen/breenix/kernel/mem"
)

// earlyReserveTop bounds the top of the scratch virtual address range this
// function carves pages out of. It is a fixed address below the
// canonical-address boundary both amd64 and arm64 targets share (bits
// 47:0 significant, upper bits sign/zero-extended). It is the amd64
// temporary-mapping page, which lies just below the recursive self-mapping
// slot, so every reservation stays clear of both.
const earlyReserveTop = uintptr(0xffffff7ffffff000)

var (
	// earlyReserveLastUsed tracks the last reserved virtual address. It
	// starts at earlyReserveTop and is decreased after each request.
	earlyReserveLastUsed = earlyReserveTop

	errEarlyReserveNoSpace = &kernel.Error{Module: "vmm", Message: "remaining virtual address space not large enough to satisfy reservation request"}
)

// EarlyReserveRegion reserves a page-aligned contiguous virtual memory region
// of the requested size at the top of the kernel address space and returns
// its starting virtual address. size is rounded up to a page multiple. It is
// intended for use only while bootstrapping the physical frame allocator,
// before general-purpose virtual memory management is available.
func EarlyReserveRegion(size mem.Size) (uintptr, *kernel.Error) {
	size = (size + (mem.PageSize - 1)) &^ (mem.PageSize - 1)

	if uintptr(size) > earlyReserveLastUsed {
		return 0, errEarlyReserveNoSpace
	}

	earlyReserveLastUsed -= uintptr(size)
	return earlyReserveLastUsed, nil
}
