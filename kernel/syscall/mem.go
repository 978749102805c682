package syscall

import (
	"github.com/ryanbreen/breenix/kernel/errno"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem"
	"github.com/ryanbreen/breenix/kernel/mem/pmm"
	"github.com/ryanbreen/breenix/kernel/mem/vmm"
)

// mmap prot/flags bits this kernel honors, matching Linux's values.
const (
	protRead  = 0x1
	protWrite = 0x2

	mapPrivate   = 0x02
	mapAnonymous = 0x20
)

// maxMmapLength bounds a single anonymous mapping; a request this kernel
// cannot plausibly back fails fast instead of draining the frame pool.
const maxMmapLength = 64 << 20

func sysMmap(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()
	addr, length := uintptr(args[0]), uintptr(args[1])
	prot, flags := args[2], args[3]

	if length == 0 || length > maxMmapLength {
		return errno.ToReturnValue(errno.EINVAL)
	}
	// Only private anonymous mappings exist; there are no files to map.
	if flags&mapAnonymous == 0 || flags&mapPrivate == 0 {
		return errno.ToReturnValue(errno.EINVAL)
	}
	if prot&protRead == 0 {
		return errno.ToReturnValue(errno.EINVAL)
	}

	if addr == 0 {
		addr = p.ReserveUserRange(length)
	}
	pageMask := uintptr(mem.PageSize) - 1
	if addr&pageMask != 0 {
		return errno.ToReturnValue(errno.EINVAL)
	}
	if addr+length > mem.UserSpaceTop {
		return errno.ToReturnValue(errno.EINVAL)
	}

	region, err := mapZeroedRegion(p.AddressSpace, addr, length, prot&protWrite != 0)
	if err != nil {
		return errno.ToReturnValue(errno.ENOMEM)
	}
	p.AddRegion(region)
	return int64(addr)
}

func sysMunmap(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()
	addr, length := uintptr(args[0]), uintptr(args[1])
	pageMask := uintptr(mem.PageSize) - 1
	if addr&pageMask != 0 || length == 0 {
		return errno.ToReturnValue(errno.EINVAL)
	}
	end := (addr + length + pageMask) &^ pageMask
	if end > mem.UserSpaceTop {
		return errno.ToReturnValue(errno.EINVAL)
	}

	for va := addr; va < end; va += uintptr(mem.PageSize) {
		pa, err := p.AddressSpace.Unmap(va)
		if err != nil {
			continue // unmapping a hole is not an error
		}
		hal.PageTable.InvalidatePage(va)
		pmm.ReleaseAndMaybeFree(pmm.Frame(pa >> mem.PageShift))
	}
	p.RemoveRegion(vmm.Region{Base: addr, Size: end - addr})
	return 0
}
