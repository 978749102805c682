package vmm

import (
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem"
	"github.com/ryanbreen/breenix/kernel/mem/pmm"
)

// Region describes a virtual address range owned by an AddressSpace, used
// only by Destroy to know which mappings to walk and tear down; an
// AddressSpace does not otherwise track its own layout.
type Region struct {
	Base uintptr
	Size uintptr
}

// AddressSpace is the process-facing view of a root page table: every
// operation here goes through hal.PageTable, never the legacy recursive-PDT
// helpers in pdt_amd64.go that kernel/mem/pmm/allocator still uses during boot.
// Root identifies the table by its physical address, the same identifier
// hal.PageTableOps uses throughout.
type AddressSpace struct {
	Root uintptr
}

// kernelAddressSpace is the address space every process's kernel half is
// copied from. It is created exactly once, before any process exists.
var kernelAddressSpace AddressSpace

// BootstrapKernelAddressSpace creates the canonical kernel address space and
// registers it with the HAL so every subsequently created AddressSpace
// inherits its kernel-half mappings. It must run after
// kernel/mem/pmm/allocator.Init and before any call to NewAddressSpace.
func BootstrapKernelAddressSpace() (*AddressSpace, error) {
	root, err := hal.PageTable.NewRootTable()
	if err != nil {
		return nil, err
	}
	hal.PageTable.SetKernelRoot(root)
	kernelAddressSpace = AddressSpace{Root: root}
	return &kernelAddressSpace, nil
}

// NewAddressSpace allocates a fresh root table whose kernel-half entries are
// copied from the canonical kernel address space and whose user half is
// empty.
func NewAddressSpace() (*AddressSpace, error) {
	root, err := hal.PageTable.NewRootTable()
	if err != nil {
		return nil, err
	}
	return &AddressSpace{Root: root}, nil
}

// Map installs a va->pa mapping in this address space.
func (as *AddressSpace) Map(va, pa uintptr, flags hal.PageFlags) error {
	return hal.PageTable.Map(as.Root, va, pa, flags)
}

// Unmap removes the mapping for va and returns the physical address that
// was mapped there.
func (as *AddressSpace) Unmap(va uintptr) (uintptr, error) {
	return hal.PageTable.Unmap(as.Root, va)
}

// Protect narrows or widens the permission flags for va.
func (as *AddressSpace) Protect(va uintptr, flags hal.PageFlags) error {
	return hal.PageTable.Protect(as.Root, va, flags)
}

// Translate returns the current mapping for va.
func (as *AddressSpace) Translate(va uintptr) (uintptr, hal.PageFlags, error) {
	return hal.PageTable.Translate(as.Root, va)
}

// Activate loads this address space as the one the CPU is currently
// running against.
func (as *AddressSpace) Activate() {
	hal.PageTable.Activate(as.Root)
}

// Destroy unmaps and frees every page backing the given user-half regions.
// It must never be passed a region that reaches into the kernel half: those
// pages are shared with every other address space and are only ever freed
// by tearing down the canonical kernel address space itself, which this
// kernel never does.
func (as *AddressSpace) Destroy(regions []Region, freeFrame func(pmm.Frame)) {
	for _, region := range regions {
		end := region.Base + region.Size
		for va := region.Base; va < end; va += uintptr(mem.PageSize) {
			pa, err := as.Unmap(va)
			if err != nil {
				continue
			}
			if freeFrame != nil {
				freeFrame(pmm.Frame(pa >> mem.PageShift))
			}
		}
	}
}
