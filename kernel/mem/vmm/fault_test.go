package vmm

import (
	"testing"

	"github.com/ryanbreen/breenix/kernel/hal"
)

// fault-path page table double: one mapping at mappedVA whose flags report
// copy-on-write only when cow is set.
type faultPT struct {
	mappedVA uintptr
	cow      bool
}

const fakeMappedPA = uintptr(0x20_0000)

func (p *faultPT) Map(root, va, pa uintptr, flags hal.PageFlags) error { return nil }
func (p *faultPT) Unmap(root, va uintptr) (uintptr, error)             { return 0, nil }
func (p *faultPT) Protect(root, va uintptr, flags hal.PageFlags) error { return nil }
func (p *faultPT) Translate(root, va uintptr) (uintptr, hal.PageFlags, error) {
	if va != p.mappedVA {
		return 0, 0, ErrSegFault
	}
	return fakeMappedPA, hal.PageFlags(1), nil
}
func (p *faultPT) Activate(root uintptr)                            {}
func (p *faultPT) InvalidatePage(va uintptr)                        {}
func (p *faultPT) NewRootTable() (uintptr, error)                   { return 0, nil }
func (p *faultPT) SetKernelRoot(root uintptr)                       {}
func (p *faultPT) IsUserAccessible(flags hal.PageFlags) bool        { return true }
func (p *faultPT) IsWritable(flags hal.PageFlags) bool              { return false }
func (p *faultPT) IsCopyOnWrite(flags hal.PageFlags) bool           { return p.cow }
func (p *faultPT) Writable(flags hal.PageFlags) hal.PageFlags       { return flags }
func (p *faultPT) UserAccessible(flags hal.PageFlags) hal.PageFlags { return flags }
func (p *faultPT) MakeCopyOnWrite(flags hal.PageFlags) hal.PageFlags {
	return flags
}

func withFaultPT(t *testing.T, pt *faultPT) {
	t.Helper()
	saved := hal.PageTable
	hal.PageTable = pt
	t.Cleanup(func() { hal.PageTable = saved })
}

func TestResolveRejectsReadFault(t *testing.T) {
	as := &AddressSpace{}
	err := ResolveUserPageFault(as, hal.PageFaultInfo{
		Addr: 0x1000, User: true, Write: false, Present: true,
	}, nil)
	if err != ErrSegFault {
		t.Fatalf("read fault resolved to %v, want ErrSegFault", err)
	}
}

func TestResolveRejectsNotPresentFault(t *testing.T) {
	as := &AddressSpace{}
	err := ResolveUserPageFault(as, hal.PageFaultInfo{
		Addr: 0x1000, User: true, Write: true, Present: false,
	}, nil)
	if err != ErrSegFault {
		t.Fatalf("not-present fault resolved to %v, want ErrSegFault", err)
	}
}

func TestResolveRejectsUnmappedAddress(t *testing.T) {
	withFaultPT(t, &faultPT{mappedVA: 0x5000, cow: true})

	as := &AddressSpace{}
	err := ResolveUserPageFault(as, hal.PageFaultInfo{
		Addr: 0x9000, User: true, Write: true, Present: true,
	}, nil)
	if err != ErrSegFault {
		t.Fatalf("fault on unmapped page resolved to %v, want ErrSegFault", err)
	}
}

func TestResolveRejectsWriteToNonCoWPage(t *testing.T) {
	withFaultPT(t, &faultPT{mappedVA: 0x5000, cow: false})

	as := &AddressSpace{}
	err := ResolveUserPageFault(as, hal.PageFaultInfo{
		Addr: 0x5000, User: true, Write: true, Present: true,
	}, nil)
	if err != ErrSegFault {
		t.Fatalf("write to a plain read-only page resolved to %v, want ErrSegFault", err)
	}
}
