package uaccess

import (
	"testing"
	"unsafe"

	"github.com/ryanbreen/breenix/kernel/errno"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem"
	"github.com/ryanbreen/breenix/kernel/mem/vmm"
)

// fakePageTable treats every page below failAt as mapped and user-accessible
// and everything at or above failAt as unmapped, so tests can place a
// mapped/unmapped boundary wherever they need one.
type fakePageTable struct {
	failAt   uintptr
	readOnly bool
}

func (f *fakePageTable) Map(root, va, pa uintptr, flags hal.PageFlags) error { return nil }
func (f *fakePageTable) Unmap(root, va uintptr) (uintptr, error)             { return 0, nil }
func (f *fakePageTable) Protect(root, va uintptr, flags hal.PageFlags) error { return nil }
func (f *fakePageTable) Translate(root, va uintptr) (uintptr, hal.PageFlags, error) {
	if f.failAt != 0 && va >= f.failAt {
		return 0, 0, errno.EFAULT
	}
	return va, hal.PageFlags(1), nil
}
func (f *fakePageTable) Activate(root uintptr)                        {}
func (f *fakePageTable) InvalidatePage(va uintptr)                    {}
func (f *fakePageTable) NewRootTable() (uintptr, error)               { return 0, nil }
func (f *fakePageTable) SetKernelRoot(root uintptr)                   {}
func (f *fakePageTable) IsUserAccessible(flags hal.PageFlags) bool    { return true }
func (f *fakePageTable) IsWritable(flags hal.PageFlags) bool          { return !f.readOnly }
func (f *fakePageTable) IsCopyOnWrite(flags hal.PageFlags) bool          { return false }
func (f *fakePageTable) Writable(flags hal.PageFlags) hal.PageFlags      { return flags }
func (f *fakePageTable) UserAccessible(flags hal.PageFlags) hal.PageFlags { return flags }
func (f *fakePageTable) MakeCopyOnWrite(flags hal.PageFlags) hal.PageFlags { return flags }

func withFakePageTable(t *testing.T, fake hal.PageTableOps) {
	t.Helper()
	saved := hal.PageTable
	hal.PageTable = fake
	t.Cleanup(func() { hal.PageTable = saved })
}

func TestCheckRejectsKernelHalf(t *testing.T) {
	withFakePageTable(t, &fakePageTable{})
	as := &vmm.AddressSpace{}

	if err := Check(as, mem.UserSpaceTop-8, 16, Read); err != errno.EFAULT {
		t.Fatalf("range straddling the user/kernel split: got %v, want EFAULT", err)
	}
	if err := Check(as, mem.UserSpaceTop+0x1000, 8, Read); err != errno.EFAULT {
		t.Fatalf("kernel-half address: got %v, want EFAULT", err)
	}
}

func TestCheckRejectsWrapAround(t *testing.T) {
	withFakePageTable(t, &fakePageTable{})
	as := &vmm.AddressSpace{}

	if err := Check(as, ^uintptr(0)-4, 16, Read); err != errno.EFAULT {
		t.Fatalf("wrapping range: got %v, want EFAULT", err)
	}
}

func TestCheckRejectsWriteToReadOnly(t *testing.T) {
	withFakePageTable(t, &fakePageTable{readOnly: true})
	as := &vmm.AddressSpace{}

	if err := Check(as, 0x1000, 8, Read); err != nil {
		t.Fatalf("read of read-only page: got %v, want nil", err)
	}
	if err := Check(as, 0x1000, 8, Write); err != errno.EFAULT {
		t.Fatalf("write to read-only page: got %v, want EFAULT", err)
	}
}

// TestCopyInStraddlingBoundaryHasNoPartialEffect: a user pointer
// straddling a mapped/unmapped boundary produces EFAULT and the
// destination buffer is untouched.
func TestCopyInStraddlingBoundaryHasNoPartialEffect(t *testing.T) {
	// Check translates whole pages, so place the buffer with its second
	// half starting on a page boundary.
	backing := make([]byte, 2*mem.PageSize)
	pageMask := uintptr(mem.PageSize) - 1
	backingAddr := uintptr(unsafe.Pointer(&backing[0]))
	boundary := (backingAddr + 16 + pageMask) &^ pageMask
	src := backing[boundary-16-backingAddr:][:32]
	for i := range src {
		src[i] = byte(i + 1)
	}
	base := uintptr(unsafe.Pointer(&src[0]))

	// Unmap everything from 16 bytes into the buffer onward.
	withFakePageTable(t, &fakePageTable{failAt: base + 16})
	as := &vmm.AddressSpace{}

	dst := make([]byte, 32)
	if err := CopyIn(as, dst, base); err != errno.EFAULT {
		t.Fatalf("straddling CopyIn: got %v, want EFAULT", err)
	}
	for i, b := range dst {
		if b != 0 {
			t.Fatalf("partial effect at dst[%d] = %#x after failed CopyIn", i, b)
		}
	}
}

func TestCopyOutCopyInRoundTrip(t *testing.T) {
	withFakePageTable(t, &fakePageTable{})
	as := &vmm.AddressSpace{}

	var user [64]byte
	base := uintptr(unsafe.Pointer(&user[0]))

	msg := []byte("HELLO\n")
	if err := CopyOut(as, base, msg); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	got := make([]byte, len(msg))
	if err := CopyIn(as, got, base); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if string(got) != string(msg) {
		t.Fatalf("round trip: got %q, want %q", got, msg)
	}
}

func TestCopyUint64Alignment(t *testing.T) {
	withFakePageTable(t, &fakePageTable{})
	as := &vmm.AddressSpace{}

	var word uint64
	base := uintptr(unsafe.Pointer(&word))

	if err := CopyOutUint64(as, base+1, 42); err != errno.EINVAL {
		t.Fatalf("misaligned CopyOutUint64: got %v, want EINVAL", err)
	}
	if err := CopyOutUint64(as, base, 0x1122334455667788); err != nil {
		t.Fatalf("CopyOutUint64: %v", err)
	}
	v, err := CopyInUint64(as, base)
	if err != nil {
		t.Fatalf("CopyInUint64: %v", err)
	}
	if v != 0x1122334455667788 {
		t.Fatalf("round trip: got %#x", v)
	}
}
