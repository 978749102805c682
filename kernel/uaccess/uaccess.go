// Package uaccess validates and copies user-supplied memory ranges. Every
// pointer a syscall receives from userspace is untrusted: before the kernel
// reads or writes through it, the range is walked page by page through the
// current address space's translations, and any page that is unmapped, not
// user-accessible, or (for writes) not writable converts the whole access
// into EFAULT with no partial effect on kernel state.
package uaccess

import (
	"unsafe"

	"github.com/ryanbreen/breenix/kernel/errno"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem"
	"github.com/ryanbreen/breenix/kernel/mem/vmm"
)

// AccessClass selects which permission a range check demands.
type AccessClass int

const (
	Read AccessClass = iota
	Write
)

// Check validates that [addr, addr+length) lies entirely in the user half
// and that every page in the range is mapped with user access (and write
// access when class == Write). It performs no copy; Copy{In,Out} call it
// before touching a single byte so a fault mid-range can never leave a
// partial effect.
func Check(as *vmm.AddressSpace, addr uintptr, length uintptr, class AccessClass) error {
	if length == 0 {
		return nil
	}
	end := addr + length
	if end < addr || end > mem.UserSpaceTop || as == nil {
		return errno.EFAULT
	}

	pageMask := uintptr(mem.PageSize) - 1
	for va := addr &^ pageMask; va < end; va += uintptr(mem.PageSize) {
		_, flags, err := as.Translate(va)
		if err != nil {
			return errno.EFAULT
		}
		if !hal.PageTable.IsUserAccessible(flags) {
			return errno.EFAULT
		}
		if class == Write && !hal.PageTable.IsWritable(flags) {
			return errno.EFAULT
		}
	}
	return nil
}

// memAt gives byte-slice access to a validated user range. The caller has
// already proven the range resident via Check, and as is the active address
// space, so plain loads/stores reach the right physical pages.
func memAt(addr uintptr, length uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
}

// CopyIn copies len(dst) bytes from the user address addr into dst,
// returning EFAULT if any part of the source range fails validation.
func CopyIn(as *vmm.AddressSpace, dst []byte, addr uintptr) error {
	if err := Check(as, addr, uintptr(len(dst)), Read); err != nil {
		return err
	}
	copy(dst, memAt(addr, uintptr(len(dst))))
	return nil
}

// CopyOut copies src to the user address addr, returning EFAULT if any part
// of the destination range fails validation.
func CopyOut(as *vmm.AddressSpace, addr uintptr, src []byte) error {
	if err := Check(as, addr, uintptr(len(src)), Write); err != nil {
		return err
	}
	copy(memAt(addr, uintptr(len(src))), src)
	return nil
}

// CopyInUint64 reads one naturally-aligned 64-bit value from user memory.
func CopyInUint64(as *vmm.AddressSpace, addr uintptr) (uint64, error) {
	if addr&7 != 0 {
		return 0, errno.EINVAL
	}
	var buf [8]byte
	if err := CopyIn(as, buf[:], addr); err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

// CopyOutUint64 writes one naturally-aligned 64-bit value to user memory.
func CopyOutUint64(as *vmm.AddressSpace, addr uintptr, v uint64) error {
	if addr&7 != 0 {
		return errno.EINVAL
	}
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
	return CopyOut(as, addr, buf[:])
}
