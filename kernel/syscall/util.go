package syscall

import (
	"github.com/ryanbreen/breenix/kernel/errno"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/proc"
	"github.com/ryanbreen/breenix/kernel/uaccess"
)

// maxUserString bounds path and argv string reads from userspace.
const maxUserString = 256

// readUserString copies a NUL-terminated string from user memory, one byte
// at a time with each byte validated, rejecting unterminated strings past
// the bound.
func readUserString(p *proc.Process, addr uintptr) (string, error) {
	var out []byte
	var buf [1]byte
	for i := uintptr(0); i < maxUserString; i++ {
		if err := uaccess.CopyIn(p.AddressSpace, buf[:], addr+i); err != nil {
			return "", err
		}
		if buf[0] == 0 {
			return string(out), nil
		}
		out = append(out, buf[0])
	}
	return "", errno.EINVAL
}

// Little-endian scalar accessors for the fixed-layout structs the syscall
// surface exchanges with userspace (pollfd, epoll_event, timespec, ...).
// Both supported targets are little-endian.

func putUint16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func getUint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putUint64(b []byte, v uint64) {
	putUint32(b[0:4], uint32(v))
	putUint32(b[4:8], uint32(v>>32))
}

func getUint64(b []byte) uint64 {
	return uint64(getUint32(b[0:4])) | uint64(getUint32(b[4:8]))<<32
}

// nowTicks reads the monotonic timer, tolerating the unwired-HAL test
// environment.
func nowTicks() uint64 {
	if hal.SysTimer == nil {
		return 0
	}
	return hal.SysTimer.NowTicks()
}

// pollDeadline converts a millisecond timeout into an absolute tick
// deadline; <0 means wait forever (deadline 0).
func pollDeadline(timeoutMs int64) uint64 {
	if timeoutMs <= 0 || hal.SysTimer == nil {
		return 0
	}
	freq := hal.SysTimer.Frequency()
	return nowTicks() + uint64(timeoutMs)*freq/1000
}

// deadlineExpired reports whether the absolute deadline has passed; a zero
// deadline never expires (wait forever), except when no timer is wired, in
// which case waiting would spin unobservably and the sweep gives up.
func deadlineExpired(deadline uint64) bool {
	if deadline == 0 {
		return hal.SysTimer == nil
	}
	return nowTicks() >= deadline
}
