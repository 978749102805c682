// Package errno is the kernel's user-recoverable error taxonomy. It is a
// thin type alias over golang.org/x/sys/unix.Errno rather than a bespoke
// enum, so the values syscalls return are real, stable, portable errno
// numbers a userspace program already knows how to interpret.
package errno

import "golang.org/x/sys/unix"

// Errno is the kernel's syscall-boundary error type.
type Errno = unix.Errno

// The user-recoverable taxonomy, re-exported under kernel-local names so
// kernel/syscall and kernel/signal never import golang.org/x/sys/unix
// directly just to name a constant.
const (
	ENOENT    = unix.ENOENT
	EACCES    = unix.EACCES
	EBADF     = unix.EBADF
	EFAULT    = unix.EFAULT
	EAGAIN    = unix.EAGAIN
	EINTR     = unix.EINTR
	EEXIST    = unix.EEXIST
	EINVAL    = unix.EINVAL
	ENOMEM    = unix.ENOMEM
	ENOSYS    = unix.ENOSYS
	ENOTDIR   = unix.ENOTDIR
	EISDIR    = unix.EISDIR
	ENOTEMPTY = unix.ENOTEMPTY
	EPIPE     = unix.EPIPE
	ENOSPC    = unix.ENOSPC
	ECHILD    = unix.ECHILD
	ESRCH     = unix.ESRCH
)

// ToReturnValue encodes err as a 64-bit syscall return value:
// zero/positive on success, -errno on failure. A nil err with a non-zero
// success value is the caller's job to pass through directly; this helper
// only handles the error leg.
func ToReturnValue(err error) int64 {
	if err == nil {
		return 0
	}
	if e, ok := err.(Errno); ok {
		return -int64(e)
	}
	return -int64(EINVAL)
}
