// Package syscall implements the numbered system-call layer: a closed
// dispatch table keyed by syscall number, argument extraction from the
// saved trap frame per the architecture's ABI, user-pointer validation
// through kernel/uaccess, and errno propagation. It is the sole surface
// through which user code can affect kernel state.
package syscall

// Number identifies a system call. Numbers are stable once assigned:
// userspace binaries are built against them.
type Number uint64

const (
	SysRead    Number = 0
	SysWrite   Number = 1
	SysOpen    Number = 2
	SysClose   Number = 3
	SysGetTime Number = 4
	SysYield   Number = 5
	SysGetPID  Number = 6
	SysFork    Number = 7
	SysExec    Number = 8
	SysExit    Number = 9
	SysWait    Number = 10

	SysClockGettime Number = 11
	SysPipe         Number = 12
	SysDup          Number = 13
	SysKill         Number = 14

	// SysRtSigreturn's value is baked into the signal trampoline's machine
	// code; changing it breaks every delivered handler.
	SysRtSigreturn Number = 15

	SysSigaction   Number = 16
	SysSigprocmask Number = 17
	SysPoll        Number = 18

	SysEpollCreate1 Number = 19
	SysEpollCtl     Number = 20
	SysEpollWait    Number = 21

	SysMmap   Number = 22
	SysMunmap Number = 23
	SysIoctl  Number = 24
	SysGetTID Number = 25
)

var names = map[Number]string{
	SysRead:         "read",
	SysWrite:        "write",
	SysOpen:         "open",
	SysClose:        "close",
	SysGetTime:      "get_time",
	SysYield:        "yield",
	SysGetPID:       "getpid",
	SysFork:         "fork",
	SysExec:         "exec",
	SysExit:         "exit",
	SysWait:         "wait",
	SysClockGettime: "clock_gettime",
	SysPipe:         "pipe",
	SysDup:          "dup",
	SysKill:         "kill",
	SysRtSigreturn:  "rt_sigreturn",
	SysSigaction:    "sigaction",
	SysSigprocmask:  "sigprocmask",
	SysPoll:         "poll",
	SysEpollCreate1: "epoll_create1",
	SysEpollCtl:     "epoll_ctl",
	SysEpollWait:    "epoll_wait",
	SysMmap:         "mmap",
	SysMunmap:       "munmap",
	SysIoctl:        "ioctl",
	SysGetTID:       "gettid",
}

// String names the syscall for panic messages and trace decoding.
func (n Number) String() string {
	if s, ok := names[n]; ok {
		return s
	}
	return "unknown"
}
