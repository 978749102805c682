package syscall

import (
	"github.com/ryanbreen/breenix/kernel/errno"
	"github.com/ryanbreen/breenix/kernel/fd"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/uaccess"
)

// epollEventSize is struct epoll_event's packed wire size on both targets:
// a 32-bit event mask directly followed by a 64-bit data word.
const epollEventSize = 12

func sysEpollCreate1(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()
	num, installed := p.FDs.Install(fd.NewEpoll())
	if !installed {
		return errno.ToReturnValue(errno.EINVAL)
	}
	return int64(num)
}

// resolveEpoll returns the Epoll object behind an fd number, or EBADF /
// EINVAL.
func resolveEpoll(fdNum int) (*fd.Epoll, error) {
	f, err := current().FDs.Get(fdNum)
	if err != nil {
		return nil, err
	}
	ep, isEpoll := f.(*fd.Epoll)
	if !isEpoll {
		return nil, errno.EINVAL
	}
	return ep, nil
}

func sysEpollCtl(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()
	epFd, op, fdNum := int(int64(args[0])), int(int64(args[1])), int(int64(args[2]))
	eventPtr := uintptr(args[3])

	ep, err := resolveEpoll(epFd)
	if err != nil {
		return errno.ToReturnValue(err)
	}

	var events uint32
	var data uint64
	if op != fd.EpollCtlDel {
		var buf [epollEventSize]byte
		if err := uaccess.CopyIn(p.AddressSpace, buf[:], eventPtr); err != nil {
			return errno.ToReturnValue(err)
		}
		events = getUint32(buf[0:4])
		data = getUint64(buf[4:12])
	}

	target, err := p.FDs.Get(fdNum)
	if err != nil {
		return errno.ToReturnValue(err)
	}
	if target == fd.File(ep) {
		// An epoll instance cannot watch itself.
		return errno.ToReturnValue(errno.EINVAL)
	}

	return ok(0, ep.Ctl(op, fdNum, target, events, data))
}

func sysEpollWait(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()
	epFd, eventsPtr := int(int64(args[0])), uintptr(args[1])
	maxEvents, timeoutMs := int(int64(args[2])), int64(args[3])

	if maxEvents <= 0 {
		return errno.ToReturnValue(errno.EINVAL)
	}
	ep, err := resolveEpoll(epFd)
	if err != nil {
		return errno.ToReturnValue(err)
	}

	deadline := pollDeadline(timeoutMs)
	for {
		ready := ep.Collect(maxEvents)
		if len(ready) > 0 {
			buf := make([]byte, len(ready)*epollEventSize)
			for i, ev := range ready {
				off := i * epollEventSize
				putUint32(buf[off:off+4], ev.Events)
				putUint64(buf[off+4:off+12], ev.Data)
			}
			if err := uaccess.CopyOut(p.AddressSpace, eventsPtr, buf); err != nil {
				return errno.ToReturnValue(err)
			}
			return int64(len(ready))
		}
		if timeoutMs == 0 || deadlineExpired(deadline) {
			return 0
		}
		if p.Signals != nil && p.Signals.HasDeliverable() {
			return errno.ToReturnValue(errno.EINTR)
		}
		yieldNow()
	}
}
