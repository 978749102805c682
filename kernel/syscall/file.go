package syscall

import (
	"github.com/ryanbreen/breenix/kernel/errno"
	"github.com/ryanbreen/breenix/kernel/fd"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/proc"
	"github.com/ryanbreen/breenix/kernel/sync"
	"github.com/ryanbreen/breenix/kernel/uaccess"
)

// maxIOChunk bounds a single read/write's kernel-side staging buffer; a
// larger user request is satisfied in chunks.
const maxIOChunk = 4096

// waitQueue parks threads waiting for a file to become ready. One queue
// exists per (File, direction) pair that has ever blocked; the file's
// Notifier callback wakes every parked thread and each re-checks readiness.
type waitQueue struct {
	threads []*proc.Thread
}

var (
	waitLock   sync.SpinLock
	readWaits  = map[fd.File]*waitQueue{}
	writeWaits = map[fd.File]*waitQueue{}
)

func (q *waitQueue) wakeAll() {
	waitLock.Acquire()
	woken := q.threads
	q.threads = nil
	waitLock.Release()
	for _, th := range woken {
		th.Process.SetState(proc.StateReady, proc.BlockNone)
		unblockThread(th)
	}
}

// waitOn parks the current thread until f signals readiness for events.
// Files with no wake source (console input) degrade to a yield so the
// caller's retry loop still makes progress without wedging the CPU.
func waitOn(f fd.File, events uint32, reason proc.BlockReason) {
	n, hasNotify := f.(fd.Notifier)
	if !hasNotify {
		yieldNow()
		return
	}

	queues := readWaits
	if events&fd.PollOut != 0 {
		queues = writeWaits
	}

	waitLock.Acquire()
	q := queues[f]
	if q == nil {
		q = &waitQueue{}
		queues[f] = q
		n.SetNotify(q.wakeAll)
	}
	th := currentThread()
	q.threads = append(q.threads, th)
	waitLock.Release()

	// Re-check after registering: a wake that fired between the caller's
	// EAGAIN and the append above must not be lost.
	if f.Ready(events) != 0 {
		q.wakeAll()
		return
	}

	th.Process.SetState(proc.StateBlocked, reason)
	blockCurrent()
}

func sysRead(ef hal.ExceptionFrame, args [6]uint64) int64 {
	fdNum, buf, count := int(int64(args[0])), uintptr(args[1]), uintptr(args[2])
	p := current()
	f, err := p.FDs.Get(fdNum)
	if err != nil {
		return errno.ToReturnValue(err)
	}
	if count == 0 {
		return 0
	}
	if err := uaccess.Check(p.AddressSpace, buf, count, uaccess.Write); err != nil {
		return errno.ToReturnValue(err)
	}

	chunk := count
	if chunk > maxIOChunk {
		chunk = maxIOChunk
	}
	kbuf := make([]byte, chunk)
	for {
		n, err := f.Read(kbuf)
		if err == errno.EAGAIN {
			waitOn(f, fd.PollIn, proc.BlockOnRead)
			continue
		}
		if err != nil {
			return errno.ToReturnValue(err)
		}
		if err := uaccess.CopyOut(p.AddressSpace, buf, kbuf[:n]); err != nil {
			return errno.ToReturnValue(err)
		}
		return int64(n)
	}
}

func sysWrite(ef hal.ExceptionFrame, args [6]uint64) int64 {
	fdNum, buf, count := int(int64(args[0])), uintptr(args[1]), uintptr(args[2])
	p := current()
	f, err := p.FDs.Get(fdNum)
	if err != nil {
		return errno.ToReturnValue(err)
	}
	if count == 0 {
		return 0
	}
	if err := uaccess.Check(p.AddressSpace, buf, count, uaccess.Read); err != nil {
		return errno.ToReturnValue(err)
	}

	var written uintptr
	kbuf := make([]byte, maxIOChunk)
	for written < count {
		chunk := count - written
		if chunk > maxIOChunk {
			chunk = maxIOChunk
		}
		if err := uaccess.CopyIn(p.AddressSpace, kbuf[:chunk], buf+written); err != nil {
			return errno.ToReturnValue(err)
		}
		n, err := f.Write(kbuf[:chunk])
		if err == errno.EAGAIN {
			waitOn(f, fd.PollOut, proc.BlockOnWrite)
			continue
		}
		if err != nil {
			if written > 0 {
				return int64(written)
			}
			return errno.ToReturnValue(err)
		}
		written += uintptr(n)
	}
	return int64(written)
}

func sysOpen(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()
	path, err := readUserString(p, uintptr(args[0]))
	if err != nil {
		return errno.ToReturnValue(err)
	}

	var f fd.File
	switch path {
	case "/dev/console":
		f = fd.Console()
	case "/dev/null":
		f = fd.Null()
	default:
		// No filesystem is mounted behind this kernel; only the two
		// device nodes exist.
		return errno.ToReturnValue(errno.ENOENT)
	}

	num, installed := p.FDs.Install(f)
	if !installed {
		return errno.ToReturnValue(errno.EINVAL)
	}
	return int64(num)
}

func sysClose(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()
	return ok(0, p.FDs.Close(int(int64(args[0]))))
}

func sysPipe(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()
	fdsPtr := uintptr(args[0])

	r, w := fd.NewPipe()
	rNum, okR := p.FDs.Install(r)
	if !okR {
		return errno.ToReturnValue(errno.EINVAL)
	}
	wNum, okW := p.FDs.Install(w)
	if !okW {
		_ = p.FDs.Close(rNum)
		return errno.ToReturnValue(errno.EINVAL)
	}

	var buf [8]byte
	putUint32(buf[0:4], uint32(rNum))
	putUint32(buf[4:8], uint32(wNum))
	if err := uaccess.CopyOut(p.AddressSpace, fdsPtr, buf[:]); err != nil {
		_ = p.FDs.Close(rNum)
		_ = p.FDs.Close(wNum)
		return errno.ToReturnValue(err)
	}
	return 0
}

func sysDup(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()
	newFd, err := p.FDs.Dup(int(int64(args[0])))
	return ok(newFd, err)
}

// pollfd mirrors struct pollfd's 8-byte layout: fd int32, events int16,
// revents int16.
const pollfdSize = 8

func sysPoll(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()
	fdsPtr, nfds, timeoutMs := uintptr(args[0]), int(int64(args[1])), int64(args[2])
	if nfds < 0 || nfds > fd.MaxFDs {
		return errno.ToReturnValue(errno.EINVAL)
	}

	size := uintptr(nfds * pollfdSize)
	kbuf := make([]byte, size)
	if err := uaccess.CopyIn(p.AddressSpace, kbuf, fdsPtr); err != nil {
		return errno.ToReturnValue(err)
	}

	deadline := pollDeadline(timeoutMs)
	for {
		ready := 0
		for i := 0; i < nfds; i++ {
			off := i * pollfdSize
			fdNum := int(int32(getUint32(kbuf[off : off+4])))
			events := uint32(getUint16(kbuf[off+4 : off+6]))
			var revents uint32
			f, err := p.FDs.Get(fdNum)
			if err != nil {
				revents = pollNval
			} else {
				revents = f.Ready(events)
			}
			putUint16(kbuf[off+6:off+8], uint16(revents))
			if revents != 0 {
				ready++
			}
		}
		if ready > 0 {
			if err := uaccess.CopyOut(p.AddressSpace, fdsPtr, kbuf); err != nil {
				return errno.ToReturnValue(err)
			}
			return int64(ready)
		}
		if timeoutMs == 0 || deadlineExpired(deadline) {
			return 0
		}
		yieldNow()
	}
}

// pollNval is POLLNVAL, reported for a descriptor number with no open file.
const pollNval = 0x020

func sysIoctl(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()
	fdNum, req, argPtr := int(int64(args[0])), args[1], uintptr(args[2])

	f, err := p.FDs.Get(fdNum)
	if err != nil {
		return errno.ToReturnValue(err)
	}
	if f.Kind() != fd.KindConsole || req != fd.FramebufferQuery {
		return errno.ToReturnValue(errno.EINVAL)
	}

	info := fd.GetFramebufferInfo()
	var buf [20]byte
	putUint32(buf[0:4], info.Width)
	putUint32(buf[4:8], info.Height)
	putUint32(buf[8:12], info.Stride)
	putUint32(buf[12:16], info.BytesPerPixel)
	putUint32(buf[16:20], info.PixelFormat)
	if err := uaccess.CopyOut(p.AddressSpace, argPtr, buf[:]); err != nil {
		return errno.ToReturnValue(err)
	}
	return 0
}
