package syscall

import (
	"github.com/ryanbreen/breenix/kernel/errno"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/proc"
	"github.com/ryanbreen/breenix/kernel/signal"
	"github.com/ryanbreen/breenix/kernel/uaccess"
	"gvisor.dev/gvisor/pkg/abi/linux"
)

// Special handler sentinels, matching SIG_DFL/SIG_IGN's traditional values.
const (
	sigDfl = 0
	sigIgn = 1
)

// sigactionSize mirrors struct sigaction's layout on the wire: handler,
// flags, restorer, mask, each 8 bytes. Flags and restorer are accepted and
// ignored; the kernel injects its own trampoline.
const sigactionSize = 32

func validSignal(n uint64) (linux.Signal, bool) {
	if n < 1 || n > 63 {
		return 0, false
	}
	return linux.Signal(n), true
}

func sysSigaction(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()
	sig, valid := validSignal(args[0])
	if !valid {
		return errno.ToReturnValue(errno.EINVAL)
	}
	// SIGKILL and SIGSTOP cannot be caught or ignored.
	if sig == linux.SIGKILL || sig == linux.SIGSTOP {
		return errno.ToReturnValue(errno.EINVAL)
	}
	actPtr, oldPtr := uintptr(args[1]), uintptr(args[2])

	if oldPtr != 0 {
		old := p.Signals.GetHandler(sig)
		var buf [sigactionSize]byte
		switch old.Disposition {
		case signal.DispositionIgnore:
			putUint64(buf[0:8], sigIgn)
		case signal.DispositionHandler:
			putUint64(buf[0:8], old.EntryPC)
		}
		putUint64(buf[24:32], old.Mask)
		if err := uaccess.CopyOut(p.AddressSpace, oldPtr, buf[:]); err != nil {
			return errno.ToReturnValue(err)
		}
	}

	if actPtr != 0 {
		var buf [sigactionSize]byte
		if err := uaccess.CopyIn(p.AddressSpace, buf[:], actPtr); err != nil {
			return errno.ToReturnValue(err)
		}
		handlerPC := getUint64(buf[0:8])
		mask := getUint64(buf[24:32])

		var h signal.Handler
		switch handlerPC {
		case sigDfl:
			h = signal.Handler{Disposition: signal.DispositionDefault}
		case sigIgn:
			h = signal.Handler{Disposition: signal.DispositionIgnore}
		default:
			h = signal.Handler{
				Disposition: signal.DispositionHandler,
				EntryPC:     handlerPC,
				Mask:        mask,
			}
		}
		p.Signals.SetHandler(sig, h)
	}
	return 0
}

// sigprocmask's how argument, matching Linux's values.
const (
	sigBlock   = 0
	sigUnblock = 1
	sigSetmask = 2
)

func sysSigprocmask(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()
	how, setPtr, oldPtr := args[0], uintptr(args[1]), uintptr(args[2])

	old := p.Signals.Blocked()
	if oldPtr != 0 {
		if err := uaccess.CopyOutUint64(p.AddressSpace, oldPtr, old); err != nil {
			return errno.ToReturnValue(err)
		}
	}
	if setPtr == 0 {
		return 0
	}
	set, err := uaccess.CopyInUint64(p.AddressSpace, setPtr)
	if err != nil {
		return errno.ToReturnValue(err)
	}

	// SIGKILL and SIGSTOP are never blockable.
	unblockable := uint64(1)<<uint(linux.SIGKILL) | uint64(1)<<uint(linux.SIGSTOP)
	set &^= unblockable

	switch how {
	case sigBlock:
		p.Signals.SetBlocked(old | set)
	case sigUnblock:
		p.Signals.SetBlocked(old &^ set)
	case sigSetmask:
		p.Signals.SetBlocked(set)
	default:
		return errno.ToReturnValue(errno.EINVAL)
	}
	return 0
}

func sysKill(ef hal.ExceptionFrame, args [6]uint64) int64 {
	pid := proc.ProcessID(args[0])
	sig, valid := validSignal(args[1])
	if !valid {
		return errno.ToReturnValue(errno.EINVAL)
	}

	target := proc.Lookup(pid)
	if target == nil {
		return errno.ToReturnValue(errno.ESRCH)
	}
	state, _ := target.State()
	if state == proc.StateZombie {
		return errno.ToReturnValue(errno.ESRCH)
	}

	target.Signals.Raise(sig)

	// A stopped process resumes on SIGCONT; a parked one is woken so its
	// blocking syscall can observe the signal and return EINTR.
	if state == proc.StateStopped && sig == linux.SIGCONT {
		target.SetState(proc.StateReady, proc.BlockNone)
		if len(target.Threads) > 0 {
			unblockThread(target.Threads[0])
		}
	} else if state == proc.StateBlocked {
		target.SetState(proc.StateReady, proc.BlockNone)
		if len(target.Threads) > 0 {
			unblockThread(target.Threads[0])
		}
	}
	return 0
}

// sysRtSigreturn restores the register file captured at delivery time from
// the sigframe the trampoline's stack pointer addresses. It is a raw
// handler: the restored frame's own return register must survive, so the
// dispatcher writes nothing back on success. rt_sigreturn never returns to
// its caller by construction; the restored PC is wherever the signal
// interrupted the process.
func sysRtSigreturn(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()

	var buf [signal.SigFrameSize]byte
	if err := uaccess.CopyIn(p.AddressSpace, buf[:], uintptr(ef.SP())); err != nil {
		// The sigframe is gone; the process has corrupted its own stack
		// beyond recovery.
		return errno.ToReturnValue(errno.EFAULT)
	}
	sf := signal.UnmarshalSigFrame(&buf)

	p.Signals.EndHandling(sf.SavedMask)
	signal.Restore(ef, sf)
	return 0
}
