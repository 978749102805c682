package syscall

import (
	"github.com/ryanbreen/breenix/kernel/errno"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem"
	"github.com/ryanbreen/breenix/kernel/mem/pmm"
	"github.com/ryanbreen/breenix/kernel/mem/vmm"
	"github.com/ryanbreen/breenix/kernel/proc"
	"github.com/ryanbreen/breenix/kernel/sched"
	ktime "github.com/ryanbreen/breenix/kernel/time"
	"github.com/ryanbreen/breenix/kernel/uaccess"
)

func sysGetTime(ef hal.ExceptionFrame, args [6]uint64) int64 {
	return int64(nowTicks())
}

func sysYield(ef hal.ExceptionFrame, args [6]uint64) int64 {
	yieldNow()
	return 0
}

func sysGetPID(ef hal.ExceptionFrame, args [6]uint64) int64 {
	return int64(current().ID)
}

func sysGetTID(ef hal.ExceptionFrame, args [6]uint64) int64 {
	return int64(currentThread().ID)
}

func sysClockGettime(ef hal.ExceptionFrame, args [6]uint64) int64 {
	clockID, tsPtr := uint32(args[0]), uintptr(args[1])

	var id ktime.ClockID
	switch clockID {
	case uint32(ktime.Monotonic), uint32(ktime.Realtime):
		id = ktime.ClockID(clockID)
	default:
		return errno.ToReturnValue(errno.EINVAL)
	}

	ts := ktime.Now(id)
	var buf [16]byte
	putUint64(buf[0:8], uint64(ts.Sec))
	putUint64(buf[8:16], uint64(ts.Nsec))
	if err := uaccess.CopyOut(current().AddressSpace, tsPtr, buf[:]); err != nil {
		return errno.ToReturnValue(err)
	}
	return 0
}

// frameSaver is the optional concrete-frame capability fork needs: a full
// general-purpose snapshot, beyond the ABI registers ExceptionFrame names.
type frameSaver interface {
	SaveUserState(*hal.UserState)
}

func sysFork(ef hal.ExceptionFrame, args [6]uint64) int64 {
	parent := current()
	if parent.AddressSpace == nil {
		return errno.ToReturnValue(errno.EINVAL)
	}

	childAS, err := vmm.NewAddressSpace()
	if err != nil {
		return errno.ToReturnValue(errno.ENOMEM)
	}

	regions := parent.MappedRegions()
	if err := shareRegionsCopyOnWrite(parent.AddressSpace, childAS, regions); err != nil {
		childAS.Destroy(regions, pmm.ReleaseAndMaybeFree)
		return errno.ToReturnValue(errno.ENOMEM)
	}

	child, th, perr := proc.NewUserProcess(parent, childAS, sched.AllocStack)
	if perr != nil {
		childAS.Destroy(regions, pmm.ReleaseAndMaybeFree)
		return errno.ToReturnValue(errno.ENOMEM)
	}
	child.FDs = parent.FDs.Fork()
	child.Signals = parent.Signals.Clone()
	for _, r := range regions {
		child.AddRegion(r)
	}

	// The child resumes at the instruction after the trap with the
	// parent's exact register file, except the return register reads 0.
	if saver, hasFull := ef.(frameSaver); hasFull {
		saver.SaveUserState(&th.User)
	} else {
		th.User.PC = ef.PC()
		th.User.SP = ef.SP()
		for i := 0; i < 6; i++ {
			th.User.Args[i] = ef.Arg(i)
		}
	}
	th.User.ReturnValue = 0

	sched.EnqueueThread(th)
	return int64(child.ID)
}

// shareRegionsCopyOnWrite maps every page of the parent's user regions
// into the child, downgrading writable pages to copy-on-write in both
// address spaces and bumping each frame's share count.
func shareRegionsCopyOnWrite(parentAS, childAS *vmm.AddressSpace, regions []vmm.Region) error {
	for _, region := range regions {
		end := region.Base + region.Size
		for va := region.Base; va < end; va += uintptr(mem.PageSize) {
			pa, flags, err := parentAS.Translate(va)
			if err != nil {
				continue // hole in the region; nothing to share
			}
			shared := flags
			if hal.PageTable.IsWritable(flags) && !hal.PageTable.IsCopyOnWrite(flags) {
				shared = hal.PageTable.MakeCopyOnWrite(flags)
				if err := parentAS.Protect(va, shared); err != nil {
					return err
				}
				hal.PageTable.InvalidatePage(va)
			}
			if err := childAS.Map(va, pa, shared); err != nil {
				return err
			}
			pmm.Share(pmm.Frame(pa >> mem.PageShift))
		}
	}
	return nil
}

// exitStatus packs a normal exit code the way the wait-family macros
// expect: code in bits 8-15, zero low byte meaning "not signalled".
func exitStatus(code int) int {
	return (code & 0xff) << 8
}

func sysExit(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()
	exitCurrent(exitStatus(int(int64(args[0]))), p.MappedRegions(), pmm.ReleaseAndMaybeFree)
	// exitCurrent never returns on a live scheduler.
	return 0
}

func sysWait(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()
	statusPtr := uintptr(args[0])
	th := currentThread()

	for {
		pid, status, err := p.ReapChild()
		if err == nil {
			proc.Unregister(pid)
			if statusPtr != 0 {
				var buf [4]byte
				putUint32(buf[:], uint32(status))
				if cerr := uaccess.CopyOut(p.AddressSpace, statusPtr, buf[:]); cerr != nil {
					return errno.ToReturnValue(cerr)
				}
			}
			return int64(pid)
		}
		if err == errno.ECHILD {
			return errno.ToReturnValue(err)
		}

		// EAGAIN: children exist, none zombie yet. Park until a child's
		// exit wakes us, then re-scan.
		p.SetWaitWake(func() { unblockThread(th) })
		p.SetState(proc.StateBlocked, proc.BlockOnWait)
		blockCurrent()
		p.SetState(proc.StateRunning, proc.BlockNone)

		if p.Signals != nil && p.Signals.HasDeliverable() {
			return errno.ToReturnValue(errno.EINTR)
		}
	}
}
