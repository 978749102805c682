package trap

import (
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem/pmm"
	"github.com/ryanbreen/breenix/kernel/proc"
	"github.com/ryanbreen/breenix/kernel/sched"
	"github.com/ryanbreen/breenix/kernel/signal"
	"github.com/ryanbreen/breenix/kernel/uaccess"
	"gvisor.dev/gvisor/pkg/abi/linux"
)

// returnGate runs between trap handling and frame restore. Two things can
// happen here, in order: a latched reschedule request is honored (for any
// outermost trap, kernel- or user-bound), and pending signals are delivered
// by rewriting the frame (only when the trap came from user mode; signals
// are never delivered on kernel-to-kernel transitions).
func returnGate(ef hal.ExceptionFrame, fromUser bool) {
	if sched.RescheduleRequested() {
		sched.Reschedule()
	}
	if !fromUser {
		return
	}
	deliverSignals(ef)
}

// deliverSignals walks the current process's deliverable set until it is
// empty or a delivery rewrites the frame: lowest-numbered deliverable
// signal first, default terminate/core/stop actions applied in the
// kernel, ignored signals dropped, and a user handler entered by
// rewriting PC/SP/arg0 after pushing a sigframe and the sigreturn
// trampoline onto the user stack.
func deliverSignals(ef hal.ExceptionFrame) {
	cur := sched.Current()
	if cur == nil || cur.Process == nil || cur.Process.Signals == nil {
		return
	}
	p := cur.Process

	for {
		if !p.Signals.HasDeliverable() {
			return
		}
		d := p.Signals.Pick()
		switch d.Action {
		case signal.DeliveryNone:
			// Pick dropped an ignored signal; look again.
			continue

		case signal.DeliveryDefault:
			if d.DefaultKind == signal.ActionStop {
				p.SetState(proc.StateStopped, proc.BlockNone)
				sched.Block()
				continue
			}
			// Terminate / core: the process dies carrying the signal
			// number as its wait status, so the parent's wait observes a
			// signalled exit rather than a normal one.
			sched.ExitCurrent(int(d.Signal), p.MappedRegions(), pmm.ReleaseAndMaybeFree)
			return

		case signal.DeliveryHandler:
			if enterHandler(ef, p, d) {
				return
			}
			// The user stack was unusable; the process cannot run its
			// handler, so it dies as if the signal had no handler.
			sched.ExitCurrent(int(linux.SIGSEGV), p.MappedRegions(), pmm.ReleaseAndMaybeFree)
			return
		}
	}
}

// enterHandler pushes the sigreturn trampoline, the sigframe, and a return
// address onto the user stack, then rewrites the frame to resume at the
// handler. The layout, top down from the interrupted SP:
//
//	[trampoline code]   <- handler's ret lands here
//	[sigframe]          <- frame's SP at rt_sigreturn time
//	[return address]    <- handler's SP on entry, holds trampoline address
//
// Reports false if any user-stack write faults.
func enterHandler(ef hal.ExceptionFrame, p *proc.Process, d signal.Delivery) bool {
	tramp := signal.Trampoline()

	sp := uintptr(ef.SP()) &^ 15
	sp -= uintptr(len(tramp))
	sp &^= 15
	trampAddr := sp

	sp -= signal.SigFrameSize
	sp &^= 15
	frameAddr := sp

	// The return-address slot leaves SP ≡ 8 (mod 16) at handler entry,
	// exactly as if the handler had been reached by a call.
	sp -= 8
	retAddr := sp

	savedMask := p.Signals.Blocked()
	sf := signal.CaptureFrame(ef, savedMask)
	var buf [signal.SigFrameSize]byte
	sf.Marshal(&buf)

	as := p.AddressSpace
	if uaccess.CopyOut(as, trampAddr, tramp) != nil ||
		uaccess.CopyOut(as, frameAddr, buf[:]) != nil ||
		uaccess.CopyOutUint64(as, retAddr, uint64(trampAddr)) != nil {
		return false
	}

	p.Signals.BeginHandling(d.Signal, d.Handler.Mask)

	ef.SetPC(d.Handler.EntryPC)
	ef.SetSP(uint64(retAddr))
	ef.SetArg(0, uint64(d.Signal))
	return true
}
