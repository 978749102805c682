package arm64

import "github.com/ryanbreen/breenix/kernel/hal"

// spsrEL0t is the saved PSTATE an ERET into AArch64 EL0 needs: M[3:0] =
// 0b0000 (EL0t), all interrupt masks clear so the timer can preempt.
const spsrEL0t = 0

// userMode implements hal.UserModeOps for AArch64.
type userMode struct{}

// UserEntry is the package's singleton hal.UserModeOps implementation.
var UserEntry userMode

// Enter builds a Regs block shaped exactly like a trap frame and hands it
// to userRet, which replays trapEntry's restore path ending in ERET: the
// mirror of kernel/hal/amd64's IRETQ-based first entry.
func (userMode) Enter(st *hal.UserState) {
	var regs Regs
	if st.HasRegs {
		regs.X = st.Regs
		regs.X[0] = st.ReturnValue
	} else {
		for i := 0; i < 6; i++ {
			regs.X[i] = st.Args[i]
		}
	}

	regs.ELR = st.PC
	regs.SPSR = spsrEL0t
	regs.SPEL0 = st.SP

	userRet(&regs)
}

// userRet has no Go body; see usermode_arm64.s. It never returns.
func userRet(regs *Regs)
