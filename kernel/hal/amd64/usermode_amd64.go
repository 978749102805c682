package amd64

import "github.com/ryanbreen/breenix/kernel/hal"

// User-mode segment selectors. The boot handoff's GDT lays out kernel
// code/data at entries 1/2 and user code/data at entries 3/4; the RPL bits
// are folded in here so the IRETQ frame loads CPL3 directly.
const (
	userCodeSelector = 0x18 | 3
	userDataSelector = 0x20 | 3
)

// rflagsIF keeps interrupts enabled in user mode; the timer must be able
// to preempt a spinning user thread.
const rflagsIF = 0x202

// userMode implements hal.UserModeOps for x86_64.
type userMode struct{}

// UserEntry is the package's singleton hal.UserModeOps implementation.
var UserEntry userMode

// Enter builds a Regs block shaped exactly like a trap frame and hands it
// to userRet, which runs trapCommon's restore sequence ending in IRETQ:
// entering user mode for the first time is literally returning from a trap
// that never happened.
func (userMode) Enter(st *hal.UserState) {
	var regs Regs
	if st.HasRegs {
		regs.R15 = st.Regs[0]
		regs.R14 = st.Regs[1]
		regs.R13 = st.Regs[2]
		regs.R12 = st.Regs[3]
		regs.R11 = st.Regs[4]
		regs.R10 = st.Regs[5]
		regs.R9 = st.Regs[6]
		regs.R8 = st.Regs[7]
		regs.RBP = st.Regs[8]
		regs.RDI = st.Regs[9]
		regs.RSI = st.Regs[10]
		regs.RDX = st.Regs[11]
		regs.RCX = st.Regs[12]
		regs.RBX = st.Regs[13]
		regs.RAX = st.ReturnValue
	} else {
		regs.RDI = st.Args[0]
		regs.RSI = st.Args[1]
		regs.RDX = st.Args[2]
		regs.R10 = st.Args[3]
		regs.R8 = st.Args[4]
		regs.R9 = st.Args[5]
	}

	regs.RIP = st.PC
	regs.CS = userCodeSelector
	regs.RFlags = rflagsIF
	regs.RSP = st.SP
	regs.SS = userDataSelector

	userRet(&regs)
}

// userRet has no Go body; see usermode_amd64.s. It never returns.
func userRet(regs *Regs)
