package arm64

import "time"

// timer implements hal.Timer on the AArch64 generic timer (CNTP, the
// EL1 physical timer). Unlike the PIT, CNTPCT_EL0 is a true free-running
// counter, so NowTicks reads hardware directly instead of counting IRQs.
type timer struct{}

// SysTimer is the package's singleton hal.Timer implementation.
var SysTimer timer

func readCNTFRQ() uint64
func readCNTPCT() uint64
func writeCNTPTval(uint32)
func writeCNTPCtl(uint32)

const cntpCtlEnable = 1 << 0

func (timer) NowTicks() uint64   { return readCNTPCT() }
func (timer) Frequency() uint64  { return readCNTFRQ() }

func (timer) SetOneshot(d time.Duration) {
	freq := readCNTFRQ()
	ticks := uint64(d) * freq / uint64(time.Second)
	if ticks > 0xffffffff {
		ticks = 0xffffffff
	}
	writeCNTPTval(uint32(ticks))
	writeCNTPCtl(cntpCtlEnable)
}

func initGenericTimer() {
	SysTimer.SetOneshot(time.Second / defaultTickHz)
}

// TimerTick re-arms the EL1 physical timer for the next period; the
// generic timer is oneshot, so every tick handler must call this or the
// tick it is handling is the last one.
func TimerTick() {
	SysTimer.SetOneshot(time.Second / defaultTickHz)
}

const defaultTickHz = 1000
