package amd64

import "time"

// 8253/8254 Programmable Interval Timer, running channel 0 in rate generator
// mode on IRQ0. pitFrequency is the PIT's fixed input clock.
const (
	pitChannel0    = 0x40
	pitCommand     = 0x43
	pitFrequency   = 1193182
	pitModeRateGen = 0x34 // channel 0, lobyte/hibyte, mode 2
)

// timer implements hal.Timer on top of the PIT. NowTicks counts IRQ0
// deliveries rather than reading a free-running counter: the PIT has no
// readable monotonic register in rate-generator mode, so the tick count is
// advanced by the IRQ0 handler kernel/trap installs.
type timer struct{}

// SysTimer is the package's singleton hal.Timer implementation, wired into
// hal.SysTimer by init().
var SysTimer timer

var tickCount uint64

// TickIRQ0 is called by the IRQ0 trap handler once per PIT interval.
func TickIRQ0() {
	tickCount++
}

func (timer) NowTicks() uint64 { return tickCount }

func (timer) Frequency() uint64 { return pitFrequency / pitDivisorFor(defaultTickHz) }

const defaultTickHz = 1000

func pitDivisorFor(hz uint64) uint64 {
	d := pitFrequency / hz
	if d == 0 {
		d = 1
	}
	if d > 0xffff {
		d = 0xffff
	}
	return d
}

// SetOneshot is approximated on the PIT by reprogramming channel 0's divisor
// for the requested period; the PIT has no true one-shot mode wired here, so
// the next IRQ0 still recurs at the new rate until reprogrammed again.
func (timer) SetOneshot(d time.Duration) {
	hz := uint64(time.Second / d)
	if hz == 0 {
		hz = 1
	}
	divisor := pitDivisorFor(hz)

	outb(pitCommand, pitModeRateGen)
	outb(pitChannel0, uint8(divisor&0xff))
	outb(pitChannel0, uint8((divisor>>8)&0xff))
}

// initPIT programs channel 0 for the kernel's default scheduling tick rate
// and unmasks IRQ0.
func initPIT() {
	SysTimer.SetOneshot(time.Second / defaultTickHz)
	Interrupts.Unmask(picVectorOffsetMaster)
}
