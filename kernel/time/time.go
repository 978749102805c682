// Package time provides the kernel's clock surface: monotonic ticks
// converted to wall time via hal.Timer, and the clock ids clock_gettime
// accepts.
package time

import "github.com/ryanbreen/breenix/kernel/hal"

// ClockID selects which clock clock_gettime reads.
type ClockID uint32

const (
	Monotonic ClockID = iota
	Realtime
)

// Timespec mirrors the wire layout clock_gettime writes into userspace;
// kernel/syscall encodes Sec and Nsec as two little-endian 64-bit words at
// the copy-to-user boundary.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// bootRealtimeSec is the wall-clock epoch second the kernel considers
// itself to have booted at. Real hardware would read this from the RTC;
// this kernel has no RTC driver, so REALTIME is MONOTONIC plus a fixed
// offset recorded once at boot.
var bootRealtimeSec int64

// SetBootRealtime records the wall-clock time at boot, establishing the
// REALTIME clock's offset from MONOTONIC. Called once during kernel init.
func SetBootRealtime(unixSec int64) {
	bootRealtimeSec = unixSec
}

// Now returns the current time for the given clock. MONOTONIC always
// starts at zero and is non-decreasing for the life of the kernel;
// REALTIME adds the boot offset.
func Now(id ClockID) Timespec {
	ticks := hal.SysTimer.NowTicks()
	freq := hal.SysTimer.Frequency()
	if freq == 0 {
		return Timespec{}
	}

	sec := int64(ticks / freq)
	nsec := int64((ticks % freq) * 1_000_000_000 / freq)

	if id == Realtime {
		sec += bootRealtimeSec
	}
	return Timespec{Sec: sec, Nsec: nsec}
}

// NowTicks is the raw monotonic tick count, used internally by the
// scheduler and tracing, which only need relative ordering, not wall time.
func NowTicks() uint64 {
	return hal.SysTimer.NowTicks()
}
