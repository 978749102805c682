package amd64

import "github.com/ryanbreen/breenix/kernel/hal"

// QEMU's isa-debug-exit device: a write to its port terminates the
// emulator with the written value as (value << 1) | 1, letting a test
// harness distinguish clean shutdowns from panics.
const debugExitPort = 0xf4

// Exit status bytes the harness recognizes.
const (
	DebugExitSuccess = 0x10
	DebugExitFailure = 0x11
)

func init() {
	hal.DebugExit = func(success bool) {
		code := uint8(DebugExitFailure)
		if success {
			code = DebugExitSuccess
		}
		outb(debugExitPort, code)
	}
}
