package hal

import (
	"github.com/ryanbreen/breenix/kernel/driver/tty"
	"github.com/ryanbreen/breenix/kernel/driver/video/console"
	"github.com/ryanbreen/breenix/kernel/hal/multiboot"
)

var (
	egaConsole = &console.Ega{}

	// ActiveTerminal points to the currently active terminal. It is the
	// kernel's only output path until the console driver and the rest of
	// the ambient stack (kernel/kfmt/early) are available, and remains the
	// sink early.Printf writes to thereafter.
	ActiveTerminal = &tty.Vt{}
)

// InitTerminal sets up a basic EGA text-mode terminal so the kernel can emit
// output before any other subsystem is initialized.
func InitTerminal() {
	fbInfo := multiboot.GetFramebufferInfo()

	egaConsole.Init(uint16(fbInfo.Width), uint16(fbInfo.Height), uintptr(fbInfo.PhysAddr))
	ActiveTerminal.AttachTo(egaConsole)
}
