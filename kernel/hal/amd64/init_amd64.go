package amd64

import "github.com/ryanbreen/breenix/kernel/hal"

// init wires this package's singletons into the architecture-neutral
// kernel/hal surface. It is the only place in the tree that names both an
// hal variable and an amd64 concrete type in the same statement.
func init() {
	hal.CPU = CPU
	hal.Privileges = Privileges
	hal.PageTable = PageTable
	hal.PerCpu = PerCpu
	hal.Interrupts = Interrupts
	hal.SysTimer = SysTimer
	hal.Contexts = Contexts
	hal.User = UserEntry
}

// Init installs the IDT and brings up the 8259 PIC and PIT. It must run
// after hal.Interrupts and hal.SysTimer are wired (i.e. after this
// package's init()) but before hal.CPU.EnableInterrupts is ever called.
func Init() {
	installIDT()
	initPIC()
	initPIT()
}
