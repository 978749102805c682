package arm64

import "github.com/ryanbreen/breenix/kernel/hal"

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

// Init installs the exception vector table, then brings up the GICv2
// distributor/CPU interface and programs the generic timer's first tick.
// Called once from kernel/kmain's archIRQInit.
func Init() {
	installVectors()
	initGIC()
	initGenericTimer()
}
