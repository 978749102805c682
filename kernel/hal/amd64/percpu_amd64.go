package amd64

// percpu implements hal.PerCPU. This target does not bring up application
// processors, so it always resolves to the single boot CPU; the
// indirection exists so per-CPU state
// keyed off ID()/Count() doesn't need to change shape if SMP is ever added.
type percpu struct{}

// PerCpu is the package's singleton hal.PerCPU implementation, wired into
// hal.PerCpu by init().
var PerCpu percpu

func (percpu) ID() int    { return 0 }
func (percpu) Count() int { return 1 }
