package arm64

import "github.com/ryanbreen/breenix/kernel/hal"

// privilege is AArch64's two-valued privilege level, EL1 (kernel) and EL0
// (user).
type privilege int

const (
	el1 privilege = iota
	el0
)

func (p privilege) IsKernel() bool { return p == el1 }
func (p privilege) IsUser() bool   { return p == el0 }

type privilegeOps struct{}

// Privileges is the package's singleton hal.PrivilegeOps implementation.
var Privileges privilegeOps

func (privilegeOps) Kernel() hal.Privilege { return el1 }
func (privilegeOps) User() hal.Privilege   { return el0 }
