package amd64

import "github.com/ryanbreen/breenix/kernel/hal"

// privilege is x86_64's two-valued privilege level (Ring0/Ring3), per
// the two-valued privilege capability.
type privilege int

const (
	ring0 privilege = iota
	ring3
)

func (p privilege) IsKernel() bool { return p == ring0 }
func (p privilege) IsUser() bool   { return p == ring3 }

type privilegeOps struct{}

// Privileges is the package's singleton hal.PrivilegeOps implementation.
var Privileges privilegeOps

func (privilegeOps) Kernel() hal.Privilege { return ring0 }
func (privilegeOps) User() hal.Privilege   { return ring3 }
