package arm64

import "unsafe"

// GICv2 distributor (GICD) and CPU interface (GICC) register offsets for
// the QEMU virt machine layout.
const (
	gicdBase uintptr = 0x08000000
	giccBase uintptr = 0x08010000

	gicdCtlr       = 0x000
	gicdIsenabler  = 0x100
	gicdIcenabler  = 0x180
	gicdIpriorityr = 0x400
	gicdItargetsr  = 0x800

	gicdEnableGrp0 = 1 << 0

	giccCtlr = 0x000
	giccPmr  = 0x004
	giccIar  = 0x00c
	giccEoir = 0x010

	giccEnable    = 1 << 0
	giccPmrLowest = 0xff
)

func gicdReg(offset uintptr) *uint32 { return (*uint32)(unsafe.Pointer(gicdBase + offset)) }
func giccReg(offset uintptr) *uint32 { return (*uint32)(unsafe.Pointer(giccBase + offset)) }

// gic implements hal.InterruptController for AArch64's GICv2.
type gic struct{}

// Interrupts is the package's singleton hal.InterruptController
// implementation.
var Interrupts gic

func initGIC() {
	*gicdReg(gicdCtlr) = gicdEnableGrp0
	*giccReg(giccPmr) = giccPmrLowest
	*giccReg(giccCtlr) = giccEnable
}

func (gic) Mask(vector int) {
	reg := gicdIcenabler + uintptr(vector/32)*4
	*gicdReg(reg) = 1 << uint(vector%32)
}

func (gic) Unmask(vector int) {
	reg := gicdIsenabler + uintptr(vector/32)*4
	*gicdReg(reg) = 1 << uint(vector%32)
}

func (gic) EndOfInterrupt(vector int) {
	*giccReg(giccEoir) = uint32(vector)
}

// AckInterrupt reads GICC_IAR to find the pending interrupt ID; classify
// (trap_arm64.go) calls this at IRQ entry, before kernel/trap dispatches on
// the vector.
func AckInterrupt() int {
	return int(*giccReg(giccIar))
}
