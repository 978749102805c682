package amd64

// 8259 Programmable Interrupt Controller ports and commands. The kernel
// remaps the PIC's 8 master + 8 slave IRQ lines to vectors 0x20-0x2f so they
// never collide with the CPU's reserved 0x00-0x1f exception vectors.
const (
	picMasterCommand = 0x20
	picMasterData    = 0x21
	picSlaveCommand  = 0xA0
	picSlaveData     = 0xA1

	picVectorOffsetMaster = 0x20
	picVectorOffsetSlave  = 0x28

	picCmdInit      = 0x11
	picCmd8086Mode  = 0x01
	picCmdEOI       = 0x20
	picSlaveOnIRQ2  = 0x04
	picCascadeIdent = 0x02
)

// pic implements hal.InterruptController for x86_64's legacy 8259 PIC pair.
type pic struct{}

// Interrupts is the package's singleton hal.InterruptController
// implementation, wired into hal.Interrupts by init().
var Interrupts pic

// initPIC remaps and masks both PICs. It must run once, before interrupts
// are enabled, so that IRQs never arrive on their BIOS-default vectors
// (which alias the CPU's exception vectors).
func initPIC() {
	mask1 := inb(picMasterData)
	mask2 := inb(picSlaveData)

	outb(picMasterCommand, picCmdInit)
	outb(picSlaveCommand, picCmdInit)

	outb(picMasterData, picVectorOffsetMaster)
	outb(picSlaveData, picVectorOffsetSlave)

	outb(picMasterData, picSlaveOnIRQ2)
	outb(picSlaveData, picCascadeIdent)

	outb(picMasterData, picCmd8086Mode)
	outb(picSlaveData, picCmd8086Mode)

	outb(picMasterData, mask1)
	outb(picSlaveData, mask2)
}

func (pic) Mask(vector int) {
	irq := vector - picVectorOffsetMaster
	if irq < 8 {
		outb(picMasterData, inb(picMasterData)|(1<<uint(irq)))
		return
	}
	outb(picSlaveData, inb(picSlaveData)|(1<<uint(irq-8)))
}

func (pic) Unmask(vector int) {
	irq := vector - picVectorOffsetMaster
	if irq < 8 {
		outb(picMasterData, inb(picMasterData)&^(1<<uint(irq)))
		return
	}
	outb(picSlaveData, inb(picSlaveData)&^(1<<uint(irq-8)))
}

func (pic) EndOfInterrupt(vector int) {
	if vector-picVectorOffsetMaster >= 8 {
		outb(picSlaveCommand, picCmdEOI)
	}
	outb(picMasterCommand, picCmdEOI)
}
