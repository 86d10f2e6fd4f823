// Package pic drives the legacy cascaded dual-8259 programmable interrupt
// controller: master at 0x20/0x21, slave at 0xA0/0xA1, cascaded on the
// master's IRQ2 line. The four-ICW init sequence and mask bookkeeping run
// against the injectable ioport.Bus so they're exercisable under `go test`
// instead of only at boot.
package pic

import "github.com/varunaditya27/nexakernel/config"

const (
	icw1Init       = 0x11 // ICW1: edge-triggered, cascade, ICW4 needed
	icw4_8086      = 0x01
	ocwReadISR     = 0x0B
	numLines       = 16
	slaveCascadeID = 2 // IRQ2 on the master carries the slave's cascade
)

// Controller is the process-wide cascade singleton.
type Controller struct {
	bus         Bus
	masterMask  uint8
	slaveMask   uint8
	initialized bool
}

// Bus is the subset of ioport.Bus the PIC driver needs.
type Bus interface {
	In8(port uint16) uint8
	Out8(port uint16, val uint8)
}

// Default is the singleton driver installed at boot.
var Default = &Controller{}

// Init remaps the cascade so the master occupies vectors 32-39 and the
// slave 40-47, then masks every line; callers enable lines they have
// handlers for via Enable.
func (c *Controller) Init(bus Bus) {
	c.bus = bus

	bus.Out8(config.PICMasterCommand, icw1Init)
	bus.Out8(config.PICSlaveCommand, icw1Init)

	bus.Out8(config.PICMasterData, uint8(config.IRQMasterBase)) // ICW2: vector offset
	bus.Out8(config.PICSlaveData, uint8(config.IRQSlaveBase))

	bus.Out8(config.PICMasterData, 1<<slaveCascadeID) // ICW3: slave lives on IRQ2
	bus.Out8(config.PICSlaveData, slaveCascadeID)      // ICW3: slave's cascade identity

	bus.Out8(config.PICMasterData, icw4_8086)
	bus.Out8(config.PICSlaveData, icw4_8086)

	c.masterMask = 0xFF
	c.slaveMask = 0xFF
	bus.Out8(config.PICMasterData, c.masterMask)
	bus.Out8(config.PICSlaveData, c.slaveMask)

	c.initialized = true
}

// Enable unmasks IRQ line (0-15), enabling it to cascade down. Enabling a
// slave line (8-15) also unmasks the master's cascade line (2), matching
// what a correct boot sequence does by hand.
func (c *Controller) Enable(line int) {
	if !c.initialized || line < 0 || line >= numLines {
		return
	}
	if line < 8 {
		c.masterMask &^= 1 << uint(line)
		c.bus.Out8(config.PICMasterData, c.masterMask)
		return
	}
	c.slaveMask &^= 1 << uint(line-8)
	c.bus.Out8(config.PICSlaveData, c.slaveMask)
	c.masterMask &^= 1 << slaveCascadeID
	c.bus.Out8(config.PICMasterData, c.masterMask)
}

// Disable masks IRQ line.
func (c *Controller) Disable(line int) {
	if !c.initialized || line < 0 || line >= numLines {
		return
	}
	if line < 8 {
		c.masterMask |= 1 << uint(line)
		c.bus.Out8(config.PICMasterData, c.masterMask)
		return
	}
	c.slaveMask |= 1 << uint(line-8)
	c.bus.Out8(config.PICSlaveData, c.slaveMask)
}

// SendEOI acknowledges line's interrupt. Lines 8-15 need an EOI to both
// chips since the slave's signal is itself relayed through the master's
// cascade line.
func (c *Controller) SendEOI(line int) {
	if !c.initialized || line < 0 || line >= numLines {
		return
	}
	if line >= 8 {
		c.bus.Out8(config.PICSlaveCommand, config.PICEOI)
	}
	c.bus.Out8(config.PICMasterCommand, config.PICEOI)
}

// IsSpurious reports whether the just-delivered interrupt on line was
// spurious: defined only for lines 7 and 15, the two lines the 8259 can
// raise without actually latching a real source. Detected by reading the
// in-service register and checking whether the line's bit was actually
// set. Any other line never reports spurious.
func (c *Controller) IsSpurious(line int) bool {
	if !c.initialized {
		return false
	}
	switch line {
	case 7:
		return c.readISR(config.PICMasterCommand)&(1<<7) == 0
	case 15:
		return c.readISR(config.PICSlaveCommand)&(1<<7) == 0
	default:
		return false
	}
}

func (c *Controller) readISR(commandPort uint16) uint8 {
	c.bus.Out8(commandPort, ocwReadISR)
	return c.bus.In8(commandPort)
}
