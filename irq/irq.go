// Package irq is the hardware interrupt dispatcher sitting between the
// vector table (package interrupt) and per-device handlers: it converts a
// vector into a line number, filters spurious interrupts via the PIC,
// counts every line that fires, and enforces EOI-before-handler ordering
// so a handler that itself blocks waiting on another interrupt can never
// deadlock the controller.
package irq

import (
	"sync"

	"github.com/varunaditya27/nexakernel/config"
	"github.com/varunaditya27/nexakernel/interrupt"
)

const numLines = config.IRQVectorLast - config.IRQVectorBase + 1

// Handler handles one IRQ line. f carries the frame the shared trap stub
// built; line handlers never need the raw vector number, only the frame.
type Handler func(f *interrupt.Frame)

// Controller is the subset of pic.Controller the dispatcher depends on.
type Controller interface {
	SendEOI(line int)
	IsSpurious(line int) bool
}

// Dispatcher is the process-wide IRQ dispatcher singleton.
type Dispatcher struct {
	mu       sync.Mutex
	pic      Controller
	handlers [numLines]Handler
	counts   [numLines]uint64
	spurious [numLines]uint64
}

// Default is the singleton installed at boot.
var Default = &Dispatcher{}

// Install binds the dispatcher to its PIC and registers itself as every
// line's handler in tbl, so every IRQ vector funnels through Dispatch.
func (d *Dispatcher) Install(tbl *interrupt.Table, pic Controller) {
	d.pic = pic
	for line := 0; line < numLines; line++ {
		l := line
		tbl.RegisterIRQ(config.IRQVectorBase+l, func(f *interrupt.Frame) {
			d.Dispatch(l, f)
		})
	}
}

// RegisterHandler installs the handler called for line, replacing any
// previous one. A line with no registered handler is silently dropped
// after being acked and counted: an interrupt a driver doesn't want yet is
// not a bug.
func (d *Dispatcher) RegisterHandler(line int, h Handler) {
	if line < 0 || line >= numLines {
		return
	}
	d.mu.Lock()
	d.handlers[line] = h
	d.mu.Unlock()
}

// Dispatch is what the shared IRQ trap stub calls, already holding the
// line number the vector mapped to. Spurious IRQ7 (master) gets no EOI at
// all per the 8259's own contract: acking a phantom interrupt risks
// dropping a real pending one. Spurious IRQ15 (slave) still needs an EOI
// to the master to clear the cascade signal, but never to the slave chip,
// so SendEOI is only ever called for real line 15 and for every other line
// before the handler runs.
func (d *Dispatcher) Dispatch(line int, f *interrupt.Frame) {
	if line < 0 || line >= numLines {
		return
	}

	if d.pic != nil && d.pic.IsSpurious(line) {
		d.mu.Lock()
		d.spurious[line]++
		d.mu.Unlock()
		if line == 15 {
			d.pic.SendEOI(2) // ack the master's cascade line only
		}
		return
	}

	if d.pic != nil {
		d.pic.SendEOI(line)
	}

	d.mu.Lock()
	d.counts[line]++
	h := d.handlers[line]
	d.mu.Unlock()

	if h != nil {
		h(f)
	}
}

// Count reports how many times line has fired (excluding spurious hits).
func (d *Dispatcher) Count(line int) uint64 {
	if line < 0 || line >= numLines {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[line]
}

// SpuriousCount reports how many times line was detected spurious.
func (d *Dispatcher) SpuriousCount(line int) uint64 {
	if line < 0 || line >= numLines {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.spurious[line]
}
