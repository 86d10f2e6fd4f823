// Package interrupt implements the 256-entry interrupt vector table and its
// dispatch contract: one path for CPU exceptions (vectors 0-31), one for
// hardware IRQ lines (32-47).
//
// A real x86 build needs an assembly stub per vector and a CPU IDT-load
// instruction; NexaKernel models the table as a Go dispatch table, with
// Table.DispatchException/DispatchIRQ standing in for what a single shared
// assembly trampoline would call into: one entry point, a lookup by vector
// number, handler lookups that never allocate or block.
package interrupt

import "github.com/varunaditya27/nexakernel/config"

const NumVectors = 256

// Frame is the interrupt frame a trap stub would build on the stack before
// calling into C/Go, in the order pushed.
type Frame struct {
	// Segment + general-purpose registers.
	GS, FS, ES, DS     uint32
	RDI, RSI, RBP, RBX uint64
	RDX, RCX, RAX      uint64
	Vector             uint32
	ErrorCode          uint32
	RIP                uint64
	CS                 uint64
	RFlags             uint64
	// Present only when a privilege transition occurred; zero otherwise
	// in this single-privilege kernel.
	UserSP, UserSS uint64
}

// ExceptionHandler handles a CPU exception (vectors 0-31).
type ExceptionHandler func(f *Frame)

// IRQHandler handles a hardware interrupt line (already converted from
// vector to line number by the IRQ entry).
type IRQHandler func(f *Frame)

// Table is the process-wide vector table singleton.
type Table struct {
	exceptions [config.ExceptionVectorLast + 1]ExceptionHandler
	irqs       [config.IRQVectorLast - config.IRQVectorBase + 1]IRQHandler
	installed  bool
	defaultHandler ExceptionHandler
}

// Default is the singleton table installed at boot.
var Default = &Table{}

// Install loads the table "into the CPU's interrupt-table register" --
// on a hosted build there is no IDT to load, so Install just marks the
// table live and requires a default exception handler to fall back to.
func (t *Table) Install(defaultHandler ExceptionHandler) {
	t.defaultHandler = defaultHandler
	t.installed = true
}

// Installed reports whether Install has run.
func (t *Table) Installed() bool { return t.installed }

// RegisterException installs a custom per-vector handler for vectors 0-31,
// replacing the default fatal handler for that vector.
func (t *Table) RegisterException(vector int, h ExceptionHandler) {
	if vector < 0 || vector > config.ExceptionVectorLast {
		return
	}
	t.exceptions[vector] = h
}

// RegisterIRQ installs the handler called for hardware vector v
// (32 <= v <= 47). This is the table-level registration the IRQ
// dispatcher (package irq) layers its own line-based API on top of.
func (t *Table) RegisterIRQ(vector int, h IRQHandler) {
	if vector < config.IRQVectorBase || vector > config.IRQVectorLast {
		return
	}
	t.irqs[vector-config.IRQVectorBase] = h
}

// DispatchException is what the shared exception trap stub calls. It
// dispatches to a registered custom handler if present, else to the
// default fatal handler.
func (t *Table) DispatchException(f *Frame) {
	v := int(f.Vector)
	if v >= 0 && v <= config.ExceptionVectorLast && t.exceptions[v] != nil {
		t.exceptions[v](f)
		return
	}
	if t.defaultHandler != nil {
		t.defaultHandler(f)
	}
}

// DispatchIRQ is what the shared IRQ trap stub calls; it only looks up the
// registered handler. Spurious-interrupt detection, counters and EOI
// ordering are the irq package's job, layered above this.
func (t *Table) DispatchIRQ(f *Frame) IRQHandler {
	v := int(f.Vector)
	if v < config.IRQVectorBase || v > config.IRQVectorLast {
		return nil
	}
	return t.irqs[v-config.IRQVectorBase]
}
