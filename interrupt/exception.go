package interrupt

import "github.com/varunaditya27/nexakernel/console"

// Standard x86 exception vector numbers.
const (
	VecDivideError       = 0
	VecDebug             = 1
	VecNMI               = 2
	VecBreakpoint        = 3
	VecOverflow          = 4
	VecBoundRange        = 5
	VecInvalidOpcode     = 6
	VecDeviceNotAvail    = 7
	VecDoubleFault       = 8
	VecInvalidTSS        = 10
	VecSegmentNotPresent = 11
	VecStackFault        = 12
	VecGeneralProtection = 13
	VecPageFault         = 14
)

var exceptionNames = map[uint32]string{
	VecDivideError:       "Divide Error",
	VecDebug:             "Debug",
	VecNMI:               "Non-Maskable Interrupt",
	VecBreakpoint:        "Breakpoint",
	VecOverflow:          "Overflow",
	VecBoundRange:        "BOUND Range Exceeded",
	VecInvalidOpcode:     "Invalid Opcode",
	VecDeviceNotAvail:    "Device Not Available",
	VecDoubleFault:       "Double Fault",
	VecInvalidTSS:        "Invalid TSS",
	VecSegmentNotPresent: "Segment Not Present",
	VecStackFault:        "Stack Fault",
	VecGeneralProtection: "General Protection Fault",
	VecPageFault:         "Page Fault",
}

func exceptionName(v uint32) string {
	if n, ok := exceptionNames[v]; ok {
		return n
	}
	return "Unknown Exception"
}

// PageFaultInfo decodes the page-fault error code's present/write/user bits.
type PageFaultInfo struct {
	Present bool // set => protection violation; clear => not-present page
	Write   bool // set => faulting access was a write
	User    bool // set => fault occurred in user mode
}

func DecodePageFault(errorCode uint32) PageFaultInfo {
	return PageFaultInfo{
		Present: errorCode&1 != 0,
		Write:   errorCode&2 != 0,
		User:    errorCode&4 != 0,
	}
}

// ProtectionFaultInfo decodes a general-protection-fault error code's
// selector index and originating table.
type ProtectionFaultInfo struct {
	External bool
	Table    string // "GDT", "IDT", or "LDT"
	Index    uint32
}

func DecodeProtectionFault(errorCode uint32) ProtectionFaultInfo {
	var table string
	switch (errorCode >> 1) & 0x3 {
	case 0:
		table = "GDT"
	case 1, 3:
		table = "IDT"
	case 2:
		table = "LDT"
	}
	return ProtectionFaultInfo{
		External: errorCode&1 != 0,
		Table:    table,
		Index:    errorCode >> 3,
	}
}

// DefaultHandler builds the default fatal exception handler bound to con:
// disable interrupts is left to the caller (a hosted console has no CPU
// access), clear the diagnostic region, print name/vector/error
// code/faulting address/register dump, decode page-fault and
// general-protection error codes, then halt forever.
func DefaultHandler(con *console.Console) ExceptionHandler {
	return func(f *Frame) {
		con.Clear(console.ColorRed)
		con.Printf("*** FATAL: %s (vector %d, error %#x)\n",
			exceptionName(f.Vector), f.Vector, f.ErrorCode)
		con.Printf("RIP=%#016x CS=%#x RFLAGS=%#x\n", f.RIP, f.CS, f.RFlags)
		con.Printf("RAX=%#016x RBX=%#016x RCX=%#016x RDX=%#016x\n",
			f.RAX, f.RBX, f.RCX, f.RDX)
		con.Printf("RSI=%#016x RDI=%#016x RBP=%#016x\n", f.RSI, f.RDI, f.RBP)
		con.Printf("DS=%#x ES=%#x FS=%#x GS=%#x\n", f.DS, f.ES, f.FS, f.GS)

		switch f.Vector {
		case VecPageFault:
			pf := DecodePageFault(f.ErrorCode)
			con.Printf("page fault: present=%v write=%v user=%v\n",
				pf.Present, pf.Write, pf.User)
		case VecGeneralProtection, VecSegmentNotPresent, VecStackFault, VecInvalidTSS:
			gp := DecodeProtectionFault(f.ErrorCode)
			con.Printf("selector fault: table=%s index=%d external=%v\n",
				gp.Table, gp.Index, gp.External)
		}

		con.Panicf("interrupt", int(f.Vector), "unhandled %s", exceptionName(f.Vector))
	}
}
