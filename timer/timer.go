// Package timer programs the 8253/8254 programmable interval timer's
// channel 0 as a periodic tick source: mode 2 rate generator, binary
// counting, divisor computed from the PIT's fixed 1.193182 MHz input
// clock, low byte then high byte written to the data port via ioport.Bus.
package timer

import "github.com/varunaditya27/nexakernel/config"

// inputClockHz is the PIT's fixed oscillator frequency.
const inputClockHz = 1193182

const (
	modeRateGenerator = 2
	accessLoHi        = 0x30 // access mode: lobyte/hibyte
	channel0Select    = 0x00
	commandBits       = channel0Select | accessLoHi | (modeRateGenerator << 1)
)

// Bus is the subset of ioport.Bus the timer driver needs.
type Bus interface {
	Out8(port uint16, val uint8)
}

// Timer is the process-wide tick source singleton.
type Timer struct {
	bus      Bus
	hz       uint32
	ticks    uint64
	onTick   func(ticks uint64)
	started  bool
}

// Default is the singleton installed at boot.
var Default = &Timer{}

// Init programs channel 0 to fire at hz interrupts per second. hz must
// divide into inputClockHz without truncation loss worth caring about;
// truncation matches real PIT hardware, which only accepts an integer
// divisor.
func (tm *Timer) Init(bus Bus, hz uint32) {
	tm.bus = bus
	tm.hz = hz
	divisor := inputClockHz / hz

	bus.Out8(config.TimerCommandPort, commandBits)
	bus.Out8(config.TimerChannel0Data, uint8(divisor&0xFF))
	bus.Out8(config.TimerChannel0Data, uint8((divisor>>8)&0xFF))
	tm.started = true
}

// OnTick registers the callback invoked on every tick, e.g. the scheduler's
// preemption hook. Replaces any previous registration.
func (tm *Timer) OnTick(cb func(ticks uint64)) {
	tm.onTick = cb
}

// Tick is called by the IRQ0 handler once per timer interrupt. It advances
// the monotonic counter and then invokes the registered callback, if any.
func (tm *Timer) Tick() {
	tm.ticks++
	if tm.onTick != nil {
		tm.onTick(tm.ticks)
	}
}

// Ticks returns the monotonic tick counter.
func (tm *Timer) Ticks() uint64 { return tm.ticks }

// UptimeMillis converts the tick counter to milliseconds at the configured
// frequency.
func (tm *Timer) UptimeMillis() uint64 {
	if tm.hz == 0 {
		return 0
	}
	return tm.ticks * 1000 / uint64(tm.hz)
}

// Query reports the timer's diagnostic snapshot.
type Query struct {
	Ticks        uint64
	UptimeMillis uint64
	Hz           uint32
}

func (tm *Timer) QuerySnapshot() Query {
	return Query{Ticks: tm.ticks, UptimeMillis: tm.UptimeMillis(), Hz: tm.hz}
}

// SleepTicks busy-waits, spinning calls to poll, until at least n further
// ticks have elapsed. poll is supplied by the caller since a hosted timer
// has no CPU HLT instruction to idle on; real firmware would HLT between
// polls.
func (tm *Timer) SleepTicks(n uint64, poll func()) {
	target := tm.ticks + n
	for tm.ticks < target {
		poll()
	}
}
