package timer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/varunaditya27/nexakernel/config"
	"github.com/varunaditya27/nexakernel/ioport"
)

func TestInitProgramsDivisorLowThenHigh(t *testing.T) {
	bus := ioport.NewFake()
	var writes []uint8
	bus.OnWrite(func(port uint16, val uint8) {
		if port == config.TimerChannel0Data {
			writes = append(writes, val)
		}
	})

	tm := &Timer{}
	tm.Init(bus, 100)

	wantDivisor := inputClockHz / 100
	require.Equal(t, []uint8{uint8(wantDivisor & 0xFF), uint8((wantDivisor >> 8) & 0xFF)}, writes)
	require.EqualValues(t, (wantDivisor>>8)&0xFF, bus.In8(config.TimerChannel0Data))
}

func TestTickAdvancesCounterAndFiresCallback(t *testing.T) {
	tm := &Timer{}
	var seen []uint64
	tm.OnTick(func(ticks uint64) { seen = append(seen, ticks) })

	tm.Tick()
	tm.Tick()
	tm.Tick()

	require.Equal(t, []uint64{1, 2, 3}, seen)
	require.EqualValues(t, 3, tm.Ticks())
}

func TestUptimeMillisConversion(t *testing.T) {
	tm := &Timer{}
	tm.Init(ioport.NewFake(), 100) // 10ms per tick
	for i := 0; i < 50; i++ {
		tm.Tick()
	}
	require.EqualValues(t, 500, tm.UptimeMillis())
}

func TestSleepTicksWaitsForTargetTicks(t *testing.T) {
	tm := &Timer{}
	polls := 0
	tm.SleepTicks(3, func() {
		polls++
		tm.Tick()
	})
	require.Equal(t, 3, polls)
	require.EqualValues(t, 3, tm.Ticks())
}

func TestQuerySnapshotReportsHzAndUptime(t *testing.T) {
	tm := &Timer{}
	tm.Init(ioport.NewFake(), 100)
	tm.Tick()
	q := tm.QuerySnapshot()
	require.EqualValues(t, 100, q.Hz)
	require.EqualValues(t, 1, q.Ticks)
}
