package pic

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/varunaditya27/nexakernel/config"
	"github.com/varunaditya27/nexakernel/ioport"
)

func TestInitRemapsAndMasksAll(t *testing.T) {
	bus := ioport.NewFake()
	c := &Controller{}
	c.Init(bus)

	require.EqualValues(t, 0xFF, bus.In8(config.PICMasterData))
	require.EqualValues(t, 0xFF, bus.In8(config.PICSlaveData))
	require.True(t, c.initialized)
}

func TestEnableUnmasksLineAndCascade(t *testing.T) {
	bus := ioport.NewFake()
	c := &Controller{}
	c.Init(bus)

	c.Enable(1) // master line, e.g. keyboard
	require.Zero(t, bus.In8(config.PICMasterData)&(1<<1))

	c.Enable(8) // first slave line
	require.Zero(t, bus.In8(config.PICSlaveData)&(1<<0))
	require.Zero(t, bus.In8(config.PICMasterData)&(1<<2)) // cascade line auto-unmasked
}

func TestDisableMasksLine(t *testing.T) {
	bus := ioport.NewFake()
	c := &Controller{}
	c.Init(bus)
	c.Enable(1)
	c.Disable(1)
	require.NotZero(t, bus.In8(config.PICMasterData)&(1<<1))
}

func TestSendEOISlaveLineHitsBothChips(t *testing.T) {
	bus := ioport.NewFake()
	c := &Controller{}
	c.Init(bus)

	var wrote []uint16
	bus.OnWrite(func(port uint16, val uint8) {
		if val == config.PICEOI {
			wrote = append(wrote, port)
		}
	})

	c.SendEOI(10)
	require.Contains(t, wrote, uint16(config.PICSlaveCommand))
	require.Contains(t, wrote, uint16(config.PICMasterCommand))
}

func TestSendEOIMasterLineHitsOnlyMaster(t *testing.T) {
	bus := ioport.NewFake()
	c := &Controller{}
	c.Init(bus)

	var wrote []uint16
	bus.OnWrite(func(port uint16, val uint8) {
		if val == config.PICEOI {
			wrote = append(wrote, port)
		}
	})

	c.SendEOI(1)
	require.Equal(t, []uint16{uint16(config.PICMasterCommand)}, wrote)
}

func TestIsSpuriousOnlyDefinedForLines7And15(t *testing.T) {
	bus := ioport.NewFake()
	c := &Controller{}
	c.Init(bus)

	require.False(t, c.IsSpurious(3))

	// Writing the OCW3 read-ISR selector doesn't change the ISR's real
	// content on hardware, only what the next read returns; the fake bus
	// has no separate register file, so the write hook restores the
	// simulated ISR byte right after the selector write lands, the same
	// way real silicon would answer the next IN with register state
	// instead of an echo of the command just written.
	var isr uint8
	bus.OnWrite(func(port uint16, val uint8) {
		if port == config.PICMasterCommand && val == ocwReadISR {
			bus.Set(config.PICMasterCommand, isr)
		}
	})

	isr = 0x00 // bit 7 clear => spurious IRQ7
	require.True(t, c.IsSpurious(7))

	isr = 1 << 7 // bit 7 set => real IRQ7, not spurious
	require.False(t, c.IsSpurious(7))
}
