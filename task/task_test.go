package task

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/varunaditya27/nexakernel/config"
)

func fakeStackAlloc(size uint64) uintptr {
	buf := make([]byte, size)
	return uintptr(len(buf)) + 0x1000 // non-zero, deterministic per call
}

func TestCreateBringsTaskToReady(t *testing.T) {
	tb := &Table{}
	tcb := tb.Create("init", func(arg any) {}, nil, 3, config.DefaultStackSize, 0, fakeStackAlloc)
	require.NotNil(t, tcb)
	require.Equal(t, Ready, tcb.State)
	require.Equal(t, uint64(1), tcb.Pid)
	require.Equal(t, "init", tcb.NameString())
	require.Equal(t, 1, tb.ActiveCount())
}

func TestCreatePriorityClampedTo0And7(t *testing.T) {
	tb := &Table{}
	lo := tb.Create("a", nil, nil, -5, config.DefaultStackSize, 0, fakeStackAlloc)
	hi := tb.Create("b", nil, nil, 99, config.DefaultStackSize, 0, fakeStackAlloc)
	require.Equal(t, 0, lo.Priority)
	require.Equal(t, config.IdlePriority, hi.Priority)
}

func TestCreateFailsWhenTableFull(t *testing.T) {
	tb := &Table{}
	for i := 0; i < config.MaxTasks; i++ {
		require.NotNil(t, tb.Create("x", nil, nil, 3, config.MinStackSize, 0, fakeStackAlloc))
	}
	require.Nil(t, tb.Create("overflow", nil, nil, 3, config.MinStackSize, 0, fakeStackAlloc))
}

func TestCreateRevertsSlotOnStackAllocFailure(t *testing.T) {
	tb := &Table{}
	failAlloc := func(uint64) uintptr { return 0 }
	require.Nil(t, tb.Create("x", nil, nil, 3, config.MinStackSize, 0, failAlloc))
	require.Equal(t, 0, tb.ActiveCount())
}

func TestExitMarksZombieAndDecrementsActive(t *testing.T) {
	tb := &Table{}
	tcb := tb.Create("x", nil, nil, 3, config.MinStackSize, 0, fakeStackAlloc)
	tb.Exit(tcb, 7)
	require.Equal(t, Zombie, tcb.State)
	require.Equal(t, 7, tcb.ExitCode)
	require.True(t, tcb.HasFlag(FlagNeedsCleanup))
	require.Equal(t, 0, tb.ActiveCount())
}

func TestWakeupOnlyAffectsSleepingOrBlocked(t *testing.T) {
	tb := &Table{}
	tcb := tb.Create("x", nil, nil, 3, config.MinStackSize, 0, fakeStackAlloc)
	require.False(t, tb.Wakeup(tcb)) // still Ready, not Sleeping/Blocked

	tcb.State = Sleeping
	tcb.WakeTick = 500
	require.True(t, tb.Wakeup(tcb))
	require.Equal(t, Ready, tcb.State)
	require.Zero(t, tcb.WakeTick)
}

func TestReapReturnsSlotToUnusedAndFreesStack(t *testing.T) {
	tb := &Table{}
	tcb := tb.Create("x", nil, nil, 3, config.MinStackSize, 0, fakeStackAlloc)
	tb.Exit(tcb, 0)

	var freed uintptr
	ok := tb.Reap(tcb, func(p uintptr) { freed = p })
	require.True(t, ok)
	require.NotZero(t, freed)
	require.Equal(t, Unused, tcb.State)
}

func TestReapRefusesNonZombie(t *testing.T) {
	tb := &Table{}
	tcb := tb.Create("x", nil, nil, 3, config.MinStackSize, 0, fakeStackAlloc)
	require.False(t, tb.Reap(tcb, nil))
}
