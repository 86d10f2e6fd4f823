package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameBasics(t *testing.T) {
	p := &Pool{}
	require.Zero(t, p.Init(0x200000, 16*1024*1024))

	st := p.Query()
	require.Equal(t, 4096, st.Total)
	require.Equal(t, 4096, st.Free)

	a := p.Alloc()
	require.EqualValues(t, 0x200000, a)
	b := p.Alloc()
	require.EqualValues(t, 0x201000, b)

	p.Free(a)
	c := p.Alloc()
	require.EqualValues(t, a, c)
}

func TestInitIdempotentIsError(t *testing.T) {
	p := &Pool{}
	require.Zero(t, p.Init(0, 4096))
	require.NotZero(t, p.Init(0, 4096))
}

func TestAllocContiguousAtomicity(t *testing.T) {
	p := &Pool{}
	require.Zero(t, p.Init(0, 4*4096))
	addr := p.AllocContiguous(4)
	require.NotZero(t, addr)
	require.Zero(t, p.Query().Free)

	p2 := &Pool{}
	require.Zero(t, p2.Init(0, 4*4096))
	require.Zero(t, p2.AllocContiguous(5)) // more than total: fails
	require.Equal(t, 4, p2.Query().Free)   // and claims nothing
}

func TestReserveClampsToPool(t *testing.T) {
	p := &Pool{}
	require.Zero(t, p.Init(0x1000, 4*4096))
	p.Reserve(0, 0x1000+4096) // half outside the pool below base
	require.Equal(t, 1, p.Query().Used)
}

func TestFreeOutsidePoolIsNoop(t *testing.T) {
	p := &Pool{}
	require.Zero(t, p.Init(0x1000, 4096))
	p.Free(0xdeadbeef)
	require.Equal(t, 0, p.Query().Used)
}

func TestFreeIdempotentOnBitmap(t *testing.T) {
	p := &Pool{}
	require.Zero(t, p.Init(0, 4096))
	a := p.Alloc()
	p.Free(a)
	p.Free(a)
	require.Equal(t, 0, p.Query().Used)
}
