package heap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// newHeap builds a Heap over a freshly allocated, GC-pinned backing buffer.
// Real kernel code points Init at physical RAM; hosted tests need real Go
// memory behind the pointer arithmetic instead of an arbitrary address.
func newHeap(t *testing.T, size uint64) (*Heap, []byte) {
	t.Helper()
	buf := make([]byte, size+alignment)
	h := &Heap{}
	require.Zero(t, h.Init(uintptr(unsafe.Pointer(&buf[0])), size))
	return h, buf
}

func TestHeapSplitAndCoalesce(t *testing.T) {
	h, buf := newHeap(t, 64*1024)
	_ = buf

	a := h.Alloc(256)
	require.NotZero(t, a)
	b := h.Alloc(1024)
	require.NotZero(t, b)

	h.Free(a)
	c := h.Alloc(128)
	require.Equal(t, a, c)

	h.Free(b)
	h.Free(c)

	count, verr := h.Validate()
	require.Zero(t, verr)
	require.Equal(t, 1, count)
}

func TestAllocZero(t *testing.T) {
	h, _ := newHeap(t, 4096)
	require.Zero(t, h.Alloc(0))
	count, _ := h.Validate()
	require.Equal(t, 1, count)
}

func TestFreeNullIsNoop(t *testing.T) {
	h, _ := newHeap(t, 4096)
	h.Free(0)
	count, _ := h.Validate()
	require.Equal(t, 1, count)
}

func TestAllocZeroed(t *testing.T) {
	h, _ := newHeap(t, 4096)
	p := h.AllocZeroed(10, 4)
	require.NotZero(t, p)
	view := unsafe.Slice((*byte)(unsafe.Pointer(p)), 40)
	for _, b := range view {
		require.Zero(t, b)
	}
}

func TestReallocGrowsAndShrinks(t *testing.T) {
	h, _ := newHeap(t, 4096)
	p := h.Alloc(32)
	view := unsafe.Slice((*byte)(unsafe.Pointer(p)), 32)
	for i := range view {
		view[i] = byte(i)
	}

	// shrink: same pointer, no copy needed
	p2 := h.Realloc(p, 16)
	require.Equal(t, p, p2)

	// grow: new pointer, payload preserved
	p3 := h.Realloc(p2, 512)
	require.NotEqual(t, p2, p3)
	view3 := unsafe.Slice((*byte)(unsafe.Pointer(p3)), 16)
	for i := range view3 {
		require.Equal(t, byte(i), view3[i])
	}
}

func TestReallocToZeroFrees(t *testing.T) {
	h, _ := newHeap(t, 4096)
	p := h.Alloc(32)
	require.Zero(t, h.Realloc(p, 0))
	count, _ := h.Validate()
	require.Equal(t, 1, count)
}

func TestAlignedAllocation(t *testing.T) {
	h, _ := newHeap(t, 4096)
	p := h.AllocAligned(64, 64)
	require.NotZero(t, p)
	require.Zero(t, p%64)
	h.FreeAligned(p)
	count, _ := h.Validate()
	require.Equal(t, 1, count)
}

func TestDoubleFreeDoesNotCorrupt(t *testing.T) {
	h, _ := newHeap(t, 4096)
	p := h.Alloc(64)
	h.Free(p)
	h.Free(p) // tolerated, must not corrupt
	count, verr := h.Validate()
	require.Zero(t, verr)
	require.Equal(t, 1, count)
}

func TestUsedBytesRoundTrip(t *testing.T) {
	h, _ := newHeap(t, 64*1024)
	before := h.FreeBytes()
	p := h.Alloc(777)
	h.Free(p)
	require.Equal(t, before, h.FreeBytes())
}
