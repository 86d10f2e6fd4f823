// Package heap implements the kernel dynamic allocator: a doubly-linked
// chain of variable-size blocks over one contiguous frame run, split on
// allocation and eagerly coalesced on free, each block tagged with a magic
// header for integrity checks.
package heap

import (
	"unsafe"

	"github.com/varunaditya27/nexakernel/config"
	"github.com/varunaditya27/nexakernel/errno"
)

const (
	minAlloc   = 16
	alignment  = 8
	magic      = config.HeapMagic
)

// block is the header prefixing every payload in the chain. Size() bytes of
// usable payload immediately follow the header in memory.
type block struct {
	tag     uint32
	size    uint64 // usable payload size in bytes
	free    bool
	prev    *block
	next    *block
}

const headerSize = unsafe.Sizeof(block{})

// Heap is the process-wide dynamic allocator singleton.
type Heap struct {
	start    uintptr
	span     uint64
	first    *block
	initDone bool
}

// Default is the singleton the kernel initializes once at boot.
var Default = &Heap{}

// Init aligns start up to 8 bytes, computes the usable span, and installs
// one free block occupying the entire span.
func (h *Heap) Init(start uintptr, size uint64) errno.Errno {
	if h.initDone {
		return errno.EEXIST
	}
	aligned := alignUp(uint64(start), alignment)
	shrink := aligned - uint64(start)
	if shrink >= size {
		return errno.EINVAL
	}
	size -= shrink
	if size < uint64(headerSize)+minAlloc {
		return errno.EINVAL
	}
	h.start = uintptr(aligned)
	h.span = size
	b := (*block)(unsafe.Pointer(h.start))
	*b = block{tag: magic, size: size - uint64(headerSize), free: true}
	h.first = b
	h.initDone = true
	return 0
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// payloadOf returns the address immediately after b's header.
func payloadOf(b *block) uintptr {
	return uintptr(unsafe.Pointer(b)) + headerSize
}

// blockFromPayload recovers the header address by subtracting its size --
// really, by subtracting the fixed header size, since the header precedes
// the payload directly.
func blockFromPayload(ptr uintptr) *block {
	return (*block)(unsafe.Pointer(ptr - headerSize))
}

// Alloc aligns n up to 8 (minimum 16) and first-fit walks the chain for a
// free block whose payload is big enough. Splits in place when the
// remainder would be at least headerSize+16; otherwise hands out the whole
// block. Returns 0 (null) if nothing fits.
func (h *Heap) Alloc(n uint64) uintptr {
	if n == 0 || !h.initDone {
		return 0
	}
	need := alignUp(n, alignment)
	if need < minAlloc {
		need = minAlloc
	}
	for b := h.first; b != nil; b = b.next {
		if !b.free || b.size < need {
			continue
		}
		h.maybeSplit(b, need)
		b.free = false
		return payloadOf(b)
	}
	return 0
}

// maybeSplit carves a new free block out of the tail of b if the remainder
// after handing out `need` bytes is at least headerSize+16.
func (h *Heap) maybeSplit(b *block, need uint64) {
	remainder := b.size - need
	if remainder < uint64(headerSize)+minAlloc {
		return
	}
	newBlockAddr := payloadOf(b) + uintptr(need)
	nb := (*block)(unsafe.Pointer(newBlockAddr))
	*nb = block{
		tag:  magic,
		size: remainder - uint64(headerSize),
		free: true,
		prev: b,
		next: b.next,
	}
	if b.next != nil {
		b.next.prev = nb
	}
	b.next = nb
	b.size = need
}

// Free locates the header, validates its tag, marks it free, and eagerly
// coalesces with immediate free neighbours. A nil pointer, or one outside
// the heap's span, is a no-op. A double-free does not corrupt the chain.
func (h *Heap) Free(ptr uintptr) {
	if ptr == 0 || !h.initDone || !h.owns(ptr) {
		return
	}
	b := blockFromPayload(ptr)
	if b.tag != magic {
		return // corrupted or not ours: refuse to act
	}
	if b.free {
		return // double-free: detectable bug, tolerated without corruption
	}
	b.free = true
	h.coalesceForward(b)
	h.coalesceBackward(b)
}

func (h *Heap) owns(ptr uintptr) bool {
	return ptr >= h.start+uintptr(headerSize) && ptr < h.start+uintptr(h.span)
}

func (h *Heap) coalesceForward(b *block) {
	for {
		n := b.next
		if n == nil || !n.free {
			return
		}
		b.size += uint64(headerSize) + n.size
		b.next = n.next
		if n.next != nil {
			n.next.prev = b
		}
		n.tag = 0 // invalidate the absorbed neighbour
	}
}

func (h *Heap) coalesceBackward(b *block) {
	for {
		p := b.prev
		if p == nil || !p.free {
			return
		}
		p.size += uint64(headerSize) + b.size
		p.next = b.next
		if b.next != nil {
			b.next.prev = p
		}
		b.tag = 0
		b = p
	}
}

// Realloc follows the standard convention: null+n>0 -> Alloc; n==0 -> Free;
// payload already big enough -> same pointer (no shrink); else allocate
// new, copy, free old.
func (h *Heap) Realloc(ptr uintptr, n uint64) uintptr {
	if ptr == 0 {
		return h.Alloc(n)
	}
	if n == 0 {
		h.Free(ptr)
		return 0
	}
	b := blockFromPayload(ptr)
	need := alignUp(n, alignment)
	if need < minAlloc {
		need = minAlloc
	}
	if b.size >= need {
		return ptr
	}
	np := h.Alloc(n)
	if np == 0 {
		return 0
	}
	copySize := b.size
	if need < copySize {
		copySize = need
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(np)), copySize)
	src := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), copySize)
	copy(dst, src)
	h.Free(ptr)
	return np
}

// AllocZeroed allocates count*elemSize bytes (checking for overflow) and
// zeroes the payload.
func (h *Heap) AllocZeroed(count, elemSize uint64) uintptr {
	if elemSize != 0 && count > (1<<63)/elemSize {
		return 0 // multiplicative overflow
	}
	n := count * elemSize
	ptr := h.Alloc(n)
	if ptr == 0 {
		return 0
	}
	b := blockFromPayload(ptr)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), b.size)
	for i := range buf {
		buf[i] = 0
	}
	return ptr
}

// AllocAligned overallocates by alignment-1+sizeof(pointer) bytes, computes
// an aligned address inside the raw allocation, and stashes the raw pointer
// in the word immediately before the aligned address. alignment must be a
// power of two. The result must be freed with FreeAligned, never Free --
// Free would subtract the fixed header size from the aligned address and
// find garbage instead of this block's header.
func (h *Heap) AllocAligned(n uint64, alignment uint64) uintptr {
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return 0
	}
	ptrWidth := uint64(unsafe.Sizeof(uintptr(0)))
	raw := h.Alloc(n + alignment - 1 + ptrWidth)
	if raw == 0 {
		return 0
	}
	aligned := alignUp(uint64(raw)+ptrWidth, alignment)
	stash := (*uintptr)(unsafe.Pointer(uintptr(aligned) - uintptr(ptrWidth)))
	*stash = raw
	return uintptr(aligned)
}

// FreeAligned recovers the raw pointer stashed by AllocAligned and frees it.
func (h *Heap) FreeAligned(ptr uintptr) {
	if ptr == 0 {
		return
	}
	ptrWidth := unsafe.Sizeof(uintptr(0))
	stash := (*uintptr)(unsafe.Pointer(ptr - ptrWidth))
	h.Free(*stash)
}

// Validate walks the chain verifying the integrity tag on each block, the
// consistency of back-links, and that no block extends past the heap's end.
// Returns the block count, or a negative Errno on corruption.
func (h *Heap) Validate() (int, errno.Errno) {
	if !h.initDone {
		return 0, errno.EINVAL
	}
	count := 0
	var prev *block
	end := h.start + uintptr(h.span)
	consecutiveFree := 0
	for b := h.first; b != nil; b = b.next {
		if b.tag != magic {
			return count, errno.EFAULT
		}
		if b.prev != prev {
			return count, errno.EFAULT
		}
		blockEnd := payloadOf(b) + uintptr(b.size)
		if blockEnd > end {
			return count, errno.EFAULT
		}
		if b.free {
			consecutiveFree++
			if consecutiveFree > 1 {
				return count, errno.EFAULT // two adjacent free blocks
			}
		} else {
			consecutiveFree = 0
		}
		count++
		prev = b
	}
	return count, 0
}

// FreeBytes reports payload bytes currently available across all free
// blocks.
func (h *Heap) FreeBytes() uint64 {
	var total uint64
	for b := h.first; b != nil; b = b.next {
		if b.free {
			total += b.size
		}
	}
	return total
}
