// Package frame implements the physical frame allocator: a bitmap over a
// contiguous run of fixed-size physical frames, with first-fit single and
// contiguous-run allocation, populated once at boot as a process-wide
// singleton. Bit-scan primitives come from math/bits.
package frame

import (
	"math/bits"
	"sync"

	"github.com/varunaditya27/nexakernel/config"
	"github.com/varunaditya27/nexakernel/errno"
)

const pageSize = config.PageSize

// Pool is the process-wide physical frame allocator singleton.
type Pool struct {
	mu       sync.Mutex
	base     uintptr
	total    int
	used     int
	bitmap   []uint64 // bit set => frame in use
	initDone bool
}

// Default is the singleton pool the kernel initializes once at boot.
var Default = &Pool{}

// Init carves [base, base+sizeBytes) into frames and marks them all free.
// sizeBytes is capped at config.MaxPhysicalMemory.
// Calling Init twice is a configuration error: it returns EEXIST and leaves
// the existing pool untouched.
func (p *Pool) Init(base uintptr, sizeBytes uint64) errno.Errno {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initDone {
		return errno.EEXIST
	}
	if sizeBytes > config.MaxPhysicalMemory {
		sizeBytes = config.MaxPhysicalMemory
	}
	p.base = alignDown(base, pageSize)
	n := int(sizeBytes / pageSize)
	p.total = n
	p.used = 0
	p.bitmap = make([]uint64, (n+63)/64)
	p.initDone = true
	return 0
}

func alignDown(v uintptr, align uint64) uintptr {
	return uintptr(uint64(v) &^ (align - 1))
}

// Reserve marks every frame overlapping [addr, addr+size) used. Silent if
// already used; clamps to the pool if the range only partially overlaps it.
func (p *Pool) Reserve(addr uintptr, size uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initDone {
		return
	}
	startFrame, endFrame := p.frameRange(addr, size)
	for f := startFrame; f < endFrame; f++ {
		p.markUsedLocked(f)
	}
}

// frameRange clamps [addr, addr+size) to the pool's index space.
func (p *Pool) frameRange(addr uintptr, size uint64) (int, int) {
	if addr < p.base {
		diff := p.base - addr
		if uint64(diff) >= size {
			return 0, 0
		}
		size -= uint64(diff)
		addr = p.base
	}
	start := int((addr - p.base) / pageSize)
	count := int((size + pageSize - 1) / pageSize)
	end := start + count
	if start < 0 {
		start = 0
	}
	if end > p.total {
		end = p.total
	}
	if start > end {
		start = end
	}
	return start, end
}

func (p *Pool) markUsedLocked(frame int) {
	if frame < 0 || frame >= p.total {
		return
	}
	word, bit := frame/64, uint(frame%64)
	if p.bitmap[word]&(1<<bit) == 0 {
		p.bitmap[word] |= 1 << bit
		p.used++
	}
}

func (p *Pool) markFreeLocked(frame int) {
	if frame < 0 || frame >= p.total {
		return
	}
	word, bit := frame/64, uint(frame%64)
	if p.bitmap[word]&(1<<bit) != 0 {
		p.bitmap[word] &^= 1 << bit
		p.used--
	}
}

// Alloc finds the first free frame (first-fit bitmap scan), marks it used
// and returns its base address. Returns 0 on exhaustion; never blocks.
func (p *Pool) Alloc() uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.firstFreeLocked(0)
	if f < 0 {
		return 0
	}
	p.markUsedLocked(f)
	return p.base + uintptr(f)*pageSize
}

// AllocContiguous finds the first run of k consecutive free frames, marks
// all of them used atomically (all-or-nothing), and returns the base
// address of the run. Returns 0 if no such run exists.
func (p *Pool) AllocContiguous(k int) uintptr {
	if k <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	start := p.findRunLocked(k)
	if start < 0 {
		return 0
	}
	for f := start; f < start+k; f++ {
		p.markUsedLocked(f)
	}
	return p.base + uintptr(start)*pageSize
}

// firstFreeLocked returns the index of the first free frame at or after
// from, or -1.
func (p *Pool) firstFreeLocked(from int) int {
	startWord := from / 64
	for w := startWord; w < len(p.bitmap); w++ {
		word := p.bitmap[w]
		if w == startWord {
			// mask off bits before `from` within this word
			word |= (uint64(1)<<uint(from%64) - 1)
		}
		if word == ^uint64(0) {
			continue
		}
		bit := bits.TrailingZeros64(^word)
		idx := w*64 + bit
		if idx < p.total {
			return idx
		}
		return -1
	}
	return -1
}

func (p *Pool) isFreeLocked(frame int) bool {
	word, bit := frame/64, uint(frame%64)
	return p.bitmap[word]&(1<<bit) == 0
}

func (p *Pool) findRunLocked(k int) int {
	run := 0
	start := -1
	for f := 0; f < p.total; f++ {
		if p.isFreeLocked(f) {
			if run == 0 {
				start = f
			}
			run++
			if run == k {
				return start
			}
		} else {
			run = 0
			start = -1
		}
	}
	return -1
}

// Free marks the frame containing addr free. A no-op if addr is outside the
// pool. Freeing an already-free frame is a caller bug this doesn't bother
// detecting; NexaKernel tolerates it silently.
func (p *Pool) Free(addr uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initDone || addr < p.base {
		return
	}
	f := int((addr - p.base) / pageSize)
	if f < 0 || f >= p.total {
		return
	}
	p.markFreeLocked(f)
}

// Stats is the allocator's diagnostic query result.
type Stats struct {
	Total     int
	Used      int
	Free      int
	FreeBytes uint64
	Init      bool
}

func (p *Pool) Query() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	free := p.total - p.used
	return Stats{
		Total:     p.total,
		Used:      p.used,
		Free:      free,
		FreeBytes: uint64(free) * pageSize,
		Init:      p.initDone,
	}
}
