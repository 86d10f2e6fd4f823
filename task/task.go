// Package task implements the task control block and task table: a
// fixed-capacity arena of TCBs with pid allocation, stack ownership, and
// the task state machine. Ready queues hold borrowed references into the
// arena rather than owning nodes.
package task

import (
	"sync"

	"github.com/varunaditya27/nexakernel/config"
)

// State is the task state-machine discriminant.
type State int

const (
	Unused State = iota
	Creating
	Ready
	Running
	Blocked
	Sleeping
	Terminated
	Zombie
)

func (s State) String() string {
	switch s {
	case Unused:
		return "Unused"
	case Creating:
		return "Creating"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Blocked:
		return "Blocked"
	case Sleeping:
		return "Sleeping"
	case Terminated:
		return "Terminated"
	case Zombie:
		return "Zombie"
	default:
		return "Invalid"
	}
}

// Flag bits.
type Flag uint8

const (
	FlagKernel Flag = 1 << iota
	FlagPreemptible
	FlagFirstRun
	FlagNeedsCleanup
	FlagIdle
)

const maxNameLen = 31

// EntryFunc is a task's entry point, invoked by the trampoline on first
// schedule.
type EntryFunc func(arg any)

// TCB is the fixed-layout per-task record. SavedSP is the sole piece of
// execution state the context-switch primitive touches; every other field
// is scheduler/bookkeeping state.
type TCB struct {
	SavedSP   uintptr
	StackBase uintptr
	StackSize uint64

	Pid   uint64
	Name  [maxNameLen + 1]byte
	State State

	Priority     int
	BasePriority int
	Flags        Flag

	TimeSlice int
	CPUTicks  uint64

	CreationTick uint64
	WakeTick     uint64

	Entry EntryFunc
	Arg   any

	ExitCode int

	// Intrusive queue links. The ready queues in package sched do not use
	// them: they hold *TCB references in their own buffer and heap slice,
	// and nothing in this module sets these fields.
	Next, Prev *TCB
}

func (t *TCB) NameString() string {
	n := 0
	for n < len(t.Name) && t.Name[n] != 0 {
		n++
	}
	return string(t.Name[:n])
}

func (t *TCB) setName(name string) {
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	copy(t.Name[:], name)
	t.Name[len(name)] = 0
}

// HasFlag reports whether f is set.
func (t *TCB) HasFlag(f Flag) bool { return t.Flags&f != 0 }

// Table is the process-wide fixed-capacity task arena singleton.
type Table struct {
	mu     sync.Mutex
	slots  [config.MaxTasks]TCB
	pidCur uint64
	active int
}

// Default is the singleton table installed at boot.
var Default = &Table{}

// Create reserves an Unused slot, assigns it a fresh pid, and brings it to
// Ready. stackAlloc is supplied by the caller (the heap allocator); it
// returns 0 on exhaustion. now is the current tick, used to stamp
// CreationTick.
func (tb *Table) Create(name string, entry EntryFunc, arg any, priority int, stackSize uint64, now uint64, stackAlloc func(uint64) uintptr) *TCB {
	tb.mu.Lock()
	var slot *TCB
	for i := range tb.slots {
		if tb.slots[i].State == Unused {
			slot = &tb.slots[i]
			break
		}
	}
	if slot == nil {
		tb.mu.Unlock()
		return nil
	}
	*slot = TCB{State: Creating}

	tb.pidCur++
	slot.Pid = tb.pidCur
	tb.active++
	tb.mu.Unlock()

	slot.setName(name)

	if priority < 0 {
		priority = 0
	}
	if priority > config.IdlePriority {
		priority = config.IdlePriority
	}
	slot.Priority = priority
	slot.BasePriority = priority

	if stackSize == 0 {
		stackSize = config.DefaultStackSize
	}
	size := alignUp(stackSize, config.PageSize)
	if size < config.MinStackSize {
		size = config.MinStackSize
	}
	base := stackAlloc(size)
	if base == 0 {
		tb.mu.Lock()
		*slot = TCB{}
		tb.active--
		tb.mu.Unlock()
		return nil
	}
	slot.StackBase = base
	slot.StackSize = size
	slot.SavedSP = craftInitialStack(base, size)

	slot.Entry = entry
	slot.Arg = arg
	slot.Flags = FlagPreemptible | FlagFirstRun
	slot.TimeSlice = config.SchedulerTimeSlice
	slot.CreationTick = now
	slot.State = Ready
	return slot
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// craftInitialStack hands back the stack-top address a freshly created
// task's context switch should resume at. A real build would poke zeroed
// callee-saved registers and the trampoline's address at the exact offsets
// context_switch pops; here the trampoline address travels via TCB.Entry
// instead (see the ctxswitch package), so the "crafted" stack is simply
// its top, 16-byte aligned per the platform ABI.
func craftInitialStack(base uintptr, size uint64) uintptr {
	top := base + uintptr(size)
	return top &^ 0xF
}

// Exit implements task_exit: stores the exit code, marks Zombie and
// needs-cleanup, and drops the active count. Ready-queue removal is the
// caller's (scheduler's) job since the table doesn't know which queue
// structure currently holds the TCB.
func (tb *Table) Exit(t *TCB, code int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	t.ExitCode = code
	t.State = Zombie
	t.Flags |= FlagNeedsCleanup
	tb.active--
}

// Wakeup implements task_wakeup: Sleeping or Blocked tasks become Ready
// with their wake tick cleared. Any other state is left untouched: waking
// an already-Ready or Running task is a caller bug this doesn't bother
// detecting.
func (tb *Table) Wakeup(t *TCB) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if t.State != Sleeping && t.State != Blocked {
		return false
	}
	t.State = Ready
	t.WakeTick = 0
	return true
}

// Reap returns a Zombie's slot and stack to Unused, freeing the stack via
// stackFree (the heap allocator). Returns false if t is not a Zombie.
func (tb *Table) Reap(t *TCB, stackFree func(uintptr)) bool {
	tb.mu.Lock()
	if t.State != Zombie {
		tb.mu.Unlock()
		return false
	}
	base := t.StackBase
	tb.mu.Unlock()

	if stackFree != nil && base != 0 {
		stackFree(base)
	}

	tb.mu.Lock()
	*t = TCB{}
	tb.mu.Unlock()
	return true
}

// ActiveCount returns the number of created tasks that have not exited.
// Exit drops the count, so a Zombie slot awaiting Reap is not counted.
func (tb *Table) ActiveCount() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.active
}

// Slots exposes the backing arena for iteration (the timer's wake scan,
// diagnostics dumps). Callers must not mutate State directly; use the
// table's own methods or the scheduler.
func (tb *Table) Slots() []*TCB {
	out := make([]*TCB, 0, len(tb.slots))
	for i := range tb.slots {
		out = append(out, &tb.slots[i])
	}
	return out
}
