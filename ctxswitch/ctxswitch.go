// Package ctxswitch implements the context-switch primitive: handing the
// CPU from one task to another.
//
// A real context switch is a single hand-written assembly routine that
// saves the outgoing task's callee-preserved registers to its own stack,
// swaps stack pointers, and pops the incoming task's registers. Go offers
// no portable way to suspend and resume an arbitrary goroutine's register
// file, so NexaKernel instead models the primitive as a rendezvous between
// two parked goroutines: each task runs in its own goroutine, blocked on a
// dedicated channel until explicitly handed the turn. This preserves every
// contract schedule() depends on: exactly one task runnable at a time, a
// switch that "returns" on the next task's own resumption point, no two
// tasks running concurrently, without claiming to move a single register.
package ctxswitch

import (
	"sync"

	"github.com/varunaditya27/nexakernel/task"
)

// Switcher is the process-wide rendezvous table, one entry per live task.
type Switcher struct {
	mu    sync.Mutex
	turns map[*task.TCB]chan struct{}
}

// NewSwitcher builds an empty switcher.
func NewSwitcher() *Switcher {
	return &Switcher{turns: make(map[*task.TCB]chan struct{})}
}

func (s *Switcher) turnChan(t *task.TCB) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.turns[t]
	if !ok {
		ch = make(chan struct{})
		s.turns[t] = ch
	}
	return ch
}

// Bind registers t without starting a goroutine for it: used for the one
// task whose "execution" is the calling goroutine itself (the boot
// sequence, which switches to the idle task and then stays parked).
func (s *Switcher) Bind(t *task.TCB) {
	s.turnChan(t)
}

// Spawn starts fn in a new goroutine that blocks until t is first given
// the turn. fn is the entry trampoline: it must itself call back into the
// scheduler (via task_exit or a blocking wait) rather than returning,
// exactly as a real trampoline never returns to its caller.
func (s *Switcher) Spawn(t *task.TCB, fn func()) {
	ch := s.turnChan(t)
	go func() {
		<-ch
		fn()
	}()
}

// Switch is the context-switch primitive: it wakes to's goroutine and
// blocks the calling goroutine (from) until some future Switch call hands
// it the turn again. The call "returns" only once from is resumed,
// matching the assembly routine's contract that the pop-and-return lands
// at whichever point the new stack directs.
func (s *Switcher) Switch(from, to *task.TCB) {
	toCh := s.turnChan(to)
	fromCh := s.turnChan(from)
	toCh <- struct{}{}
	<-fromCh
}

// Drop releases the rendezvous channel for a reaped task.
func (s *Switcher) Drop(t *task.TCB) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, t)
}
