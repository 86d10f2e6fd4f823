// Package sched implements the ready queues and scheduler: a round-robin
// circular buffer, a priority min-heap keyed on (priority, pid), and the
// schedule() algorithm that dispatches between them.
package sched

import "github.com/varunaditya27/nexakernel/task"

// ReadyQueue is the interface the scheduler drives; both policies
// implement it, since the active policy is process-wide and may be
// changed at runtime.
type ReadyQueue interface {
	Enqueue(t *task.TCB)
	Dequeue() *task.TCB
	Remove(t *task.TCB) bool
	Len() int
}

// RoundRobin is a bounded circular buffer of TCB references: O(1)
// enqueue/dequeue, O(n) by-pointer removal. A fixed-capacity backing array
// keeps head/size in lockstep.
type RoundRobin struct {
	buf        []*task.TCB
	head, size int
}

// NewRoundRobin builds a round-robin queue with the given fixed capacity.
func NewRoundRobin(capacity int) *RoundRobin {
	return &RoundRobin{buf: make([]*task.TCB, capacity)}
}

func (q *RoundRobin) Len() int { return q.size }

// Enqueue appends at the tail. Silently drops if the buffer is already at
// capacity -- the task table's own MaxTasks bound makes this unreachable
// in practice, but a fixed buffer must not write past its capacity.
func (q *RoundRobin) Enqueue(t *task.TCB) {
	if q.size == len(q.buf) {
		return
	}
	tail := (q.head + q.size) % len(q.buf)
	q.buf[tail] = t
	q.size++
}

// Dequeue pops from the head, or returns nil if empty.
func (q *RoundRobin) Dequeue() *task.TCB {
	if q.size == 0 {
		return nil
	}
	t := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return t
}

// Remove does a linear scan for t and splices it out, preserving relative
// order of the rest. Used when an exiting task must leave the queue before
// its turn comes up.
func (q *RoundRobin) Remove(t *task.TCB) bool {
	for i := 0; i < q.size; i++ {
		idx := (q.head + i) % len(q.buf)
		if q.buf[idx] != t {
			continue
		}
		for j := i; j < q.size-1; j++ {
			cur := (q.head + j) % len(q.buf)
			next := (q.head + j + 1) % len(q.buf)
			q.buf[cur] = q.buf[next]
		}
		last := (q.head + q.size - 1) % len(q.buf)
		q.buf[last] = nil
		q.size--
		return true
	}
	return false
}
