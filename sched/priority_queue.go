package sched

import (
	"container/heap"

	"github.com/varunaditya27/nexakernel/task"
)

// priorityHeap implements heap.Interface, keyed on (priority, pid): pid
// breaks ties in favour of older tasks.
type priorityHeap []*task.TCB

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].Pid < h[j].Pid
}

func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x any) {
	*h = append(*h, x.(*task.TCB))
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// PriorityQueue is the priority-ordered ready queue: O(log n)
// insert/extract, O(n) search, O(log n) re-heapify on priority change.
type PriorityQueue struct {
	h priorityHeap
}

// NewPriorityQueue builds an empty priority queue.
func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{}
}

func (q *PriorityQueue) Len() int { return q.h.Len() }

func (q *PriorityQueue) Enqueue(t *task.TCB) {
	heap.Push(&q.h, t)
}

func (q *PriorityQueue) Dequeue() *task.TCB {
	if q.h.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*task.TCB)
}

// Remove does a linear search for t and re-heapifies after splicing it out.
func (q *PriorityQueue) Remove(t *task.TCB) bool {
	for i, cur := range q.h {
		if cur != t {
			continue
		}
		heap.Remove(&q.h, i)
		return true
	}
	return false
}

// Reheapify restores heap order after a queued task's priority changes
// out from under the structure.
func (q *PriorityQueue) Reheapify(t *task.TCB) {
	for i, cur := range q.h {
		if cur == t {
			heap.Fix(&q.h, i)
			return
		}
	}
}
