package sched

import (
	"sync"

	"github.com/varunaditya27/nexakernel/config"
	"github.com/varunaditya27/nexakernel/ctxswitch"
	"github.com/varunaditya27/nexakernel/task"
)

// Policy selects which ready-queue backing structure is active.
type Policy int

const (
	PolicyRoundRobin Policy = iota
	PolicyPriority
)

// Scheduler runs the schedule() algorithm over a task table, a pair of
// ready queues, and a context-switch primitive.
//
// Disabling interrupts across the entire state mutation and context
// switch is normally a single CPU flag hardware saves and restores per
// task automatically; a goroutine-based simulation has no such flag, so
// Scheduler.mu plays its role instead, held only across the state
// mutation, never across the blocking ctxswitch.Switch call itself
// (holding it there would deadlock every other task's own schedule() call
// for as long as this one stayed off-CPU).
type Scheduler struct {
	mu sync.Mutex

	inProgress  bool
	running     bool
	needResched bool

	policy Policy
	rr     *RoundRobin
	pq     *PriorityQueue

	tasks *task.Table
	sw    *ctxswitch.Switcher

	current *task.TCB
	idle    *task.TCB
	boot    *task.TCB

	stackFree func(uintptr)

	scheduleCalls   uint64
	contextSwitches uint64
	reaped          uint64
}

// Default is the singleton scheduler installed at boot.
var Default = &Scheduler{}

// Init brings the scheduler up: builds both ready queues, creates the idle
// task, and spawns its goroutine. Idempotent: a second call is a no-op,
// matching scheduler_init()'s idempotence requirement.
func (s *Scheduler) Init(tasks *task.Table, sw *ctxswitch.Switcher, policy Policy, capacity int, stackAlloc func(uint64) uintptr, stackFree func(uintptr)) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.tasks = tasks
	s.sw = sw
	s.policy = policy
	s.rr = NewRoundRobin(capacity)
	s.pq = NewPriorityQueue()
	s.stackFree = stackFree
	s.boot = &task.TCB{}
	sw.Bind(s.boot)
	s.running = true
	s.mu.Unlock()

	idle := tasks.Create("idle", s.idleLoop, nil, config.IdlePriority, config.MinStackSize, 0, stackAlloc)
	idle.Flags |= task.FlagIdle
	sw.Spawn(idle, s.trampoline(idle))

	s.mu.Lock()
	s.idle = idle
	s.mu.Unlock()
}

func (s *Scheduler) idleLoop(arg any) {
	for {
		s.Yield()
	}
}

// Running reports whether Init has completed successfully.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetPolicy switches the active ready-queue policy. Tasks already queued
// stay in whichever structure holds them; only future enqueue/dequeue
// calls honour the new policy.
func (s *Scheduler) SetPolicy(p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
}

func (s *Scheduler) activeQueue() ReadyQueue {
	if s.policy == PolicyPriority {
		return s.pq
	}
	return s.rr
}

// CreateTask builds a new task via the task table, spawns its rendezvous
// goroutine, and enqueues it Ready.
func (s *Scheduler) CreateTask(name string, entry task.EntryFunc, arg any, priority int, stackSize uint64, now uint64, stackAlloc func(uint64) uintptr) *task.TCB {
	t := s.tasks.Create(name, entry, arg, priority, stackSize, now, stackAlloc)
	if t == nil {
		return nil
	}
	s.sw.Spawn(t, s.trampoline(t))

	s.mu.Lock()
	s.activeQueue().Enqueue(t)
	s.mu.Unlock()
	return t
}

// trampoline builds the entry-trampoline closure for t: reset the
// reentrancy guard (schedule() has already cleared it before switching in),
// clear the first-run flag, run the entry function, and if it returns, exit
// with code 0.
func (s *Scheduler) trampoline(t *task.TCB) func() {
	return func() {
		s.mu.Lock()
		s.inProgress = false
		t.Flags &^= task.FlagFirstRun
		s.mu.Unlock()

		if t.Entry != nil {
			t.Entry(t.Arg)
		}
		s.Exit(t, 0)
	}
}

// Run hands control to the idle task and never returns, matching a real
// kernel's main() handing off to the scheduler forever.
func (s *Scheduler) Run() {
	s.mu.Lock()
	if !s.running || s.current != nil {
		s.mu.Unlock()
		return
	}
	s.idle.State = task.Running
	s.current = s.idle
	boot, idle := s.boot, s.idle
	s.mu.Unlock()

	s.sw.Switch(boot, idle)
}

// Yield implements task_yield: synonym for invoking the scheduler
// voluntarily. The caller's state is left Running, which schedule()'s own
// step 4 demotes to Ready and re-enqueues.
func (s *Scheduler) Yield() {
	s.schedule()
}

// Sleep implements task_sleep.
func (s *Scheduler) Sleep(t *task.TCB, ticks, now uint64) {
	s.mu.Lock()
	t.WakeTick = now + ticks
	t.State = task.Sleeping
	s.mu.Unlock()
	s.schedule()
}

// Wakeup implements task_wakeup: transitions t to Ready and re-enqueues it
// if it was Sleeping or Blocked.
func (s *Scheduler) Wakeup(t *task.TCB) {
	if !s.tasks.Wakeup(t) {
		return
	}
	s.mu.Lock()
	s.activeQueue().Enqueue(t)
	s.mu.Unlock()
}

// Exit implements task_exit: marks t a Zombie, removes it from whichever
// ready queue might reference it, then calls the scheduler, which never
// switches back into this task. The goroutine parks forever inside the
// final sw.Switch call; Reap later drops its rendezvous channel, but the
// goroutine itself is not reclaimable, a known limitation of modelling
// tasks as goroutines rather than register sets (a leaked goroutine,
// never a leaked TCB slot or stack).
func (s *Scheduler) Exit(t *task.TCB, code int) {
	s.tasks.Exit(t, code)
	s.mu.Lock()
	s.rr.Remove(t)
	s.pq.Remove(t)
	s.mu.Unlock()
	s.schedule()
}

// CheckPreempt is the cooperative safe point a task calls to honour a
// pending timer-driven preemption. True hardware preemption interrupts
// whatever instruction a task is executing regardless of its cooperation;
// a goroutine cannot be suspended from outside without runtime surgery
// (the same constraint ctxswitch documents), so NexaKernel's timer ISR
// sets a need-resched flag instead of calling schedule() directly, and
// every task is expected to poll CheckPreempt at its own natural yield
// points. Idle does this every loop iteration via Yield, which amounts to
// the same thing.
func (s *Scheduler) CheckPreempt() {
	s.mu.Lock()
	need := s.needResched
	s.needResched = false
	s.mu.Unlock()
	if need {
		s.schedule()
	}
}

// OnTick is the timer's per-tick callback: it charges the running task's
// CPU-time counter, scans for sleepers whose wake tick has arrived, and
// sets need-resched if the running task's slice has been exhausted and it
// is preemptible.
func (s *Scheduler) OnTick(ticks uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.CPUTicks++
		s.current.TimeSlice--
	}

	for _, t := range s.tasks.Slots() {
		if t.State == task.Sleeping && t.WakeTick != 0 && ticks >= t.WakeTick {
			t.State = task.Ready
			t.WakeTick = 0
			s.activeQueue().Enqueue(t)
		}
	}

	if config.SchedulerPreemptive && s.current != nil && s.current.TimeSlice <= 0 && s.current.HasFlag(task.FlagPreemptible) {
		s.current.TimeSlice = config.SchedulerTimeSlice
		s.needResched = true
	}
}

// schedule is the nine-step scheduling algorithm.
func (s *Scheduler) schedule() {
	s.mu.Lock()

	if s.inProgress { // step 1: reentrancy guard
		s.mu.Unlock()
		return
	}
	if !s.running { // step 2
		s.mu.Unlock()
		return
	}
	s.inProgress = true
	s.scheduleCalls++ // step 3

	s.reapZombiesLocked() // reap on every schedule() pass

	current := s.current
	if current != nil && current.State == task.Running { // step 4
		current.State = task.Ready
		s.activeQueue().Enqueue(current)
	}

	next := s.activeQueue().Dequeue() // step 5
	if next == nil {
		next = s.idle
	}

	if next == current { // step 6
		current.State = task.Running
		s.inProgress = false
		s.mu.Unlock()
		return
	}

	s.contextSwitches++ // step 7
	next.State = task.Running
	if next.TimeSlice == 0 {
		next.TimeSlice = config.SchedulerTimeSlice
	}
	s.current = next
	s.inProgress = false
	s.mu.Unlock()

	s.sw.Switch(current, next) // step 8; step 9 is this call returning, later
}

// reapZombiesLocked reaps every Zombie slot except s.current: a task that
// just called task_exit is Zombie by the time this schedule() pass runs,
// but its own goroutine is still unwinding through this very call on its
// way to the final switch-out, so its slot is left for the *next* pass to
// collect rather than freed out from under itself.
func (s *Scheduler) reapZombiesLocked() {
	for _, t := range s.tasks.Slots() {
		if t.State != task.Zombie || t == s.current {
			continue
		}
		if s.tasks.Reap(t, s.stackFree) {
			s.sw.Drop(t)
			s.reaped++
		}
	}
}

// Stats is the scheduler's diagnostic snapshot.
type Stats struct {
	ScheduleCalls   uint64
	ContextSwitches uint64
	Reaped          uint64
	ActiveTasks     int
	CurrentPid      uint64
	Policy          Policy
}

func (s *Scheduler) QuerySnapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pid uint64
	if s.current != nil {
		pid = s.current.Pid
	}
	return Stats{
		ScheduleCalls:   s.scheduleCalls,
		ContextSwitches: s.contextSwitches,
		Reaped:          s.reaped,
		ActiveTasks:     s.tasks.ActiveCount(),
		CurrentPid:      pid,
		Policy:          s.policy,
	}
}
