// Package sched is the cooperative scheduler (design §4.8): a global
// FIFO ready queue, one Processor per hart, and the Task state machine
// every TCB (internal/proc) drives through Block/Wakeup/Schedule.
//
// The hosted build has no literal register-level context switch to
// perform -- internal/arch.HostArch.KernelSwitch is a no-op precisely
// because this package expresses "switch to the task's kernel
// context" as a channel handoff between the task's own goroutine and
// the Processor's run loop, riding on Go's native scheduler instead of
// reimplementing one.
package sched

import (
	"sync"

	"kernelx/internal/defs"
)

// TaskState mirrors the TCB state machine in design §3.
type TaskState int32

const (
	Ready TaskState = iota
	Running
	Blocked
	BlockedUninterruptible
	Exited
)

func (s TaskState) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case BlockedUninterruptible:
		return "blocked-uninterruptible"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// Task is the scheduler's view of one schedulable thread: enough
// state to park it on a WaitQueue/FutexTable/Timer (it satisfies
// ksync.Task) and to hand it the baton from a Processor's run loop.
// internal/proc's TCB embeds a *Task as its schedulable half.
type Task struct {
	ID defs.Tid_t

	rq          *ReadyQueue
	mu          sync.Mutex
	state       TaskState
	wakeupEvent any

	resume chan struct{} // run loop -> task: "you're up"
	parked chan struct{} // task -> run loop: "I yielded or blocked"
}

// NewTask returns a fresh task in the Ready state, bound to rq for
// future Wakeup calls. Callers normally reach this indirectly through
// Spawn.
func NewTask(rq *ReadyQueue, id defs.Tid_t) *Task {
	return &Task{ID: id, rq: rq, state: Ready, resume: make(chan struct{}), parked: make(chan struct{})}
}

// Spawn starts body on its own goroutine, parked until the run loop
// first resumes it, and pushes the resulting Task onto rq.
func Spawn(rq *ReadyQueue, id defs.Tid_t, body func(t *Task)) *Task {
	t := NewTask(rq, id)
	go func() {
		<-t.resume
		body(t)
		t.mu.Lock()
		t.state = Exited
		t.mu.Unlock()
		t.parked <- struct{}{}
	}()
	rq.Push(t)
	return t
}

// ReadyQueue returns the queue t was spawned on, the one a clone(2)
// of t's thread is pushed onto in turn.
func (t *Task) ReadyQueue() *ReadyQueue { return t.rq }

// State returns the task's current state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// setState stores s unconditionally. Nothing in the package calls it;
// the Processor run loop makes the Ready<->Running transition through
// casState.
func (t *Task) setState(s TaskState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Task) casState(from, to TaskState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != from {
		return false
	}
	t.state = to
	return true
}

// Schedule is the cooperative yield point: it hands control back to
// the Processor's run loop and blocks until resumed.
func (t *Task) Schedule() {
	t.parked <- struct{}{}
	<-t.resume
}

// Block transitions Ready/Running -> Blocked and yields (design §4.8).
func (t *Task) Block(reason string) {
	t.mu.Lock()
	t.state = Blocked
	t.mu.Unlock()
	t.Schedule()
}

// BlockUninterruptible is Block's uninterruptible-sleep variant.
func (t *Task) BlockUninterruptible(reason string) {
	t.mu.Lock()
	t.state = BlockedUninterruptible
	t.mu.Unlock()
	t.Schedule()
}

// Wakeup transitions a Blocked task to Ready, stashes event, and
// re-enqueues it on its bound ready queue. No-op if the task isn't
// Blocked (a concurrent wakeup already claimed it, or it exited).
func (t *Task) Wakeup(event any) { t.wake(event, false) }

// WakeupUninterruptible additionally accepts a task parked in
// BlockUninterruptible.
func (t *Task) WakeupUninterruptible(event any) { t.wake(event, true) }

func (t *Task) wake(event any, uninterruptibleToo bool) {
	t.mu.Lock()
	ok := t.state == Blocked || (uninterruptibleToo && t.state == BlockedUninterruptible)
	if !ok {
		t.mu.Unlock()
		return
	}
	t.state = Ready
	t.wakeupEvent = event
	t.mu.Unlock()
	t.rq.Push(t)
}

// TakeWakeupEvent drains and returns the stashed wakeup event,
// observed by the resumed thread immediately after Schedule returns.
func (t *Task) TakeWakeupEvent() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.wakeupEvent
	t.wakeupEvent = nil
	return e
}
