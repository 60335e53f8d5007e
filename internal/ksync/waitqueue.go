package ksync

import "sync"

// Task is the contract a schedulable unit must satisfy to use any of
// ksync's queues: enough of §4.8's TaskState machine to block and be
// woken, without ksync needing to import the scheduler package itself
// (internal/sched implements this interface structurally).
type Task interface {
	Block(reason string)
	BlockUninterruptible(reason string)
	Wakeup(event any)
	WakeupUninterruptible(event any)
}

type waiter[T Task] struct {
	task T
	tag  uint64
}

// WaitQueue is a deque of (task, tag) pairs, the generic blocking
// primitive every higher subsystem (pipes, futexes, signal delivery
// wait, wait4) parks on -- design §3/§4.9.
type WaitQueue[T Task] struct {
	mu      sync.Mutex
	waiters []waiter[T]
}

// NewWaitQueue returns an empty queue.
func NewWaitQueue[T Task]() *WaitQueue[T] { return &WaitQueue[T]{} }

// WaitCurrent pushes task onto the queue tagged with tag and blocks it
// interruptibly. Returns once the task has been woken (by WakeOne or
// WakeAll; Remove takes it off the queue without waking it).
func (q *WaitQueue[T]) WaitCurrent(task T, tag uint64) {
	q.mu.Lock()
	q.waiters = append(q.waiters, waiter[T]{task: task, tag: tag})
	q.mu.Unlock()
	task.Block("waitqueue")
}

// WaitCurrentUninterruptible is WaitCurrent's uninterruptible variant.
func (q *WaitQueue[T]) WaitCurrentUninterruptible(task T, tag uint64) {
	q.mu.Lock()
	q.waiters = append(q.waiters, waiter[T]{task: task, tag: tag})
	q.mu.Unlock()
	task.BlockUninterruptible("waitqueue")
}

// WakeOne pops the first waiter tagged tag and wakes it with event,
// reporting whether a waiter was found.
func (q *WaitQueue[T]) WakeOne(tag uint64, event any) bool {
	q.mu.Lock()
	for i, w := range q.waiters {
		if w.tag == tag {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			q.mu.Unlock()
			w.task.Wakeup(event)
			return true
		}
	}
	q.mu.Unlock()
	return false
}

// WakeAll drains every waiter tagged tag, calling f to produce each
// one's wakeup event.
func (q *WaitQueue[T]) WakeAll(tag uint64, f func() any) int {
	q.mu.Lock()
	var woken []waiter[T]
	kept := q.waiters[:0:0]
	for _, w := range q.waiters {
		if w.tag == tag {
			woken = append(woken, w)
		} else {
			kept = append(kept, w)
		}
	}
	q.waiters = kept
	q.mu.Unlock()
	for _, w := range woken {
		w.task.Wakeup(f())
	}
	return len(woken)
}

// Remove extracts a single task by identity without waking it
// (used by poll cancel -- design §4.9).
func (q *WaitQueue[T]) Remove(task T, eq func(a, b T) bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waiters {
		if eq(w.task, task) {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports the number of parked waiters.
func (q *WaitQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}
