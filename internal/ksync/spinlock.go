// Package ksync holds the kernel's own synchronization primitives:
// the spinlock used on interrupt-path code that cannot block, the
// generic WaitQueue every blocking subsystem parks tasks on, the
// futex table, and the timer min-heap (design §4.9). Grounded on
// biscuit's lock-free-with-a-holder-tid debug discipline, generalized
// with Go generics where biscuit predates them.
package ksync

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"kernelx/internal/defs"
)

// Spinlock is an atomic-bool lock that panics on reentrant acquire by
// the same holder in debug builds, mirroring biscuit's lock debugging
// (a recorded holder tid catches the deadlock at the offending
// acquire instead of hanging).
type Spinlock struct {
	held   atomic.Bool
	holder atomic.Int64
	debug  bool
}

// NewSpinlock returns an unheld spinlock. debug enables holder
// tracking and reentrancy panics.
func NewSpinlock(debug bool) *Spinlock { return &Spinlock{debug: debug} }

// Lock spins until the lock is acquired.
func (s *Spinlock) Lock(holder defs.Tid_t) {
	if s.debug && s.held.Load() && s.holder.Load() == int64(holder) {
		panic(fmt.Sprintf("spinlock: tid %d reentered a held lock", holder))
	}
	for !s.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
	if s.debug {
		s.holder.Store(int64(holder))
	}
}

// Unlock releases the lock.
func (s *Spinlock) Unlock() {
	if s.debug {
		s.holder.Store(0)
	}
	s.held.Store(false)
}

// TryLock attempts to acquire the lock without spinning.
func (s *Spinlock) TryLock(holder defs.Tid_t) bool {
	if !s.held.CompareAndSwap(false, true) {
		return false
	}
	if s.debug {
		s.holder.Store(int64(holder))
	}
	return true
}
