// Package accnt accumulates per-thread and per-process CPU time, the
// way biscuit's accnt.Accnt_t does, and renders it in the rusage wire
// layout (two timeval pairs) consumed by getrusage/prlimit64-shaped
// syscalls.
package accnt

import (
	"sync"
	"sync/atomic"
	"time"

	"kernelx/internal/util"
)

// Accnt accumulates user and system time in nanoseconds. The mutex
// guards Add/Rusage snapshots; the per-field counters are updated with
// atomics off the snapshot path.
type Accnt struct {
	mu      sync.Mutex
	Userns  int64
	Sysns   int64
}

// Utadd adds delta nanoseconds of user time.
func (a *Accnt) Utadd(delta time.Duration) { atomic.AddInt64(&a.Userns, int64(delta)) }

// Systadd adds delta nanoseconds of system time.
func (a *Accnt) Systadd(delta time.Duration) { atomic.AddInt64(&a.Sysns, int64(delta)) }

// Finish adds the time elapsed since start to the system-time counter,
// called when a thread returns from kernel mode to user mode.
func (a *Accnt) Finish(start time.Time) { a.Systadd(time.Since(start)) }

// Add merges n's counters into a, used when a thread's accounting is
// folded into its process on exit.
func (a *Accnt) Add(n *Accnt) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Userns += atomic.LoadInt64(&n.Userns)
	a.Sysns += atomic.LoadInt64(&n.Sysns)
}

// Rusage is the wire layout for getrusage/prlimit64-adjacent data:
// two (seconds, microseconds) timeval pairs, user then system.
func (a *Accnt) Rusage() []uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	ret := make([]uint8, 4*8)
	off := 0
	put := func(ns int64) {
		secs := ns / 1e9
		usecs := (ns % 1e9) / 1000
		util.Writen(ret, 8, off, int(secs))
		off += 8
		util.Writen(ret, 8, off, int(usecs))
		off += 8
	}
	put(a.Userns)
	put(a.Sysns)
	return ret
}
