// Package limits tracks system-wide resource budgets -- cached
// vnodes, futex entries, pipes, and block-cache pages -- so that a
// runaway consumer fails its syscall with ENOMEM/EMFILE instead of
// growing the kernel's memory footprint without bound. Mirrors
// biscuit's limits.Syslimit_t/Sysatomic_t.
package limits

import "sync/atomic"

// Atomic is a resource counter that can be taken from and given back
// to concurrently, used for budgets enforced without a coarser lock.
type Atomic struct{ v int64 }

// NewAtomic returns a counter initialized to n.
func NewAtomic(n int64) *Atomic { return &Atomic{v: n} }

// Take decrements the counter by one, reporting success.
func (a *Atomic) Take() bool { return a.Taken(1) }

// Taken decrements the counter by n if the counter would remain
// non-negative, reporting whether it did so.
func (a *Atomic) Taken(n uint) bool {
	if atomic.AddInt64(&a.v, -int64(n)) >= 0 {
		return true
	}
	atomic.AddInt64(&a.v, int64(n))
	return false
}

// Give returns one unit to the counter.
func (a *Atomic) Give() { a.Given(1) }

// Given returns n units to the counter.
func (a *Atomic) Given(n uint) { atomic.AddInt64(&a.v, int64(n)) }

// Remaining reports the counter's current value.
func (a *Atomic) Remaining() int64 { return atomic.LoadInt64(&a.v) }

// Sys holds the system-wide budgets enforced across subsystems.
type Sys struct {
	Procs   *Atomic // max concurrent thread groups
	Vnodes  *Atomic // max cached inodes (internal/vfs inode cache)
	Futexes *Atomic // max live futex table entries
	Pipes   *Atomic // max live pipes
	Blocks  *Atomic // max cached block-device pages
	FDs     *Atomic // max open files system-wide
}

// Default returns the system's default resource budgets.
func Default() *Sys {
	return &Sys{
		Procs:   NewAtomic(1 << 14),
		Vnodes:  NewAtomic(20000),
		Futexes: NewAtomic(1024),
		Pipes:   NewAtomic(10000),
		Blocks:  NewAtomic(100000),
		FDs:     NewAtomic(1 << 18),
	}
}

// System is the kernel-wide budget set every subsystem that consumes
// one of these resources takes from and gives back to, mirroring
// internal/proc.Default and internal/ipc.Shm's own singleton tables.
var System = Default()
