// Package proc implements the process/thread model (design §4.6,
// components C6/C7): TCB construction, the PCB process object, and
// clone/exec/exit/wait4 lifecycle semantics, built on internal/sched
// for the schedulable half of a thread and internal/vm + internal/file
// for the per-process resources threads share.
package proc

import (
	"sync/atomic"

	"kernelx/internal/accnt"
	"kernelx/internal/arch"
	"kernelx/internal/defs"
	"kernelx/internal/mem"
	"kernelx/internal/sched"
	"kernelx/internal/signal"
)

// KernelStackPages is the number of backing pages a TCB's kernel
// stack carries, not counting the guard page (design §4.6).
const KernelStackPages = 4

// kernelStack is a thread's private kernel stack: KernelStackPages
// backing frames plus a guard frame that is deliberately never wired
// into anything resembling a linear map. On bare metal the guard
// page's absence from the kernel's identity map is what turns a stack
// overflow into a fault; a hosted build has no linear map to unmap
// from, so the guard frame here is held but never Deref'd -- touching
// it would be the hosted equivalent of the overflow fault.
type kernelStack struct {
	frames []mem.Frame
	guard  mem.Frame
}

func newKernelStack(alloc *mem.Allocator) (*kernelStack, defs.Errno) {
	ks := &kernelStack{frames: make([]mem.Frame, 0, KernelStackPages)}
	for i := 0; i < KernelStackPages; i++ {
		f, ok := alloc.Alloc(-1)
		if !ok {
			ks.free(alloc)
			return nil, -defs.ENOMEM
		}
		ks.frames = append(ks.frames, f)
	}
	guard, ok := alloc.Alloc(-1)
	if !ok {
		ks.free(alloc)
		return nil, -defs.ENOMEM
	}
	ks.guard = guard
	return ks, 0
}

func (ks *kernelStack) free(alloc *mem.Allocator) {
	for _, f := range ks.frames {
		alloc.Refdown(f)
	}
	if ks.guard != 0 {
		alloc.Refdown(ks.guard)
	}
}

// TCB is one schedulable thread (design §3: "Owns: kernel stack,
// kernel-context, ... thread id, reference to parent PCB, signal
// mask, pending-signal slot, waiting-signal set, robust-list head
// pointer, tid-address pointer, time counter, TaskState, wakeup_event
// slot"). The TaskState/wakeup_event half is *sched.Task, embedded
// directly so a *TCB satisfies ksync.Task.
type TCB struct {
	*sched.Task

	PCB   *PCB
	Stack *kernelStack

	// UserCtx is the thread's saved register file. Real hardware keeps
	// this in a page mapped into the AddressSpace's per-thread region
	// (UserCtxVA); the hosted build keeps the same frame allocated
	// (for accounting fidelity) but operates on this Go-addressable
	// copy directly rather than reinterpreting the frame's bytes.
	UserCtx   arch.UserContext
	UserCtxVA uintptr

	SigMask        signal.SigSet
	PendingSelf    signal.PendingSignal
	HasPendingSelf bool
	WaitingSignals signal.SigSet
	RobustListHead uintptr
	TidAddress     uintptr

	Accnt *accnt.Accnt

	killed atomic.Bool
}

func newTCB(rq *sched.ReadyQueue, pcb *PCB, alloc *mem.Allocator, id defs.Tid_t, entry func(*TCB)) (*TCB, defs.Errno) {
	stack, err := newKernelStack(alloc)
	if err != 0 {
		return nil, err
	}
	ctxVA, err := pcb.AS.NewThreadContext()
	if err != 0 {
		stack.free(alloc)
		return nil, err
	}
	tcb := &TCB{
		PCB:       pcb,
		Stack:     stack,
		UserCtxVA: ctxVA,
		Accnt:     &accnt.Accnt{},
	}
	tcb.Task = sched.Spawn(rq, id, func(t *sched.Task) {
		entry(tcb)
	})
	return tcb, 0
}

// Tid returns the thread id (design: TCB carries its own tid via the
// embedded Task).
func (t *TCB) Tid() defs.Tid_t { return t.ID }

// EventKilled is the wakeup event a thread parked waiting for its next
// trap receives when Kill tears it down out from under it (design
// §4.6: "every other thread in the group is killed").
type EventKilled struct{}

// Kill marks t for termination and wakes it if parked, so its own
// run loop observes Killed() and unwinds.
func (t *TCB) Kill() {
	t.killed.Store(true)
	t.Task.WakeupUninterruptible(EventKilled{})
}

// Killed reports whether Kill has been called on t.
func (t *TCB) Killed() bool { return t.killed.Load() }

// RunUntilKilled parks t in an uninterruptible wait, the idle body a
// freshly cloned thread runs; it returns only once Kill has been
// called on t (design §4.8: a thread with nothing scheduled is simply
// at rest in user mode).
func (t *TCB) RunUntilKilled() {
	for !t.Killed() {
		t.Task.BlockUninterruptible("user")
	}
}
