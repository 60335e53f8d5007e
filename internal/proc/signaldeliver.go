package proc

import (
	"kernelx/internal/signal"
	"kernelx/internal/vm"
)

// defaultTerminates reports whether sig's SIG_DFL action is to
// terminate the process. SIGCHLD is the one signal this kernel raises
// itself whose default action is "ignore" (design §4.6: Exit queues it
// unconditionally); the job-control stop signals SIGSTOP/SIGTSTP/
// SIGTTIN/SIGTTOU are out of scope (§1 Non-goals: no job control), so
// DeliverPending never raises them and this never has to answer for
// them.
func defaultTerminates(sig int) bool {
	return sig != signal.SIGCHLD
}

// DeliverPending dequeues and applies the next signal t may currently
// accept: SIG_IGN drops it, SIG_DFL either terminates the process or
// is itself dropped (SIGCHLD), and a real handler gets a sigframe
// built via signal.Deliver, pointed at the vDSO trampoline every
// AddressSpace carries at vm.VDSOBase.
//
// There is no separate trap-return step in the hosted build to hook
// this into, so it runs at the one boundary every thread reliably
// crosses back through: the end of a syscall (design §4.11,
// internal/syscall.Dispatch). A thread parked in RunUntilKilled
// without ever syscalling doesn't observe a caught handler until its
// next syscall; the same holds for a fatal default action such as
// SIGKILL's, since kill(2)/tkill(2) only queue the signal and Kill() is
// reached only through Exit.
//
// PendingSelf/HasPendingSelf hold the signal between the dequeue
// and the terminate/deliver decision so a signal dequeued from the
// shared PCB.Pending queue is never silently lost if Deliver's sigframe
// write faults.
func (t *TCB) DeliverPending() {
	for {
		if !t.HasPendingSelf {
			sig, ok := t.PCB.Pending.TakeDeliverable(int(t.Tid()), t.SigMask)
			if !ok {
				return
			}
			t.PendingSelf, t.HasPendingSelf = sig, true
		}

		sig := t.PendingSelf
		action := t.PCB.Actions.Get(sig.Signum)
		switch action.Handler {
		case signal.SigIgn:
			t.HasPendingSelf = false
		case signal.SigDfl:
			t.HasPendingSelf = false
			if defaultTerminates(sig.Signum) {
				Exit(t, 128+sig.Signum)
				return
			}
		default:
			if signal.Deliver(t, sig, vm.VDSOBase) != 0 {
				return
			}
			t.HasPendingSelf = false
			return
		}
	}
}
