package proc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelx/internal/proc"
	"kernelx/internal/sched"
	"kernelx/internal/signal"
	"kernelx/internal/vm"
)

func TestDeliverPendingDropsIgnoredSignal(t *testing.T) {
	rq := sched.NewReadyQueue()
	p := sched.NewProcessor(0, rq)
	alloc := newAlloc(t)
	root := mountedRoot(t)

	done := make(chan struct{})
	_, err := proc.NewInitTask(rq, alloc, root, nullConsole{}, func(self *proc.TCB) {
		self.PCB.Actions.Set(signal.SIGUSR1, signal.Action{Handler: signal.SigIgn})
		self.PCB.Pending.Push(signal.PendingSignal{Signum: signal.SIGUSR1, TargetTid: int(self.Tid())})

		self.DeliverPending()

		assert.False(t, self.HasPendingSelf)
		assert.False(t, self.Killed())
		close(done)
	})
	require.Zero(t, err)

	go p.RunLoop()
	<-done
	rq.Close()
}

func TestDeliverPendingDefaultTerminatesThread(t *testing.T) {
	rq := sched.NewReadyQueue()
	p := sched.NewProcessor(0, rq)
	alloc := newAlloc(t)
	root := mountedRoot(t)

	done := make(chan struct{})
	_, err := proc.NewInitTask(rq, alloc, root, nullConsole{}, func(self *proc.TCB) {
		self.PCB.Pending.Push(signal.PendingSignal{Signum: signal.SIGUSR1, TargetTid: int(self.Tid())})

		self.DeliverPending()

		assert.True(t, self.PCB.Zombie)
		assert.Equal(t, 128+signal.SIGUSR1, self.PCB.ExitCode)
		close(done)
	})
	require.Zero(t, err)

	go p.RunLoop()
	<-done
	rq.Close()
}

func TestDeliverPendingDefaultIgnoresSIGCHLD(t *testing.T) {
	rq := sched.NewReadyQueue()
	p := sched.NewProcessor(0, rq)
	alloc := newAlloc(t)
	root := mountedRoot(t)

	done := make(chan struct{})
	_, err := proc.NewInitTask(rq, alloc, root, nullConsole{}, func(self *proc.TCB) {
		self.PCB.Pending.Push(signal.PendingSignal{Signum: signal.SIGCHLD, TargetTid: int(self.Tid())})

		self.DeliverPending()

		assert.False(t, self.PCB.Zombie, "SIGCHLD's default action is ignore, not terminate")
		close(done)
	})
	require.Zero(t, err)

	go p.RunLoop()
	<-done
	rq.Close()
}

func TestDeliverPendingRunsHandlerAndClearsHoldingCell(t *testing.T) {
	rq := sched.NewReadyQueue()
	p := sched.NewProcessor(0, rq)
	alloc := newAlloc(t)
	root := mountedRoot(t)

	done := make(chan struct{})
	_, err := proc.NewInitTask(rq, alloc, root, nullConsole{}, func(self *proc.TCB) {
		sp, serr := vm.UserStackInit(self.PCB.AS, nil, nil, nil)
		require.Zero(t, serr)
		self.UserCtx.SetUserStackTop(sp)
		self.PCB.Actions.Set(signal.SIGUSR1, signal.Action{Handler: 0x5000})
		self.PCB.Pending.Push(signal.PendingSignal{Signum: signal.SIGUSR1, TargetTid: int(self.Tid())})
		originalPC := self.UserCtx.PC

		self.DeliverPending()

		assert.False(t, self.HasPendingSelf)
		assert.NotEqual(t, originalPC, self.UserCtx.PC)
		assert.Equal(t, uintptr(0x5000), self.UserCtx.PC)
		close(done)
	})
	require.Zero(t, err)

	go p.RunLoop()
	<-done
	rq.Close()
}
