package sched_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelx/internal/ksync"
	"kernelx/internal/sched"
)

func TestSpawnRunsBodyToExit(t *testing.T) {
	rq := sched.NewReadyQueue()
	p := sched.NewProcessor(0, rq)
	done := make(chan struct{})

	task := sched.Spawn(rq, 1, func(self *sched.Task) {
		close(done)
	})

	go p.RunLoop()
	<-done
	rq.Close()

	require.Eventually(t, func() bool { return task.State() == sched.Exited }, time.Second, time.Millisecond)
}

func TestCooperativeYieldReturnsToRunLoop(t *testing.T) {
	rq := sched.NewReadyQueue()
	p := sched.NewProcessor(0, rq)

	ran := make(chan int, 2)
	sched.Spawn(rq, 1, func(self *sched.Task) {
		ran <- 1
		self.Schedule()
		ran <- 2
	})

	go p.RunLoop()
	assert.Equal(t, 1, <-ran)
	assert.Equal(t, 2, <-ran)
	rq.Close()
}

func TestBlockWakeupRoundTrip(t *testing.T) {
	rq := sched.NewReadyQueue()
	p := sched.NewProcessor(0, rq)
	wq := ksync.NewWaitQueue[*sched.Task]()

	resumed := make(chan any, 1)
	var blocker *sched.Task
	ready := make(chan struct{})
	sched.Spawn(rq, 1, func(self *sched.Task) {
		blocker = self
		close(ready)
		wq.WaitCurrent(self, 42)
		resumed <- self.TakeWakeupEvent()
	})

	go p.RunLoop()
	<-ready
	require.Eventually(t, func() bool { return blocker.State() == sched.Blocked }, time.Second, time.Millisecond)

	require.True(t, wq.WakeOne(42, "hello"))
	assert.Equal(t, "hello", <-resumed)
	rq.Close()
}

func TestProcessorCurrentReflectsRunningTask(t *testing.T) {
	rq := sched.NewReadyQueue()
	p := sched.NewProcessor(0, rq)

	inBody := make(chan struct{})
	release := make(chan struct{})
	task := sched.Spawn(rq, 9, func(self *sched.Task) {
		close(inBody)
		<-release
	})

	go p.RunLoop()
	<-inBody
	assert.Equal(t, task, p.Current())
	close(release)
	rq.Close()
}
