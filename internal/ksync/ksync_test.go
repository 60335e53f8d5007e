package ksync_test

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelx/internal/defs"
	"kernelx/internal/ksync"
)

// fakeTask is a minimal ksync.Task for exercising the queues without
// depending on internal/sched.
type fakeTask struct {
	mu      sync.Mutex
	blocked bool
	event   any
	id      int
}

func (f *fakeTask) Block(string)               { f.mu.Lock(); f.blocked = true; f.mu.Unlock() }
func (f *fakeTask) BlockUninterruptible(string) { f.Block("") }
func (f *fakeTask) Wakeup(event any) {
	f.mu.Lock()
	f.blocked = false
	f.event = event
	f.mu.Unlock()
}
func (f *fakeTask) WakeupUninterruptible(event any) { f.Wakeup(event) }

func (f *fakeTask) isBlocked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocked
}

func TestSpinlockExcludesConcurrentAccess(t *testing.T) {
	sl := ksync.NewSpinlock(false)
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			sl.Lock(defs.Tid_t(tid))
			counter++
			sl.Unlock()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestSpinlockDebugPanicsOnReentry(t *testing.T) {
	sl := ksync.NewSpinlock(true)
	sl.Lock(1)
	assert.Panics(t, func() { sl.Lock(1) })
}

func TestWaitQueueWakeOneWakesOneWaiterPerCall(t *testing.T) {
	wq := ksync.NewWaitQueue[*fakeTask]()
	a, b := &fakeTask{}, &fakeTask{}

	go wq.WaitCurrent(a, 1)
	go wq.WaitCurrent(b, 1)
	for wq.Len() < 2 {
		runtime.Gosched()
	}

	require.True(t, wq.WakeOne(1, "first"))
	require.True(t, wq.WakeOne(1, "second"))
	assert.False(t, wq.WakeOne(1, "third"))
}

func TestWaitQueueWakeAll(t *testing.T) {
	wq := ksync.NewWaitQueue[*fakeTask]()
	tasks := []*fakeTask{{}, {}, {}}
	for _, tk := range tasks {
		wq.WaitCurrent(tk, 7)
	}
	n := wq.WakeAll(7, func() any { return "go" })
	assert.Equal(t, 3, n)
	for _, tk := range tasks {
		assert.False(t, tk.isBlocked())
		assert.Equal(t, "go", tk.event)
	}
}

func TestWaitQueueRemove(t *testing.T) {
	wq := ksync.NewWaitQueue[*fakeTask]()
	a, b := &fakeTask{}, &fakeTask{}
	wq.WaitCurrent(a, 1)
	wq.WaitCurrent(b, 1)

	eq := func(x, y *fakeTask) bool { return x == y }
	assert.True(t, wq.Remove(a, eq))
	assert.Equal(t, 1, wq.Len())
	assert.False(t, wq.Remove(a, eq))
}

func TestFutexWaitMismatchReturnsEAGAIN(t *testing.T) {
	ft := ksync.NewFutexTable[*fakeTask]()
	tk := &fakeTask{}
	val := uint32(5)
	err := ft.Wait(tk, 0x1000, 99, 0xffffffff, func() uint32 { return val })
	assert.Equal(t, -defs.EAGAIN, err)
}

func TestFutexWakeDeliversEvent(t *testing.T) {
	ft := ksync.NewFutexTable[*fakeTask]()
	tk := &fakeTask{}
	val := uint32(5)
	go ft.Wait(tk, 0x2000, 5, 0x1, func() uint32 { return val })
	for !tk.isBlocked() {
		runtime.Gosched()
	}
	n := ft.Wake(0x2000, 1, 0x1)
	assert.Equal(t, 1, n)
	assert.Equal(t, ksync.EventFutex{}, tk.event)
}

func TestTimerAdvanceWakesExpiredOnly(t *testing.T) {
	tm := ksync.NewTimer[*fakeTask]()
	early, late := &fakeTask{}, &fakeTask{}
	go tm.Register(early, 100, ksync.EventTimeout{})
	go tm.Register(late, 200, ksync.EventTimeout{})
	for tm.Len() < 2 {
		runtime.Gosched()
	}

	n := tm.Advance(150)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, tm.Len())
}
