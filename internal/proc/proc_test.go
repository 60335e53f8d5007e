package proc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelx/internal/defs"
	"kernelx/internal/file"
	"kernelx/internal/mem"
	"kernelx/internal/proc"
	"kernelx/internal/sched"
	"kernelx/internal/vfs"
	"kernelx/internal/vfs/tmpfs"
)

type nullConsole struct{}

func (nullConsole) Read(buf []byte) (int, defs.Errno)  { return 0, 0 }
func (nullConsole) Write(buf []byte) (int, defs.Errno) { return len(buf), 0 }
func (nullConsole) Ioctl(uintptr, uintptr) (uintptr, defs.Errno) {
	return 0, -defs.ENOTTY
}
func (nullConsole) Poll(want file.PollMask) file.PollMask { return 0 }

func mountedRoot(t *testing.T) *vfs.VFS {
	t.Helper()
	v := vfs.New()
	require.Zero(t, v.Mount("/", tmpfs.FileSystem{}, nil))
	return v
}

func newAlloc(t *testing.T) *mem.Allocator {
	t.Helper()
	return mem.New(mem.Frame(1), 4096, 1)
}

func spawnInit(t *testing.T, rq *sched.ReadyQueue, alloc *mem.Allocator, body func(*proc.TCB)) *proc.TCB {
	t.Helper()
	root := mountedRoot(t)
	tcb, err := proc.NewInitTask(rq, alloc, root, nullConsole{}, body)
	require.Zero(t, err)
	return tcb
}

func TestNewInitTaskWiresStandardDescriptors(t *testing.T) {
	rq := sched.NewReadyQueue()
	p := sched.NewProcessor(0, rq)
	done := make(chan struct{})
	alloc := newAlloc(t)

	var tidOfStdout int
	tcb := spawnInit(t, rq, alloc, func(self *proc.TCB) {
		f, err := self.PCB.Files.Get(1)
		assert.Zero(t, err)
		n, werr := f.Write([]byte("hi"))
		assert.Zero(t, werr)
		assert.Equal(t, 2, n)
		tidOfStdout = int(self.Tid())
		close(done)
	})

	go p.RunLoop()
	<-done
	rq.Close()
	assert.Equal(t, int(tcb.Tid()), tidOfStdout)
}

func TestCloneThreadSharesAddressSpaceAndFiles(t *testing.T) {
	rq := sched.NewReadyQueue()
	p := sched.NewProcessor(0, rq)
	alloc := newAlloc(t)

	childDone := make(chan struct{})
	var parentTCB, childTCB *proc.TCB

	root := mountedRoot(t)
	parentTCB0, err := proc.NewInitTask(rq, alloc, root, nullConsole{}, func(self *proc.TCB) {
		parentTCB = self
		child, cerr := proc.Clone(rq, self, defs.CLONE_VM|defs.CLONE_FILES|defs.CLONE_THREAD, 0, 0, 0, func(c *proc.TCB) {
			childTCB = c
			close(childDone)
		})
		require.Zero(t, cerr)
		_ = child
	})
	require.Zero(t, err)

	go p.RunLoop()
	<-childDone
	rq.Close()

	require.Eventually(t, func() bool { return childTCB != nil }, time.Second, time.Millisecond)
	assert.Same(t, parentTCB0.PCB, childTCB.PCB)
	assert.Same(t, parentTCB.PCB.AS, childTCB.PCB.AS)
	assert.Same(t, parentTCB.PCB.Files, childTCB.PCB.Files)
	assert.Equal(t, 2, childTCB.PCB.ThreadCount())
}

func TestCloneProcessGetsOwnPCBAndForkedFiles(t *testing.T) {
	rq := sched.NewReadyQueue()
	p := sched.NewProcessor(0, rq)
	alloc := newAlloc(t)

	childDone := make(chan struct{})
	var childTCB *proc.TCB
	var parentPCB *proc.PCB

	root := mountedRoot(t)
	_, err := proc.NewInitTask(rq, alloc, root, nullConsole{}, func(self *proc.TCB) {
		parentPCB = self.PCB
		_, cerr := proc.Clone(rq, self, 0, 0, 0, 0, func(c *proc.TCB) {
			childTCB = c
			close(childDone)
		})
		require.Zero(t, cerr)
	})
	require.Zero(t, err)

	go p.RunLoop()
	<-childDone
	rq.Close()

	require.Eventually(t, func() bool { return childTCB != nil }, time.Second, time.Millisecond)
	assert.NotSame(t, parentPCB, childTCB.PCB)
	assert.NotSame(t, parentPCB.Files, childTCB.PCB.Files)
	assert.Same(t, parentPCB, childTCB.PCB.Parent)
}

func TestExitZombifiesAndWakesParentWait(t *testing.T) {
	rq := sched.NewReadyQueue()
	p := sched.NewProcessor(0, rq)
	alloc := newAlloc(t)

	waitDone := make(chan struct {
		pid  defs.Pid_t
		code int
		err  defs.Errno
	}, 1)
	childExited := make(chan struct{})

	root := mountedRoot(t)
	var parent *proc.TCB
	_, err := proc.NewInitTask(rq, alloc, root, nullConsole{}, func(self *proc.TCB) {
		parent = self
		child, cerr := proc.Clone(rq, self, 0, 0, 0, 0, func(c *proc.TCB) {
			proc.Exit(c, 7)
			close(childExited)
		})
		require.Zero(t, cerr)

		pid, code, werr := proc.Wait4(self, defs.Pid_t(child.Tid()), true)
		waitDone <- struct {
			pid  defs.Pid_t
			code int
			err  defs.Errno
		}{pid, code, werr}
	})
	require.Zero(t, err)

	go p.RunLoop()
	<-childExited

	result := <-waitDone
	rq.Close()

	assert.Zero(t, result.err)
	assert.Equal(t, 7, result.code)
	assert.NotNil(t, parent)
}

func TestWait4ReturnsECHILDWithNoChildren(t *testing.T) {
	rq := sched.NewReadyQueue()
	p := sched.NewProcessor(0, rq)
	alloc := newAlloc(t)

	done := make(chan defs.Errno, 1)
	root := mountedRoot(t)
	_, err := proc.NewInitTask(rq, alloc, root, nullConsole{}, func(self *proc.TCB) {
		_, _, werr := proc.Wait4(self, -1, false)
		done <- werr
	})
	require.Zero(t, err)

	go p.RunLoop()
	werr := <-done
	rq.Close()
	assert.Equal(t, -defs.ECHILD, werr)
}
