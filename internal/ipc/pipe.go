// Package ipc implements the IPC primitives design §4.12 groups apart
// from the VFS proper: anonymous pipes and SysV shared memory. Both
// build directly on internal/file.FileOps (pipes) and internal/vm's
// shared-area constructors (shmem) rather than inventing a parallel
// abstraction.
package ipc

import (
	"sync"

	"kernelx/internal/circbuf"
	"kernelx/internal/defs"
	"kernelx/internal/file"
	"kernelx/internal/limits"
	"kernelx/internal/mem"
	"kernelx/internal/proc"
	"kernelx/internal/vfs"
)

// PipeCapacity bounds a pipe's internal buffer: one circbuf page
// (design §4.12: "a pipe is a bounded byte queue", backed by the same
// single-page ring the rest of the kernel uses for byte-stream
// buffering rather than a second, pipe-only implementation).
const PipeCapacity = mem.PageSize

type pipe struct {
	mu              sync.Mutex
	buf             *circbuf.Circbuf
	readers, writers int
	readWaiters     []*proc.TCB
	writeWaiters    []*proc.TCB
}

func newPipe(alloc *mem.Allocator) *pipe {
	return &pipe{buf: circbuf.New(PipeCapacity, alloc), readers: 1, writers: 1}
}

// givePipeBudget returns the system-wide pipe budget unit once both
// ends are closed, mirroring takePipeBudget in NewPipe.
func givePipeBudget() { limits.System.Pipes.Give() }

func (p *pipe) wakeReaders() {
	w := p.readWaiters
	p.readWaiters = nil
	for _, t := range w {
		t.Task.Wakeup(struct{}{})
	}
}

func (p *pipe) wakeWriters() {
	w := p.writeWaiters
	p.writeWaiters = nil
	for _, t := range w {
		t.Task.Wakeup(struct{}{})
	}
}

// PipeReader is the read end of a pipe, implementing file.FileOps.
type PipeReader struct{ p *pipe }

// PipeWriter is the write end of a pipe, implementing file.FileOps.
type PipeWriter struct{ p *pipe }

// NewPipe returns a connected read/write pair (design §4.12,
// pipe2(2)'s backing object), its buffer allocated from alloc. Fails
// with EMFILE once the system-wide pipe budget (internal/limits) is
// exhausted.
func NewPipe(alloc *mem.Allocator) (*PipeReader, *PipeWriter, defs.Errno) {
	if !limits.System.Pipes.Take() {
		return nil, nil, -defs.EMFILE
	}
	p := newPipe(alloc)
	return &PipeReader{p}, &PipeWriter{p}, 0
}

func (r *PipeReader) Read(buf []byte) (int, defs.Errno) {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf.Empty() {
		if p.writers == 0 {
			return 0, 0 // EOF
		}
		return 0, -defs.EAGAIN
	}
	n, err := p.buf.Read(buf)
	if err != 0 {
		return 0, err
	}
	p.wakeWriters()
	return n, 0
}

// WaitReadable parks task until data arrives or every writer closes
// (design §4.12's pipe is a WaitQueue-backed byte queue; this is that
// queue's reader-side wait, invoked by internal/syscall's read(2) path
// on EAGAIN rather than inside Read itself, since FileOps carries no
// calling-task context).
func (r *PipeReader) WaitReadable(task *proc.TCB) {
	p := r.p
	p.mu.Lock()
	p.readWaiters = append(p.readWaiters, task)
	p.mu.Unlock()
	task.Task.Block("pipe-read")
}

func (r *PipeReader) WaitWritable(*proc.TCB) {}

func (r *PipeReader) Write([]byte) (int, defs.Errno) { return 0, -defs.EBADF }

func (r *PipeReader) Seek(int64, int) (int64, defs.Errno)          { return 0, -defs.ESPIPE }
func (r *PipeReader) Pread(buf []byte, _ int64) (int, defs.Errno)  { return r.Read(buf) }
func (r *PipeReader) Pwrite([]byte, int64) (int, defs.Errno)       { return 0, -defs.EBADF }
func (r *PipeReader) Ioctl(uintptr, uintptr) (uintptr, defs.Errno) { return 0, -defs.ENOTTY }

func (r *PipeReader) Poll(want file.PollMask) file.PollMask {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	var ready file.PollMask
	if want&file.PollIn != 0 && (!p.buf.Empty() || p.writers == 0) {
		ready |= file.PollIn
	}
	if p.writers == 0 && p.buf.Empty() {
		ready |= file.PollHup
	}
	return ready
}

func (r *PipeReader) Fstat() (vfs.Stat, defs.Errno) { return vfs.Stat{Mode: defs.S_IFIFO}, 0 }
func (r *PipeReader) GetDent(int) (vfs.DirResult, bool, defs.Errno) {
	return vfs.DirResult{}, false, -defs.ENOTDIR
}
func (r *PipeReader) Reopen() defs.Errno { return 0 }
func (r *PipeReader) Close() defs.Errno {
	p := r.p
	p.mu.Lock()
	p.readers--
	done := p.readers == 0
	noWriters := p.writers == 0
	p.mu.Unlock()
	if done {
		p.wakeWriters()
	}
	if done && noWriters {
		p.buf.Release()
		givePipeBudget()
	}
	return 0
}

func (w *PipeWriter) Write(buf []byte) (int, defs.Errno) {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readers == 0 {
		return 0, -defs.EPIPE
	}
	if p.buf.Full() {
		return 0, -defs.EAGAIN
	}
	n, err := p.buf.Write(buf)
	if err != 0 {
		return 0, err
	}
	p.wakeReaders()
	return n, 0
}

// WaitWritable parks task until the pipe has room or every reader
// closes.
func (w *PipeWriter) WaitWritable(task *proc.TCB) {
	p := w.p
	p.mu.Lock()
	p.writeWaiters = append(p.writeWaiters, task)
	p.mu.Unlock()
	task.Task.Block("pipe-write")
}

func (w *PipeWriter) WaitReadable(*proc.TCB) {}

func (w *PipeWriter) Read([]byte) (int, defs.Errno) { return 0, -defs.EBADF }

func (w *PipeWriter) Seek(int64, int) (int64, defs.Errno)          { return 0, -defs.ESPIPE }
func (w *PipeWriter) Pread([]byte, int64) (int, defs.Errno)        { return 0, -defs.EBADF }
func (w *PipeWriter) Pwrite(buf []byte, _ int64) (int, defs.Errno) { return w.Write(buf) }
func (w *PipeWriter) Ioctl(uintptr, uintptr) (uintptr, defs.Errno) { return 0, -defs.ENOTTY }

func (w *PipeWriter) Poll(want file.PollMask) file.PollMask {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	var ready file.PollMask
	if want&file.PollOut != 0 && (!p.buf.Full() || p.readers == 0) {
		ready |= file.PollOut
	}
	if p.readers == 0 {
		ready |= file.PollErr
	}
	return ready
}

func (w *PipeWriter) Fstat() (vfs.Stat, defs.Errno) { return vfs.Stat{Mode: defs.S_IFIFO}, 0 }
func (w *PipeWriter) GetDent(int) (vfs.DirResult, bool, defs.Errno) {
	return vfs.DirResult{}, false, -defs.ENOTDIR
}
func (w *PipeWriter) Reopen() defs.Errno { return 0 }
func (w *PipeWriter) Close() defs.Errno {
	p := w.p
	p.mu.Lock()
	p.writers--
	done := p.writers == 0
	noReaders := p.readers == 0
	p.mu.Unlock()
	if done {
		p.wakeReaders()
	}
	if done && noReaders {
		p.buf.Release()
		givePipeBudget()
	}
	return 0
}
