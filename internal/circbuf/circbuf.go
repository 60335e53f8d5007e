// Package circbuf implements the single-page circular byte buffer
// backing pipes (design §4.12). It is not safe for concurrent use;
// callers (internal/ipc) provide their own locking around it.
package circbuf

import (
	"kernelx/internal/defs"
	"kernelx/internal/mem"
)

// Circbuf is a ring buffer backed by one physical frame from a
// mem.Allocator, lazily allocated on first use so that constructing a
// pipe never itself fails for want of memory.
type Circbuf struct {
	alloc *mem.Allocator
	frame mem.Frame
	buf   []byte
	bufsz int
	head  int
	tail  int
}

// New returns an unallocated circbuf of the given size; sz must fit in
// one page.
func New(sz int, alloc *mem.Allocator) *Circbuf {
	if sz <= 0 || sz > mem.PageSize {
		panic("bad circbuf size")
	}
	return &Circbuf{alloc: alloc, bufsz: sz}
}

func (cb *Circbuf) ensure() defs.Errno {
	if cb.buf != nil {
		return 0
	}
	f, ok := cb.alloc.AllocNoZero(-1)
	if !ok {
		return -defs.ENOMEM
	}
	cb.frame = f
	cb.buf = cb.alloc.Deref(f)[:cb.bufsz]
	return 0
}

// Release drops the backing frame, if any was ever allocated.
func (cb *Circbuf) Release() {
	if cb.buf == nil {
		return
	}
	cb.alloc.Refdown(cb.frame)
	cb.buf = nil
	cb.head, cb.tail = 0, 0
}

func (cb *Circbuf) Full() bool  { return cb.head-cb.tail == cb.bufsz }
func (cb *Circbuf) Empty() bool { return cb.head == cb.tail }
func (cb *Circbuf) Left() int   { return cb.bufsz - (cb.head - cb.tail) }
func (cb *Circbuf) Used() int   { return cb.head - cb.tail }

// Write copies as much of src into the buffer as fits, returning the
// number of bytes copied.
func (cb *Circbuf) Write(src []byte) (int, defs.Errno) {
	if err := cb.ensure(); err != 0 {
		return 0, err
	}
	if cb.Full() {
		return 0, 0
	}
	if len(src) > cb.Left() {
		src = src[:cb.Left()]
	}
	hi := cb.head % cb.bufsz
	n := copy(cb.buf[hi:], src)
	if n < len(src) {
		n += copy(cb.buf[:], src[n:])
	}
	cb.head += n
	return n, 0
}

// Read copies up to len(dst) bytes out of the buffer into dst.
func (cb *Circbuf) Read(dst []byte) (int, defs.Errno) {
	if err := cb.ensure(); err != 0 {
		return 0, err
	}
	if cb.Empty() {
		return 0, 0
	}
	if len(dst) > cb.Used() {
		dst = dst[:cb.Used()]
	}
	ti := cb.tail % cb.bufsz
	n := copy(dst, cb.buf[ti:])
	if n < len(dst) {
		n += copy(dst[n:], cb.buf[:])
	}
	cb.tail += n
	return n, 0
}
