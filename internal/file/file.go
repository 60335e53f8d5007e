// Package file implements the open-file object and per-process file
// descriptor table (design §4.5), grounded on biscuit's fd/fd.go and
// fdops interfaces -- reworked from biscuit's Fd_t+Fdops_i split into a
// single FileOps interface implemented by each file kind directly.
package file

import (
	"sync"

	"kernelx/internal/defs"
	"kernelx/internal/vfs"
)

// PollMask is a bitmask of readiness events, the kernel-internal analog
// of poll(2)'s revents field.
type PollMask uint32

const (
	PollIn PollMask = 1 << iota
	PollOut
	PollErr
	PollHup
)

// FileOps is the operation set every open file kind implements: plain
// files, character devices, and pipes alike (design §4.5/§4.12).
type FileOps interface {
	Read(buf []byte) (int, defs.Errno)
	Write(buf []byte) (int, defs.Errno)
	Seek(off int64, whence int) (int64, defs.Errno)
	Pread(buf []byte, off int64) (int, defs.Errno)
	Pwrite(buf []byte, off int64) (int, defs.Errno)
	Ioctl(cmd uintptr, arg uintptr) (uintptr, defs.Errno)
	Poll(want PollMask) PollMask
	Fstat() (vfs.Stat, defs.Errno)
	GetDent(index int) (vfs.DirResult, bool, defs.Errno)
	Reopen() defs.Errno
	Close() defs.Errno
}

// OpenFile wraps an inode reference and a Mutex-protected seek
// position (design §4.5).
type OpenFile struct {
	mu       sync.Mutex
	inode    vfs.Inode
	dentry   *vfs.Dentry
	pos      int64
	readable bool
	writable bool
}

// NewOpenFile constructs an OpenFile over an already-resolved inode.
func NewOpenFile(inode vfs.Inode, dentry *vfs.Dentry, readable, writable bool) *OpenFile {
	return &OpenFile{inode: inode, dentry: dentry, readable: readable, writable: writable}
}

func (f *OpenFile) Inode() vfs.Inode    { return f.inode }
func (f *OpenFile) Dentry() *vfs.Dentry { return f.dentry }

func (f *OpenFile) Read(buf []byte) (int, defs.Errno) {
	if !f.readable {
		return 0, -defs.EBADF
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.inode.ReadAt(buf, f.pos)
	if err != 0 {
		return 0, err
	}
	f.pos += int64(n)
	f.inode.UpdateAtime()
	return n, 0
}

func (f *OpenFile) Write(buf []byte) (int, defs.Errno) {
	if !f.writable {
		return 0, -defs.EBADF
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.inode.WriteAt(buf, f.pos)
	if err != 0 {
		return 0, err
	}
	f.pos += int64(n)
	return n, 0
}

// Seek resolves CUR/SET/END, rejecting a negative resulting position
// with EINVAL (design §4.5).
func (f *OpenFile) Seek(off int64, whence int) (int64, defs.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var base int64
	switch whence {
	case defs.SEEK_SET:
		base = 0
	case defs.SEEK_CUR:
		base = f.pos
	case defs.SEEK_END:
		st, err := f.inode.Fstat()
		if err != 0 {
			return 0, err
		}
		base = st.Size
	default:
		return 0, -defs.EINVAL
	}
	newpos := base + off
	if newpos < 0 {
		return 0, -defs.EINVAL
	}
	f.pos = newpos
	return newpos, 0
}

func (f *OpenFile) Pread(buf []byte, off int64) (int, defs.Errno) {
	if !f.readable {
		return 0, -defs.EBADF
	}
	n, err := f.inode.ReadAt(buf, off)
	if err == 0 {
		f.inode.UpdateAtime()
	}
	return n, err
}

func (f *OpenFile) Pwrite(buf []byte, off int64) (int, defs.Errno) {
	if !f.writable {
		return 0, -defs.EBADF
	}
	return f.inode.WriteAt(buf, off)
}

func (f *OpenFile) Ioctl(uintptr, uintptr) (uintptr, defs.Errno) { return 0, -defs.ENOTTY }

func (f *OpenFile) Poll(want PollMask) PollMask {
	ready := PollMask(0)
	if want&PollIn != 0 {
		ready |= PollIn
	}
	if want&PollOut != 0 {
		ready |= PollOut
	}
	return ready
}

func (f *OpenFile) Fstat() (vfs.Stat, defs.Errno) { return f.inode.Fstat() }

// GetDent increments the position and returns the next directory
// entry, or ok=false at end (design §4.5).
func (f *OpenFile) GetDent(index int) (vfs.DirResult, bool, defs.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.inode.GetDent(index)
	if ok {
		f.pos = int64(index) + 1
	}
	return d, ok, 0
}

func (f *OpenFile) Reopen() defs.Errno { return 0 }
func (f *OpenFile) Close() defs.Errno  { return f.inode.Sync() }
