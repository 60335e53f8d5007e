package file

import (
	"kernelx/internal/defs"
	"kernelx/internal/vfs"
)

// CharDevice is the driver contract a character device backend
// implements; CharFile adapts one to FileOps (design §4.5: "no
// position, byte-granular I/O, supports poll").
type CharDevice interface {
	Read(buf []byte) (int, defs.Errno)
	Write(buf []byte) (int, defs.Errno)
	Ioctl(cmd uintptr, arg uintptr) (uintptr, defs.Errno)
	Poll(want PollMask) PollMask
}

// CharFile wraps a CharDevice driver with no seek position of its own.
type CharFile struct {
	dev CharDevice
}

func NewCharFile(dev CharDevice) *CharFile { return &CharFile{dev: dev} }

func (c *CharFile) Read(buf []byte) (int, defs.Errno)  { return c.dev.Read(buf) }
func (c *CharFile) Write(buf []byte) (int, defs.Errno) { return c.dev.Write(buf) }

func (c *CharFile) Seek(int64, int) (int64, defs.Errno) { return 0, -defs.ESPIPE }

func (c *CharFile) Pread(buf []byte, _ int64) (int, defs.Errno)  { return c.dev.Read(buf) }
func (c *CharFile) Pwrite(buf []byte, _ int64) (int, defs.Errno) { return c.dev.Write(buf) }

func (c *CharFile) Ioctl(cmd uintptr, arg uintptr) (uintptr, defs.Errno) {
	return c.dev.Ioctl(cmd, arg)
}

func (c *CharFile) Poll(want PollMask) PollMask { return c.dev.Poll(want) }

func (c *CharFile) Fstat() (vfs.Stat, defs.Errno) { return vfs.Stat{Mode: defs.S_IFCHR}, 0 }

func (c *CharFile) GetDent(int) (vfs.DirResult, bool, defs.Errno) {
	return vfs.DirResult{}, false, -defs.ENOTDIR
}

func (c *CharFile) Reopen() defs.Errno { return 0 }
func (c *CharFile) Close() defs.Errno  { return 0 }
