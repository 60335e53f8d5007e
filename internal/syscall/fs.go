package syscall

import (
	"kernelx/internal/bpath"
	"kernelx/internal/defs"
	"kernelx/internal/file"
	"kernelx/internal/proc"
	"kernelx/internal/ustr"
	"kernelx/internal/util"
	"kernelx/internal/vfs"
)

// splitPath canonicalizes a raw user-supplied path (design §4.11's
// *at(2) family all take one) through internal/bpath before splitting
// it into the parent directory to resolveAt and the final component a
// Dentry.Create/Unlink/Rename call takes directly, so "." components,
// repeated slashes, and lexical ".." are all gone before either half
// reaches the VFS.
func splitPath(p string) (dir, base string) {
	canon := bpath.Canonicalize(ustr.Ustr(p))
	last := -1
	for idx := 0; idx < len(canon); idx++ {
		if canon[idx] == '/' {
			last = idx
		}
	}
	if last < 0 {
		return ".", canon.String()
	}
	d := canon[:last]
	if len(d) == 0 {
		d = ustr.MkUstrRoot()
	}
	return d.String(), canon[last+1:].String()
}

func init() {
	register(SYS_getcwd, sysGetcwd)
	register(SYS_dup, sysDup)
	register(SYS_dup2, sysDup2)
	register(SYS_fcntl64, sysFcntl64)
	register(SYS_ioctl, sysIoctl)
	register(SYS_mkdirat, sysMkdirat)
	register(SYS_unlinkat, sysUnlinkat)
	register(SYS_chdir, sysChdir)
	register(SYS_faccessat, sysFaccessat)
	register(SYS_openat, sysOpenat)
	register(SYS_close, sysClose)
	register(SYS_getdents64, sysGetdents64)
	register(SYS_lseek, sysLseek)
	register(SYS_read, sysRead)
	register(SYS_write, sysWrite)
	register(SYS_readv, sysReadv)
	register(SYS_writev, sysWritev)
	register(SYS_sendfile, sysSendfile)
	register(SYS_readlinkat, sysReadlinkat)
	register(SYS_fstatat, sysFstatat)
	register(SYS_fstat, sysFstat)
	register(SYS_utimensat, sysUtimensat)
	register(SYS_renameat2, sysRenameat2)
}

// resolveDir resolves a dirfd argument into the dentry an *at(2) call's
// path is relative to: AT_FDCWD means the process's cwd, anything else
// must already be an open directory (design §4.11: dirfd resolution).
func resolveDir(pcb *proc.PCB, dirfd int) (*vfs.Dentry, defs.Errno) {
	if dirfd == defs.AT_FDCWD {
		return pcb.Cwd, 0
	}
	f, err := pcb.Files.Get(dirfd)
	if err != 0 {
		return nil, err
	}
	of, ok := f.(*file.OpenFile)
	if !ok {
		return nil, -defs.ENOTDIR
	}
	return of.Dentry(), 0
}

func resolveAt(pcb *proc.PCB, dirfd int, p string) (*vfs.Dentry, defs.Errno) {
	start, err := resolveDir(pcb, dirfd)
	if err != 0 {
		return nil, err
	}
	return pcb.VFS.Lookup(start, p)
}

func sysGetcwd(c *Context) (int64, defs.Errno) {
	pcb := c.TCB.PCB
	p := pcb.Cwd.Path()
	buf := []byte(p)
	buf = append(buf, 0)
	if len(buf) > int(c.Args[1]) {
		return 0, -defs.ERANGE
	}
	if err := NewUBuffer(c.AS(), c.UPtr64(0), len(buf)).CopyIn(buf); err != 0 {
		return 0, err
	}
	return int64(len(buf)), 0
}

func sysDup(c *Context) (int64, defs.Errno) {
	pcb := c.TCB.PCB
	f, err := pcb.Files.Get(int(c.Args[0]))
	if err != 0 {
		return 0, err
	}
	fd, err := pcb.Files.Push(f, false)
	if err != 0 {
		return 0, err
	}
	return int64(fd), 0
}

func sysDup2(c *Context) (int64, defs.Errno) {
	pcb := c.TCB.PCB
	f, err := pcb.Files.Get(int(c.Args[0]))
	if err != 0 {
		return 0, err
	}
	newfd := int(c.Args[1])
	if newfd == int(c.Args[0]) {
		return int64(newfd), 0
	}
	if err := pcb.Files.Set(newfd, f, false); err != 0 {
		return 0, err
	}
	return int64(newfd), 0
}

// sysFcntl64 implements the handful of fcntl(2) commands a userspace
// libc actually needs at boot: F_DUPFD/F_DUPFD_CLOEXEC, F_SETFD
// (sets or clears close-on-exec), and F_GETFD/F_GETFL/F_SETFL, which
// only check the fd and return 0 (F_GETFD does not report the
// close-on-exec flag; file status flags are not tracked).
func sysFcntl64(c *Context) (int64, defs.Errno) {
	const (
		F_DUPFD         = 0
		F_GETFD         = 1
		F_SETFD         = 2
		F_GETFL         = 3
		F_SETFL         = 4
		F_DUPFD_CLOEXEC = 1030
	)
	pcb := c.TCB.PCB
	fd := int(c.Args[0])
	switch int(c.Args[1]) {
	case F_DUPFD, F_DUPFD_CLOEXEC:
		f, err := pcb.Files.Get(fd)
		if err != 0 {
			return 0, err
		}
		nfd, err := pcb.Files.Push(f, int(c.Args[1]) == F_DUPFD_CLOEXEC)
		if err != 0 {
			return 0, err
		}
		return int64(nfd), 0
	case F_GETFD, F_GETFL:
		if _, err := pcb.Files.Get(fd); err != 0 {
			return 0, err
		}
		return 0, 0
	case F_SETFD:
		return 0, pcb.Files.SetCloexec(fd, c.Args[2]&1 != 0)
	case F_SETFL:
		if _, err := pcb.Files.Get(fd); err != 0 {
			return 0, err
		}
		return 0, 0
	default:
		return 0, -defs.EINVAL
	}
}

func sysIoctl(c *Context) (int64, defs.Errno) {
	pcb := c.TCB.PCB
	f, err := pcb.Files.Get(int(c.Args[0]))
	if err != 0 {
		return 0, err
	}
	ret, err := f.Ioctl(uintptr(c.Args[1]), uintptr(c.Args[2]))
	return int64(ret), err
}

func sysMkdirat(c *Context) (int64, defs.Errno) {
	p, err := c.Str(1)
	if err != 0 {
		return 0, err
	}
	pcb := c.TCB.PCB
	dir, base := splitPath(p)
	parent, perr := resolveAt(pcb, int(c.Args[0]), dir)
	if perr != 0 {
		return 0, perr
	}
	return 0, parent.Create(base, c.U32(2)|defs.S_IFDIR)
}

func sysUnlinkat(c *Context) (int64, defs.Errno) {
	p, err := c.Str(1)
	if err != 0 {
		return 0, err
	}
	pcb := c.TCB.PCB
	dir, base := splitPath(p)
	parent, perr := resolveAt(pcb, int(c.Args[0]), dir)
	if perr != 0 {
		return 0, perr
	}
	return 0, parent.Unlink(base)
}

func sysChdir(c *Context) (int64, defs.Errno) {
	p, err := c.Str(0)
	if err != 0 {
		return 0, err
	}
	pcb := c.TCB.PCB
	d, lerr := pcb.VFS.Lookup(pcb.Cwd, p)
	if lerr != 0 {
		return 0, lerr
	}
	ino, ierr := d.Inode()
	if ierr != 0 {
		return 0, ierr
	}
	if ino.Mode()&defs.S_IFMT != defs.S_IFDIR {
		return 0, -defs.ENOTDIR
	}
	pcb.Cwd = d
	return 0, 0
}

func sysFaccessat(c *Context) (int64, defs.Errno) {
	p, err := c.Str(1)
	if err != 0 {
		return 0, err
	}
	pcb := c.TCB.PCB
	_, lerr := resolveAt(pcb, int(c.Args[0]), p)
	return 0, lerr
}

func openInode(d *vfs.Dentry, flags int, readable, writable bool) (*file.OpenFile, defs.Errno) {
	ino, ierr := d.Inode()
	if ierr != 0 {
		return nil, ierr
	}
	if flags&defs.O_DIRECTORY != 0 && ino.Mode()&defs.S_IFMT != defs.S_IFDIR {
		return nil, -defs.ENOTDIR
	}
	if flags&defs.O_TRUNC != 0 && writable {
		if terr := ino.Truncate(0); terr != 0 {
			return nil, terr
		}
	}
	of := file.NewOpenFile(ino, d, readable, writable)
	if flags&defs.O_APPEND != 0 {
		if st, serr := ino.Fstat(); serr == 0 {
			of.Seek(st.Size, defs.SEEK_END)
		}
	}
	return of, 0
}

func sysOpenat(c *Context) (int64, defs.Errno) {
	p, serr := c.Str(1)
	if serr != 0 {
		return 0, serr
	}
	flags := int(c.Args[2])
	mode := c.U32(3)
	pcb := c.TCB.PCB

	readable := flags&defs.O_WRONLY == 0
	writable := flags&(defs.O_WRONLY|defs.O_RDWR) != 0

	dentry, lerr := resolveAt(pcb, int(c.Args[0]), p)
	switch {
	case lerr == 0:
		if flags&(defs.O_CREAT|defs.O_EXCL) == defs.O_CREAT|defs.O_EXCL {
			return 0, -defs.EEXIST
		}
	case lerr == -defs.ENOENT && flags&defs.O_CREAT != 0:
		dir, base := splitPath(p)
		parent, perr := resolveAt(pcb, int(c.Args[0]), dir)
		if perr != 0 {
			return 0, perr
		}
		if cerr := parent.Create(base, mode|defs.S_IFREG); cerr != 0 {
			return 0, cerr
		}
		dentry, lerr = parent.Lookup(base)
		if lerr != 0 {
			return 0, lerr
		}
	default:
		return 0, lerr
	}

	of, oerr := openInode(dentry, flags, readable, writable)
	if oerr != 0 {
		return 0, oerr
	}
	fd, ferr := pcb.Files.Push(of, flags&defs.O_CLOEXEC != 0)
	if ferr != 0 {
		return 0, ferr
	}
	return int64(fd), 0
}

func sysClose(c *Context) (int64, defs.Errno) {
	return 0, c.TCB.PCB.Files.Close(int(c.Args[0]))
}

// dirent64Header is the size of struct linux_dirent64's fixed fields
// (d_ino, d_off, d_reclen, d_type) before the name; each entry is
// padded so reclen keeps later entries 8-byte aligned.
const dirent64Header = 19

func sysGetdents64(c *Context) (int64, defs.Errno) {
	pcb := c.TCB.PCB
	f, err := pcb.Files.Get(int(c.Args[0]))
	if err != 0 {
		return 0, err
	}
	bufLen := int(c.Args[2])
	out := make([]byte, 0, bufLen)
	index := 0
	for {
		d, ok, derr := f.GetDent(index)
		if derr != 0 {
			return 0, derr
		}
		if !ok {
			break
		}
		reclen := dirent64Header + len(d.Name) + 1
		reclen = (reclen + 7) &^ 7
		if len(out)+reclen > bufLen {
			break
		}
		entry := make([]byte, reclen)
		putUint64(entry[0:], d.Ino)
		putUint64(entry[8:], uint64(index+1))
		putUint16(entry[16:], uint16(reclen))
		entry[18] = dtypeOf(d.Mode)
		copy(entry[19:], d.Name)
		out = append(out, entry...)
		index++
	}
	if err := NewUBuffer(c.AS(), c.UPtr64(1), len(out)).CopyIn(out); err != 0 {
		return 0, err
	}
	return int64(len(out)), 0
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func dtypeOf(mode uint32) byte {
	switch mode & defs.S_IFMT {
	case defs.S_IFDIR:
		return 4
	case defs.S_IFLNK:
		return 10
	case defs.S_IFCHR:
		return 2
	default:
		return 8
	}
}

func sysLseek(c *Context) (int64, defs.Errno) {
	f, err := c.TCB.PCB.Files.Get(int(c.Args[0]))
	if err != 0 {
		return 0, err
	}
	pos, serr := f.Seek(c.I64(1), int(c.Args[2]))
	return pos, serr
}

// blockingReadWriter is implemented by file kinds whose Read/Write can
// return EAGAIN even when the caller didn't ask for O_NONBLOCK (pipes):
// it gives sysRead/sysWrite a way to park the caller until the other
// end makes progress, without widening file.FileOps itself.
type blockingReadWriter interface {
	WaitReadable(task *proc.TCB)
	WaitWritable(task *proc.TCB)
}

func sysRead(c *Context) (int64, defs.Errno) {
	f, err := c.TCB.PCB.Files.Get(int(c.Args[0]))
	if err != 0 {
		return 0, err
	}
	n := int(c.Args[2])
	buf := make([]byte, n)
	for {
		rn, rerr := f.Read(buf)
		if rerr == -defs.EAGAIN {
			if bw, ok := f.(blockingReadWriter); ok {
				bw.WaitReadable(c.TCB)
				continue
			}
		}
		if rerr != 0 {
			return 0, rerr
		}
		if cerr := NewUBuffer(c.AS(), c.UPtr64(1), rn).CopyIn(buf[:rn]); cerr != 0 {
			return 0, cerr
		}
		return int64(rn), 0
	}
}

func sysWrite(c *Context) (int64, defs.Errno) {
	f, err := c.TCB.PCB.Files.Get(int(c.Args[0]))
	if err != 0 {
		return 0, err
	}
	n := int(c.Args[2])
	buf := make([]byte, n)
	if cerr := NewUBuffer(c.AS(), c.UPtr64(1), n).CopyOut(buf); cerr != 0 {
		return 0, cerr
	}
	for {
		wn, werr := f.Write(buf)
		if werr == -defs.EAGAIN {
			if bw, ok := f.(blockingReadWriter); ok {
				bw.WaitWritable(c.TCB)
				continue
			}
		}
		return int64(wn), werr
	}
}

type iovec struct {
	base uint64
	len  uint64
}

// sysReadv/sysWritev walk the iovcnt-entry iovec array one segment at a
// time, reducing each segment to the scalar read/write path and
// accumulating the total transferred across segments (design §4.11).
func sysReadv(c *Context) (int64, defs.Errno) {
	iovcnt := int(c.Args[2])
	iovs := NewUArray[iovec](c.AS(), c.UPtr64(1), iovcnt)
	var total int64
	for i := 0; i < iovcnt; i++ {
		iov, err := iovs.At(i).Read()
		if err != 0 {
			return total, err
		}
		if iov.len == 0 {
			continue
		}
		inner := *c
		inner.Args[1] = iov.base
		inner.Args[2] = iov.len
		n, err := sysRead(&inner)
		total += n
		if err != 0 {
			return total, err
		}
		if n < int64(iov.len) {
			break
		}
	}
	return total, 0
}

func sysWritev(c *Context) (int64, defs.Errno) {
	iovcnt := int(c.Args[2])
	iovs := NewUArray[iovec](c.AS(), c.UPtr64(1), iovcnt)
	var total int64
	for i := 0; i < iovcnt; i++ {
		iov, err := iovs.At(i).Read()
		if err != 0 {
			return total, err
		}
		if iov.len == 0 {
			continue
		}
		inner := *c
		inner.Args[1] = iov.base
		inner.Args[2] = iov.len
		n, err := sysWrite(&inner)
		total += n
		if err != 0 {
			return total, err
		}
		if n < int64(iov.len) {
			break
		}
	}
	return total, 0
}

// sysSendfile copies count bytes from the in fd to the out fd over the
// existing read/write paths (design §4.11). When offset is non-NULL it
// reads from and advances *offset instead of the in fd's own position,
// leaving the in fd's position untouched, matching sendfile(2).
func sysSendfile(c *Context) (int64, defs.Errno) {
	outFd := int(c.Args[0])
	inFd := int(c.Args[1])
	offsetVA := c.UPtr64(2)
	count := int(c.Args[3])

	out, err := c.TCB.PCB.Files.Get(outFd)
	if err != 0 {
		return 0, err
	}
	in, err := c.TCB.PCB.Files.Get(inFd)
	if err != 0 {
		return 0, err
	}

	var useOffset bool
	var offset int64
	if offsetVA != 0 {
		off, oerr := NewUPtr[int64](c.AS(), offsetVA).Read()
		if oerr != 0 {
			return 0, oerr
		}
		offset = off
		useOffset = true
	}

	const chunk = 4096
	buf := make([]byte, chunk)
	var total int64
	for total < int64(count) {
		n := chunk
		if remaining := int(count) - int(total); remaining < n {
			n = remaining
		}
		var rn int
		var rerr defs.Errno
		if useOffset {
			rn, rerr = in.Pread(buf[:n], offset)
		} else {
			rn, rerr = in.Read(buf[:n])
		}
		if rerr != 0 {
			if total > 0 {
				break
			}
			return 0, rerr
		}
		if rn == 0 {
			break
		}
		wn, werr := out.Write(buf[:rn])
		total += int64(wn)
		if useOffset {
			offset += int64(wn)
		}
		if werr != 0 {
			return total, werr
		}
		if wn < rn {
			break
		}
	}

	if useOffset {
		obuf := make([]byte, 8)
		util.Writen(obuf, 8, 0, int(offset))
		if cerr := NewUBuffer(c.AS(), offsetVA, 8).CopyIn(obuf); cerr != 0 {
			return total, cerr
		}
	}
	return total, 0
}

func sysReadlinkat(c *Context) (int64, defs.Errno) {
	p, serr := c.Str(1)
	if serr != 0 {
		return 0, serr
	}
	pcb := c.TCB.PCB
	d, lerr := resolveAt(pcb, int(c.Args[0]), p)
	if lerr != 0 {
		return 0, lerr
	}
	target, rerr := d.Readlink()
	if rerr != 0 {
		return 0, rerr
	}
	buf := []byte(target)
	bufLen := int(c.Args[3])
	if len(buf) > bufLen {
		buf = buf[:bufLen]
	}
	if cerr := NewUBuffer(c.AS(), c.UPtr64(2), len(buf)).CopyIn(buf); cerr != 0 {
		return 0, cerr
	}
	return int64(len(buf)), 0
}

func writeStat(c *Context, va uintptr, st vfs.Stat) defs.Errno {
	type linuxStat struct {
		Dev, Ino            uint64
		Mode                uint32
		Nlink               uint32
		Uid, Gid            uint32
		Rdev                uint64
		_pad0               uint64
		Size                int64
		Blksize             int32
		_pad1               int32
		Blocks              int64
		Atime, Atimensec    int64
		Mtime, Mtimensec    int64
		Ctime, Ctimensec    int64
		_unused             [2]int32
	}
	ls := linuxStat{
		Ino: st.Ino, Mode: st.Mode, Nlink: st.Nlink,
		Uid: st.Uid, Gid: st.Gid, Rdev: st.Rdev,
		Size: st.Size, Blksize: 4096, Blocks: st.Blocks,
		Atime: st.Atime, Mtime: st.Mtime, Ctime: st.Ctime,
	}
	return NewUPtr[linuxStat](c.AS(), va).Write(ls)
}

func sysFstatat(c *Context) (int64, defs.Errno) {
	p, serr := c.Str(1)
	if serr != 0 {
		return 0, serr
	}
	pcb := c.TCB.PCB
	d, lerr := resolveAt(pcb, int(c.Args[0]), p)
	if lerr != 0 {
		return 0, lerr
	}
	ino, ierr := d.Inode()
	if ierr != 0 {
		return 0, ierr
	}
	st, serr2 := ino.Fstat()
	if serr2 != 0 {
		return 0, serr2
	}
	return 0, writeStat(c, c.UPtr64(2), st)
}

func sysFstat(c *Context) (int64, defs.Errno) {
	f, err := c.TCB.PCB.Files.Get(int(c.Args[0]))
	if err != 0 {
		return 0, err
	}
	st, serr := f.Fstat()
	if serr != 0 {
		return 0, serr
	}
	return 0, writeStat(c, c.UPtr64(1), st)
}

// sysUtimensat is accepted but a no-op beyond validating the path
// resolves: timestamps aren't settable through any Inode backend yet.
func sysUtimensat(c *Context) (int64, defs.Errno) {
	p, serr := c.Str(1)
	if serr != 0 {
		return 0, serr
	}
	if p == "" {
		return 0, 0
	}
	_, lerr := resolveAt(c.TCB.PCB, int(c.Args[0]), p)
	return 0, lerr
}

func sysRenameat2(c *Context) (int64, defs.Errno) {
	oldPath, err := c.Str(1)
	if err != 0 {
		return 0, err
	}
	newPath, err := c.Str(3)
	if err != 0 {
		return 0, err
	}
	pcb := c.TCB.PCB
	oldDir, oldBase := splitPath(oldPath)
	newDir, newBase := splitPath(newPath)

	oldParent, perr := resolveAt(pcb, int(c.Args[0]), oldDir)
	if perr != 0 {
		return 0, perr
	}
	newParent, perr := resolveAt(pcb, int(c.Args[2]), newDir)
	if perr != 0 {
		return 0, perr
	}
	return 0, oldParent.Rename(oldBase, newParent, newBase)
}
