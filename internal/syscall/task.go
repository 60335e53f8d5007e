package syscall

import (
	"io"

	"kernelx/internal/defs"
	"kernelx/internal/proc"
	"kernelx/internal/vfs"
)

func init() {
	register(SYS_set_tid_address, sysSetTidAddress)
	register(SYS_sched_yield, sysSchedYield)
	register(SYS_getpid, sysGetpid)
	register(SYS_gettid, sysGettid)
	register(SYS_clone, sysClone)
	register(SYS_execve, sysExecve)
	register(SYS_exit, sysExit)
	register(SYS_exit_group, sysExit)
	register(SYS_wait4, sysWait4)
}

func sysSetTidAddress(c *Context) (int64, defs.Errno) {
	c.TCB.TidAddress = c.UPtr64(0)
	return int64(c.TCB.Tid()), 0
}

func sysSchedYield(c *Context) (int64, defs.Errno) {
	c.TCB.Schedule()
	return 0, 0
}

func sysGetpid(c *Context) (int64, defs.Errno) { return int64(c.TCB.PCB.Pid), 0 }
func sysGettid(c *Context) (int64, defs.Errno) { return int64(c.TCB.Tid()), 0 }

func sysClone(c *Context) (int64, defs.Errno) {
	flags := int(c.Args[0])
	childSP := uintptr(c.Args[1])
	tlsVal := uintptr(c.Args[3])
	childTidVA := uintptr(c.Args[4])

	rq := c.TCB.ReadyQueue()
	child, err := proc.Clone(rq, c.TCB, flags, childSP, tlsVal, childTidVA, func(tcb *proc.TCB) {
		tcb.RunUntilKilled()
	})
	if err != 0 {
		return 0, err
	}
	return int64(child.Tid()), 0
}

// inodeReaderAt adapts a vfs.Inode to io.ReaderAt so execve can hand
// the backing image straight to proc.LoadExecutable.
type inodeReaderAt struct{ ino vfs.Inode }

func (r inodeReaderAt) ReadAt(buf []byte, off int64) (int, error) {
	n, errno := r.ino.ReadAt(buf, off)
	if errno != 0 {
		if n == 0 {
			return 0, io.EOF
		}
	}
	return n, nil
}

// readStringVector reads a NULL-terminated array of user string
// pointers starting at va (argv/envp's wire shape).
func readStringVector(c *Context, va uintptr) ([]string, defs.Errno) {
	if va == 0 {
		return nil, 0
	}
	var out []string
	for i := 0; ; i++ {
		ptr, err := NewUPtr[uint64](c.AS(), va+uintptr(i)*8).Read()
		if err != 0 {
			return nil, err
		}
		if ptr == 0 {
			break
		}
		s, serr := NewUString(c.AS(), uintptr(ptr)).Read()
		if serr != 0 {
			return nil, serr
		}
		out = append(out, s)
	}
	return out, 0
}

func sysExecve(c *Context) (int64, defs.Errno) {
	pathname, err := c.Str(0)
	if err != 0 {
		return 0, err
	}
	argv, err := readStringVector(c, c.UPtr64(1))
	if err != 0 {
		return 0, err
	}
	envp, err := readStringVector(c, c.UPtr64(2))
	if err != 0 {
		return 0, err
	}

	pcb := c.TCB.PCB
	d, lerr := pcb.VFS.Lookup(pcb.Cwd, pathname)
	if lerr != 0 {
		return 0, lerr
	}
	ino, ierr := d.Inode()
	if ierr != 0 {
		return 0, ierr
	}

	openInterp := func(p string) (vfs.Inode, defs.Errno) {
		id, lerr := pcb.VFS.Lookup(pcb.VFS.Root(), p)
		if lerr != 0 {
			return nil, lerr
		}
		return id.Inode()
	}

	if eerr := proc.Exec(c.TCB, inodeReaderAt{ino}, openInterp, argv, envp); eerr != 0 {
		return 0, eerr
	}
	return 0, 0
}

func sysExit(c *Context) (int64, defs.Errno) {
	proc.Exit(c.TCB, int(c.Args[0]))
	return 0, 0
}

func sysWait4(c *Context) (int64, defs.Errno) {
	pid := defs.Pid_t(c.I64(0))
	statusVA := c.UPtr64(1)
	blocking := int(c.Args[2])&defs.WNOHANG == 0

	cpid, code, werr := proc.Wait4(c.TCB, pid, blocking)
	if werr != 0 {
		return 0, werr
	}
	if cpid != 0 && statusVA != 0 {
		status := uint32(code&0xff) << 8
		if serr := NewUPtr[uint32](c.AS(), statusVA).Write(status); serr != 0 {
			return 0, serr
		}
	}
	return int64(cpid), 0
}
