package syscall

import (
	"kernelx/internal/arch"
	"kernelx/internal/defs"
	"kernelx/internal/ipc"
)

func init() {
	register(SYS_pipe2, sysPipe2)
	register(SYS_shmget, sysShmget)
	register(SYS_shmat, sysShmat)
	register(SYS_shmdt, sysShmdt)
	register(SYS_shmctl, sysShmctl)
}

func sysPipe2(c *Context) (int64, defs.Errno) {
	fdsVA := c.UPtr64(0)
	flags := int(c.Args[1])
	cloexec := flags&defs.O_CLOEXEC != 0

	r, w, err := ipc.NewPipe(c.AS().Alloc())
	if err != 0 {
		return 0, err
	}
	rfd, err := c.TCB.PCB.Files.Push(r, cloexec)
	if err != 0 {
		return 0, err
	}
	wfd, err := c.TCB.PCB.Files.Push(w, cloexec)
	if err != 0 {
		c.TCB.PCB.Files.Close(rfd)
		return 0, err
	}

	if err := NewUPtr[int32](c.AS(), fdsVA).Write(int32(rfd)); err != 0 {
		return 0, err
	}
	if err := NewUPtr[int32](c.AS(), fdsVA+4).Write(int32(wfd)); err != 0 {
		return 0, err
	}
	return 0, 0
}

func sysShmget(c *Context) (int64, defs.Errno) {
	key := int(c.I64(0))
	size := uintptr(c.Args[1])
	flags := int(c.Args[2])
	id, err := ipc.Shm.Get(c.AS().Alloc(), key, size, flags)
	if err != 0 {
		return 0, err
	}
	return int64(id), 0
}

func sysShmat(c *Context) (int64, defs.Errno) {
	id := int(c.Args[0])
	flags := int(c.Args[2])
	perm := arch.PteR | arch.PteV | arch.PteU
	if flags&defs.SHM_RDONLY == 0 {
		perm |= arch.PteW
	}
	addr, err := ipc.Shm.Attach(c.AS(), id, perm)
	if err != 0 {
		return 0, err
	}
	return int64(addr), 0
}

func sysShmdt(c *Context) (int64, defs.Errno) {
	addr := uintptr(c.Args[0])
	return 0, ipc.Shm.Detach(c.AS(), addr)
}

func sysShmctl(c *Context) (int64, defs.Errno) {
	id := int(c.Args[0])
	cmd := int(c.Args[1])
	return 0, ipc.Shm.Ctl(id, cmd)
}
