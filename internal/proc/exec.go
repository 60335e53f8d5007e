package proc

import (
	"io"

	"kernelx/internal/arch"
	"kernelx/internal/defs"
	"kernelx/internal/mem"
	"kernelx/internal/signal"
	"kernelx/internal/vfs"
	"kernelx/internal/vm"
)

// Exec implements execve(2) (design §4.7): builds a fresh AddressSpace
// from backing and swaps it in for the caller's PCB, drops close-on-
// exec descriptors, resets the signal action table to defaults (a
// caught handler cannot survive an image change), and rewrites the
// calling thread's UserCtx to enter at the loaded binary's start
// address with a freshly built stack image.
func Exec(tcb *TCB, backing io.ReaderAt, openInterp func(path string) (vfs.Inode, defs.Errno), argv, envp []string) defs.Errno {
	pcb := tcb.PCB

	as, err := vm.New(pcb.alloc)
	if err != 0 {
		return err
	}
	if err := signal.MapVDSO(as); err != 0 {
		as.Destroy()
		return err
	}
	res, err := LoadExecutable(pcb.alloc, as, backing, openInterp)
	if err != 0 {
		as.Destroy()
		return err
	}

	auxv := []vm.AuxVal{
		{Key: vm.AtPhdr, Val: uint64(res.PhdrVA)},
		{Key: vm.AtPhent, Val: uint64(res.Phent)},
		{Key: vm.AtPhnum, Val: uint64(res.Phnum)},
		{Key: vm.AtPagesz, Val: mem.PageSize},
		{Key: vm.AtEntry, Val: uint64(res.Entry)},
		{Key: vm.AtBase, Val: uint64(res.Base)},
	}
	sp, serr := vm.UserStackInit(as, argv, envp, auxv)
	if serr != 0 {
		as.Destroy()
		return serr
	}

	old := pcb.AS
	pcb.mu.Lock()
	pcb.AS = as
	pcb.Actions = signal.NewActionTable()
	pcb.mu.Unlock()
	old.Destroy()

	pcb.Files.Cloexec()

	tcb.UserCtx = arch.UserContext{}
	tcb.UserCtx.SetUserEntry(res.Entry)
	tcb.UserCtx.SetUserStackTop(sp)
	return 0
}
