package syscall

import (
	"kernelx/internal/arch"
	"kernelx/internal/defs"
	"kernelx/internal/file"
	"kernelx/internal/mem"
	"kernelx/internal/vm"
)

func init() {
	register(SYS_brk, sysBrk)
	register(SYS_munmap, sysMunmap)
	register(SYS_mmap, sysMmap)
	register(SYS_mprotect, sysMprotect)
}

// sysBrk implements brk(2): GrowBrk is a no-op when newBrk doesn't
// exceed the current break, so passing the caller's raw argument
// doubles as the "query current break" case (addr 0 always satisfies
// newBrk <= brk since brkBase > 0). Linux's raw brk syscall returns the
// resulting break regardless of success; the glibc wrapper is what
// turns a short return into ENOMEM.
func sysBrk(c *Context) (int64, defs.Errno) {
	addr, _ := c.AS().GrowBrk(uintptr(c.Args[0]))
	return int64(addr), 0
}

func pageCount(length uintptr) int {
	return int((length + mem.PageSize - 1) / mem.PageSize)
}

func permFromProt(prot int) arch.Perm {
	var p arch.Perm = arch.PteV | arch.PteU
	if prot&defs.PROT_READ != 0 {
		p |= arch.PteR
	}
	if prot&defs.PROT_WRITE != 0 {
		p |= arch.PteW
	}
	if prot&defs.PROT_EXEC != 0 {
		p |= arch.PteX
	}
	return p
}

func sysMunmap(c *Context) (int64, defs.Errno) {
	base := uintptr(c.Args[0])
	npages := pageCount(uintptr(c.Args[1]))
	if npages == 0 {
		return 0, -defs.EINVAL
	}
	return 0, c.AS().Munmap(base, npages)
}

func sysMprotect(c *Context) (int64, defs.Errno) {
	base := uintptr(c.Args[0])
	npages := pageCount(uintptr(c.Args[1]))
	if npages == 0 {
		return 0, -defs.EINVAL
	}
	return 0, c.AS().SetRangePerm(base, npages, permFromProt(int(c.Args[2])))
}

// sysMmap implements mmap(2) over the four area constructors the
// design's VM layer already provides: anonymous vs. file-backed
// crossed with private (COW) vs. shared. MAP_FIXED installs at exactly
// the requested address; otherwise the first free gap is used.
func sysMmap(c *Context) (int64, defs.Errno) {
	addr := uintptr(c.Args[0])
	length := uintptr(c.Args[1])
	prot := int(c.Args[2])
	flags := int(c.Args[3])
	fd := int(int32(c.Args[4]))
	off := c.I64(5)

	npages := pageCount(length)
	if npages == 0 {
		return 0, -defs.EINVAL
	}
	perm := permFromProt(prot)
	as := c.AS()
	alloc := as.Alloc()

	var backing *file.OpenFile
	if flags&defs.MAP_ANON == 0 {
		f, err := c.TCB.PCB.Files.Get(fd)
		if err != 0 {
			return 0, err
		}
		of, ok := f.(*file.OpenFile)
		if !ok {
			return 0, -defs.EBADF
		}
		backing = of
	}

	makeArea := func(base uintptr) vm.Area {
		switch {
		case backing == nil && flags&defs.MAP_SHARED != 0:
			return vm.NewSharedAnonymous(alloc, base, npages, perm)
		case backing == nil:
			return vm.NewAnonymous(alloc, base, npages, perm)
		case flags&defs.MAP_SHARED != 0:
			return vm.NewSharedFileMap(alloc, base, npages, perm, inodeReaderAt{backing.Inode()}, off)
		default:
			st, _ := backing.Fstat()
			return vm.NewPrivateFileMap(alloc, base, npages, perm, inodeReaderAt{backing.Inode()}, off, st.Size)
		}
	}

	if flags&defs.MAP_FIXED != 0 {
		as.MMapFixed(addr, makeArea(addr))
		return int64(addr), 0
	}
	base, err := as.MMap(makeArea, npages)
	if err != 0 {
		return 0, err
	}
	return int64(base), 0
}
