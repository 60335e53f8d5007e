package proc

import (
	"debug/elf"
	"io"

	"kernelx/internal/arch"
	"kernelx/internal/defs"
	"kernelx/internal/mem"
	"kernelx/internal/vfs"
	"kernelx/internal/vm"
)

// ExecBase/LinkerBase are the load bases applied to a position-
// independent (ET_DYN) executable and its interpreter, respectively
// (design §4.7: "a non-zero base address is applied"). Chosen to sit
// clear of the brk region (vm.BrkBase..vm.BrkCap) and the mmap/stack
// regions above vm.UserMapBase.
const (
	ExecBase   uintptr = 0x0000_0000_0040_0000
	LinkerBase uintptr = 0x0000_0000_6000_0000
)

// inodeReaderAt adapts a vfs.Inode to io.ReaderAt so debug/elf and
// vm.NewELFSegment can read through the regular file-read path
// (design §4.7: "headers are read through the file interface").
type inodeReaderAt struct{ ino vfs.Inode }

func (r inodeReaderAt) ReadAt(buf []byte, off int64) (int, error) {
	n, errno := r.ino.ReadAt(buf, off)
	if errno != 0 {
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
	return n, nil
}

// LoadResult carries what UserStackInit's auxv needs plus the final
// user entry point (design §4.7: "its entry replaces the returned
// entry").
type LoadResult struct {
	Entry    uintptr
	PhdrVA   uintptr
	Phent    int
	Phnum    int
	Base     uintptr
	Loaded   bool // false if no PT_INTERP was present
}

func permOf(flags elf.ProgFlag) arch.Perm {
	var p arch.Perm
	if flags&elf.PF_R != 0 {
		p |= arch.PteR
	}
	if flags&elf.PF_W != 0 {
		p |= arch.PteW
	}
	if flags&elf.PF_X != 0 {
		p |= arch.PteX
	}
	return p | arch.PteU | arch.PteV
}

// loadImage maps every PT_LOAD segment of backing at load base
// (ExecBase for ET_DYN, 0 for ET_EXEC) into as, validating the header
// per design §4.7 ("magic, 64-bit, little-endian, machine match, type
// in {ET_EXEC, ET_DYN}"). A segment whose address is not page aligned
// is mapped from the page boundary below it, and the leading bytes of
// that first page are read from the file bytes just before p_offset. Returns the applied load base, the entry point, and the
// PT_INTERP path if present.
func loadImage(alloc *mem.Allocator, as *vm.AddressSpace, backing io.ReaderAt, preferredBase uintptr) (base uintptr, entry uintptr, phdrVA uintptr, phent, phnum int, interp string, err defs.Errno) {
	f, ferr := elf.NewFile(backing)
	if ferr != nil {
		return 0, 0, 0, 0, 0, "", -defs.ENOEXEC
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 || f.Data != elf.ELFDATA2LSB {
		return 0, 0, 0, 0, 0, "", -defs.ENOEXEC
	}
	if f.Machine != elf.EM_RISCV {
		return 0, 0, 0, 0, 0, "", -defs.ENOEXEC
	}
	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return 0, 0, 0, 0, 0, "", -defs.ENOEXEC
	}

	base = 0
	if f.Type == elf.ET_DYN {
		base = preferredBase
	}

	var phdrVaddr int64 = -1
	for _, prog := range f.Progs {
		switch prog.Type {
		case elf.PT_LOAD:
			segBase := base + uintptr(prog.Vaddr)
			pageBase := segBase &^ uintptr(mem.PageSize-1)
			leadZero := segBase - pageBase
			fileSz := int64(prog.Filesz)
			memSz := int64(prog.Memsz)
			npages := int((uintptr(leadZero)+uintptr(memSz)+mem.PageSize-1)/mem.PageSize)
			perm := permOf(prog.Flags)
			area := vm.NewELFSegment(alloc, pageBase, npages, perm, backing, int64(prog.Off)-int64(leadZero), fileSz+int64(leadZero))
			as.MMapFixed(pageBase, area)
		case elf.PT_INTERP:
			buf := make([]byte, prog.Filesz)
			if _, rerr := backing.ReadAt(buf, int64(prog.Off)); rerr != nil && rerr != io.EOF {
				return 0, 0, 0, 0, 0, "", -defs.EIO
			}
			interp = trimNulString(buf)
		case elf.PT_PHDR:
			phdrVaddr = int64(prog.Vaddr)
		}
	}

	entry = base + uintptr(f.Entry)
	phent = 56 // Elf64_Phdr size, fixed by the ELF64 spec
	phnum = len(f.Progs)
	if phdrVaddr >= 0 {
		phdrVA = base + uintptr(phdrVaddr)
	}

	return base, entry, phdrVA, phent, phnum, interp, 0
}

func trimNulString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// LoadExecutable implements design §4.7 end to end: loads the primary
// image, and if it carries a PT_INTERP, opens and loads the
// interpreter at LinkerBase as a second pass, whose entry then
// replaces the returned entry and whose base feeds AT_BASE.
func LoadExecutable(alloc *mem.Allocator, as *vm.AddressSpace, backing io.ReaderAt, openInterp func(path string) (vfs.Inode, defs.Errno)) (LoadResult, defs.Errno) {
	_, primaryEntry, phdrVA, phent, phnum, interp, err := loadImage(alloc, as, backing, ExecBase)
	if err != 0 {
		return LoadResult{}, err
	}

	if interp == "" {
		return LoadResult{Entry: primaryEntry, PhdrVA: phdrVA, Phent: phent, Phnum: phnum, Base: 0}, 0
	}
	if openInterp == nil {
		return LoadResult{}, -defs.ENOEXEC
	}
	interpIno, oerr := openInterp(interp)
	if oerr != 0 {
		return LoadResult{}, oerr
	}
	interpBase, interpEntry, _, _, _, _, lerr := loadImage(alloc, as, inodeReaderAt{interpIno}, LinkerBase)
	if lerr != 0 {
		return LoadResult{}, lerr
	}
	return LoadResult{
		Entry:  interpEntry,
		PhdrVA: phdrVA,
		Phent:  phent,
		Phnum:  phnum,
		Base:   interpBase,
		Loaded: true,
	}, 0
}
