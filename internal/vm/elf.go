package vm

import (
	"io"

	"kernelx/internal/arch"
	"kernelx/internal/mem"
)

// NewELFSegment returns a private area backing one PT_LOAD segment:
// pages overlapping the file are demand-read from backing at the
// segment's file offset; pages beyond filesz (the bss tail) are
// zero-filled, matching a conventional ELF loader's behavior.
func NewELFSegment(alloc *mem.Allocator, base uintptr, npages int, perm arch.Perm, backing io.ReaderAt, fileOff int64, fileSz int64) Area {
	fill := func(idx int, dst []byte) {
		pageStart := int64(idx) * mem.PageSize
		for i := range dst {
			dst[i] = 0
		}
		if pageStart >= fileSz {
			return
		}
		n := int64(len(dst))
		if pageStart+n > fileSz {
			n = fileSz - pageStart
		}
		io.ReadFull(io.NewSectionReader(backing, fileOff+pageStart, n), dst[:n])
	}
	return newPrivateArea(alloc, base, npages, perm, fill, "elf")
}
