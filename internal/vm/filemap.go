package vm

import (
	"io"

	"kernelx/internal/arch"
	"kernelx/internal/mem"
)

// NewPrivateFileMap returns a MAP_PRIVATE file mapping: pages are
// demand-read from backing on first touch and thereafter behave like
// anonymous, copy-on-write-capable memory -- writes never reach the
// file.
func NewPrivateFileMap(alloc *mem.Allocator, base uintptr, npages int, perm arch.Perm, backing io.ReaderAt, fileOff int64, fileSz int64) Area {
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
	return newPrivateArea(alloc, base, npages, perm, fill, "private-file")
}
