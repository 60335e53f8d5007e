package vm

import (
	"kernelx/internal/arch"
	"kernelx/internal/mem"
)

// NewAnonymous returns a zero-fill-on-demand private area -- the
// backing for malloc'd heap, brk growth and MAP_ANONYMOUS mappings.
func NewAnonymous(alloc *mem.Allocator, base uintptr, npages int, perm arch.Perm) Area {
	return newPrivateArea(alloc, base, npages, perm, nil, "anon")
}
