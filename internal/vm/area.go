// Package vm implements the mapping-area model and the per-process
// address space (design §4.2-§4.3): the polymorphic Area variants, the
// ordered area manager, copy-on-write fork, and the user/kernel copy
// routines syscalls and the page-fault handler drive through.
package vm

import (
	"kernelx/internal/arch"
	"kernelx/internal/defs"
	"kernelx/internal/mem"
)

// FaultKind distinguishes why try_fix_fault was invoked.
type FaultKind int

const (
	FaultRead FaultKind = iota
	FaultWrite
	FaultExec
)

// slotState is the per-page bookkeeping an Area keeps for its backing
// frames.
type slotState int

const (
	slotUnallocated slotState = iota
	slotAllocated
	slotCOW
)

type slot struct {
	state slotState
	frame mem.Frame
}

// Area is the common interface every mapping-area variant implements,
// per design §4.2.
type Area interface {
	Base() uintptr
	Pages() int
	Perm() arch.Perm

	// TranslateRead/TranslateWrite resolve va to a kernel-addressable
	// page, allocating or COW-resolving as needed. ok is false when the
	// access is not permitted for this area.
	TranslateRead(pt *arch.PageTable, va uintptr) (kva []byte, ok bool)
	TranslateWrite(pt *arch.PageTable, va uintptr) (kva []byte, ok bool)

	// TryFixFault is invoked from the page-fault handler; it returns
	// false when this area cannot satisfy the fault.
	TryFixFault(pt *arch.PageTable, va uintptr, kind FaultKind) bool

	// ForkInto produces this area's fork-image, rewriting pt and newPT
	// to the COW-downgraded permission for variants that support COW.
	ForkInto(pt, newPT *arch.PageTable, alloc *mem.Allocator) Area

	// Split divides the area at a page boundary, returning the left
	// (mutated receiver) and right halves.
	Split(atVA uintptr) (left, right Area)

	// SetPerm updates the area's permission and rewrites every
	// allocated slot's page-table entry.
	SetPerm(pt *arch.PageTable, perm arch.Perm)

	// Unmap clears every page-table entry covered by the area and
	// drops the frames it owns.
	Unmap(pt *arch.PageTable, alloc *mem.Allocator)
}

func pageAlign(va uintptr) uintptr { return va &^ uintptr(mem.PageSize-1) }

func pageOffset(base uintptr, va uintptr) int {
	return int((va - base) / mem.PageSize)
}
