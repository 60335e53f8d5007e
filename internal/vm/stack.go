package vm

import (
	"kernelx/internal/arch"
	"kernelx/internal/mem"
)

// userStackArea is a privateArea that forks by eager, independent
// copy rather than COW sharing (design §4.2: "UserStack ... never
// downgrade to COW"), since stack pages are hot-written immediately
// after fork and COW would just defer an unavoidable copy.
type userStackArea struct {
	*privateArea
}

// NewUserStack returns a demand-paged, zero-filled private stack area
// of npages pages starting at the given base (the lowest address in
// the mapping).
func NewUserStack(alloc *mem.Allocator, base uintptr, npages int, perm arch.Perm) Area {
	return &userStackArea{privateArea: newPrivateArea(alloc, base, npages, perm, nil, "stack")}
}

func (a *userStackArea) ForkInto(pt, newPT *arch.PageTable, alloc *mem.Allocator) Area {
	src := a.privateArea
	na := &userStackArea{privateArea: newPrivateArea(alloc, src.base, len(src.slots), src.perm, src.fill, src.tag)}
	for i, s := range src.slots {
		if s.state == slotUnallocated {
			continue
		}
		srcPage := alloc.Deref(s.frame)
		f, ok := alloc.AllocNoZero(-1)
		if !ok {
			continue
		}
		copy(alloc.Deref(f)[:], srcPage[:])
		na.slots[i] = slot{state: slotAllocated, frame: f}
		newPT.Map(src.vaOf(i), f, src.perm|arch.PteV|arch.PteU)
	}
	return na
}

func (a *userStackArea) Split(atVA uintptr) (Area, Area) {
	l, r := a.privateArea.Split(atVA)
	return &userStackArea{privateArea: l.(*privateArea)}, &userStackArea{privateArea: r.(*privateArea)}
}
