package vm

import (
	"kernelx/internal/arch"
	"kernelx/internal/mem"
)

// filler supplies the initial content of a demand-paged slot: zero for
// anonymous memory, a read from backing storage for file-backed
// areas. idx is the page index within the area.
type filler func(idx int, dst []byte)

// privateArea is the shared implementation backing Anonymous,
// ELFSegment and PrivateFileMap: independently-owned, demand-paged,
// copy-on-write-capable memory. The three variants differ only in
// what fill does and in a human-readable tag used for diagnostics.
type privateArea struct {
	alloc *mem.Allocator
	base  uintptr
	perm  arch.Perm
	slots []slot
	fill  filler
	tag   string
}

func newPrivateArea(alloc *mem.Allocator, base uintptr, npages int, perm arch.Perm, fill filler, tag string) *privateArea {
	return &privateArea{
		alloc: alloc,
		base:  base,
		perm:  perm,
		slots: make([]slot, npages),
		fill:  fill,
		tag:   tag,
	}
}

func (a *privateArea) Base() uintptr  { return a.base }
func (a *privateArea) Pages() int     { return len(a.slots) }
func (a *privateArea) Perm() arch.Perm { return a.perm }

func (a *privateArea) vaOf(idx int) uintptr { return a.base + uintptr(idx)*mem.PageSize }

// ensure guarantees slots[idx] has backing content, materializing it
// via fill on first touch and installing the page-table mapping. A
// COW slot is resolved into a private Allocated copy only when write
// is true -- a mere read of a shared, read-only-mapped COW page needs
// no duplication. ENOMEM is reported by returning a nil page.
func (a *privateArea) ensure(pt *arch.PageTable, idx int, write bool) *mem.Page {
	s := &a.slots[idx]
	switch s.state {
	case slotAllocated:
		return a.alloc.Deref(s.frame)
	case slotCOW:
		if write {
			return a.resolveCOW(pt, idx)
		}
		return a.alloc.Deref(s.frame)
	}
	f, ok := a.alloc.AllocNoZero(-1)
	if !ok {
		return nil
	}
	pg := a.alloc.Deref(f)
	if a.fill != nil {
		a.fill(idx, pg[:])
	} else {
		for i := range pg {
			pg[i] = 0
		}
	}
	s.state = slotAllocated
	s.frame = f
	pt.Map(a.vaOf(idx), f, a.perm|arch.PteV|arch.PteU)
	return pg
}

// resolveCOW implements the write-fault COW resolution of design
// §4.3: sole-owner frames are reused in place, otherwise a fresh frame
// is allocated and the old contents copied.
func (a *privateArea) resolveCOW(pt *arch.PageTable, idx int) *mem.Page {
	s := &a.slots[idx]
	old := s.frame
	if a.alloc.Refcnt(old) == 1 {
		s.state = slotAllocated
		pt.MapReplacePerm(a.vaOf(idx), a.perm|arch.PteV|arch.PteU)
		return a.alloc.Deref(old)
	}
	nf, ok := a.alloc.AllocNoZero(-1)
	if !ok {
		return nil
	}
	copy(a.alloc.Deref(nf)[:], a.alloc.Deref(old)[:])
	a.alloc.Refdown(old)
	s.state = slotAllocated
	s.frame = nf
	pt.MapReplace(a.vaOf(idx), nf, a.perm|arch.PteV|arch.PteU)
	return a.alloc.Deref(nf)
}

func (a *privateArea) TranslateRead(pt *arch.PageTable, va uintptr) ([]byte, bool) {
	idx := pageOffset(a.base, va)
	if idx < 0 || idx >= len(a.slots) || a.perm&arch.PteR == 0 {
		return nil, false
	}
	pg := a.ensure(pt, idx, false)
	if pg == nil {
		return nil, false
	}
	return pg[:], true
}

func (a *privateArea) TranslateWrite(pt *arch.PageTable, va uintptr) ([]byte, bool) {
	idx := pageOffset(a.base, va)
	if idx < 0 || idx >= len(a.slots) || a.perm&arch.PteW == 0 {
		return nil, false
	}
	pg := a.ensure(pt, idx, true)
	if pg == nil {
		return nil, false
	}
	return pg[:], true
}

func (a *privateArea) TryFixFault(pt *arch.PageTable, va uintptr, kind FaultKind) bool {
	switch kind {
	case FaultWrite:
		_, ok := a.TranslateWrite(pt, va)
		return ok
	default:
		_, ok := a.TranslateRead(pt, va)
		return ok
	}
}

// ForkInto transitions every Allocated slot in both the source and
// destination page tables to COW (design §4.3): the write bit is
// cleared via map_replace_perm and both sides keep an independent
// refcounted handle on the shared frame.
func (a *privateArea) ForkInto(pt, newPT *arch.PageTable, alloc *mem.Allocator) Area {
	na := &privateArea{
		alloc: alloc,
		base:  a.base,
		perm:  a.perm,
		slots: make([]slot, len(a.slots)),
		fill:  a.fill,
		tag:   a.tag,
	}
	roPerm := a.perm &^ arch.PteW
	for i := range a.slots {
		s := a.slots[i]
		switch s.state {
		case slotAllocated:
			alloc.Refup(s.frame)
			pt.MapReplacePerm(a.vaOf(i), roPerm|arch.PteV|arch.PteU|arch.PteCOW)
			a.slots[i] = slot{state: slotCOW, frame: s.frame}
			na.slots[i] = slot{state: slotCOW, frame: s.frame}
			newPT.Map(a.vaOf(i), s.frame, roPerm|arch.PteV|arch.PteU|arch.PteCOW)
		case slotCOW:
			alloc.Refup(s.frame)
			na.slots[i] = s
			newPT.Map(a.vaOf(i), s.frame, roPerm|arch.PteV|arch.PteU|arch.PteCOW)
		}
	}
	return na
}

func (a *privateArea) Split(atVA uintptr) (Area, Area) {
	idx := pageOffset(a.base, atVA)
	left := &privateArea{alloc: a.alloc, base: a.base, perm: a.perm, slots: a.slots[:idx], fill: a.fill, tag: a.tag}
	right := &privateArea{alloc: a.alloc, base: atVA, perm: a.perm, slots: a.slots[idx:], fill: a.fill, tag: a.tag}
	return left, right
}

func (a *privateArea) SetPerm(pt *arch.PageTable, perm arch.Perm) {
	a.perm = perm
	for i, s := range a.slots {
		if s.state == slotAllocated {
			pt.MapReplacePerm(a.vaOf(i), perm|arch.PteV|arch.PteU)
		}
	}
}

func (a *privateArea) Unmap(pt *arch.PageTable, alloc *mem.Allocator) {
	for i, s := range a.slots {
		if s.state == slotAllocated || s.state == slotCOW {
			alloc.Refdown(s.frame)
			pt.Unmap(a.vaOf(i))
		}
	}
}
