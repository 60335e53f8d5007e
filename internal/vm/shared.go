package vm

import (
	"io"

	"kernelx/internal/arch"
	"kernelx/internal/mem"
)

// sharedArea backs SharedFileMap and SharedMemory: pages are demand
// allocated like a privateArea, but fork never downgrades to COW --
// the frame vector is shared as-is (design §4.2: "shared-memory simply
// shares the frame vector").
type sharedArea struct {
	alloc *mem.Allocator
	base  uintptr
	perm  arch.Perm
	slots []slot
	fill  filler
	tag   string
}

func newSharedArea(alloc *mem.Allocator, base uintptr, npages int, perm arch.Perm, fill filler, tag string) *sharedArea {
	return &sharedArea{alloc: alloc, base: base, perm: perm, slots: make([]slot, npages), fill: fill, tag: tag}
}

// NewSharedMemory wraps an already-allocated vector of frames owned
// by a SysV shared-memory segment (internal/ipc): every attach of the
// same segment maps the identical frames, refupped once per attach so
// the segment's own reference plus each attacher's keep it alive
// independently (design §4.12).
func NewSharedMemory(pt *arch.PageTable, alloc *mem.Allocator, base uintptr, frames []mem.Frame, perm arch.Perm) Area {
	a := &sharedArea{alloc: alloc, base: base, perm: perm, slots: make([]slot, len(frames)), tag: "shm"}
	for i, f := range frames {
		alloc.Refup(f)
		a.slots[i] = slot{state: slotAllocated, frame: f}
		pt.Map(a.vaOf(i), f, perm|arch.PteV|arch.PteU)
	}
	return a
}

// NewSharedAnonymous returns a zero-fill-on-demand area whose frames
// are shared as-is across fork rather than COW'd (MAP_SHARED|MAP_ANON).
func NewSharedAnonymous(alloc *mem.Allocator, base uintptr, npages int, perm arch.Perm) Area {
	return newSharedArea(alloc, base, npages, perm, nil, "shared-anon")
}

// NewSharedFileMap returns a MAP_SHARED file mapping. Each page is
// filled on first touch with a copy of the file's bytes in a frame of
// its own; writes are shared with the children this mapping is forked
// into, but not with separate mappings of the same file, and they are
// never written back to the file.
func NewSharedFileMap(alloc *mem.Allocator, base uintptr, npages int, perm arch.Perm, backing io.ReaderAt, fileOff int64) Area {
	fill := func(idx int, dst []byte) {
		for i := range dst {
			dst[i] = 0
		}
		io.ReadFull(io.NewSectionReader(backing, fileOff+int64(idx)*mem.PageSize, int64(len(dst))), dst)
	}
	return newSharedArea(alloc, base, npages, perm, fill, "shared-file")
}

func (a *sharedArea) Base() uintptr   { return a.base }
func (a *sharedArea) Pages() int      { return len(a.slots) }
func (a *sharedArea) Perm() arch.Perm { return a.perm }
func (a *sharedArea) vaOf(idx int) uintptr { return a.base + uintptr(idx)*mem.PageSize }

func (a *sharedArea) ensure(pt *arch.PageTable, idx int) *mem.Page {
	s := &a.slots[idx]
	if s.state == slotAllocated {
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

func (a *sharedArea) TranslateRead(pt *arch.PageTable, va uintptr) ([]byte, bool) {
	idx := pageOffset(a.base, va)
	if idx < 0 || idx >= len(a.slots) || a.perm&arch.PteR == 0 {
		return nil, false
	}
	pg := a.ensure(pt, idx)
	if pg == nil {
		return nil, false
	}
	return pg[:], true
}

func (a *sharedArea) TranslateWrite(pt *arch.PageTable, va uintptr) ([]byte, bool) {
	idx := pageOffset(a.base, va)
	if idx < 0 || idx >= len(a.slots) || a.perm&arch.PteW == 0 {
		return nil, false
	}
	pg := a.ensure(pt, idx)
	if pg == nil {
		return nil, false
	}
	return pg[:], true
}

func (a *sharedArea) TryFixFault(pt *arch.PageTable, va uintptr, kind FaultKind) bool {
	if kind == FaultWrite {
		_, ok := a.TranslateWrite(pt, va)
		return ok
	}
	_, ok := a.TranslateRead(pt, va)
	return ok
}

// ForkInto shares every allocated frame directly with the child,
// refupping so the frame outlives either side alone, but never clears
// the write bit: both parent and child may write through to the same
// page immediately.
func (a *sharedArea) ForkInto(pt, newPT *arch.PageTable, alloc *mem.Allocator) Area {
	na := &sharedArea{alloc: alloc, base: a.base, perm: a.perm, slots: make([]slot, len(a.slots)), fill: a.fill, tag: a.tag}
	for i, s := range a.slots {
		if s.state == slotAllocated {
			alloc.Refup(s.frame)
			na.slots[i] = s
			newPT.Map(a.vaOf(i), s.frame, a.perm|arch.PteV|arch.PteU)
		}
	}
	return na
}

func (a *sharedArea) Split(atVA uintptr) (Area, Area) {
	idx := pageOffset(a.base, atVA)
	left := &sharedArea{alloc: a.alloc, base: a.base, perm: a.perm, slots: a.slots[:idx], fill: a.fill, tag: a.tag}
	right := &sharedArea{alloc: a.alloc, base: atVA, perm: a.perm, slots: a.slots[idx:], fill: a.fill, tag: a.tag}
	return left, right
}

func (a *sharedArea) SetPerm(pt *arch.PageTable, perm arch.Perm) {
	a.perm = perm
	for i, s := range a.slots {
		if s.state == slotAllocated {
			pt.MapReplacePerm(a.vaOf(i), perm|arch.PteV|arch.PteU)
		}
	}
}

func (a *sharedArea) Unmap(pt *arch.PageTable, alloc *mem.Allocator) {
	for i, s := range a.slots {
		if s.state == slotAllocated {
			alloc.Refdown(s.frame)
			pt.Unmap(a.vaOf(i))
		}
	}
}
