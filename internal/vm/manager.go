package vm

import (
	"github.com/google/btree"

	"kernelx/internal/arch"
	"kernelx/internal/defs"
	"kernelx/internal/mem"
)

// areaItem is the btree.Item wrapping one Area, ordered by base
// address (design §4.2: "the manager keeps an ordered map keyed by
// area base address").
type areaItem struct {
	base uintptr
	area Area
}

func (i *areaItem) Less(than btree.Item) bool { return i.base < than.(*areaItem).base }

// Manager is the ordered map-area manager of design §4.2.
type Manager struct {
	alloc *mem.Allocator
	tree  *btree.BTree

	mmapBase  uintptr
	stackBase uintptr // low address of the user-stack region; mmap gaps never cross it

	brkBase uintptr
	brkCap  uintptr
	brk     uintptr
	brkArea *privateArea
}

// NewManager returns an empty manager. mmapBase is where
// find_mmap_base starts scanning; stackBase is the low watermark the
// scan must not cross; brkBase/brkCap bound the heap.
func NewManager(alloc *mem.Allocator, mmapBase, stackBase, brkBase, brkCap uintptr) *Manager {
	return &Manager{alloc: alloc, tree: btree.New(32), mmapBase: mmapBase, stackBase: stackBase, brkBase: brkBase, brkCap: brkCap, brk: brkBase}
}

func end(a Area) uintptr { return a.Base() + uintptr(a.Pages())*mem.PageSize }

// FindMmapBase scans for the first page-aligned gap of npages pages
// starting at mmapBase, never crossing into the stack region.
func (m *Manager) FindMmapBase(npages int) (uintptr, bool) {
	need := uintptr(npages) * mem.PageSize
	cur := m.mmapBase
	found := uintptr(0)
	ok := false
	m.tree.AscendGreaterOrEqual(&areaItem{base: m.mmapBase}, func(i btree.Item) bool {
		ar := i.(*areaItem).area
		if ar.Base() < cur {
			if e := end(ar); e > cur {
				cur = e
			}
			return true
		}
		if cur+need <= ar.Base() {
			found, ok = cur, true
			return false
		}
		if e := end(ar); e > cur {
			cur = e
		}
		return true
	})
	if !ok && cur+need <= m.stackBase {
		found, ok = cur, true
	}
	return found, ok
}

// MapArea requires no overlap with any existing area; it panics
// otherwise (design §4.2: "requires no overlap, else panics").
func (m *Manager) MapArea(base uintptr, area Area) {
	if m.overlaps(base, end(area)) {
		panic("vm: map_area overlaps an existing area")
	}
	m.tree.ReplaceOrInsert(&areaItem{base: base, area: area})
}

func (m *Manager) overlapping(lo, hi uintptr) []Area {
	var out []Area
	m.tree.Ascend(func(i btree.Item) bool {
		ar := i.(*areaItem).area
		if ar.Base() < hi && end(ar) > lo {
			out = append(out, ar)
		}
		return true
	})
	return out
}

func (m *Manager) overlaps(lo, hi uintptr) bool { return len(m.overlapping(lo, hi)) > 0 }

// MapAreaFixed resolves overlap by splitting and removing overlapping
// portions of existing areas (the four cases of design §4.2), then
// inserts area.
func (m *Manager) MapAreaFixed(pt *arch.PageTable, base uintptr, area Area) {
	hi := end(area)
	for _, ar := range m.overlapping(base, hi) {
		m.tree.Delete(&areaItem{base: ar.Base()})
		aLo, aHi := ar.Base(), end(ar)
		switch {
		case aLo >= base && aHi <= hi:
			// full cover
			ar.Unmap(pt, m.alloc)
		case aLo < base && aHi <= hi:
			// left-aligned partial: keep [aLo, base)
			left, right := ar.Split(base)
			right.Unmap(pt, m.alloc)
			m.tree.ReplaceOrInsert(&areaItem{base: left.Base(), area: left})
		case aLo >= base && aHi > hi:
			// right-aligned partial: keep [hi, aHi)
			left, right := ar.Split(hi)
			left.Unmap(pt, m.alloc)
			m.tree.ReplaceOrInsert(&areaItem{base: right.Base(), area: right})
		default:
			// interior: aLo < base && aHi > hi, drop the middle third
			left, rest := ar.Split(base)
			mid, right := rest.Split(hi)
			mid.Unmap(pt, m.alloc)
			m.tree.ReplaceOrInsert(&areaItem{base: left.Base(), area: left})
			m.tree.ReplaceOrInsert(&areaItem{base: right.Base(), area: right})
		}
	}
	m.tree.ReplaceOrInsert(&areaItem{base: base, area: area})
}

// SetRangePerm intersects [base, base+npages*PGSIZE) with every
// overlapping area, splitting as necessary so the exact intersection
// becomes its own area, then calls SetPerm on it.
func (m *Manager) SetRangePerm(pt *arch.PageTable, base uintptr, npages int, perm arch.Perm) defs.Errno {
	hi := base + uintptr(npages)*mem.PageSize
	overlapping := m.overlapping(base, hi)
	if len(overlapping) == 0 {
		return -defs.ENOMEM
	}
	for _, ar := range overlapping {
		m.tree.Delete(&areaItem{base: ar.Base()})
		lo, ahi := ar.Base(), end(ar)
		var mid Area = ar
		if lo < base {
			left, right := mid.Split(base)
			m.tree.ReplaceOrInsert(&areaItem{base: left.Base(), area: left})
			mid = right
		}
		if ahi > hi {
			left2, right2 := mid.Split(hi)
			mid = left2
			m.tree.ReplaceOrInsert(&areaItem{base: right2.Base(), area: right2})
		}
		mid.SetPerm(pt, perm)
		m.tree.ReplaceOrInsert(&areaItem{base: mid.Base(), area: mid})
	}
	return 0
}

// areaAt returns the area covering va, or nil.
func (m *Manager) areaAt(va uintptr) Area {
	var found Area
	m.tree.DescendLessOrEqual(&areaItem{base: va}, func(i btree.Item) bool {
		found = i.(*areaItem).area
		return false
	})
	if found == nil || va >= end(found) {
		return nil
	}
	return found
}

func (m *Manager) TranslateRead(pt *arch.PageTable, va uintptr) ([]byte, bool) {
	ar := m.areaAt(va)
	if ar == nil {
		return nil, false
	}
	return ar.TranslateRead(pt, va)
}

func (m *Manager) TranslateWrite(pt *arch.PageTable, va uintptr) ([]byte, bool) {
	ar := m.areaAt(va)
	if ar == nil {
		return nil, false
	}
	return ar.TranslateWrite(pt, va)
}

func (m *Manager) TryFixFault(pt *arch.PageTable, va uintptr, kind FaultKind) bool {
	ar := m.areaAt(va)
	if ar == nil {
		return false
	}
	return ar.TryFixFault(pt, va, kind)
}

// GrowBrk either leaves brk unchanged (newBrk <= current), extends the
// single brk area to cover the gap, or fails with ENOMEM beyond brkCap.
func (m *Manager) GrowBrk(newBrk uintptr) (uintptr, defs.Errno) {
	if newBrk <= m.brk {
		return m.brk, 0
	}
	if newBrk > m.brkBase+m.brkCap {
		return m.brk, -defs.ENOMEM
	}
	needPages := int((newBrk - m.brkBase + mem.PageSize - 1) / mem.PageSize)
	if m.brkArea == nil {
		ar := newPrivateArea(m.alloc, m.brkBase, needPages, arch.PteR|arch.PteW, nil, "brk")
		m.brkArea = ar
		m.tree.ReplaceOrInsert(&areaItem{base: m.brkBase, area: Area(ar)})
	} else if needPages > len(m.brkArea.slots) {
		grown := make([]slot, needPages)
		copy(grown, m.brkArea.slots)
		m.brkArea.slots = grown
	}
	m.brk = newBrk
	return m.brk, 0
}

// Fork clones every area into newPT's manager in base-address order,
// delegating COW/share semantics to each area's ForkInto.
func (m *Manager) Fork(pt, newPT *arch.PageTable, newAlloc *mem.Allocator) *Manager {
	nm := NewManager(newAlloc, m.mmapBase, m.stackBase, m.brkBase, m.brkCap)
	nm.brk = m.brk
	m.tree.Ascend(func(i btree.Item) bool {
		ar := i.(*areaItem).area
		na := ar.ForkInto(pt, newPT, newAlloc)
		nm.tree.ReplaceOrInsert(&areaItem{base: na.Base(), area: na})
		if pa, ok := na.(*privateArea); ok && pa.tag == "brk" {
			nm.brkArea = pa
		}
		return true
	})
	return nm
}

// Munmap removes [base, base+npages*PGSIZE) from the tree, splitting
// any area that only partially overlaps the same way MapAreaFixed
// does, but leaving the freed range empty rather than inserting a
// replacement (design §4.11: munmap).
func (m *Manager) Munmap(pt *arch.PageTable, base uintptr, npages int) defs.Errno {
	hi := base + uintptr(npages)*mem.PageSize
	for _, ar := range m.overlapping(base, hi) {
		m.tree.Delete(&areaItem{base: ar.Base()})
		aLo, aHi := ar.Base(), end(ar)
		switch {
		case aLo >= base && aHi <= hi:
			ar.Unmap(pt, m.alloc)
		case aLo < base && aHi <= hi:
			left, right := ar.Split(base)
			right.Unmap(pt, m.alloc)
			m.tree.ReplaceOrInsert(&areaItem{base: left.Base(), area: left})
		case aLo >= base && aHi > hi:
			left, right := ar.Split(hi)
			left.Unmap(pt, m.alloc)
			m.tree.ReplaceOrInsert(&areaItem{base: right.Base(), area: right})
		default:
			left, rest := ar.Split(base)
			mid, right := rest.Split(hi)
			mid.Unmap(pt, m.alloc)
			m.tree.ReplaceOrInsert(&areaItem{base: left.Base(), area: left})
			m.tree.ReplaceOrInsert(&areaItem{base: right.Base(), area: right})
		}
	}
	return 0
}

// UnmapAll clears every area's page-table entries and drops its
// frames, used when tearing down an AddressSpace.
func (m *Manager) UnmapAll(pt *arch.PageTable) {
	m.tree.Ascend(func(i btree.Item) bool {
		i.(*areaItem).area.Unmap(pt, m.alloc)
		return true
	})
}
