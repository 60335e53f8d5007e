package arch

import (
	"unsafe"

	"kernelx/internal/defs"
	"kernelx/internal/mem"
)

// table is one 512-entry level of the radix tree, laid directly over
// a physical page.
type table [entCount]PTE

func tableOf(pg *mem.Page) *table { return (*table)(unsafe.Pointer(pg)) }

// PageTable is the root of one address space's page table tree. It
// satisfies the §3/§4.1 PageTable contract: map/unmap/lookup/take_ad,
// plus the three map_replace_* variants fork and COW resolution need.
type PageTable struct {
	alloc *mem.Allocator
	root  mem.Frame
}

// New allocates a fresh, empty page table rooted in alloc's frame
// pool.
func New(alloc *mem.Allocator) (*PageTable, defs.Errno) {
	f, ok := alloc.Alloc(-1)
	if !ok {
		return nil, -defs.ENOMEM
	}
	return &PageTable{alloc: alloc, root: f}, 0
}

// Root returns the opaque token (the root frame) the arch layer would
// load into the MMU's page-table-base register.
func (pt *PageTable) Root() mem.Frame { return pt.root }

func vpn(va uintptr, level int) uint64 {
	shift := uint(mem.PageShift + (levels-1-level)*entBits)
	return (uint64(va) >> shift) & (entCount - 1)
}

// walk returns the leaf-level PTE slot for va, allocating intermediate
// tables as needed when alloc is true.
func (pt *PageTable) walk(va uintptr, alloc bool) (*PTE, defs.Errno) {
	cur := pt.root
	for level := 0; level < levels-1; level++ {
		tbl := tableOf(pt.alloc.Deref(cur))
		idx := vpn(va, level)
		e := &tbl[idx]
		if !e.Valid() {
			if !alloc {
				return nil, 0
			}
			child, ok := pt.alloc.Alloc(-1)
			if !ok {
				return nil, -defs.ENOMEM
			}
			e.set(uint64(child), PteV)
		}
		cur = mem.Frame(e.PPN())
	}
	tbl := tableOf(pt.alloc.Deref(cur))
	return &tbl[vpn(va, levels-1)], 0
}

// Map installs a leaf mapping va -> pa with the given permission. The
// frame's refcount is not touched; callers (internal/vm) manage frame
// lifetime explicitly so that COW sharing and unmap bookkeeping stay
// in one place.
func (pt *PageTable) Map(va uintptr, pa mem.Frame, perm Perm) defs.Errno {
	e, err := pt.walk(va, true)
	if err != 0 {
		return err
	}
	e.set(uint64(pa), perm|PteV)
	return 0
}

// MapReplace overwrites an existing leaf's (frame, perm) pair
// atomically from the caller's perspective -- used to install a newly
// copied COW frame with its original writable permission restored.
func (pt *PageTable) MapReplace(va uintptr, pa mem.Frame, perm Perm) defs.Errno {
	return pt.Map(va, pa, perm)
}

// MapReplacePerm mutates only the permission bits of an existing
// mapping, leaving the physical frame untouched. This is the only
// safe way to downgrade permissions during fork (design §4.1).
func (pt *PageTable) MapReplacePerm(va uintptr, perm Perm) defs.Errno {
	e, err := pt.walk(va, false)
	if err != 0 {
		return err
	}
	if e == nil || !e.Valid() {
		return -defs.EFAULT
	}
	ppn := e.PPN()
	e.set(ppn, perm|PteV)
	return 0
}

// MapReplacePA swaps the physical frame of an existing mapping,
// preserving its permission bits, used when COW resolution installs a
// freshly copied frame.
func (pt *PageTable) MapReplacePA(va uintptr, pa mem.Frame) defs.Errno {
	e, err := pt.walk(va, false)
	if err != 0 {
		return err
	}
	if e == nil || !e.Valid() {
		return -defs.EFAULT
	}
	perm := e.Perm()
	e.set(uint64(pa), perm)
	return 0
}

// Unmap clears the leaf mapping at va, if any.
func (pt *PageTable) Unmap(va uintptr) {
	e, _ := pt.walk(va, false)
	if e != nil {
		*e = 0
	}
}

// Lookup returns the leaf PTE covering va, if mapped.
func (pt *PageTable) Lookup(va uintptr) (PTE, bool) {
	e, _ := pt.walk(va, false)
	if e == nil || !e.Valid() {
		return 0, false
	}
	return *e, true
}

// TakeAD atomically reads and clears the accessed/dirty bits of the
// mapping at va -- the sole interface the eviction policy uses.
func (pt *PageTable) TakeAD(va uintptr) (accessed, dirty bool, ok bool) {
	e, _ := pt.walk(va, false)
	if e == nil || !e.Valid() {
		return false, false, false
	}
	p := e.Perm()
	accessed = p&PteA != 0
	dirty = p&PteD != 0
	e.set(e.PPN(), p&^(PteA|PteD))
	return accessed, dirty, true
}
