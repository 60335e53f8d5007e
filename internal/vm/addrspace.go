package vm

import (
	"unsafe"

	"kernelx/internal/arch"
	"kernelx/internal/defs"
	"kernelx/internal/mem"
)

// MaxUserString bounds get_user_string reads (design §4.3).
const MaxUserString = 4096

// AddressSpace is the per-process union of a page table and the
// mapping-area manager describing it (design §4.3 / glossary).
type AddressSpace struct {
	alloc *mem.Allocator
	pt    *arch.PageTable
	areas *Manager

	threadCtx map[int]mem.Frame // thread slot index -> scratch frame
	nextSlot  int
}

// New creates an empty address space with the canonical user layout.
func New(alloc *mem.Allocator) (*AddressSpace, defs.Errno) {
	pt, err := arch.New(alloc)
	if err != 0 {
		return nil, err
	}
	return &AddressSpace{
		alloc:     alloc,
		pt:        pt,
		areas:     NewManager(alloc, UserMapBase, StackTop-uintptr(StackMaxPage)*mem.PageSize, BrkBase, BrkCap),
		threadCtx: make(map[int]mem.Frame),
	}, 0
}

func (as *AddressSpace) PageTable() *arch.PageTable { return as.pt }
func (as *AddressSpace) Areas() *Manager             { return as.areas }

// Alloc exposes the frame allocator backing this address space, for
// callers (the mmap(2) handler) that need to hand a fresh Area
// constructor the same allocator the rest of the space uses.
func (as *AddressSpace) Alloc() *mem.Allocator { return as.alloc }

// MMap maps area at the first free gap of npages pages and
// returns the chosen base, or ENOMEM if none exists.
func (as *AddressSpace) MMap(makeArea func(base uintptr) Area, npages int) (uintptr, defs.Errno) {
	base, ok := as.areas.FindMmapBase(npages)
	if !ok {
		return 0, -defs.ENOMEM
	}
	as.areas.MapArea(base, makeArea(base))
	return base, 0
}

// MMapFixed installs area at exactly base, splitting/removing any
// overlap.
func (as *AddressSpace) MMapFixed(base uintptr, area Area) {
	as.areas.MapAreaFixed(as.pt, base, area)
}

func (as *AddressSpace) SetRangePerm(base uintptr, npages int, perm arch.Perm) defs.Errno {
	return as.areas.SetRangePerm(as.pt, base, npages, perm)
}

func (as *AddressSpace) GrowBrk(newBrk uintptr) (uintptr, defs.Errno) {
	return as.areas.GrowBrk(newBrk)
}

// KAddr translates a user address to the kernel address of the byte it
// names: the backing page's kernel-mapped address plus intra-page
// offset. This is the key ksync.FutexTable buckets futex words on
// (design §4.9) -- stable for as long as the mapping lives, since
// private pages only move on a COW fault (which a futex word, touched
// again immediately after, will have already taken) and shared pages
// never move at all.
func (as *AddressSpace) KAddr(va uintptr) (uintptr, defs.Errno) {
	kva, ok := as.areas.TranslateWrite(as.pt, va)
	if !ok {
		return 0, -defs.EFAULT
	}
	off := int(va) % mem.PageSize
	return uintptr(unsafe.Pointer(&kva[off])), 0
}

// Munmap tears down [base, base+npages*PGSIZE), splitting partial
// overlaps (design §4.11: munmap).
func (as *AddressSpace) Munmap(base uintptr, npages int) defs.Errno {
	return as.areas.Munmap(as.pt, base, npages)
}

// PageFault is the page-fault handler entry point (design §4.2/§4.3):
// it delegates to the covering area's TryFixFault, which allocates,
// demand-loads or COW-resolves as needed.
func (as *AddressSpace) PageFault(va uintptr, kind FaultKind) bool {
	return as.areas.TryFixFault(as.pt, pageAlign(va), kind)
}

// Fork clones this address space for a child process sharing no
// memory with the parent except via COW (design §4.3).
func (as *AddressSpace) Fork(childAlloc *mem.Allocator) (*AddressSpace, defs.Errno) {
	npt, err := arch.New(childAlloc)
	if err != 0 {
		return nil, err
	}
	child := &AddressSpace{
		alloc:     childAlloc,
		pt:        npt,
		threadCtx: make(map[int]mem.Frame),
	}
	child.areas = as.areas.Fork(as.pt, npt, childAlloc)
	return child, 0
}

// Destroy unmaps every area and frees the thread-context scratch
// frames. The page table's own frames are not released.
func (as *AddressSpace) Destroy() {
	as.areas.UnmapAll(as.pt)
	for _, f := range as.threadCtx {
		as.alloc.Refdown(f)
	}
}

// NewThreadContext allocates a fresh per-thread UserContext scratch
// page in the reserved region below the vDSO (design §4.3) and
// returns its virtual address.
func (as *AddressSpace) NewThreadContext() (uintptr, defs.Errno) {
	if as.nextSlot >= ThreadCtxSlots {
		return 0, -defs.ENOMEM
	}
	f, ok := as.alloc.Alloc(-1)
	if !ok {
		return 0, -defs.ENOMEM
	}
	slot := as.nextSlot
	as.nextSlot++
	va := ThreadCtxBase + uintptr(slot)*mem.PageSize
	as.pt.Map(va, f, arch.PteR|arch.PteW|arch.PteV)
	as.threadCtx[slot] = f
	return va, 0
}

// -- user/kernel copy routines (design §4.3) --

// User2K copies n bytes starting at user address va into dst.
func (as *AddressSpace) User2K(dst []byte, va uintptr) defs.Errno {
	for len(dst) > 0 {
		kva, ok := as.areas.TranslateRead(as.pt, va)
		if !ok {
			return -defs.EFAULT
		}
		off := int(va) % mem.PageSize
		n := copy(dst, kva[off:])
		dst = dst[n:]
		va += uintptr(n)
	}
	return 0
}

// K2User copies src into user memory starting at user address va.
func (as *AddressSpace) K2User(va uintptr, src []byte) defs.Errno {
	for len(src) > 0 {
		kva, ok := as.areas.TranslateWrite(as.pt, va)
		if !ok {
			return -defs.EFAULT
		}
		off := int(va) % mem.PageSize
		n := copy(kva[off:], src)
		src = src[n:]
		va += uintptr(n)
	}
	return 0
}

// UserString reads a NUL-terminated string starting at va, up to
// MaxUserString bytes.
func (as *AddressSpace) UserString(va uintptr) (string, defs.Errno) {
	buf := make([]byte, 0, 64)
	for len(buf) < MaxUserString {
		kva, ok := as.areas.TranslateRead(as.pt, va)
		if !ok {
			return "", -defs.EFAULT
		}
		off := int(va) % mem.PageSize
		for _, b := range kva[off:] {
			if b == 0 {
				return string(buf), 0
			}
			buf = append(buf, b)
			if len(buf) >= MaxUserString {
				return string(buf), 0
			}
		}
		va += uintptr(mem.PageSize - off)
	}
	return string(buf), 0
}

// Buffer is the UAddrSpaceBuffer of design §4.3: an iterator of
// kernel-owned slices covering consecutive pages of a user range, for
// working on user pages in place. Nothing in the tree calls NewBuffer;
// pipe reads and writes copy through the syscall layer instead.
type Buffer struct {
	as    *AddressSpace
	va    uintptr
	n     int
	write bool
}

// NewBuffer returns a Buffer over [va, va+n) for reading or writing.
func (as *AddressSpace) NewBuffer(va uintptr, n int, write bool) *Buffer {
	return &Buffer{as: as, va: va, n: n, write: write}
}

// Next returns the next kernel-owned slice in the range, or ok=false
// once exhausted or on a fault.
func (b *Buffer) Next() (slice []byte, ok bool) {
	if b.n <= 0 {
		return nil, false
	}
	var kva []byte
	if b.write {
		kva, ok = b.as.areas.TranslateWrite(b.as.pt, b.va)
	} else {
		kva, ok = b.as.areas.TranslateRead(b.as.pt, b.va)
	}
	if !ok {
		return nil, false
	}
	off := int(b.va) % mem.PageSize
	chunk := kva[off:]
	if len(chunk) > b.n {
		chunk = chunk[:b.n]
	}
	b.va += uintptr(len(chunk))
	b.n -= len(chunk)
	return chunk, true
}
