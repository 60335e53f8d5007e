// Package mem implements the physical frame allocator (design §4.1,
// component C1): page-grained allocation, contiguous runs, reference
// counting, and the direct map from a physical frame number to a
// kernel-addressable page. It is the leaf of the whole dependency
// graph -- nothing here imports any other kernelx package.
//
// The allocator is grounded on biscuit's mem.Physmem_t: a flat table
// of per-frame refcounts plus a free list, with a small per-hart free
// list in front of the global one to keep the common allocation path
// lock-free in the absence of contention.
package mem

import (
	"sync"
	"sync/atomic"

	"kernelx/internal/klog"
)

const (
	PageShift = 12
	PageSize  = 1 << PageShift
	pageMask  = PageSize - 1
)

// Frame is a physical frame number (a physical address right-shifted
// by PageShift), not a byte address -- arithmetic on it is always in
// units of pages.
type Frame uint64

// Addr returns the physical byte address of the frame.
func (f Frame) Addr() uintptr { return uintptr(f) << PageShift }

// FrameOf truncates a physical byte address down to its frame number.
func FrameOf(pa uintptr) Frame { return Frame(pa >> PageShift) }

// Page is a single page of kernel-addressable backing storage. In a
// hosted build (no real MMU identity map) a Page is a Go-allocated
// byte array the direct map resolves to; on bare metal it would be a
// window into the kernel's linear map of physical memory.
type Page [PageSize]byte

type physPage struct {
	refcnt int32
	page   *Page
	next   uint32 // index of next frame on a free list, ^uint32(0) if none
}

const noNext = ^uint32(0)

// pcpuFree is a small per-hart free list used as a fast path before
// falling back to the global list, mirroring biscuit's percpu pool.
type pcpuFree struct {
	mu    sync.Mutex
	head  uint32
	count int32
}

const pcpuCap = 64

// Allocator is the global physical frame allocator.
type Allocator struct {
	mu      sync.Mutex
	frames  []physPage
	base    Frame
	head    uint32
	free    int32
	pcpu    []pcpuFree
	highWater int32
	shrink  func()
}

// New creates an allocator managing n pages of backing storage
// starting at logical frame base, with nharts per-hart free lists.
func New(base Frame, n int, nharts int) *Allocator {
	a := &Allocator{
		frames: make([]physPage, n),
		base:   base,
		pcpu:   make([]pcpuFree, nharts),
	}
	for i := range a.frames {
		a.frames[i].page = &Page{}
		a.frames[i].next = uint32(i) + 1
	}
	a.frames[n-1].next = noNext
	a.head = 0
	a.free = int32(n)
	for i := range a.pcpu {
		a.pcpu[i].head = noNext
	}
	klog.Mem.WithField("pages", n).Info("physical allocator initialized")
	return a
}

// SetShrinkHook installs a callback invoked when the free count drops
// below a high-water mark, giving a swap/eviction policy a chance to
// reclaim pages. Only the hook point is specified; eviction policy
// itself is out of scope (§1 Non-goals).
func (a *Allocator) SetShrinkHook(highWater int, f func()) {
	a.highWater = int32(highWater)
	a.shrink = f
}

func (a *Allocator) index(f Frame) uint32 { return uint32(f - a.base) }

// popGlobal pops one frame from the global free list under lock,
// returning its index and whether one was available.
func (a *Allocator) popGlobal() (uint32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.head == noNext {
		return 0, false
	}
	idx := a.head
	a.head = a.frames[idx].next
	a.free--
	if a.shrink != nil && a.free < a.highWater {
		go a.shrink()
	}
	return idx, true
}

func (a *Allocator) pushGlobal(idx uint32) {
	a.mu.Lock()
	a.frames[idx].next = a.head
	a.head = idx
	a.free++
	a.mu.Unlock()
}

func (a *Allocator) pcpuPop(hart int) (uint32, bool) {
	pc := &a.pcpu[hart]
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.head == noNext {
		return 0, false
	}
	idx := pc.head
	pc.head = a.frames[idx].next
	pc.count--
	return idx, true
}

func (a *Allocator) pcpuPush(hart int, idx uint32) bool {
	pc := &a.pcpu[hart]
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.count >= pcpuCap {
		return false
	}
	a.frames[idx].next = pc.head
	pc.head = idx
	pc.count++
	return true
}

// allocRaw returns an unreferenced, unzeroed frame index.
func (a *Allocator) allocRaw(hart int) (uint32, bool) {
	if hart >= 0 && hart < len(a.pcpu) {
		if idx, ok := a.pcpuPop(hart); ok {
			return idx, true
		}
	}
	return a.popGlobal()
}

// Alloc allocates one zero-filled frame with an initial refcount of 1.
// hart selects the per-hart free list to try first; pass -1 to skip
// the fast path (e.g. from non-hart contexts).
func (a *Allocator) Alloc(hart int) (Frame, bool) {
	idx, ok := a.allocRaw(hart)
	if !ok {
		return 0, false
	}
	p := &a.frames[idx]
	for i := range p.page {
		p.page[i] = 0
	}
	atomic.StoreInt32(&p.refcnt, 1)
	return a.base + Frame(idx), true
}

// AllocNoZero is Alloc without the zero-fill, for paths that
// immediately overwrite the page (e.g. COW copy-out).
func (a *Allocator) AllocNoZero(hart int) (Frame, bool) {
	idx, ok := a.allocRaw(hart)
	if !ok {
		return 0, false
	}
	atomic.StoreInt32(&a.frames[idx].refcnt, 1)
	return a.base + Frame(idx), true
}

// AllocContiguous allocates n contiguous zero-filled frames. It always
// goes through the global list since contiguity cannot be guaranteed
// by the per-hart lists.
func (a *Allocator) AllocContiguous(n int) (Frame, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	// The free list is not ordered by address; a real allocator would
	// keep a buddy structure for this. We do a linear scan of the
	// backing table for n consecutive frames with refcnt == -1
	// (never-allocated) sentinel-free semantics are not tracked here,
	// so instead we scan for n consecutive frames currently on the
	// free list by membership test. This is O(n * len(frames)) and is
	// only used for small n (ring buffers, a handful of pages).
	onFree := make(map[uint32]bool)
	for i := a.head; i != noNext; i = a.frames[i].next {
		onFree[i] = true
	}
	for start := uint32(0); int(start)+n <= len(a.frames); start++ {
		ok := true
		for i := 0; i < n; i++ {
			if !onFree[start+uint32(i)] {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		// remove these n frames from the free list
		a.removeFromFreeLocked(start, n)
		for i := 0; i < n; i++ {
			p := &a.frames[start+uint32(i)]
			for j := range p.page {
				p.page[j] = 0
			}
			atomic.StoreInt32(&p.refcnt, 1)
		}
		a.free -= int32(n)
		return a.base + Frame(start), true
	}
	return 0, false
}

func (a *Allocator) removeFromFreeLocked(start uint32, n int) {
	want := make(map[uint32]bool, n)
	for i := 0; i < n; i++ {
		want[start+uint32(i)] = true
	}
	var newHead uint32 = noNext
	tail := noNext
	for i := a.head; i != noNext; {
		next := a.frames[i].next
		if !want[i] {
			if tail == noNext {
				newHead = i
			} else {
				a.frames[tail].next = i
			}
			a.frames[i].next = noNext
			tail = i
		}
		i = next
	}
	a.head = newHead
}

// Refup increments a frame's reference count.
func (a *Allocator) Refup(f Frame) {
	c := atomic.AddInt32(&a.frames[a.index(f)].refcnt, 1)
	if c <= 0 {
		panic("mem: refup on freed frame")
	}
}

// Refdown decrements a frame's reference count, freeing it when it
// reaches zero, and reports whether the frame was freed.
func (a *Allocator) Refdown(f Frame) bool {
	idx := a.index(f)
	c := atomic.AddInt32(&a.frames[idx].refcnt, -1)
	if c < 0 {
		panic("mem: refdown on already-free frame")
	}
	if c != 0 {
		return false
	}
	// try the per-hart free list of whichever hart is releasing;
	// Refdown doesn't know the hart, so it always falls to the
	// global list to keep the API simple -- AllocContiguous and
	// Refdown are comparatively rare relative to Alloc.
	a.pushGlobal(idx)
	return true
}

// Refcnt returns a frame's current reference count.
func (a *Allocator) Refcnt(f Frame) int32 {
	return atomic.LoadInt32(&a.frames[a.index(f)].refcnt)
}

// Deref returns the kernel-addressable page backing a frame -- the
// "direct map" lookup (biscuit's Physmem.Dmap).
func (a *Allocator) Deref(f Frame) *Page {
	return a.frames[a.index(f)].page
}

// Free reports the number of currently-unallocated frames.
func (a *Allocator) Free() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.free)
}
