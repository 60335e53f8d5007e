package ipc

import (
	"sync"

	"kernelx/internal/arch"
	"kernelx/internal/defs"
	"kernelx/internal/mem"
	"kernelx/internal/vm"
)

// shmSegment is one SysV shared-memory segment (design §4.12): a
// fixed vector of frames allocated once at shmget(2) time and shared,
// never COW'd, by every attacher.
type shmSegment struct {
	id               int
	key              int
	alloc            *mem.Allocator
	frames           []mem.Frame
	attachCount      int
	markedForRemoval bool
}

type attachKey struct {
	as   *vm.AddressSpace
	base uintptr
}

// ShmRegistry is the kernel-wide key->segment and id->segment table
// shmget/shmat/shmctl/shmdt operate on.
type ShmRegistry struct {
	mu      sync.Mutex
	byKey   map[int]*shmSegment
	byID    map[int]*shmSegment
	attach  map[attachKey]*shmSegment
	nextID  int
}

// Shm is the single system-wide registry, mirroring internal/proc's
// own Default process-table singleton.
var Shm = &ShmRegistry{
	byKey:  make(map[int]*shmSegment),
	byID:   make(map[int]*shmSegment),
	attach: make(map[attachKey]*shmSegment),
	nextID: 1,
}

func pagesFor(size uintptr) int {
	return int((size + mem.PageSize - 1) / mem.PageSize)
}

// Get implements shmget(2): key IPC_PRIVATE (0) always creates a new,
// unshared segment; any other key is looked up first and only
// allocated fresh under IPC_CREAT.
func (r *ShmRegistry) Get(alloc *mem.Allocator, key int, size uintptr, flags int) (int, defs.Errno) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if key != 0 {
		if seg, ok := r.byKey[key]; ok {
			if flags&defs.IPC_CREAT != 0 && flags&defs.IPC_EXCL != 0 {
				return 0, -defs.EEXIST
			}
			return seg.id, 0
		}
		if flags&defs.IPC_CREAT == 0 {
			return 0, -defs.ENOENT
		}
	}

	npages := pagesFor(size)
	if npages == 0 {
		return 0, -defs.EINVAL
	}
	frames := make([]mem.Frame, 0, npages)
	for len(frames) < npages {
		f, ok := alloc.Alloc(-1)
		if !ok {
			for _, got := range frames {
				alloc.Refdown(got)
			}
			return 0, -defs.ENOMEM
		}
		frames = append(frames, f)
	}

	seg := &shmSegment{id: r.nextID, key: key, alloc: alloc, frames: frames}
	r.nextID++
	if key != 0 {
		r.byKey[key] = seg
	}
	r.byID[seg.id] = seg
	return seg.id, 0
}

// Attach implements shmat(2): maps the segment's frame vector into as
// at a free base (or, if the design ever needs it, a fixed one --
// SHM_RND/address hints aren't modeled) with perm, recording the
// attachment so a later Detach knows how much to unmap.
func (r *ShmRegistry) Attach(as *vm.AddressSpace, id int, perm arch.Perm) (uintptr, defs.Errno) {
	r.mu.Lock()
	seg, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return 0, -defs.EINVAL
	}

	base, err := as.MMap(func(base uintptr) vm.Area {
		return vm.NewSharedMemory(as.PageTable(), as.Alloc(), base, seg.frames, perm)
	}, len(seg.frames))
	if err != 0 {
		return 0, err
	}

	r.mu.Lock()
	seg.attachCount++
	r.attach[attachKey{as, base}] = seg
	r.mu.Unlock()
	return base, 0
}

// Detach implements shmdt(2): unmaps the attachment at addr and frees
// the segment once it has both been IPC_RMID'd and has no attachments
// left (design §4.12's "segment outlives every detach until RMID
// *and* zero attaches").
func (r *ShmRegistry) Detach(as *vm.AddressSpace, addr uintptr) defs.Errno {
	r.mu.Lock()
	seg, ok := r.attach[attachKey{as, addr}]
	if !ok {
		r.mu.Unlock()
		return -defs.EINVAL
	}
	delete(r.attach, attachKey{as, addr})
	seg.attachCount--
	remove := seg.markedForRemoval && seg.attachCount == 0
	npages := len(seg.frames)
	r.mu.Unlock()

	if err := as.Munmap(addr, npages); err != 0 {
		return err
	}
	if remove {
		r.mu.Lock()
		r.free(seg)
		r.mu.Unlock()
	}
	return 0
}

// Ctl implements the subset of shmctl(2) this kernel models: IPC_RMID
// marks the segment for removal (immediately if already unattached).
// IPC_STAT/IPC_SET are accepted as ENOSYS -- nothing in this design
// tracks the permission/owner bits a real struct shmid_ds carries.
func (r *ShmRegistry) Ctl(id int, cmd int) defs.Errno {
	r.mu.Lock()
	defer r.mu.Unlock()
	seg, ok := r.byID[id]
	if !ok {
		return -defs.EINVAL
	}
	switch cmd {
	case defs.IPC_RMID:
		seg.markedForRemoval = true
		delete(r.byKey, seg.key)
		if seg.attachCount == 0 {
			r.free(seg)
		}
		return 0
	default:
		return -defs.ENOSYS
	}
}

// free releases every frame backing seg. Called with r.mu held.
func (r *ShmRegistry) free(seg *shmSegment) {
	delete(r.byID, seg.id)
	for _, f := range seg.frames {
		seg.alloc.Refdown(f)
	}
}
