package file

import (
	"sync"

	"kernelx/internal/defs"
)

type fdEntry struct {
	file    FileOps
	cloexec bool
}

// FDTable is a per-process map fd -> (OpenFile, flags), grounded on
// biscuit's Fd_t/Copyfd but generalized to FileOps and to the explicit
// get/push/set/close/fork/cloexec surface design §4.5 names.
type FDTable struct {
	mu      sync.Mutex
	entries []*fdEntry
}

// NewFDTable returns an empty table with a small default capacity.
func NewFDTable() *FDTable {
	return &FDTable{entries: make([]*fdEntry, 0, 16)}
}

// Get returns the FileOps registered at fd.
func (t *FDTable) Get(fd int) (FileOps, defs.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.entries) || t.entries[fd] == nil {
		return nil, -defs.EBADF
	}
	return t.entries[fd].file, 0
}

// Push installs f at the lowest-numbered free fd.
func (t *FDTable) Push(f FileOps, cloexec bool) (int, defs.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e == nil {
			t.entries[i] = &fdEntry{file: f, cloexec: cloexec}
			return i, 0
		}
	}
	if len(t.entries) >= defs.FD_MAX {
		return 0, -defs.EMFILE
	}
	t.entries = append(t.entries, &fdEntry{file: f, cloexec: cloexec})
	return len(t.entries) - 1, 0
}

// Set installs f at an explicit fd, replacing (and closing) whatever
// was there, growing the table if necessary.
func (t *FDTable) Set(fd int, f FileOps, cloexec bool) defs.Errno {
	if fd < 0 || fd >= defs.FD_MAX {
		return -defs.EBADF
	}
	t.mu.Lock()
	if fd >= len(t.entries) {
		grown := make([]*fdEntry, fd+1)
		copy(grown, t.entries)
		t.entries = grown
	}
	old := t.entries[fd]
	t.entries[fd] = &fdEntry{file: f, cloexec: cloexec}
	t.mu.Unlock()
	if old != nil {
		old.file.Close()
	}
	return 0
}

// Close removes and closes the descriptor at fd.
func (t *FDTable) Close(fd int) defs.Errno {
	t.mu.Lock()
	if fd < 0 || fd >= len(t.entries) || t.entries[fd] == nil {
		t.mu.Unlock()
		return -defs.EBADF
	}
	e := t.entries[fd]
	t.entries[fd] = nil
	t.mu.Unlock()
	return e.file.Close()
}

// SetCloexec updates the close-on-exec flag for fd.
func (t *FDTable) SetCloexec(fd int, cloexec bool) defs.Errno {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.entries) || t.entries[fd] == nil {
		return -defs.EBADF
	}
	t.entries[fd].cloexec = cloexec
	return 0
}

// Fork deep-clones the descriptor vector but shallow-clones each
// entry: the child shares the same FileOps (and thus seek position)
// as the parent until one of them execs or closes it (design §4.5).
func (t *FDTable) Fork() *FDTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	nt := &FDTable{entries: make([]*fdEntry, len(t.entries))}
	for i, e := range t.entries {
		if e == nil {
			continue
		}
		cp := *e
		nt.entries[i] = &cp
	}
	return nt
}

// Cloexec closes every descriptor marked close-on-exec, called on a
// successful exec (design §4.6).
func (t *FDTable) Cloexec() {
	t.mu.Lock()
	var toClose []FileOps
	for i, e := range t.entries {
		if e != nil && e.cloexec {
			toClose = append(toClose, e.file)
			t.entries[i] = nil
		}
	}
	t.mu.Unlock()
	for _, f := range toClose {
		f.Close()
	}
}
