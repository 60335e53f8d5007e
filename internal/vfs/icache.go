package vfs

import (
	"sync"

	"kernelx/internal/defs"
	"kernelx/internal/klog"
)

// DefaultCacheSize bounds the inode cache before Insert starts
// evicting entries referenced only by the cache itself.
const DefaultCacheSize = 4096

type cacheEntry struct {
	inode Inode
	refs  int32 // 1 == held only by the cache itself
}

// InodeCache maps (sno,ino) to a refcounted Inode, grounded on the
// original's fs/inode/cache.rs and fs/inode/manager.rs merged into one
// type: Go's GC does not give us Arc's live strong-count for free, so
// Get/Put explicitly track it instead of relying on Weak-upgrade
// failure to notice eviction.
type InodeCache struct {
	mu    sync.Mutex
	cap   int
	table map[Index]*cacheEntry
}

func NewInodeCache(cap int) *InodeCache {
	if cap <= 0 {
		cap = DefaultCacheSize
	}
	return &InodeCache{cap: cap, table: make(map[Index]*cacheEntry)}
}

// Find returns a held reference to the cached inode at idx, if any.
// Callers must Put it back when done.
func (c *InodeCache) Find(idx Index) (Inode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.table[idx]
	if !ok {
		return nil, false
	}
	e.refs++
	return e.inode, true
}

// Insert adds inode, held once by the cache and once by the caller.
// Above the cache cap, entries referenced only by the cache (refs==1)
// are evicted first; if that still doesn't make room, ENOMEM.
func (c *InodeCache) Insert(idx Index, inode Inode) (Inode, defs.Errno) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.table[idx]; ok {
		e.refs++
		return e.inode, 0
	}
	if len(c.table) >= c.cap {
		before := len(c.table)
		for k, e := range c.table {
			if e.refs <= 1 {
				delete(c.table, k)
			}
		}
		klog.VFS.WithField("evicted", before-len(c.table)).Info("inode cache eviction")
		if len(c.table) >= c.cap {
			return nil, -defs.ENOMEM
		}
	}
	c.table[idx] = &cacheEntry{inode: inode, refs: 2}
	return inode, 0
}

// Put releases one reference; when the only remaining holder is the
// cache table itself the entry stays resident until an eviction pass
// reclaims it.
func (c *InodeCache) Put(idx Index) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.table[idx]; ok && e.refs > 0 {
		e.refs--
	}
}

// Sync invokes Sync on every cached inode.
func (c *InodeCache) Sync() defs.Errno {
	c.mu.Lock()
	entries := make([]Inode, 0, len(c.table))
	for _, e := range c.table {
		entries = append(entries, e.inode)
	}
	c.mu.Unlock()
	for _, ino := range entries {
		if err := ino.Sync(); err != 0 {
			return err
		}
	}
	return 0
}
