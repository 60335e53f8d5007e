package vfs

import (
	"strings"
	"sync"

	"kernelx/internal/defs"
)

// bootSuperBlock is the sno-0 bootstrap filesystem: a single inode
// that fails every operation, existing only to host the real root's
// mount point (design §4.4, grounded on the original's rootfs.rs).
type bootSuperBlock struct{ sno uint32 }

type bootInode struct{ sno uint32 }

func (i *bootInode) Sno() uint32                                { return i.sno }
func (i *bootInode) Ino() uint64                                { return 0 }
func (i *bootInode) ReadAt([]byte, int64) (int, defs.Errno)     { return 0, -defs.ENOENT }
func (i *bootInode) WriteAt([]byte, int64) (int, defs.Errno)    { return 0, -defs.ENOENT }
func (i *bootInode) Lookup(string) (uint64, defs.Errno)         { return 0, -defs.ENOENT }
func (i *bootInode) Create(string, uint32) (uint64, defs.Errno) { return 0, -defs.ENOENT }
func (i *bootInode) Link(string, Inode) defs.Errno              { return -defs.ENOENT }
func (i *bootInode) Unlink(string) defs.Errno                   { return -defs.ENOENT }
func (i *bootInode) Rename(string, Inode, string) defs.Errno    { return -defs.ENOENT }
func (i *bootInode) Readlink() (string, defs.Errno)             { return "", -defs.ENOENT }
func (i *bootInode) Fstat() (Stat, defs.Errno)                  { return Stat{}, -defs.ENOENT }
func (i *bootInode) Mode() uint32                               { return 0 }
func (i *bootInode) Owner() (uint32, uint32)                    { return 0, 0 }
func (i *bootInode) Truncate(int64) defs.Errno                  { return -defs.ENOENT }
func (i *bootInode) UpdateAtime()                               {}
func (i *bootInode) UpdateMtime()                               {}
func (i *bootInode) UpdateCtime()                               {}
func (i *bootInode) GetDent(int) (DirResult, bool)              { return DirResult{}, false }
func (i *bootInode) Sync() defs.Errno                           { return 0 }

func (sb *bootSuperBlock) Sno() uint32                          { return sb.sno }
func (sb *bootSuperBlock) RootIno() uint64                      { return 0 }
func (sb *bootSuperBlock) GetInode(uint64) (Inode, defs.Errno)  { return &bootInode{sno: sb.sno}, 0 }
func (sb *bootSuperBlock) CreateTemp(uint32) (Inode, defs.Errno) { return nil, -defs.ENOENT }
func (sb *bootSuperBlock) Unmount() defs.Errno                  { return 0 }
func (sb *bootSuperBlock) Sync() defs.Errno                     { return 0 }

// VFS is the top-level virtual filesystem: the inode cache, the
// superblock table, the mount registry and the global root dentry
// (design §4.4).
type VFS struct {
	cache *InodeCache

	mu    sync.Mutex
	supers []SuperBlock
	mounts []*Dentry // overlay dentries installed by Mount; appended to, never read back

	root *Dentry
}

// New bootstraps sno 0 with the rootfs stub and returns the global
// root dentry.
func New() *VFS {
	v := &VFS{cache: NewInodeCache(DefaultCacheSize)}
	boot := &bootSuperBlock{sno: 0}
	v.supers = append(v.supers, boot)
	v.root = newDentry(v, "/", nil, Index{Sno: 0, Ino: 0})
	return v
}

func (v *VFS) Root() *Dentry { return v.root }

func (v *VFS) loadInode(idx Index) (Inode, defs.Errno) {
	if ino, ok := v.cache.Find(idx); ok {
		return ino, 0
	}
	v.mu.Lock()
	if int(idx.Sno) >= len(v.supers) {
		v.mu.Unlock()
		return nil, -defs.ENOENT
	}
	sb := v.supers[idx.Sno]
	v.mu.Unlock()
	ino, err := sb.GetInode(idx.Ino)
	if err != 0 {
		return nil, err
	}
	return v.cache.Insert(idx, ino)
}

// Lookup resolves path starting at start (or the global root, for an
// absolute path), following mount overlays at every dentry boundary
// (design §4.4).
func (v *VFS) Lookup(start *Dentry, path string) (*Dentry, defs.Errno) {
	cur := start
	if strings.HasPrefix(path, "/") {
		cur = v.root
	}
	for _, comp := range strings.Split(path, "/") {
		if comp == "" {
			continue
		}
		cur = cur.GetMountTo()
		next, err := cur.Lookup(comp)
		if err != 0 {
			return nil, err
		}
		cur = next
	}
	return cur.GetMountTo(), 0
}

// Mount loads the dentry at path, allocates a fresh sno, asks fs to
// create the superblock, and installs a mount overlay (design §4.4).
func (v *VFS) Mount(path string, fs FileSystem, dev BlockDevice) defs.Errno {
	target, err := v.Lookup(v.root, path)
	if err != 0 {
		return err
	}

	v.mu.Lock()
	sno := uint32(len(v.supers))
	v.mu.Unlock()

	sb, err := fs.Create(sno, dev)
	if err != 0 {
		return err
	}

	v.mu.Lock()
	v.supers = append(v.supers, sb)
	v.mu.Unlock()

	overlay := target.mount(sb)
	v.mu.Lock()
	v.mounts = append(v.mounts, overlay)
	v.mu.Unlock()
	return 0
}

// UnmountAll calls Unmount on every mounted superblock (design §4.4).
func (v *VFS) UnmountAll() defs.Errno {
	v.mu.Lock()
	supers := append([]SuperBlock(nil), v.supers...)
	v.mu.Unlock()
	for _, sb := range supers {
		if err := sb.Unmount(); err != 0 {
			return err
		}
	}
	return 0
}

// Sync flushes the inode cache.
func (v *VFS) Sync() defs.Errno { return v.cache.Sync() }

// CreateTemp implements O_TMPFILE: an unnamed inode of mode created
// directly via dirDentry's superblock, never installed as a directory
// entry (design §4.4).
func (v *VFS) CreateTemp(dirDentry *Dentry, mode uint32) (Inode, defs.Errno) {
	target := dirDentry.GetMountTo()
	v.mu.Lock()
	if int(target.index.Sno) >= len(v.supers) {
		v.mu.Unlock()
		return nil, -defs.ENOENT
	}
	sb := v.supers[target.index.Sno]
	v.mu.Unlock()
	return sb.CreateTemp(mode)
}
