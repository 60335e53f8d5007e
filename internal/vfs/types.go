// Package vfs implements the VFS core of design §4.4: the inode
// cache, the dentry tree with mount overlays, the superblock table,
// and pathname resolution. It is grounded on the original
// implementation's fs/vfs and fs/inode modules (dentry.rs, vfs.rs,
// superblock_table.rs, inode/cache.rs, inode/manager.rs), reworked as
// Go interfaces plus manually refcounted cache entries in place of
// Arc/Weak -- Go's tracing collector already reclaims the
// parent/child dentry cycle the original needed Weak children to
// avoid, so only the inode cache's own entry lifetime needs explicit
// counting.
package vfs

import "kernelx/internal/defs"

// Index identifies an inode uniquely and stably for its lifetime
// (design §3: "(sno,ino) is stable for the inode's lifetime").
type Index struct {
	Sno uint32
	Ino uint64
}

// Stat is the fstat(2) result shape every Inode can produce.
type Stat struct {
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	Size    int64
	Blocks  int64
	Atime   int64
	Mtime   int64
	Ctime   int64
	Uid     uint32
	Gid     uint32
	Rdev    uint64
}

// DirResult is one directory entry returned by get_dent.
type DirResult struct {
	Name string
	Ino  uint64
	Mode uint32
}

// Inode is the per-filesystem object design §3 describes.
type Inode interface {
	Sno() uint32
	Ino() uint64

	ReadAt(buf []byte, off int64) (int, defs.Errno)
	WriteAt(buf []byte, off int64) (int, defs.Errno)

	Lookup(name string) (uint64, defs.Errno)
	Create(name string, mode uint32) (uint64, defs.Errno)
	Link(name string, target Inode) defs.Errno
	Unlink(name string) defs.Errno
	Rename(oldName string, newParent Inode, newName string) defs.Errno
	Readlink() (string, defs.Errno)

	Fstat() (Stat, defs.Errno)
	Mode() uint32
	Owner() (uid, gid uint32)
	Truncate(size int64) defs.Errno

	UpdateAtime()
	UpdateMtime()
	UpdateCtime()

	GetDent(index int) (DirResult, bool)

	Sync() defs.Errno
}

// SuperBlock is one mounted filesystem instance, identified by the sno
// assigned to it at mount time (design §3/§6).
type SuperBlock interface {
	Sno() uint32
	RootIno() uint64
	GetInode(ino uint64) (Inode, defs.Errno)
	// CreateTemp returns a freshly allocated, unnamed inode for
	// O_TMPFILE: the caller opens it without installing a directory
	// entry (design §4.4).
	CreateTemp(mode uint32) (Inode, defs.Errno)
	Unmount() defs.Errno
	Sync() defs.Errno
}

// FileSystem produces a SuperBlock for a fresh mount (design §6).
type FileSystem interface {
	Create(sno uint32, dev BlockDevice) (SuperBlock, defs.Errno)
}

// BlockDevice is the block-device capability surface design §6 lists,
// consumed by on-disk filesystems (e.g. ext4).
type BlockDevice interface {
	ReadBlocks(blockID int64, buf []byte) defs.Errno
	WriteBlocks(blockID int64, buf []byte) defs.Errno
	GetBlockSize() int
	GetBlockCount() int64
	Flush() defs.Errno
}
