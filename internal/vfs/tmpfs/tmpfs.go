// Package tmpfs is an in-memory filesystem: the rootfs mounted over
// the VFS bootstrap superblock, and a stand-in backing store for
// tests throughout the tree. Grounded on the original implementation's
// fs/tmpfs/{inode,superblock}.rs, reworked so that file content lives
// in ordinary Go byte slices rather than a page vector -- there is no
// separate kernel page cache to integrate with here, unlike the
// original's PhysPageFrame-backed pages.
package tmpfs

import (
	"sort"
	"sync"
	"time"

	"kernelx/internal/defs"
	"kernelx/internal/vfs"
)

type meta struct {
	mu    sync.Mutex
	mode  uint32
	uid   uint32
	gid   uint32
	atime int64
	mtime int64
	ctime int64
	dir   map[string]uint64 // nil for regular files
	data  []byte
}

func now() int64 { return time.Now().Unix() }

// Inode adapts one tmpfs entry to vfs.Inode.
type Inode struct {
	ino uint64
	sno uint32
	sb  *SuperBlock
	m   *meta
}

func (i *Inode) Sno() uint32 { return i.sno }
func (i *Inode) Ino() uint64 { return i.ino }

func (i *Inode) ReadAt(buf []byte, off int64) (int, defs.Errno) {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	if i.m.dir != nil {
		return 0, -defs.EISDIR
	}
	if off >= int64(len(i.m.data)) {
		return 0, 0
	}
	n := copy(buf, i.m.data[off:])
	return n, 0
}

func (i *Inode) WriteAt(buf []byte, off int64) (int, defs.Errno) {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	if i.m.dir != nil {
		return 0, -defs.EISDIR
	}
	need := off + int64(len(buf))
	if need > int64(len(i.m.data)) {
		grown := make([]byte, need)
		copy(grown, i.m.data)
		i.m.data = grown
	}
	copy(i.m.data[off:], buf)
	i.m.mtime = now()
	return len(buf), 0
}

func (i *Inode) Lookup(name string) (uint64, defs.Errno) {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	if i.m.dir == nil {
		return 0, -defs.ENOTDIR
	}
	ino, ok := i.m.dir[name]
	if !ok {
		return 0, -defs.ENOENT
	}
	return ino, 0
}

func (i *Inode) Create(name string, mode uint32) (uint64, defs.Errno) {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	if i.m.dir == nil {
		return 0, -defs.ENOTDIR
	}
	if _, ok := i.m.dir[name]; ok {
		return 0, -defs.EEXIST
	}
	ino := i.sb.allocInode(mode)
	i.m.dir[name] = ino
	return ino, 0
}

func (i *Inode) Link(name string, target vfs.Inode) defs.Errno {
	t, ok := target.(*Inode)
	if !ok || t.sno != i.sno {
		return -defs.EXDEV
	}
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	if i.m.dir == nil {
		return -defs.ENOTDIR
	}
	if _, ok := i.m.dir[name]; ok {
		return -defs.EEXIST
	}
	i.m.dir[name] = t.ino
	return 0
}

func (i *Inode) Unlink(name string) defs.Errno {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	if i.m.dir == nil {
		return -defs.ENOTDIR
	}
	ino, ok := i.m.dir[name]
	if !ok {
		return -defs.ENOENT
	}
	delete(i.m.dir, name)
	i.sb.releaseInode(ino)
	return 0
}

func (i *Inode) Rename(oldName string, newParent vfs.Inode, newName string) defs.Errno {
	np, ok := newParent.(*Inode)
	if !ok || np.sno != i.sno {
		return -defs.EXDEV
	}
	i.m.mu.Lock()
	if i.m.dir == nil {
		i.m.mu.Unlock()
		return -defs.ENOTDIR
	}
	ino, ok := i.m.dir[oldName]
	if !ok {
		i.m.mu.Unlock()
		return -defs.ENOENT
	}
	delete(i.m.dir, oldName)
	i.m.mu.Unlock()

	if np == i {
		i.m.mu.Lock()
		i.m.dir[newName] = ino
		i.m.mu.Unlock()
		return 0
	}
	np.m.mu.Lock()
	np.m.dir[newName] = ino
	np.m.mu.Unlock()
	return 0
}

func (i *Inode) Readlink() (string, defs.Errno) { return "", -defs.EINVAL }

func (i *Inode) Fstat() (vfs.Stat, defs.Errno) {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	size := int64(len(i.m.data))
	if i.m.dir != nil {
		size = 4096
	}
	return vfs.Stat{
		Ino: i.ino, Mode: i.m.mode, Nlink: 1, Size: size,
		Atime: i.m.atime, Mtime: i.m.mtime, Ctime: i.m.ctime,
		Uid: i.m.uid, Gid: i.m.gid,
	}, 0
}

func (i *Inode) Mode() uint32 {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	return i.m.mode
}

func (i *Inode) Owner() (uint32, uint32) {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	return i.m.uid, i.m.gid
}

func (i *Inode) Truncate(size int64) defs.Errno {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	if i.m.dir != nil {
		return -defs.EISDIR
	}
	if size < 0 {
		return -defs.EINVAL
	}
	if size <= int64(len(i.m.data)) {
		i.m.data = i.m.data[:size]
		return 0
	}
	grown := make([]byte, size)
	copy(grown, i.m.data)
	i.m.data = grown
	return 0
}

func (i *Inode) UpdateAtime() { i.m.mu.Lock(); i.m.atime = now(); i.m.mu.Unlock() }
func (i *Inode) UpdateMtime() { i.m.mu.Lock(); i.m.mtime = now(); i.m.mu.Unlock() }
func (i *Inode) UpdateCtime() { i.m.mu.Lock(); i.m.ctime = now(); i.m.mu.Unlock() }

func (i *Inode) GetDent(index int) (vfs.DirResult, bool) {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	if i.m.dir == nil || index < 0 || index >= len(i.m.dir) {
		return vfs.DirResult{}, false
	}
	names := make([]string, 0, len(i.m.dir))
	for n := range i.m.dir {
		names = append(names, n)
	}
	sort.Strings(names)
	name := names[index]
	return vfs.DirResult{Name: name, Ino: i.m.dir[name], Mode: defs.S_IFREG}, true
}

func (i *Inode) Sync() defs.Errno { return 0 }

// SuperBlock is one tmpfs mount instance.
type SuperBlock struct {
	sno     uint32
	mu      sync.Mutex
	inodes  map[uint64]*meta
	next    uint64
	unmounted bool
}

func (sb *SuperBlock) Sno() uint32     { return sb.sno }
func (sb *SuperBlock) RootIno() uint64 { return 1 }

func (sb *SuperBlock) allocInode(mode uint32) uint64 {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	ino := sb.next
	sb.next++
	m := &meta{mode: mode, mtime: now(), ctime: now(), atime: now()}
	if mode&defs.S_IFMT == defs.S_IFDIR {
		m.dir = make(map[string]uint64)
	}
	sb.inodes[ino] = m
	return ino
}

func (sb *SuperBlock) releaseInode(ino uint64) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	delete(sb.inodes, ino)
}

func (sb *SuperBlock) GetInode(ino uint64) (vfs.Inode, defs.Errno) {
	sb.mu.Lock()
	m, ok := sb.inodes[ino]
	sb.mu.Unlock()
	if !ok {
		return nil, -defs.ENOENT
	}
	return &Inode{ino: ino, sno: sb.sno, sb: sb, m: m}, 0
}

func (sb *SuperBlock) CreateTemp(mode uint32) (vfs.Inode, defs.Errno) {
	ino := sb.allocInode(mode &^ defs.S_IFMT | defs.S_IFREG)
	return sb.GetInode(ino)
}

func (sb *SuperBlock) Unmount() defs.Errno {
	sb.mu.Lock()
	sb.unmounted = true
	sb.mu.Unlock()
	return 0
}

func (sb *SuperBlock) Sync() defs.Errno { return 0 }

// FileSystem is the tmpfs FileSystem factory.
type FileSystem struct{}

func (FileSystem) Create(sno uint32, dev vfs.BlockDevice) (vfs.SuperBlock, defs.Errno) {
	sb := &SuperBlock{sno: sno, inodes: make(map[uint64]*meta)}
	rootMeta := &meta{mode: defs.S_IFDIR | 0755, dir: make(map[string]uint64), mtime: now(), ctime: now(), atime: now()}
	sb.inodes[1] = rootMeta
	sb.next = 2
	return sb, 0
}
