package vfs

import (
	"sync"

	"kernelx/internal/defs"
)

// Dentry is a named cache entry linking a path component to an inode,
// grounded on the original's fs/vfs/dentry.rs. Unlike the original,
// children are held with ordinary strong pointers: Go's tracing
// collector reclaims the parent<->child cycle on its own, which is
// the only reason the original needed Weak there.
type Dentry struct {
	vfs    *VFS
	index  Index
	name   string
	mu     sync.Mutex
	parent *Dentry
	children map[string]*Dentry
	mountTo  *Dentry
}

func newDentry(vfs *VFS, name string, parent *Dentry, index Index) *Dentry {
	return &Dentry{vfs: vfs, index: index, name: name, parent: parent, children: make(map[string]*Dentry)}
}

func (d *Dentry) Index() Index  { return d.index }
func (d *Dentry) Name() string  { return d.name }
func (d *Dentry) Parent() *Dentry {
	if d.parent == nil {
		return d
	}
	return d.parent
}

// inode loads this dentry's inode via the VFS cache, inserting it if
// necessary.
func (d *Dentry) inode() (Inode, defs.Errno) {
	return d.vfs.loadInode(d.index)
}

// Inode returns the inode this dentry names, loading it via the VFS
// cache if it is not already resident.
func (d *Dentry) Inode() (Inode, defs.Errno) { return d.inode() }

// GetMountTo follows the mount overlay, if one is set (idempotent:
// the overlay itself never carries a further mountTo).
func (d *Dentry) GetMountTo() *Dentry {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mountTo != nil {
		return d.mountTo
	}
	return d
}

// Lookup resolves one path component under d. "." and ".." are
// resolved textually; otherwise the children map is consulted before
// falling back to the inode's own Lookup.
func (d *Dentry) Lookup(name string) (*Dentry, defs.Errno) {
	switch name {
	case ".":
		return d, 0
	case "..":
		return d.Parent(), 0
	}

	d.mu.Lock()
	if child, ok := d.children[name]; ok {
		d.mu.Unlock()
		return child, 0
	}
	d.mu.Unlock()

	ino, err := d.inode()
	if err != 0 {
		return nil, err
	}
	childIno, err := ino.Lookup(name)
	if err != 0 {
		return nil, err
	}
	child := newDentry(d.vfs, name, d, Index{Sno: d.index.Sno, Ino: childIno})

	d.mu.Lock()
	if existing, ok := d.children[name]; ok {
		d.mu.Unlock()
		return existing, 0
	}
	d.children[name] = child
	d.mu.Unlock()
	return child, 0
}

// mount installs a mount overlay at d pointing at sb's root inode.
func (d *Dentry) mount(sb SuperBlock) *Dentry {
	overlay := newDentry(d.vfs, d.name, d.parent, Index{Sno: sb.Sno(), Ino: sb.RootIno()})
	d.mu.Lock()
	d.mountTo = overlay
	d.mu.Unlock()
	return overlay
}

// Path reconstructs the absolute path by walking parent pointers.
func (d *Dentry) Path() string {
	if d.parent == nil {
		return "/"
	}
	parent := d.parent.Path()
	if parent == "/" {
		return "/" + d.name
	}
	return parent + "/" + d.name
}

func (d *Dentry) Create(name string, mode uint32) defs.Errno {
	if _, err := d.Lookup(name); err == 0 {
		return -defs.EEXIST
	}
	target := d.GetMountTo()
	ino, err := target.inode()
	if err != 0 {
		return err
	}
	_, err = ino.Create(name, mode)
	return err
}

func (d *Dentry) Unlink(name string) defs.Errno {
	target := d.GetMountTo()
	ino, err := target.inode()
	if err != 0 {
		return err
	}
	if err := ino.Unlink(name); err != 0 {
		return err
	}
	target.mu.Lock()
	delete(target.children, name)
	target.mu.Unlock()
	return 0
}

func (d *Dentry) Rename(oldName string, newParent *Dentry, newName string) defs.Errno {
	if d.index.Sno != newParent.index.Sno {
		return -defs.EXDEV
	}
	oldIno, err := d.inode()
	if err != 0 {
		return err
	}
	newIno, err := newParent.inode()
	if err != 0 {
		return err
	}
	if err := oldIno.Rename(oldName, newIno, newName); err != 0 {
		return err
	}
	d.mu.Lock()
	delete(d.children, oldName)
	d.mu.Unlock()
	return 0
}

func (d *Dentry) Readlink() (string, defs.Errno) {
	target := d.GetMountTo()
	ino, err := target.inode()
	if err != 0 {
		return "", err
	}
	return ino.Readlink()
}
