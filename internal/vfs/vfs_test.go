package vfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelx/internal/defs"
	"kernelx/internal/vfs"
	"kernelx/internal/vfs/tmpfs"
)

func mountedVFS(t *testing.T) *vfs.VFS {
	t.Helper()
	v := vfs.New()
	require.Zero(t, v.Mount("/", tmpfs.FileSystem{}, nil))
	return v
}

func TestMountAndLookup(t *testing.T) {
	v := mountedVFS(t)

	d, err := v.Lookup(v.Root(), "/")
	require.Zero(t, err)
	assert.Equal(t, uint32(1), d.Index().Sno)

	require.Zero(t, d.Create("file1", defs.S_IFREG|0644))

	got, err := v.Lookup(v.Root(), "/file1")
	require.Zero(t, err)
	assert.Equal(t, "file1", got.Name())
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	v := mountedVFS(t)
	root, err := v.Lookup(v.Root(), "/")
	require.Zero(t, err)

	require.Zero(t, root.Create("hello.txt", defs.S_IFREG|0644))
	d, err := v.Lookup(v.Root(), "/hello.txt")
	require.Zero(t, err)

	ino, err := d.Inode()
	require.Zero(t, err)

	_, werr := ino.WriteAt([]byte("hi there"), 0)
	require.Zero(t, werr)

	buf := make([]byte, 8)
	n, rerr := ino.ReadAt(buf, 0)
	require.Zero(t, rerr)
	assert.Equal(t, 8, n)
	assert.Equal(t, "hi there", string(buf))
}

func TestUnlinkRemovesEntry(t *testing.T) {
	v := mountedVFS(t)
	root, err := v.Lookup(v.Root(), "/")
	require.Zero(t, err)
	require.Zero(t, root.Create("doomed", defs.S_IFREG|0644))

	_, err = v.Lookup(v.Root(), "/doomed")
	require.Zero(t, err)

	require.Zero(t, root.Unlink("doomed"))

	_, err = v.Lookup(v.Root(), "/doomed")
	assert.Equal(t, -defs.ENOENT, err)
}

func TestDotDotResolvesToParent(t *testing.T) {
	v := mountedVFS(t)
	root, err := v.Lookup(v.Root(), "/")
	require.Zero(t, err)
	require.Zero(t, root.Create("sub", defs.S_IFDIR|0755))

	sub, err := v.Lookup(v.Root(), "/sub")
	require.Zero(t, err)

	back, err := sub.Lookup("..")
	require.Zero(t, err)
	assert.Equal(t, root.Index(), back.Index())
}

func TestInodeCacheEvictsUnreferenced(t *testing.T) {
	c := vfs.NewInodeCache(2)
	idx1 := vfs.Index{Sno: 1, Ino: 1}
	idx2 := vfs.Index{Sno: 1, Ino: 2}
	idx3 := vfs.Index{Sno: 1, Ino: 3}

	_, _ = c.Insert(idx1, nil)
	c.Put(idx1)
	_, _ = c.Insert(idx2, nil)
	c.Put(idx2)

	_, err := c.Insert(idx3, nil)
	require.Zero(t, err)
	c.Put(idx3)

	_, ok := c.Find(idx1)
	assert.False(t, ok)
}
