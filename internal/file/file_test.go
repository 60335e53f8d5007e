package file_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelx/internal/defs"
	"kernelx/internal/file"
	"kernelx/internal/vfs"
	"kernelx/internal/vfs/tmpfs"
)

func mountedRoot(t *testing.T) *vfs.Dentry {
	t.Helper()
	v := vfs.New()
	require.Zero(t, v.Mount("/", tmpfs.FileSystem{}, nil))
	root, err := v.Lookup(v.Root(), "/")
	require.Zero(t, err)
	return root
}

func openTestFile(t *testing.T, name string) *file.OpenFile {
	t.Helper()
	root := mountedRoot(t)
	require.Zero(t, root.Create(name, defs.S_IFREG|0644))
	d, err := root.Lookup(name)
	require.Zero(t, err)
	ino, err := d.Inode()
	require.Zero(t, err)
	return file.NewOpenFile(ino, d, true, true)
}

func TestOpenFileReadWriteAdvancesPosition(t *testing.T) {
	f := openTestFile(t, "a")

	n, err := f.Write([]byte("hello"))
	require.Zero(t, err)
	assert.Equal(t, 5, n)

	pos, err := f.Seek(0, defs.SEEK_SET)
	require.Zero(t, err)
	assert.Equal(t, int64(0), pos)

	buf := make([]byte, 5)
	n, err = f.Read(buf)
	require.Zero(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

func TestOpenFileSeekRejectsNegative(t *testing.T) {
	f := openTestFile(t, "b")
	_, err := f.Seek(-1, defs.SEEK_SET)
	assert.Equal(t, -defs.EINVAL, err)
}

func TestOpenFilePreadPwriteBypassPosition(t *testing.T) {
	f := openTestFile(t, "c")
	_, err := f.Pwrite([]byte("xyz"), 10)
	require.Zero(t, err)

	buf := make([]byte, 3)
	n, err := f.Pread(buf, 10)
	require.Zero(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "xyz", string(buf))

	pos, err := f.Seek(0, defs.SEEK_CUR)
	require.Zero(t, err)
	assert.Equal(t, int64(0), pos)
}

func TestOpenFileReadOnlyRejectsWrite(t *testing.T) {
	root := mountedRoot(t)
	require.Zero(t, root.Create("ro", defs.S_IFREG|0644))
	d, err := root.Lookup("ro")
	require.Zero(t, err)
	ino, err := d.Inode()
	require.Zero(t, err)

	f := file.NewOpenFile(ino, d, true, false)
	_, werr := f.Write([]byte("x"))
	assert.Equal(t, -defs.EBADF, werr)
}

func TestFDTablePushGetClose(t *testing.T) {
	tbl := file.NewFDTable()
	f := openTestFile(t, "d")

	fd, err := tbl.Push(f, false)
	require.Zero(t, err)
	assert.Equal(t, 0, fd)

	got, err := tbl.Get(fd)
	require.Zero(t, err)
	assert.Equal(t, FileOps(f), got)

	require.Zero(t, tbl.Close(fd))
	_, err = tbl.Get(fd)
	assert.Equal(t, -defs.EBADF, err)
}

// FileOps is a local alias so the test file doesn't need to import the
// package twice under different names.
type FileOps = file.FileOps

func TestFDTablePushReusesLowestFreeSlot(t *testing.T) {
	tbl := file.NewFDTable()
	f1 := openTestFile(t, "e1")
	f2 := openTestFile(t, "e2")
	f3 := openTestFile(t, "e3")

	fd1, _ := tbl.Push(f1, false)
	fd2, _ := tbl.Push(f2, false)
	require.Zero(t, tbl.Close(fd1))

	fd3, err := tbl.Push(f3, false)
	require.Zero(t, err)
	assert.Equal(t, fd1, fd3)
	assert.NotEqual(t, fd2, fd3)
}

func TestFDTableForkSharesEntriesShallowly(t *testing.T) {
	tbl := file.NewFDTable()
	f := openTestFile(t, "g")
	fd, _ := tbl.Push(f, false)

	child := tbl.Fork()
	f.Seek(3, defs.SEEK_SET)

	got, err := child.Get(fd)
	require.Zero(t, err)
	pos, serr := got.Seek(0, defs.SEEK_CUR)
	require.Zero(t, serr)
	assert.Equal(t, int64(3), pos)
}

func TestFDTableCloexecClosesMarkedOnly(t *testing.T) {
	tbl := file.NewFDTable()
	fKeep := openTestFile(t, "keep")
	fDrop := openTestFile(t, "drop")

	fdKeep, _ := tbl.Push(fKeep, false)
	fdDrop, _ := tbl.Push(fDrop, true)

	tbl.Cloexec()

	_, err := tbl.Get(fdKeep)
	assert.Zero(t, err)
	_, err = tbl.Get(fdDrop)
	assert.Equal(t, -defs.EBADF, err)
}
