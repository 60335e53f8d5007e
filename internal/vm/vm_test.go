package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelx/internal/arch"
	"kernelx/internal/mem"
)

func newTestAlloc(t *testing.T) *mem.Allocator {
	t.Helper()
	return mem.New(mem.Frame(0x1000), 4096, 1)
}

func TestAddressSpaceAnonReadWrite(t *testing.T) {
	alloc := newTestAlloc(t)
	as, err := New(alloc)
	require.Zero(t, err)

	base, err := as.MMap(func(base uintptr) Area {
		return NewAnonymous(alloc, base, 4, arch.PteR|arch.PteW)
	}, 4)
	require.Zero(t, err)

	err = as.K2User(base+10, []byte("hello"))
	require.Zero(t, err)

	got := make([]byte, 5)
	err = as.User2K(got, base+10)
	require.Zero(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestManagerFindMmapBaseSkipsExisting(t *testing.T) {
	alloc := newTestAlloc(t)
	m := NewManager(alloc, UserMapBase, StackTop-uintptr(StackMaxPage)*mem.PageSize, BrkBase, BrkCap)

	b1, ok := m.FindMmapBase(2)
	require.True(t, ok)
	assert.Equal(t, UserMapBase, b1)
	m.MapArea(b1, NewAnonymous(alloc, b1, 2, arch.PteR|arch.PteW))

	b2, ok := m.FindMmapBase(3)
	require.True(t, ok)
	assert.Equal(t, b1+2*mem.PageSize, b2)
}

func TestMapAreaFixedSplitsInterior(t *testing.T) {
	alloc := newTestAlloc(t)
	as, err := New(alloc)
	require.Zero(t, err)

	base := UserMapBase
	as.areas.MapArea(base, NewAnonymous(alloc, base, 10, arch.PteR|arch.PteW))

	hole := base + 3*mem.PageSize
	as.MMapFixed(hole, NewAnonymous(alloc, hole, 2, arch.PteR|arch.PteW))

	left := as.areas.areaAt(base)
	require.NotNil(t, left)
	assert.Equal(t, 3, left.Pages())

	mid := as.areas.areaAt(hole)
	require.NotNil(t, mid)
	assert.Equal(t, 2, mid.Pages())

	right := as.areas.areaAt(hole + 2*mem.PageSize)
	require.NotNil(t, right)
	assert.Equal(t, 5, right.Pages())
}

func TestForkCOWSharesUntilWrite(t *testing.T) {
	alloc := newTestAlloc(t)
	parent, err := New(alloc)
	require.Zero(t, err)

	base, err := parent.MMap(func(base uintptr) Area {
		return NewAnonymous(alloc, base, 1, arch.PteR|arch.PteW)
	}, 1)
	require.Zero(t, err)
	require.Zero(t, parent.K2User(base, []byte("parent-data")))

	childAlloc := alloc
	child, err := parent.Fork(childAlloc)
	require.Zero(t, err)

	got := make([]byte, len("parent-data"))
	require.Zero(t, child.User2K(got, base))
	assert.Equal(t, "parent-data", string(got))

	require.Zero(t, child.K2User(base, []byte("child-data!!")))

	parentGot := make([]byte, len("parent-data"))
	require.Zero(t, parent.User2K(parentGot, base))
	assert.Equal(t, "parent-data", string(parentGot))

	childGot := make([]byte, len("child-data!!"))
	require.Zero(t, child.User2K(childGot, base))
	assert.Equal(t, "child-data!!", string(childGot))
}

func TestGrowBrk(t *testing.T) {
	alloc := newTestAlloc(t)
	as, err := New(alloc)
	require.Zero(t, err)

	nb, err := as.GrowBrk(BrkBase + 2*mem.PageSize)
	require.Zero(t, err)
	assert.Equal(t, BrkBase+2*mem.PageSize, nb)

	require.Zero(t, as.K2User(BrkBase, []byte("heap")))

	nb2, err := as.GrowBrk(BrkBase + 8*mem.PageSize)
	require.Zero(t, err)
	assert.Equal(t, BrkBase+8*mem.PageSize, nb2)

	got := make([]byte, 4)
	require.Zero(t, as.User2K(got, BrkBase))
	assert.Equal(t, "heap", string(got))

	_, err = as.GrowBrk(BrkBase + BrkCap + mem.PageSize)
	assert.NotZero(t, err)
}

func TestUserStackInitLayout(t *testing.T) {
	alloc := newTestAlloc(t)
	as, err := New(alloc)
	require.Zero(t, err)

	sp, err := UserStackInit(as, []string{"/init", "arg1"}, []string{"HOME=/"}, []AuxVal{{Key: AtPagesz, Val: mem.PageSize}})
	require.Zero(t, err)
	assert.True(t, sp < StackTop)
	assert.Zero(t, sp%16)

	var argcBuf [8]byte
	require.Zero(t, as.User2K(argcBuf[:], sp))
	argc := uint64(argcBuf[0]) | uint64(argcBuf[1])<<8 | uint64(argcBuf[2])<<16 | uint64(argcBuf[3])<<24
	assert.Equal(t, uint64(2), argc)
}
