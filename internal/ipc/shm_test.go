package ipc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelx/internal/arch"
	"kernelx/internal/defs"
	"kernelx/internal/ipc"
	"kernelx/internal/vm"
)

func TestShmGetCreateAndAttachShareFrames(t *testing.T) {
	alloc := newAlloc(t)
	id, err := ipc.Shm.Get(alloc, 0, 8192, defs.IPC_CREAT)
	require.Zero(t, err)
	require.NotZero(t, id)

	asA, verr := vm.New(alloc)
	require.Zero(t, verr)
	asB, verr := vm.New(alloc)
	require.Zero(t, verr)

	baseA, aerr := ipc.Shm.Attach(asA, id, arch.PteR|arch.PteW|arch.PteU)
	require.Zero(t, aerr)
	baseB, aerr := ipc.Shm.Attach(asB, id, arch.PteR|arch.PteW|arch.PteU)
	require.Zero(t, aerr)

	require.Zero(t, asA.K2User(baseA, []byte("shared")))
	got := make([]byte, 6)
	require.Zero(t, asB.User2K(got, baseB))
	assert.Equal(t, "shared", string(got))

	assert.Zero(t, ipc.Shm.Detach(asA, baseA))
	assert.Zero(t, ipc.Shm.Detach(asB, baseB))
	assert.Zero(t, ipc.Shm.Ctl(id, defs.IPC_RMID))
}

func TestShmGetWithSameKeyReturnsSameSegment(t *testing.T) {
	alloc := newAlloc(t)
	const key = 0x4242

	id1, err := ipc.Shm.Get(alloc, key, 4096, defs.IPC_CREAT)
	require.Zero(t, err)

	id2, err := ipc.Shm.Get(alloc, key, 4096, defs.IPC_CREAT)
	require.Zero(t, err)
	assert.Equal(t, id1, id2)

	_, err = ipc.Shm.Get(alloc, key, 4096, defs.IPC_CREAT|defs.IPC_EXCL)
	assert.Equal(t, -defs.EEXIST, err)

	require.Zero(t, ipc.Shm.Ctl(id1, defs.IPC_RMID))
}

func TestShmGetWithoutCreateOnMissingKeyReturnsENOENT(t *testing.T) {
	alloc := newAlloc(t)
	_, err := ipc.Shm.Get(alloc, 0x9999, 4096, 0)
	assert.Equal(t, -defs.ENOENT, err)
}

func TestShmCtlRmidFreesUnattachedSegment(t *testing.T) {
	alloc := newAlloc(t)
	id, err := ipc.Shm.Get(alloc, 0, 4096, defs.IPC_CREAT)
	require.Zero(t, err)

	require.Zero(t, ipc.Shm.Ctl(id, defs.IPC_RMID))

	as, verr := vm.New(alloc)
	require.Zero(t, verr)
	_, aerr := ipc.Shm.Attach(as, id, arch.PteR|arch.PteU)
	assert.Equal(t, -defs.EINVAL, aerr, "segment should be gone once RMID'd with no attachments")
}
