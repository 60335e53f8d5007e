package ipc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelx/internal/defs"
	"kernelx/internal/file"
	"kernelx/internal/ipc"
	"kernelx/internal/limits"
	"kernelx/internal/mem"
)

func newAlloc(t *testing.T) *mem.Allocator {
	t.Helper()
	return mem.New(mem.Frame(1), 4096, 1)
}

func newPipe(t *testing.T) (*ipc.PipeReader, *ipc.PipeWriter) {
	t.Helper()
	r, w, err := ipc.NewPipe(newAlloc(t))
	require.Zero(t, err)
	return r, w
}

func TestPipeWriteThenRead(t *testing.T) {
	r, w := newPipe(t)

	n, err := w.Write([]byte("hello"))
	require.Zero(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 16)
	n, err = r.Read(buf)
	require.Zero(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestPipeReadOnEmptyWithWriterOpenReturnsEAGAIN(t *testing.T) {
	r, _ := newPipe(t)

	n, err := r.Read(make([]byte, 4))
	assert.Zero(t, n)
	assert.Equal(t, -defs.EAGAIN, err)
}

func TestPipeReadAfterWriterClosesReturnsEOF(t *testing.T) {
	r, w := newPipe(t)
	require.Zero(t, w.Close())

	n, err := r.Read(make([]byte, 4))
	assert.Zero(t, n)
	assert.Zero(t, err, "no data and no writers left means EOF, not EAGAIN")
}

func TestPipeWriteAfterReaderClosesReturnsEPIPE(t *testing.T) {
	r, w := newPipe(t)
	require.Zero(t, r.Close())

	n, err := w.Write([]byte("x"))
	assert.Zero(t, n)
	assert.Equal(t, -defs.EPIPE, err)
}

func TestPipeWriteFullReturnsEAGAIN(t *testing.T) {
	r, w := newPipe(t)
	full := make([]byte, ipc.PipeCapacity)

	n, err := w.Write(full)
	require.Zero(t, err)
	assert.Equal(t, ipc.PipeCapacity, n)

	n, err = w.Write([]byte("x"))
	assert.Zero(t, n)
	assert.Equal(t, -defs.EAGAIN, err)

	_ = r
}

func TestPipePollReportsHupAfterWriterCloseAndDrain(t *testing.T) {
	r, w := newPipe(t)
	require.Zero(t, w.Close())

	mask := r.Poll(file.PollIn)
	assert.NotZero(t, mask&file.PollHup)
	assert.NotZero(t, mask&file.PollIn, "a closed, empty pipe is immediately readable (returns EOF)")
}

func TestPipeWriterPollReportsErrAfterReaderCloses(t *testing.T) {
	r, w := newPipe(t)
	require.Zero(t, r.Close())

	mask := w.Poll(file.PollOut)
	assert.NotZero(t, mask&file.PollErr)
}

func TestNewPipeFailsWhenPipeBudgetExhausted(t *testing.T) {
	n := uint(limits.System.Pipes.Remaining())
	require.True(t, limits.System.Pipes.Taken(n))
	defer limits.System.Pipes.Given(n)

	_, _, err := ipc.NewPipe(newAlloc(t))
	assert.Equal(t, -defs.EMFILE, err)
}

func TestPipeBudgetReleasedOnlyAfterBothEndsClose(t *testing.T) {
	remaining := limits.System.Pipes.Remaining()
	r, w := newPipe(t)
	assert.Equal(t, remaining-1, limits.System.Pipes.Remaining())

	require.Zero(t, r.Close())
	assert.Equal(t, remaining-1, limits.System.Pipes.Remaining(), "budget is held until the last end closes")

	require.Zero(t, w.Close())
	assert.Equal(t, remaining, limits.System.Pipes.Remaining())
}
