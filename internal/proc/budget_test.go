package proc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelx/internal/defs"
	"kernelx/internal/limits"
	"kernelx/internal/proc"
	"kernelx/internal/sched"
)

func TestNewInitTaskFailsWhenProcessBudgetExhausted(t *testing.T) {
	n := uint(limits.System.Procs.Remaining())
	require.True(t, limits.System.Procs.Taken(n))
	defer limits.System.Procs.Given(n)

	rq := sched.NewReadyQueue()
	alloc := newAlloc(t)
	root := mountedRoot(t)
	_, err := proc.NewInitTask(rq, alloc, root, nullConsole{}, func(*proc.TCB) {})
	assert.Equal(t, -defs.ENOMEM, err)
}
