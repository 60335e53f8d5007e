package signal_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelx/internal/arch"
	"kernelx/internal/mem"
	"kernelx/internal/signal"
	"kernelx/internal/vm"
)

type fakeThread struct {
	uc      arch.UserContext
	as      *vm.AddressSpace
	alloc   *mem.Allocator
	actions map[int]signal.Action
	mask    signal.SigSet
	altSP   uintptr
	altSize uintptr
	altOn   bool
}

func (f *fakeThread) UserContext() *arch.UserContext { return &f.uc }
func (f *fakeThread) AddressSpace() *vm.AddressSpace { return f.as }
func (f *fakeThread) Action(sig int) signal.Action   { return f.actions[sig] }
func (f *fakeThread) Mask() signal.SigSet            { return f.mask }
func (f *fakeThread) SetMask(m signal.SigSet)        { f.mask = m }
func (f *fakeThread) AltStack() (uintptr, uintptr, bool) {
	return f.altSP, f.altSize, f.altOn
}

func newFakeThread(t *testing.T) *fakeThread {
	t.Helper()
	alloc := mem.New(mem.Frame(1), 4096, 1)
	as, err := vm.New(alloc)
	require.Zero(t, err)
	sp, err := vm.UserStackInit(as, []string{"a"}, nil, nil)
	require.Zero(t, err)
	return &fakeThread{
		uc:      arch.UserContext{SP: sp, PC: 0x1000},
		as:      as,
		alloc:   alloc,
		actions: map[int]signal.Action{},
	}
}

func TestDeliverSetsHandlerContextAndSigReturnRestoresIt(t *testing.T) {
	th := newFakeThread(t)
	originalPC := th.uc.PC
	originalSP := th.uc.SP
	th.mask = signal.SigSet(0)
	th.actions[signal.SIGUSR1] = signal.Action{Handler: 0x4000, Mask: signal.SigSet(0).With(signal.SIGUSR2)}

	const restorerVA = 0x7fff_0000
	err := signal.Deliver(th, signal.PendingSignal{Signum: signal.SIGUSR1}, restorerVA)
	require.Zero(t, err)

	assert.Equal(t, uintptr(0x4000), th.uc.PC)
	assert.NotEqual(t, originalSP, th.uc.SP)
	assert.Equal(t, uint64(signal.SIGUSR1), th.uc.Args[0])
	assert.Equal(t, uint64(restorerVA), th.uc.GP[0])
	assert.True(t, th.mask.Has(signal.SIGUSR1), "SIGUSR1 should be blocked during its own handler absent SA_NODEFER")
	assert.True(t, th.mask.Has(signal.SIGUSR2), "sa_mask should be applied during the handler")

	frameBase := th.uc.SP
	signum, serr := signal.SigReturn(th, frameBase)
	require.Zero(t, serr)
	assert.Equal(t, signal.SIGUSR1, signum)
	assert.Equal(t, originalPC, th.uc.PC)
	assert.Equal(t, originalSP, th.uc.SP)
	assert.False(t, th.mask.Has(signal.SIGUSR1))
	assert.False(t, th.mask.Has(signal.SIGUSR2))
}

func TestDeliverNoDeferKeepsSignalUnblocked(t *testing.T) {
	th := newFakeThread(t)
	th.actions[signal.SIGUSR1] = signal.Action{Handler: 0x4000, Flags: signal.SA_NODEFER}

	err := signal.Deliver(th, signal.PendingSignal{Signum: signal.SIGUSR1}, 0x8000)
	require.Zero(t, err)
	assert.False(t, th.mask.Has(signal.SIGUSR1))
}

func TestDeliverOnStackUsesAltStack(t *testing.T) {
	th := newFakeThread(t)
	th.altSP = 0x0000_0000_2000_0000
	th.altSize = 4096
	th.altOn = true
	th.as.MMapFixed(th.altSP, vm.NewAnonymous(th.alloc, th.altSP, 1, arch.PteR|arch.PteW))
	th.actions[signal.SIGUSR1] = signal.Action{Handler: 0x4000, Flags: signal.SA_ONSTACK}

	err := signal.Deliver(th, signal.PendingSignal{Signum: signal.SIGUSR1}, 0x8000)
	require.Zero(t, err)
	assert.Less(t, th.uc.SP, th.altSP+th.altSize)
	assert.GreaterOrEqual(t, th.uc.SP, th.altSP)
}

func TestDeliverSigInfoPointsArgsAtSiginfoAndUcontext(t *testing.T) {
	th := newFakeThread(t)
	th.actions[signal.SIGUSR1] = signal.Action{Handler: 0x4000, Flags: signal.SA_SIGINFO}

	err := signal.Deliver(th, signal.PendingSignal{Signum: signal.SIGUSR1, SiCode: 3}, 0x8000)
	require.Zero(t, err)

	assert.NotZero(t, th.uc.Args[1], "siginfo_t* must be set under SA_SIGINFO")
	assert.NotZero(t, th.uc.Args[2], "ucontext_t* must be set under SA_SIGINFO")
	assert.Equal(t, uint64(th.uc.SP), th.uc.Args[2], "ucontext points at the saved register frame sigreturn reads")

	info := make([]byte, 8)
	require.Zero(t, th.as.User2K(info, uintptr(th.uc.Args[1])))
	assert.Equal(t, int32(signal.SIGUSR1), int32(binary.LittleEndian.Uint32(info[0:4])), "si_signo")
	assert.Equal(t, int32(3), int32(binary.LittleEndian.Uint32(info[8:12])), "si_code")
}

func TestDeliverWithoutSigInfoLeavesArgsZero(t *testing.T) {
	th := newFakeThread(t)
	th.actions[signal.SIGUSR1] = signal.Action{Handler: 0x4000}

	err := signal.Deliver(th, signal.PendingSignal{Signum: signal.SIGUSR1}, 0x8000)
	require.Zero(t, err)

	assert.Zero(t, th.uc.Args[1])
	assert.Zero(t, th.uc.Args[2])
}

func TestActionTableRejectsUnignorableSignals(t *testing.T) {
	at := signal.NewActionTable()
	assert.False(t, at.Set(signal.SIGKILL, signal.Action{Handler: 0x1000}))
	assert.False(t, at.Set(signal.SIGSTOP, signal.Action{Handler: 0x1000}))
	assert.True(t, at.Set(signal.SIGUSR1, signal.Action{Handler: 0x1000}))
	assert.Equal(t, uintptr(0x1000), at.Get(signal.SIGUSR1).Handler)
}

func TestPendingQueueSkipsMaskedAndMistargeted(t *testing.T) {
	q := &signal.PendingQueue{}
	q.Push(signal.PendingSignal{Signum: signal.SIGUSR1, TargetTid: 7})
	q.Push(signal.PendingSignal{Signum: signal.SIGUSR2})

	_, ok := q.TakeDeliverable(5, signal.SigSet(0))
	require.True(t, ok, "untargeted SIGUSR2 should be deliverable to any tid")

	blocked := signal.SigSet(0).With(signal.SIGUSR1)
	_, ok = q.TakeDeliverable(7, blocked)
	assert.False(t, ok, "blocked signal should not be deliverable")

	sig, ok := q.TakeDeliverable(7, signal.SigSet(0))
	require.True(t, ok)
	assert.Equal(t, signal.SIGUSR1, sig.Signum)
}

func TestMapVDSOWritesTrampolineReadOnly(t *testing.T) {
	alloc := mem.New(mem.Frame(1), 4096, 1)
	as, err := vm.New(alloc)
	require.Zero(t, err)

	require.Zero(t, signal.MapVDSO(as))

	got := make([]byte, 8)
	require.Zero(t, as.User2K(got, vm.VDSOBase))
	addi := binary.LittleEndian.Uint32(got[0:4])
	ecall := binary.LittleEndian.Uint32(got[4:8])
	assert.Equal(t, uint32(0x08B00893), addi, "addi a7, zero, 139")
	assert.Equal(t, uint32(0x00000073), ecall)

	assert.NotZero(t, as.K2User(vm.VDSOBase, []byte{0}), "vDSO page must not be writable from user mode")
}
