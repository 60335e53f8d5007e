package proc

import (
	"kernelx/internal/arch"
	"kernelx/internal/signal"
	"kernelx/internal/vm"
)

// The methods below make *TCB satisfy signal.Thread structurally, the
// same one-way-dependency trick internal/ksync's Task interface uses:
// internal/signal never imports internal/proc, so proc is free to
// import signal's data types directly in TCB/PCB.

func (t *TCB) UserContext() *arch.UserContext { return &t.UserCtx }
func (t *TCB) AddressSpace() *vm.AddressSpace { return t.PCB.AS }
func (t *TCB) Action(sig int) signal.Action   { return t.PCB.Actions.Get(sig) }
func (t *TCB) Mask() signal.SigSet            { return t.SigMask }
func (t *TCB) SetMask(m signal.SigSet)        { t.SigMask = m }

// AltStack reports the sigaltstack(2) region installed on the
// process and whether it is enabled (a non-zero SP with no flags set).
// The region is per-process, not per-thread, and whether the thread is
// already running on it is not checked.
func (t *TCB) AltStack() (uintptr, uintptr, bool) {
	st := t.PCB.SigStack
	return st.SP, st.Size, st.SP != 0 && st.Flags == 0
}
