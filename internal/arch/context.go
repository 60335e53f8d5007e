package arch

// UserContext is the saved register file of a thread while it is not
// running (or while it has trapped into the kernel). The concrete
// register layout is architecture-specific and out of this design's
// scope (§1); this is the contract surface internal/proc, internal/vm
// and internal/signal mutate through, named after the accessors §6
// requires (set_user_entry, set_user_stack_top, ...).
type UserContext struct {
	PC   uintptr
	SP   uintptr
	GP   [31]uint64 // general-purpose registers x1..x31 (x0 is hardwired zero)
	TLS  uintptr
	// Args holds the a0..a6 argument registers at syscall entry and
	// is reused to seed a handler's argv on signal delivery.
	Args [7]uint64
}

func (uc *UserContext) SetUserEntry(pc uintptr)      { uc.PC = pc }
func (uc *UserContext) SetUserStackTop(sp uintptr)    { uc.SP = sp }
func (uc *UserContext) SetTLS(tls uintptr)            { uc.TLS = tls }
func (uc *UserContext) SetArg(i int, v uint64)        { uc.Args[i] = v }
func (uc *UserContext) SetSigactionRestorer(pc uintptr) { uc.GP[0] = uint64(pc) /* ra */ }

// SkipSyscallInstruction advances the PC past the trapping
// instruction so that a first resume of a cloned child returns into
// user code rather than re-trapping.
func (uc *UserContext) SkipSyscallInstruction() { uc.PC += 4 }

// RestoreFromSignal overwrites uc with the context saved in a
// SigFrame's UContext, as sigreturn does.
func (uc *UserContext) RestoreFromSignal(saved UserContext) { *uc = saved }

// Ret0 sets up uc so that the syscall/clone path it is about to
// resume into observes a zero return value (used by the clone(2)
// child path).
func (uc *UserContext) Ret0() { uc.Args[0] = 0 }

// KernelContext is the callee-saved register set swapped by
// kernel_switch when moving between kernel execution contexts
// (idle <-> task kernel stacks). Opaque beyond that it must be
// per-thread and distinct from UserContext.
type KernelContext struct {
	SP  uintptr
	RA  uintptr
	S   [12]uint64 // s0..s11 callee-saved
}

// SigContext is the subset of UserContext copied into a SigFrame's
// UContext for sigreturn, plus the signal mask active when the signal
// was delivered.
type SigContext struct {
	Saved UserContext
	Mask  uint64
}
