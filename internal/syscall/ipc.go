package syscall

import (
	"kernelx/internal/defs"
	"kernelx/internal/ksync"
	"kernelx/internal/proc"
	"kernelx/internal/signal"
)

func init() {
	register(SYS_kill, sysKill)
	register(SYS_tkill, sysTkill)
	register(SYS_tgkill, sysTgkill)
	register(SYS_rt_sigaction, sysRtSigaction)
	register(SYS_rt_sigprocmask, sysRtSigprocmask)
	register(SYS_sigaltstack, sysSigaltstack)
	register(SYS_rt_sigsuspend, sysRtSigsuspend)
	register(SYS_rt_sigreturn, sysRtSigreturn)
	register(SYS_futex, sysFutex)

	proc.FutexWakeHook = func(kaddr uintptr) { futexTable.Wake(kaddr, 1, ^uint32(0)) }
}

// futexTable is the kernel-wide futex wait table (design §4.9),
// living at the syscall layer since it needs to translate user
// addresses through whichever caller's AddressSpace is current --
// internal/proc only knows kaddr values already translated for it
// (see FutexWakeHook above, fed by Exit's CLONE_CHILD_CLEARTID path).
var futexTable = ksync.NewFutexTable[*proc.TCB]()

// sigactionWireSize is this kernel's fixed kernel_sigaction layout:
// handler, flags, mask, each a 64-bit word -- there is no sa_restorer
// slot in the wire struct since delivery always installs the vDSO
// trampoline itself (design §4.10) rather than trusting a
// user-supplied one.
const sigactionWireSize = 24

func readSigaction(c *Context, va uintptr) (signal.Action, defs.Errno) {
	handler, err := NewUPtr[uint64](c.AS(), va).Read()
	if err != 0 {
		return signal.Action{}, err
	}
	flags, err := NewUPtr[uint64](c.AS(), va+8).Read()
	if err != 0 {
		return signal.Action{}, err
	}
	mask, err := NewUPtr[uint64](c.AS(), va+16).Read()
	if err != 0 {
		return signal.Action{}, err
	}
	return signal.Action{Handler: uintptr(handler), Flags: uint32(flags), Mask: signal.SigSet(mask)}, 0
}

func writeSigaction(c *Context, va uintptr, a signal.Action) defs.Errno {
	if err := NewUPtr[uint64](c.AS(), va).Write(uint64(a.Handler)); err != 0 {
		return err
	}
	if err := NewUPtr[uint64](c.AS(), va+8).Write(uint64(a.Flags)); err != 0 {
		return err
	}
	return NewUPtr[uint64](c.AS(), va+16).Write(uint64(a.Mask))
}

func sysRtSigaction(c *Context) (int64, defs.Errno) {
	sig := int(c.Args[0])
	actVA := c.UPtr64(1)
	oldVA := c.UPtr64(2)

	pcb := c.TCB.PCB
	if oldVA != 0 {
		if err := writeSigaction(c, oldVA, pcb.Actions.Get(sig)); err != 0 {
			return 0, err
		}
	}
	if actVA != 0 {
		a, err := readSigaction(c, actVA)
		if err != 0 {
			return 0, err
		}
		if !pcb.Actions.Set(sig, a) {
			return 0, -defs.EINVAL
		}
	}
	return 0, 0
}

// rt_sigprocmask how values (design §4.10).
const (
	sigBlock   = 0
	sigUnblock = 1
	sigSetmask = 2
)

func sysRtSigprocmask(c *Context) (int64, defs.Errno) {
	how := int(c.Args[0])
	setVA := c.UPtr64(1)
	oldVA := c.UPtr64(2)

	tcb := c.TCB
	if oldVA != 0 {
		if err := NewUPtr[uint64](c.AS(), oldVA).Write(uint64(tcb.SigMask)); err != 0 {
			return 0, err
		}
	}
	if setVA == 0 {
		return 0, 0
	}
	raw, err := NewUPtr[uint64](c.AS(), setVA).Read()
	if err != 0 {
		return 0, err
	}
	set := signal.SigSet(raw)
	switch how {
	case sigBlock:
		tcb.SigMask |= set
	case sigUnblock:
		tcb.SigMask &^= set
	case sigSetmask:
		tcb.SigMask = set
	default:
		return 0, -defs.EINVAL
	}
	return 0, 0
}

// sigaltstackWireSize is the {sp, flags, size} stack_t layout, each
// word-aligned to 8 bytes.
const sigaltstackWireSize = 24

func sysSigaltstack(c *Context) (int64, defs.Errno) {
	ssVA := c.UPtr64(0)
	oldVA := c.UPtr64(1)
	pcb := c.TCB.PCB

	if oldVA != 0 {
		old := pcb.SigStack
		if err := NewUPtr[uint64](c.AS(), oldVA).Write(uint64(old.SP)); err != 0 {
			return 0, err
		}
		if err := NewUPtr[uint64](c.AS(), oldVA+8).Write(uint64(old.Flags)); err != 0 {
			return 0, err
		}
		if err := NewUPtr[uint64](c.AS(), oldVA+16).Write(uint64(old.Size)); err != 0 {
			return 0, err
		}
	}
	if ssVA == 0 {
		return 0, 0
	}
	sp, err := NewUPtr[uint64](c.AS(), ssVA).Read()
	if err != 0 {
		return 0, err
	}
	flags, err := NewUPtr[uint64](c.AS(), ssVA+8).Read()
	if err != 0 {
		return 0, err
	}
	size, err := NewUPtr[uint64](c.AS(), ssVA+16).Read()
	if err != 0 {
		return 0, err
	}
	pcb.SigStack = proc.SignalStack{SP: uintptr(sp), Size: uintptr(size), Flags: int(flags)}
	return 0, 0
}

// sysRtSigsuspend temporarily installs mask, then parks the caller
// (interruptibly -- any wakeup, not only a genuine delivered signal,
// is treated as the "a signal arrived" case since this hosted build
// has no separate per-thread "signal arrived" wakeup channel) and
// restores the prior mask before returning, always as EINTR: sigsuspend
// never returns normally (design §4.10).
func sysRtSigsuspend(c *Context) (int64, defs.Errno) {
	setVA := c.UPtr64(0)
	raw, err := NewUPtr[uint64](c.AS(), setVA).Read()
	if err != 0 {
		return 0, err
	}
	tcb := c.TCB
	saved := tcb.SigMask
	tcb.SigMask = signal.SigSet(raw)
	tcb.Task.Block("sigsuspend")
	tcb.SigMask = saved
	return 0, -defs.EINTR
}

// sysRtSigreturn restores the interrupted UserContext verbatim. Every
// other handler's return value is the new a0; this one instead hands
// back the a0 SigReturn just restored, so the trap-return path's
// ordinary "write Dispatch's result into a0" step is a no-op here
// rather than needing a special case.
func sysRtSigreturn(c *Context) (int64, defs.Errno) {
	_, err := signal.SigReturn(c.TCB, c.TCB.UserCtx.SP)
	if err != 0 {
		return 0, err
	}
	return int64(c.TCB.UserCtx.Args[0]), 0
}

func findTarget(pid defs.Pid_t) (*proc.PCB, defs.Errno) {
	pcb, ok := proc.Default.Lookup(pid)
	if !ok {
		return nil, -defs.ESRCH
	}
	return pcb, 0
}

func sysKill(c *Context) (int64, defs.Errno) {
	pid := defs.Pid_t(c.I64(0))
	sig := int(c.Args[1])
	pcb, err := findTarget(pid)
	if err != 0 {
		return 0, err
	}
	pcb.Pending.Push(signal.PendingSignal{Signum: sig})
	pcb.WaitQ.WakeOne(0, proc.EventSignal{})
	return 0, 0
}

func sysTkill(c *Context) (int64, defs.Errno) {
	tid := defs.Tid_t(c.I64(0))
	sig := int(c.Args[1])
	tcb := proc.Default.LookupThread(tid)
	if tcb == nil {
		return 0, -defs.ESRCH
	}
	tcb.PCB.Pending.Push(signal.PendingSignal{Signum: sig, TargetTid: int(tid)})
	tcb.PCB.WaitQ.WakeOne(0, proc.EventSignal{})
	return 0, 0
}

func sysTgkill(c *Context) (int64, defs.Errno) {
	tgid := defs.Pid_t(c.I64(0))
	tid := defs.Tid_t(c.I64(1))
	sig := int(c.Args[2])
	tcb := proc.Default.LookupThread(tid)
	if tcb == nil || tcb.PCB.Pid != tgid {
		return 0, -defs.ESRCH
	}
	tcb.PCB.Pending.Push(signal.PendingSignal{Signum: sig, TargetTid: int(tid)})
	tcb.PCB.WaitQ.WakeOne(0, proc.EventSignal{})
	return 0, 0
}

// futex(2) operation codes this kernel interprets (design §4.9); the
// PRIVATE bit is accepted but ignored since every futex word already
// keys on its translated kernel address regardless of process-shared
// or private memory.
const (
	futexWait      = 0
	futexWake      = 1
	futexRequeue   = 3
	futexCmpRequeue = 4
	futexOpMask    = 0xf
)

func sysFutex(c *Context) (int64, defs.Errno) {
	uaddrVA := c.UPtr64(0)
	op := int(c.Args[1]) & futexOpMask
	val := uint32(c.Args[2])

	as := c.AS()
	kaddr, kerr := as.KAddr(uaddrVA)
	if kerr != 0 {
		return 0, kerr
	}
	read := func() uint32 {
		v, _ := NewUPtr[uint32](as, uaddrVA).Read()
		return v
	}

	switch op {
	case futexWait:
		err := futexTable.Wait(c.TCB, kaddr, val, ^uint32(0), read)
		if err != 0 {
			return 0, err
		}
		if _, isSig := c.TCB.Task.TakeWakeupEvent().(proc.EventSignal); isSig {
			return 0, -defs.EINTR
		}
		return 0, 0
	case futexWake:
		n := int(c.Args[3])
		return int64(futexTable.Wake(kaddr, n, ^uint32(0))), 0
	case futexRequeue, futexCmpRequeue:
		uaddr2VA := c.UPtr64(4)
		kaddr2, kerr2 := as.KAddr(uaddr2VA)
		if kerr2 != 0 {
			return 0, kerr2
		}
		n := int(c.Args[3])
		var valPtr *uint32
		if op == futexCmpRequeue {
			v := val
			valPtr = &v
		}
		moved, err := futexTable.Requeue(kaddr, kaddr2, n, valPtr, read)
		if err != 0 {
			return 0, err
		}
		return int64(moved), 0
	default:
		return 0, -defs.ENOSYS
	}
}
