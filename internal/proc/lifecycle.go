package proc

import (
	"kernelx/internal/defs"
	"kernelx/internal/file"
	"kernelx/internal/mem"
	"kernelx/internal/sched"
	"kernelx/internal/signal"
	"kernelx/internal/util"
	"kernelx/internal/vfs"
	"kernelx/internal/vm"
)

// allocID hands out the single tid/pid numbering space: a process's
// pid is its leading thread's tid (design §3).
func (m *Manager) allocID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := int(m.nextPid)
	m.nextPid++
	return id
}

// NewInitTask builds the first process: a fresh AddressSpace, an FDTable
// with fds 0/1/2 wired to console, and cwd at root (design §4.6).
func NewInitTask(rq *sched.ReadyQueue, alloc *mem.Allocator, root *vfs.VFS, console file.CharDevice, entry func(*TCB)) (*TCB, defs.Errno) {
	as, err := vm.New(alloc)
	if err != 0 {
		return nil, err
	}
	if err := signal.MapVDSO(as); err != 0 {
		return nil, err
	}
	files := file.NewFDTable()
	for fd := 0; fd < 3; fd++ {
		if _, err := files.Push(file.NewCharFile(console), false); err != 0 {
			return nil, err
		}
	}
	id := defs.Tid_t(Default.allocID())
	pcb := newPCB(defs.Pid_t(id), alloc, as, files, root, root.Root(), nil)
	if !Default.register(pcb) {
		return nil, -defs.ENOMEM
	}

	tcb, err := newTCB(rq, pcb, alloc, id, entry)
	if err != 0 {
		return nil, err
	}
	pcb.AddThread(tcb)
	return tcb, 0
}

// Clone implements clone(2) (design §4.6): defs.CLONE_VM shares the
// AddressSpace instead of forking it, defs.CLONE_FILES shares the FDTable
// instead of deep-cloning it, defs.CLONE_SIGHAND shares the ActionTable,
// and defs.CLONE_THREAD adds the new TCB to the caller's own PCB instead of
// creating a new one.
func Clone(rq *sched.ReadyQueue, parent *TCB, flags int, childSP, tlsVal, childTidVA uintptr, entry func(*TCB)) (*TCB, defs.Errno) {
	ppcb := parent.PCB

	var as *vm.AddressSpace
	if flags&defs.CLONE_VM != 0 {
		as = ppcb.AS
	} else {
		var err defs.Errno
		as, err = ppcb.AS.Fork(ppcb.alloc)
		if err != 0 {
			return nil, err
		}
	}

	var files *file.FDTable
	if flags&defs.CLONE_FILES != 0 {
		files = ppcb.Files
	} else {
		files = ppcb.Files.Fork()
	}

	id := defs.Tid_t(Default.allocID())

	var pcb *PCB
	if flags&defs.CLONE_THREAD != 0 {
		pcb = ppcb
	} else {
		pcb = newPCB(defs.Pid_t(id), ppcb.alloc, as, files, ppcb.VFS, ppcb.Cwd, ppcb)
		if flags&defs.CLONE_SIGHAND != 0 {
			pcb.Actions = ppcb.Actions
		} else {
			pcb.Actions = ppcb.Actions.Fork()
		}
		if !Default.register(pcb) {
			return nil, -defs.ENOMEM
		}
		ppcb.mu.Lock()
		ppcb.Children = append(ppcb.Children, pcb)
		ppcb.mu.Unlock()
	}

	tcb, err := newTCB(rq, pcb, ppcb.alloc, id, entry)
	if err != 0 {
		return nil, err
	}
	pcb.AddThread(tcb)

	tcb.UserCtx = parent.UserCtx
	if childSP != 0 {
		tcb.UserCtx.SetUserStackTop(childSP)
	}
	if flags&defs.CLONE_SETTLS != 0 && tlsVal != 0 {
		tcb.UserCtx.SetTLS(tlsVal)
	}
	tcb.UserCtx.SkipSyscallInstruction()
	tcb.UserCtx.Ret0()

	if flags&defs.CLONE_CHILD_SETTID != 0 && childTidVA != 0 {
		buf := make([]byte, 8)
		util.Writen(buf, 8, 0, int(id))
		as.K2User(childTidVA, buf)
	}
	if flags&defs.CLONE_CHILD_CLEARTID != 0 {
		tcb.TidAddress = childTidVA
	}
	if flags&defs.CLONE_PARENT_SETTID != 0 {
		// Written into the parent's (pre-fork, still-current) address
		// space since it describes the child from the parent's view.
		buf := make([]byte, 8)
		util.Writen(buf, 8, 0, int(id))
		ppcb.AS.K2User(childTidVA, buf)
	}

	return tcb, 0
}

// FutexWakeHook lets a higher layer (the futex table lives above
// proc, closer to the syscall dispatcher) be notified when Exit needs
// to wake one waiter on a cleared tid address. Left nil, Exit simply
// skips the wake.
var FutexWakeHook func(kaddr uintptr)

// Exit implements the thread/process exit half of design §4.6: "The
// leaving thread marks itself Exited. If it holds a tid_address, the
// kernel writes 0 at the translated address and wakes one futex
// waiter. If it was the last thread in its group, the PCB becomes a
// zombie ... every waiting parent task is woken with Event::Process,
// and SIGCHLD is queued to the parent. Children still alive are
// reparented to init."
func Exit(tcb *TCB, code int) {
	pcb := tcb.PCB

	if tcb.TidAddress != 0 {
		zero := make([]byte, 8)
		pcb.AS.K2User(tcb.TidAddress, zero)
		if FutexWakeHook != nil {
			if kaddr, err := pcb.AS.KAddr(tcb.TidAddress); err == 0 {
				FutexWakeHook(kaddr)
			}
		}
	}

	pcb.RemoveThread(tcb)
	wasLeader := tcb.Tid() == defs.Tid_t(pcb.Pid)
	if !wasLeader && pcb.ThreadCount() > 0 {
		return
	}

	pcb.mu.Lock()
	pcb.Zombie = true
	pcb.ExitCode = code
	remaining := append([]*TCB(nil), pcb.Threads...)
	children := append([]*PCB(nil), pcb.Children...)
	pcb.Children = nil
	parent := pcb.Parent
	pid := pcb.Pid
	pcb.mu.Unlock()

	for _, other := range remaining {
		other.Kill()
	}

	initPCB := Default.Init()
	if initPCB != nil {
		for _, child := range children {
			child.mu.Lock()
			child.Parent = initPCB
			child.mu.Unlock()
			initPCB.mu.Lock()
			initPCB.Children = append(initPCB.Children, child)
			initPCB.mu.Unlock()
		}
	}

	if parent != nil {
		ev := func() any { return EventProcess{Child: pid} }
		parent.WaitQ.WakeAll(uint64(pid), ev)
		parent.WaitQ.WakeAll(0, ev)
		parent.Pending.Push(signal.PendingSignal{Signum: signal.SIGCHLD})
	} else {
		// The init PCB itself exited with no parent: nothing left to
		// notify and nothing left to reap it.
		Default.Reap(pid)
	}
}

func hasMatchingChildLocked(pcb *PCB, pid defs.Pid_t) bool {
	for _, c := range pcb.Children {
		if pid <= 0 || c.Pid == pid {
			return true
		}
	}
	return false
}

// Wait4 implements wait4(2) (design §4.6): "wait_child(pid, blocked)
// and wait_any_child(blocked) resolve immediately if a matching zombie
// already exists; otherwise the caller blocks on PCB.wait_q until
// Event::Process or Event::Signal." pid<=0 means "any child". When
// blocking is false this implements WNOHANG: returns (0, 0, 0) rather
// than blocking if no zombie matches yet.
func Wait4(tcb *TCB, pid defs.Pid_t, blocking bool) (defs.Pid_t, int, defs.Errno) {
	pcb := tcb.PCB
	for {
		pcb.mu.Lock()
		for i, c := range pcb.Children {
			if c.Zombie && (pid <= 0 || c.Pid == pid) {
				pcb.Children = append(pcb.Children[:i], pcb.Children[i+1:]...)
				cpid, code := c.Pid, c.ExitCode
				pcb.mu.Unlock()
				Default.Reap(cpid)
				return cpid, code, 0
			}
		}
		if !hasMatchingChildLocked(pcb, pid) {
			pcb.mu.Unlock()
			return 0, 0, -defs.ECHILD
		}
		pcb.mu.Unlock()

		if !blocking {
			return 0, 0, 0
		}

		tag := uint64(0)
		if pid > 0 {
			tag = uint64(pid)
		}
		pcb.WaitQ.WaitCurrent(tcb.Task, tag)
		if _, isSig := tcb.TakeWakeupEvent().(EventSignal); isSig {
			return 0, 0, -defs.EINTR
		}
	}
}
