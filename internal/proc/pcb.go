package proc

import (
	"sync"

	"kernelx/internal/defs"
	"kernelx/internal/file"
	"kernelx/internal/ksync"
	"kernelx/internal/limits"
	"kernelx/internal/mem"
	"kernelx/internal/sched"
	"kernelx/internal/signal"
	"kernelx/internal/vfs"
	"kernelx/internal/vm"
)

// SignalStack is the alternate signal stack descriptor sigaltstack(2)
// installs (design §3).
type SignalStack struct {
	SP    uintptr
	Size  uintptr
	Flags int
}

// PCB is a process: a thread group sharing one AddressSpace (design
// §3).
type PCB struct {
	mu sync.Mutex

	Pid     defs.Pid_t
	Threads []*TCB

	alloc *mem.Allocator
	AS    *vm.AddressSpace
	Files *file.FDTable
	VFS   *vfs.VFS
	Cwd   *vfs.Dentry

	Actions   *signal.ActionTable
	Pending   *signal.PendingQueue
	SigStack  SignalStack
	Umask     uint32

	Parent   *PCB
	Children []*PCB

	Zombie   bool
	ExitCode int

	WaitQ *ksync.WaitQueue[*sched.Task]
}

func newPCB(pid defs.Pid_t, alloc *mem.Allocator, as *vm.AddressSpace, files *file.FDTable, fs *vfs.VFS, cwd *vfs.Dentry, parent *PCB) *PCB {
	return &PCB{
		Pid:     pid,
		alloc:   alloc,
		AS:      as,
		Files:   files,
		VFS:     fs,
		Cwd:     cwd,
		Actions: signal.NewActionTable(),
		Pending: &signal.PendingQueue{},
		Umask:   0022,
		Parent:  parent,
		WaitQ:   ksync.NewWaitQueue[*sched.Task](),
	}
}

// AddThread appends tcb to the thread group under the PCB lock.
func (p *PCB) AddThread(tcb *TCB) {
	p.mu.Lock()
	p.Threads = append(p.Threads, tcb)
	p.mu.Unlock()
}

// RemoveThread drops tcb from the thread group.
func (p *PCB) RemoveThread(tcb *TCB) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, t := range p.Threads {
		if t == tcb {
			p.Threads = append(p.Threads[:i], p.Threads[i+1:]...)
			return
		}
	}
}

// ThreadCount reports the live thread count.
func (p *PCB) ThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Threads)
}

// EventProcess is the wakeup event delivered to a wait4 caller when a
// child becomes a zombie (design §3/§4.6).
type EventProcess struct{ Child defs.Pid_t }

// EventSignal is the wakeup event delivered when a blocked wait is
// interrupted by a signal (design §4.6: "Event::Signal (returning
// EINTR)").
type EventSignal struct{}

// Manager is the global PCB table: every live process keyed by pid,
// used for getppid-adjacent lookups and reparenting orphans to init
// (design §4.6).
type Manager struct {
	mu      sync.Mutex
	byPid   map[defs.Pid_t]*PCB
	nextPid defs.Pid_t
	init    *PCB
}

// Default is the kernel-wide process manager singleton.
var Default = &Manager{byPid: make(map[defs.Pid_t]*PCB), nextPid: 1}

// register adds pcb to the table against the system-wide process
// budget (design §4.6 "the kernel, like any finite machine, bounds how
// many thread groups it will track at once"), reporting false without
// registering if the budget is exhausted.
func (m *Manager) register(pcb *PCB) bool {
	if !limits.System.Procs.Take() {
		return false
	}
	m.mu.Lock()
	m.byPid[pcb.Pid] = pcb
	if m.init == nil {
		m.init = pcb
	}
	m.mu.Unlock()
	return true
}

// Lookup returns the PCB for pid, if live.
func (m *Manager) Lookup(pid defs.Pid_t) (*PCB, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pcb, ok := m.byPid[pid]
	return pcb, ok
}

// Reap removes pid from the table (called once its zombie has been
// collected by wait4).
func (m *Manager) Reap(pid defs.Pid_t) {
	m.mu.Lock()
	delete(m.byPid, pid)
	m.mu.Unlock()
	limits.System.Procs.Give()
}

// LookupThread scans every live process for the thread with tid tid,
// the tgkill(2)/tkill(2) lookup design §4.10 needs: there is no
// separate tid->TCB index since thread-group sizes are small and this
// path isn't hot.
func (m *Manager) LookupThread(tid defs.Tid_t) *TCB {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pcb := range m.byPid {
		pcb.mu.Lock()
		for _, t := range pcb.Threads {
			if t.Tid() == tid {
				pcb.mu.Unlock()
				return t
			}
		}
		pcb.mu.Unlock()
	}
	return nil
}

// Init returns the init PCB, the reparenting target for orphans.
func (m *Manager) Init() *PCB {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.init
}
