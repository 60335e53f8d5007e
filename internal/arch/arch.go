package arch

import "time"

// Arch is the capability set design §6 says the core consumes rather
// than implements: core init, per-hart bookkeeping, the kernel context
// switch, returning to user mode, interrupt masking, the kernel stack
// top and the clock. It carries no kaddr/paddr translation and no
// kernel-address map/unmap; the direct map is internal/mem's
// Allocator.Deref. A real build
// backs this with hand-written RISC-V assembly and trap vectors; this
// package only carries the contract plus a hosted reference
// implementation (HostArch) used for running the core's logic under
// `go test` without real hardware, since the instruction-set-specific
// pieces are explicitly out of this design's scope.
type Arch interface {
	Init()
	SetupCores(nharts int)
	SetPercpuData(hart int, v any)
	GetPercpuData(hart int) any

	// KernelSwitch transfers control from the currently-running
	// kernel context to to, saving the caller's state into from. It
	// returns when some other context switches back into from.
	KernelSwitch(from, to *KernelContext)
	// ReturnToUser never returns to its caller along the normal path;
	// it resumes uc in user mode.
	ReturnToUser(uc *UserContext)
	GetUserPC(uc *UserContext) uintptr

	EnableInterrupts()
	DisableInterrupts()
	EnableTimerInterrupt()

	GetKernelStackTop(hart int) uintptr

	Now() time.Time
}
