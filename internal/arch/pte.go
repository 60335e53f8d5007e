// Package arch contains the Arch capability surface design §6 asks
// the core to consume: page tables, user/kernel context frames, and
// the handful of low-level operations (percpu data, switch,
// return-to-user, interrupt masking) that are architecture-specific by design
// and therefore only specified here as an interface plus a software
// reference implementation of the PageTable contract.
//
// The PTE layout follows RISC-V Sv39: a three-level radix tree of
// 512-entry tables, leaf entries carrying (PPN, flags); the flag
// layout is RISC-V's V/R/W/X/U/G/A/D, generalizing biscuit's x86
// PTE_P/PTE_W/PTE_U/PTE_A/PTE_D bit model to the target ISA named in
// the design's §1 scope.
package arch

// Perm is a permission/status bit mask for one page table entry.
type Perm uint64

const (
	PteV Perm = 1 << 0 // valid
	PteR Perm = 1 << 1 // readable
	PteW Perm = 1 << 2 // writable
	PteX Perm = 1 << 3 // executable
	PteU Perm = 1 << 4 // user-accessible
	PteG Perm = 1 << 5 // global
	PteA Perm = 1 << 6 // accessed
	PteD Perm = 1 << 7 // dirty

	// PteCOW is a software-defined bit (RISC-V reserves bits 8-9 of
	// the leaf PTE for supervisor use) marking a page as copy-on-write:
	// present, read-only in hardware, but logically writable once the
	// fault handler duplicates the frame. Mirrors biscuit's PTE_COW.
	PteCOW Perm = 1 << 8
	// PteWasCOW records that a page was COW-resolved, used only for
	// diagnostics and the fast reclaim-on-sole-owner path.
	PteWasCOW Perm = 1 << 9
)

const (
	ppnShift = 10
	levels   = 3
	entBits  = 9
	entCount = 1 << entBits
)

// PTE is a single page table entry: 54 bits of physical page number
// plus the flags above.
type PTE uint64

func (e PTE) Valid() bool  { return Perm(e)&PteV != 0 }
func (e PTE) Perm() Perm   { return Perm(e) & 0x3ff }
func (e PTE) PPN() uint64  { return uint64(e) >> ppnShift }
func (e *PTE) set(ppn uint64, perm Perm) { *e = PTE(ppn<<ppnShift) | PTE(perm) }
