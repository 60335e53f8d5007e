package vm

import "kernelx/internal/mem"

// Canonical user virtual-address layout. Concrete addresses are an
// implementation choice the spec leaves open; these follow a
// conventional Sv39 layout with plenty of room between regions.
const (
	UserMapBase  uintptr = 0x0000_0010_0000_0000
	StackTop     uintptr = 0x0000_003f_0000_0000
	StackMaxPage int     = 256 // 1 MiB stack area, reserved in full and demand-paged; it never grows past this
	BrkBase      uintptr = 0x0000_0000_1000_0000
	BrkCap       uintptr = 0x0000_0000_4000_0000 // 1 GiB heap ceiling

	VDSOBase uintptr = 0x0000_003f_ffff_0000

	// ThreadCtxBase is the low end of the per-thread UserContext
	// scratch region reserved immediately below VDSOBase (design
	// §4.3). Each thread gets one page; ThreadCtxSlots bounds how many
	// threads may share one AddressSpace.
	ThreadCtxBase  uintptr = VDSOBase - uintptr(ThreadCtxSlots)*mem.PageSize
	ThreadCtxSlots int     = 256
)
