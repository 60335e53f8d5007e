package signal

import (
	"encoding/binary"

	"kernelx/internal/arch"
	"kernelx/internal/defs"
	"kernelx/internal/mem"
	"kernelx/internal/vm"
)

// sysRtSigreturnNum must match internal/syscall's SYS_rt_sigreturn.
// Duplicated here rather than imported to keep proc -> signal a
// one-way dependency (internal/syscall already imports both proc and
// signal, so signal importing syscall back would cycle).
const sysRtSigreturnNum = 139

// trampoline is "addi a7, zero, sysRtSigreturnNum; ecall": the two
// RISC-V instructions design §4.10's vDSO page holds. A handler
// invocation's own prologue/epilogue clobbers a7 freely, so the
// trampoline reloads it with the sigreturn syscall number before
// trapping back into the kernel -- Deliver only ever sets ra to this
// address, never jumps here itself.
func trampoline() []byte {
	addi := uint32(sysRtSigreturnNum)<<20 | 17<<7 | 0x13 // addi a7, zero, imm
	const ecall = uint32(0x00000073)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], addi)
	binary.LittleEndian.PutUint32(buf[4:8], ecall)
	return buf
}

// MapVDSO installs the sigreturn trampoline at vm.VDSOBase in as. It
// is called once per AddressSpace (process bootstrap and every
// execve, since Exec discards and rebuilds the whole AddressSpace)
// rather than once per system, since there is no shared kernel page
// table this hosted build maps into every address space at once.
func MapVDSO(as *vm.AddressSpace) defs.Errno {
	rwx := arch.PteR | arch.PteW | arch.PteX | arch.PteU | arch.PteV
	area := vm.NewAnonymous(as.Alloc(), vm.VDSOBase, 1, rwx)
	as.MMapFixed(vm.VDSOBase, area)
	if err := as.K2User(vm.VDSOBase, trampoline()); err != 0 {
		return err
	}
	// Drop W once seeded: the trampoline is read/execute-only from
	// user mode afterward, like any other mapped code page.
	return as.SetRangePerm(vm.VDSOBase, 1, rwx&^arch.PteW)
}
