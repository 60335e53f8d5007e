package signal

import (
	"bytes"
	"encoding/binary"

	"kernelx/internal/arch"
	"kernelx/internal/defs"
	"kernelx/internal/vm"
)

// Thread is the narrow surface internal/proc's TCB exposes to signal
// delivery, kept as an interface (rather than a concrete *proc.TCB)
// so that internal/signal never has to import internal/proc -- proc
// already imports signal for its data types, and a reverse import
// would cycle.
type Thread interface {
	UserContext() *arch.UserContext
	AddressSpace() *vm.AddressSpace
	Action(sig int) Action
	Mask() SigSet
	SetMask(SigSet)
	// AltStack reports the sigaltstack(2) region and whether the
	// thread has opted into it for SA_ONSTACK delivery.
	AltStack() (sp uintptr, size uintptr, enabled bool)
}

// sigFrameWireSize is the on-stack encoding of a SigFrame: the full
// saved UserContext, the 8-byte mask, and the (signum, sicode)
// pair -- enough for sigreturn to restore exactly what delivery saved.
const sigFrameWireSize = (1 + 1 + 31 + 1 + 7) * 8 /* UserContext */ + 8 /* mask */ + 2*8 /* signum, sicode */

// sigInfoWireSize is the on-stack siginfo_t delivered under SA_SIGINFO:
// si_signo, si_errno, si_code, padding, and the two SiFields words
// (design §4.10 step 5).
const sigInfoWireSize = 4*4 + 2*8

// stackRedzone mirrors the RISC-V psABI, which has no redzone: no pad
// is left between the interrupted SP and the frame.
const stackRedzone = 0

func encodeContext(buf *bytes.Buffer, uc arch.UserContext) {
	binary.Write(buf, binary.LittleEndian, uint64(uc.PC))
	binary.Write(buf, binary.LittleEndian, uint64(uc.SP))
	binary.Write(buf, binary.LittleEndian, uc.GP)
	binary.Write(buf, binary.LittleEndian, uint64(uc.TLS))
	binary.Write(buf, binary.LittleEndian, uc.Args)
}

func decodeContext(r *bytes.Reader) arch.UserContext {
	var pc, sp, tls uint64
	var gp [31]uint64
	var args [7]uint64
	binary.Read(r, binary.LittleEndian, &pc)
	binary.Read(r, binary.LittleEndian, &sp)
	binary.Read(r, binary.LittleEndian, &gp)
	binary.Read(r, binary.LittleEndian, &tls)
	binary.Read(r, binary.LittleEndian, &args)
	return arch.UserContext{PC: uintptr(pc), SP: uintptr(sp), GP: gp, TLS: uintptr(tls), Args: args}
}

// Deliver pushes a signal frame for sig onto th's stack (the alternate
// stack if the handler is SA_ONSTACK and one is configured) and
// rewrites th's UserContext to enter the handler, per design §4.10:
// "the kernel builds a sigframe on the target stack holding the saved
// UserContext and the pre-signal mask, sets pc to the handler, a0 to
// the signum, and installs the vDSO sigreturn trampoline as the return
// address." restorerVA is the address of that trampoline, mapped once
// at process bootstrap (design §4.10, vDSO page).
func Deliver(th Thread, sig PendingSignal, restorerVA uintptr) defs.Errno {
	action := th.Action(sig.Signum)
	uc := th.UserContext()
	useSigInfo := action.Flags&SA_SIGINFO != 0

	var buf bytes.Buffer
	encodeContext(&buf, *uc)
	binary.Write(&buf, binary.LittleEndian, uint64(th.Mask()))
	binary.Write(&buf, binary.LittleEndian, uint64(sig.Signum))
	binary.Write(&buf, binary.LittleEndian, uint64(sig.SiCode))

	extra := 0
	if useSigInfo {
		extra = sigInfoWireSize
	}

	sp := uc.SP
	if action.Flags&SA_ONSTACK != 0 {
		if altSP, altSize, enabled := th.AltStack(); enabled {
			sp = altSP + altSize
		}
	}
	frameBase := (sp - stackRedzone - uintptr(buf.Len()+extra)) &^ 0xf
	sigInfoVA := frameBase + uintptr(buf.Len())

	if err := th.AddressSpace().K2User(frameBase, buf.Bytes()); err != 0 {
		return err
	}

	newMask := th.Mask() | action.Mask
	if action.Flags&SA_NODEFER == 0 {
		newMask = newMask.With(sig.Signum)
	}
	th.SetMask(newMask)

	uc.PC = action.Handler
	uc.SP = frameBase
	uc.Args[0] = uint64(sig.Signum)
	uc.Args[1] = 0
	uc.Args[2] = 0
	if useSigInfo {
		var info bytes.Buffer
		binary.Write(&info, binary.LittleEndian, int32(sig.Signum))
		binary.Write(&info, binary.LittleEndian, int32(0)) // si_errno
		binary.Write(&info, binary.LittleEndian, sig.SiCode)
		binary.Write(&info, binary.LittleEndian, int32(0)) // pad
		binary.Write(&info, binary.LittleEndian, sig.SiFields)
		if err := th.AddressSpace().K2User(sigInfoVA, info.Bytes()); err != 0 {
			return err
		}
		uc.Args[1] = uint64(sigInfoVA)
		// The saved register context at frameBase already holds
		// everything a ucontext_t's uc_mcontext would: reuse it rather
		// than laying out a second copy the handler never restores
		// from (sigreturn reads frameBase directly).
		uc.Args[2] = uint64(frameBase)
	}
	uc.SetSigactionRestorer(restorerVA)
	return 0
}

// SigReturn undoes Deliver: it reads the frame at the thread's current
// SP (left there by the handler's prologue, or passed explicitly by a
// caller that already knows the frame address), restores the saved
// UserContext and mask, and returns the signal number that was being
// handled (design §4.10: "sigreturn ... restores the saved UserContext
// and mask verbatim").
func SigReturn(th Thread, frameBase uintptr) (int, defs.Errno) {
	raw := make([]byte, sigFrameWireSize)
	if err := th.AddressSpace().User2K(raw, frameBase); err != 0 {
		return 0, err
	}
	r := bytes.NewReader(raw)
	saved := decodeContext(r)
	var mask, signum, sicode uint64
	binary.Read(r, binary.LittleEndian, &mask)
	binary.Read(r, binary.LittleEndian, &signum)
	binary.Read(r, binary.LittleEndian, &sicode)
	_ = sicode

	th.UserContext().RestoreFromSignal(saved)
	th.SetMask(SigSet(mask))
	return int(signum), 0
}
