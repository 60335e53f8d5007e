package syscall

import "kernelx/internal/defs"

func init() {
	register(SYS_set_robust_list, sysSetRobustList)
	register(SYS_newuname, sysNewuname)
	register(SYS_getuid, sysGetuid)
	register(SYS_geteuid, sysGetuid)
	register(SYS_getgid, sysGetuid)
	register(SYS_getegid, sysGetuid)
	register(SYS_prlimit64, sysPrlimit64)
	register(SYS_rseq, sysRseq)
}

func sysSetRobustList(c *Context) (int64, defs.Errno) {
	c.TCB.RobustListHead = c.UPtr64(0)
	return 0, 0
}

// utsFields is the fixed 65-byte-per-field struct utsname layout
// newuname(2) writes; this kernel carries no separate hostname/domain
// state, so nodename and domainname are constants alongside the
// others.
var utsFields = [6]string{"kernelx", "kernelx", "1.0.0", "kernelx 1.0.0", "riscv64", "(none)"}

const utsFieldSize = 65

func sysNewuname(c *Context) (int64, defs.Errno) {
	va := c.UPtr64(0)
	for i, s := range utsFields {
		buf := make([]byte, utsFieldSize)
		copy(buf, s)
		if err := c.AS().K2User(va+uintptr(i*utsFieldSize), buf); err != 0 {
			return 0, err
		}
	}
	return 0, 0
}

// sysGetuid backs getuid/geteuid/getgid/getegid: this kernel has no
// multi-user identity model (design's Non-goals exclude a permissions
// layer beyond mode bits), so every id resolves to root's.
func sysGetuid(c *Context) (int64, defs.Errno) { return 0, 0 }

// rlimitInfinity is RLIM_INFINITY: every resource this kernel tracks
// (FD_MAX, BrkCap, StackMaxPage) is a compile-time constant rather
// than a per-process adjustable limit, so prlimit64 reports unbounded
// and silently ignores a new-limit request rather than pretending to
// enforce one.
const rlimitInfinity = ^uint64(0)

func sysPrlimit64(c *Context) (int64, defs.Errno) {
	oldVA := c.UPtr64(3)
	if oldVA == 0 {
		return 0, 0
	}
	if err := NewUPtr[uint64](c.AS(), oldVA).Write(rlimitInfinity); err != 0 {
		return 0, err
	}
	if err := NewUPtr[uint64](c.AS(), oldVA+8).Write(rlimitInfinity); err != 0 {
		return 0, err
	}
	return 0, 0
}

// sysRseq is left unimplemented: restartable sequences need a
// per-thread critical-section descriptor the scheduler consults on
// every preemption, which this cooperative, trap-driven design has no
// hook for. glibc treats ENOSYS as "rseq unavailable" and falls back.
func sysRseq(c *Context) (int64, defs.Errno) { return 0, -defs.ENOSYS }
