package syscall

import (
	"kernelx/internal/defs"
	"kernelx/internal/diag"
	"kernelx/internal/klog"
	"kernelx/internal/proc"
	"kernelx/internal/vm"
)

// unimplemented deduplicates the "no such syscall" warning by call
// site the way the original's syscall_table! macro's ENOSYS arm does,
// grounded on internal/diag's caller.Distinct_caller_t port.
var unimplemented = &diag.DistinctCaller{}

// Context carries everything a handler needs out of the trap frame: the
// calling thread, the raw syscall number, and its up-to-seven argument
// words (design §4.11: "(num, args[0..6])").
type Context struct {
	TCB  *proc.TCB
	Num  uint64
	Args [7]uint64
}

func (c *Context) AS() *vm.AddressSpace { return c.TCB.PCB.AS }

func (c *Context) UPtr64(i int) uintptr { return uintptr(c.Args[i]) }
func (c *Context) I64(i int) int64      { return int64(c.Args[i]) }
func (c *Context) U32(i int) uint32     { return uint32(c.Args[i]) }

func (c *Context) Str(i int) (string, defs.Errno) {
	return NewUString(c.AS(), c.UPtr64(i)).Read()
}

// handler is a typed syscall entry point; handlers return the value to
// place in a0 (already negated on error, per convention) paired with
// zero, or a bare Errno when there is no success value to carry.
type handler func(*Context) (int64, defs.Errno)

var table = map[uint64]handler{}

func register(num uint64, h handler) { table[num] = h }

// Dispatch routes num to its registered handler and returns the value
// the trap-return path writes into a0: the non-negative result on
// success, or the negated errno on failure (design §4.11: "on error,
// the negated errno is returned to user space").
//
// Before returning, it gives the calling thread a chance to take a
// pending signal (design §4.10) -- the hosted build's stand-in for a
// real kernel's "check signals before sret", since a syscall return is
// the one kernel/user boundary every thread reliably crosses. A
// handler invocation rewrites c.TCB.UserCtx in place; SYS_rt_sigreturn
// is exempt since it has *just* restored that same UserCtx from a
// sigframe and re-running delivery on top of it would be wrong.
func Dispatch(c *Context) int64 {
	h, ok := table[c.Num]
	if !ok {
		if distinct, trace := unimplemented.Distinct(); distinct {
			klog.Sys.WithField("num", c.Num).Warn("unsupported syscall\n" + trace)
		}
		return int64(-defs.ENOSYS)
	}
	val, err := h(c)
	if c.Num != SYS_rt_sigreturn {
		c.TCB.DeliverPending()
	}
	if err != 0 {
		return int64(err)
	}
	return val
}
