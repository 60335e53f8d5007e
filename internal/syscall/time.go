package syscall

import (
	"time"

	"kernelx/internal/defs"
	"kernelx/internal/ksync"
	"kernelx/internal/sched"
)

func init() {
	register(SYS_clock_nanosleep, sysClockNanosleep)
	register(SYS_gettimeofday, sysGettimeofday)
}

// sleepTimer arms a Timer entry for every clock_nanosleep timeout
// (ppoll rechecks on pollInterval and does not use it). There is no platform tick interrupt driving Advance in this
// hosted build (that's the trap-pump boot wiring this module still
// lacks) -- each caller instead starts its own real-time goroutine
// that calls Advance at the moment its own deadline elapses, which is
// sufficient since every entry removes itself once woken.
var sleepTimer = ksync.NewTimer[*sched.Task]()

func readTimespec(c *Context, va uintptr) (time.Duration, defs.Errno) {
	sec, err := NewUPtr[int64](c.AS(), va).Read()
	if err != 0 {
		return 0, err
	}
	nsec, err := NewUPtr[int64](c.AS(), va+8).Read()
	if err != 0 {
		return 0, err
	}
	if sec < 0 || nsec < 0 || nsec >= 1_000_000_000 {
		return 0, -defs.EINVAL
	}
	return time.Duration(sec)*time.Second + time.Duration(nsec), 0
}

// sysClockNanosleep implements clock_nanosleep(2): every clockid is
// treated as monotonic (this kernel tracks no separate wall/monotonic
// split beyond what gettimeofday reports) and TIMER_ABSTIME is
// unsupported -- request is always a relative duration.
func sysClockNanosleep(c *Context) (int64, defs.Errno) {
	flags := int(c.Args[1])
	const timerAbstime = 1
	if flags&timerAbstime != 0 {
		return 0, -defs.ENOSYS
	}
	d, err := readTimespec(c, c.UPtr64(2))
	if err != 0 {
		return 0, err
	}

	task := c.TCB.Task
	deadline := time.Now().Add(d).UnixNano()
	go func() {
		time.Sleep(d)
		sleepTimer.Advance(time.Now().UnixNano())
	}()
	sleepTimer.Register(task, deadline, ksync.EventTimeout{})
	if _, isTimeout := task.TakeWakeupEvent().(ksync.EventTimeout); !isTimeout {
		return 0, -defs.EINTR
	}
	return 0, 0
}

func sysGettimeofday(c *Context) (int64, defs.Errno) {
	tvVA := c.UPtr64(0)
	if tvVA == 0 {
		return 0, 0
	}
	now := time.Now().UnixMicro()
	sec := uint64(now / 1_000_000)
	usec := uint64(now % 1_000_000)
	if err := NewUPtr[uint64](c.AS(), tvVA).Write(sec); err != 0 {
		return 0, err
	}
	return 0, NewUPtr[uint64](c.AS(), tvVA+8).Write(usec)
}
