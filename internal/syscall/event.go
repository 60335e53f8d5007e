package syscall

import (
	"time"

	"kernelx/internal/defs"
	"kernelx/internal/file"
)

func init() {
	register(SYS_ppoll, sysPpoll)
}

const pollfdWireSize = 8 // {fd int32, events int16, revents int16}

// pollInterval bounds how long a blocking ppoll sleeps between
// readiness checks. There is no per-file waiter registration wiring
// readiness events back to a parked task (internal/ipc's pipes expose
// no waker callback that FileOps.Poll could drive) -- this polls
// instead of truly blocking, which is observably correct but busier
// than a real implementation would be.
const pollInterval = 2 * time.Millisecond

func readPollfds(c *Context, va uintptr, n int) ([]int32, []uint16, defs.Errno) {
	fds := make([]int32, n)
	events := make([]uint16, n)
	for i := 0; i < n; i++ {
		base := va + uintptr(i*pollfdWireSize)
		fd, err := NewUPtr[int32](c.AS(), base).Read()
		if err != 0 {
			return nil, nil, err
		}
		ev, err := NewUPtr[uint16](c.AS(), base+4).Read()
		if err != 0 {
			return nil, nil, err
		}
		fds[i] = fd
		events[i] = ev
	}
	return fds, events, 0
}

func pollOnce(c *Context, fds []int32, events []uint16) ([]uint16, int) {
	revents := make([]uint16, len(fds))
	ready := 0
	for i, fd := range fds {
		if fd < 0 {
			continue
		}
		f, err := c.TCB.PCB.Files.Get(int(fd))
		if err != 0 {
			revents[i] = uint16(file.PollErr)
			ready++
			continue
		}
		got := f.Poll(file.PollMask(events[i]))
		if got != 0 {
			revents[i] = uint16(got)
			ready++
		}
	}
	return revents, ready
}

// sysPpoll implements ppoll(2): polls every fd once, and if none are
// ready and a timeout (or no timeout, meaning "forever") was
// requested, rechecks on pollInterval until either a descriptor
// becomes ready or the deadline passes.
func sysPpoll(c *Context) (int64, defs.Errno) {
	ufdsVA := c.UPtr64(0)
	nfds := int(c.Args[1])
	timeoutVA := c.UPtr64(2)

	if nfds == 0 {
		return 0, 0
	}
	if ufdsVA == 0 {
		return 0, -defs.EINVAL
	}

	fds, events, err := readPollfds(c, ufdsVA, nfds)
	if err != 0 {
		return 0, err
	}

	var deadline time.Time
	hasDeadline := false
	if timeoutVA != 0 {
		d, terr := readTimespec(c, timeoutVA)
		if terr != 0 {
			return 0, terr
		}
		deadline = time.Now().Add(d)
		hasDeadline = true
	}

	for {
		revents, ready := pollOnce(c, fds, events)
		if ready > 0 || (hasDeadline && !time.Now().Before(deadline)) {
			for i := range fds {
				base := ufdsVA + uintptr(i*pollfdWireSize)
				if werr := NewUPtr[uint16](c.AS(), base+6).Write(revents[i]); werr != 0 {
					return 0, werr
				}
			}
			return int64(ready), 0
		}
		time.Sleep(pollInterval)
	}
}
