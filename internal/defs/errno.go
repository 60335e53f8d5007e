// Package defs holds the identifiers shared across every kernel
// subsystem: error codes, device numbers, open/clone flags, and the
// thread/process id types. Nothing in here depends on any other
// kernelx package, by design -- it sits below everything else.
package defs

import "fmt"

// Errno is a kernel-internal error code. Negative Errno values are what
// the syscall layer hands back to user space (see internal/syscall).
// Zero means success.
type Errno int

// Error implements the error interface so Errno composes with
// errors.Is/errors.As and fmt.Errorf("%w", ...).
func (e Errno) Error() string {
	if s, ok := errnoNames[e]; ok {
		return s
	}
	return fmt.Sprintf("errno %d", int(e))
}

// Logical error kinds from the design's error-handling section. Values
// are chosen to match the Linux errno numbering the syscall layer must
// reproduce for a glibc-class userspace.
const (
	EPERM   Errno = 1
	ENOENT  Errno = 2
	ESRCH   Errno = 3
	EINTR   Errno = 4
	EIO     Errno = 5
	ENXIO   Errno = 6
	EBADF   Errno = 9
	ECHILD  Errno = 10
	EAGAIN  Errno = 11
	ENOMEM  Errno = 12
	EACCES  Errno = 13
	EFAULT  Errno = 14
	EEXIST  Errno = 17
	EXDEV   Errno = 18
	ENOTDIR Errno = 20
	EISDIR  Errno = 21
	EINVAL  Errno = 22
	ENFILE  Errno = 23
	EMFILE  Errno = 24
	ENOTTY  Errno = 25
	EFBIG   Errno = 27
	ENOSPC  Errno = 28
	ESPIPE  Errno = 29
	EROFS   Errno = 30
	EPIPE   Errno = 32
	ENAMETOOLONG Errno = 36
	ENOSYS       Errno = 38
	ENOTEMPTY    Errno = 39
	ENOTSUP      Errno = 95
	ETIMEDOUT    Errno = 110
	ENOEXEC      Errno = 8
	EBUSY        Errno = 16
	EIDRM        Errno = 43
	ERANGE       Errno = 34
)

var errnoNames = map[Errno]string{
	EPERM: "operation not permitted", ENOENT: "no such file or directory",
	ESRCH: "no such process", EINTR: "interrupted system call",
	EIO: "i/o error", ENXIO: "no such device or address",
	EBADF: "bad file descriptor", ECHILD: "no child processes",
	EAGAIN: "resource temporarily unavailable", ENOMEM: "out of memory",
	EACCES: "permission denied", EFAULT: "bad address",
	EEXIST: "file exists", EXDEV: "cross-device link",
	ENOTDIR: "not a directory", EISDIR: "is a directory",
	EINVAL: "invalid argument", ENFILE: "too many open files in system",
	EMFILE: "too many open files", ENOTTY: "not a tty",
	EFBIG: "file too large", ENOSPC: "no space left on device",
	ESPIPE: "illegal seek", EROFS: "read-only file system",
	EPIPE: "broken pipe", ENAMETOOLONG: "file name too long",
	ENOSYS: "function not implemented", ENOTEMPTY: "directory not empty",
	ENOTSUP: "operation not supported", ETIMEDOUT: "timed out",
	ENOEXEC: "exec format error", EBUSY: "device or resource busy",
	EIDRM: "identifier removed", ERANGE: "result too large",
}

// Tid_t identifies a single kernel thread; Pid_t identifies a thread
// group (the tid of its leader).
type Tid_t int
type Pid_t int
