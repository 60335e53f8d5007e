// Package console adapts the host process's own stdio to
// file.CharDevice, the driver contract fd 0/1/2 are wired to at boot
// (design §4.6, NewInitTask's "FDTable with fds 0/1/2 wired to
// console"). A hosted build has no UART to program, so this is the
// direct-map equivalent: os.Stdin/os.Stdout stand in for the serial
// line a bare-metal build would read and write instead.
package console

import (
	"os"

	"golang.org/x/sys/unix"

	"kernelx/internal/defs"
	"kernelx/internal/file"
)

// Host is the stdio-backed console device.
type Host struct{}

// New returns the console device the boot path wires to fds 0/1/2.
func New() Host { return Host{} }

// Raw puts the host terminal into raw mode -- no line discipline, no
// local echo -- so a byte written by a user thread's write(2) reaches
// the terminal exactly as written, the way writing a real UART's
// transmit register would. Returns the termios to hand back to
// Restore, and false if stdin isn't a terminal at all (piped input,
// common when kernelx runs under a test harness or CI).
func Raw() (*unix.Termios, bool) {
	fd := int(os.Stdin.Fd())
	saved, err := unix.IoctlGetTermios(fd, getTermiosIoctl)
	if err != nil {
		return nil, false
	}

	raw := *saved
	raw.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	raw.Oflag &^= unix.OPOST
	raw.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	raw.Cflag &^= unix.CSIZE | unix.PARENB
	raw.Cflag |= unix.CS8
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0

	if unix.IoctlSetTermios(fd, setTermiosIoctl, &raw) != nil {
		return nil, false
	}
	return saved, true
}

// Restore undoes Raw, returning the host terminal to the state it had
// before kernelx touched it.
func Restore(saved *unix.Termios) {
	unix.IoctlSetTermios(int(os.Stdin.Fd()), setTermiosIoctl, saved)
}

func (Host) Read(buf []byte) (int, defs.Errno) {
	n, err := os.Stdin.Read(buf)
	if n > 0 {
		return n, 0
	}
	if err != nil {
		return 0, 0 // EOF on the host terminal reads as an empty read, not an error
	}
	return 0, 0
}

func (Host) Write(buf []byte) (int, defs.Errno) {
	n, err := os.Stdout.Write(buf)
	if err != nil {
		return n, -defs.EIO
	}
	return n, 0
}

// Ioctl answers nothing: no line-discipline/tty control is modeled
// (design §1 Non-goals excludes tty job control).
func (Host) Ioctl(uintptr, uintptr) (uintptr, defs.Errno) { return 0, -defs.ENOTTY }

func (Host) Poll(want file.PollMask) file.PollMask {
	return want & (file.PollIn | file.PollOut)
}
