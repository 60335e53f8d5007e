// Package klog wires structured logging for every kernel subsystem
// through a shared logrus.Logger, one tagged *logrus.Entry per
// subsystem so log lines can be filtered by component the way
// biscuit's ad hoc fmt.Printf call sites never could be.
package klog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts the verbosity of every subsystem logger at once.
func SetLevel(lvl logrus.Level) { base.SetLevel(lvl) }

// For returns the tagged entry for a named subsystem.
func For(subsystem string) *logrus.Entry {
	return base.WithField("subsys", subsystem)
}

// Well-known per-subsystem loggers, one per component in §2's table.
var (
	Mem   = For("mem")
	VM    = For("vm")
	VFS   = For("vfs")
	Proc  = For("proc")
	Sched = For("sched")
	Sync  = For("sync")
	Sig   = For("sig")
	Sys   = For("syscall")
	IPC   = For("ipc")
	Boot  = For("boot")
)
