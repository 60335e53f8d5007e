// Command kernelx boots the hosted kernel: it wires every subsystem
// package under internal/ into one running instance, the way a real
// RISC-V image's entry.S would wire them on bare metal, then starts
// the scheduler and waits for a shutdown signal.
//
// This is a hosted build (internal/arch.HostArch, design's stated
// hosted-build path): there is no RISC-V instruction decoder anywhere
// in this tree, so a loaded user binary's actual instructions are
// never executed. What IS real and exercised end-to-end is everything
// around that: frame allocation, address spaces, the VFS, the process
// table, the scheduler's cooperative baton, and every syscall handler
// reachable through internal/syscall.Dispatch -- precisely the pieces
// internal/proc's own test suite drives by calling syscalls directly
// from a goroutine standing in for user mode (see proc_test.go). A
// thread that never issues a syscall simply parks in TCB.RunUntilKilled
// until Kill wakes it, which Exit does for the remaining threads of a
// thread group whose process is exiting.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"kernelx/internal/arch"
	"kernelx/internal/bootcfg"
	"kernelx/internal/console"
	"kernelx/internal/defs"
	"kernelx/internal/klog"
	"kernelx/internal/mem"
	"kernelx/internal/proc"
	"kernelx/internal/sched"
	"kernelx/internal/vfs"
	"kernelx/internal/vfs/tmpfs"
)

// physPages sizes the hosted physical memory pool: 64k pages of 4KiB
// each, 256MiB, comfortably more than any test workload needs and
// small enough to allocate eagerly at boot.
const physPages = 64 * 1024

func main() {
	manifestPath := flag.String("boot-manifest", "", "path to a TOML boot manifest (defaults baked in if omitted)")
	verbose := flag.Bool("v", false, "debug-level logging")
	nharts := flag.Int("harts", runtime.NumCPU(), "number of scheduler harts to run")
	flag.Parse()

	if *verbose {
		klog.SetLevel(logrus.DebugLevel)
	}

	cfg := bootcfg.Default()
	if *manifestPath != "" {
		data, err := os.ReadFile(*manifestPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "kernelx: reading boot manifest:", err)
			os.Exit(1)
		}
		cfg, err = bootcfg.Parse(data)
		if err != nil {
			fmt.Fprintln(os.Stderr, "kernelx:", err)
			os.Exit(1)
		}
	}

	if *nharts < 1 {
		*nharts = 1
	}

	alloc := mem.New(mem.Frame(1), physPages, *nharts)

	ha := arch.NewHostArch(*nharts)
	ha.Init()
	ha.SetupCores(*nharts)

	root := vfs.New()
	if cfg.RootFSType != "tmpfs" {
		klog.VFS.WithField("fstype", cfg.RootFSType).Warn("no on-disk filesystem driver in this build; mounting tmpfs instead")
	}
	if err := root.Mount("/", tmpfs.FileSystem{}, nil); err != 0 {
		klog.VFS.WithField("errno", err).Fatal("mounting root filesystem")
	}

	cons := console.New()
	if saved, ok := console.Raw(); ok {
		defer console.Restore(saved)
	}
	rq := sched.NewReadyQueue()

	initTCB, err := proc.NewInitTask(rq, alloc, root, cons, func(self *proc.TCB) {
		bootInit(self, root, cfg)
	})
	if err != 0 {
		klog.Proc.WithField("errno", err).Fatal("constructing init task")
	}

	klog.Boot.WithFields(logrus.Fields{
		"harts":    *nharts,
		"init_pid": initTCB.Tid(),
		"pages":    physPages,
	}).Info("kernelx booting")

	// One goroutine per hart, tracked through an errgroup so shutdown
	// can wait for every Processor.RunLoop to actually drain and
	// return (rq.Close() alone only unblocks them) rather than racing
	// os.Exit against in-flight task handoffs.
	var harts errgroup.Group
	for i := 0; i < *nharts; i++ {
		p := sched.NewProcessor(i, rq)
		harts.Go(func() error {
			p.RunLoop()
			return nil
		})
	}

	wait := make(chan os.Signal, 1)
	signal.Notify(wait, syscall.SIGINT, syscall.SIGTERM)
	sig := <-wait
	klog.Boot.WithField("signal", sig).Info("kernelx shutting down")
	rq.Close()
	harts.Wait()
}

// bootInit is the init task's body (design §4.6's "the first process"):
// it resolves InitPath against the mounted root, execs it if found,
// and otherwise falls back to idling -- the hosted build's substitute
// for a panic when PID 1 can't be started, since this tree has no
// real fault/reboot path to fall into instead.
func bootInit(self *proc.TCB, root *vfs.VFS, cfg bootcfg.Config) {
	dentry, lerr := root.Lookup(self.PCB.Cwd, cfg.InitPath)
	if lerr != 0 {
		klog.Proc.WithFields(logrus.Fields{"path": cfg.InitPath, "errno": lerr}).
			Warn("init binary not found on root filesystem; idling")
		self.RunUntilKilled()
		return
	}

	ino, ierr := dentry.Inode()
	if ierr != 0 {
		klog.Proc.WithField("errno", ierr).Warn("init binary has no backing inode; idling")
		self.RunUntilKilled()
		return
	}

	openInterp := func(path string) (vfs.Inode, defs.Errno) {
		d, err := root.Lookup(root.Root(), path)
		if err != 0 {
			return nil, err
		}
		return d.Inode()
	}

	if err := proc.Exec(self, inodeReaderAt{ino}, openInterp, []string{cfg.InitPath}, nil); err != 0 {
		klog.Proc.WithField("errno", err).Warn("exec of init binary failed; idling")
	}

	// Nothing in this hosted build decodes RISC-V instructions, so
	// there is no interpreter loop to hand control to even after a
	// successful exec -- self.UserCtx now holds a legitimate entry
	// point and stack, exactly what a bare-metal trap-return would
	// consume, but consuming it is out of scope here (see the package
	// doc comment). The thread rests until killed, same as any other
	// thread with nothing scheduled.
	self.RunUntilKilled()
}

// inodeReaderAt adapts a vfs.Inode to io.ReaderAt, mirroring
// internal/proc's own unexported inodeReaderAt (elfload.go) -- this
// one exists at the boot layer because that one is unexported and
// execve(2)'s actual fd-to-inode resolution otherwise belongs to
// internal/syscall, not cmd/kernelx.
type inodeReaderAt struct{ ino vfs.Inode }

func (r inodeReaderAt) ReadAt(buf []byte, off int64) (int, error) {
	n, errno := r.ino.ReadAt(buf, off)
	if errno != 0 && n == 0 {
		return 0, fmt.Errorf("read inode: errno %d", errno)
	}
	return n, nil
}
