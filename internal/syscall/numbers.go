package syscall

// Syscall numbers, matched to the Linux riscv64 ABI the way the
// original kernel's syscall dispatch table keys on them (design
// §4.11). Grouped the same way the spec's matrix groups them:
// filesystem, task, memory management, IPC/signals, time, event.
const (
	// Filesystem
	SYS_getcwd     = 17
	SYS_dup        = 23
	SYS_dup2       = 24
	SYS_fcntl64    = 25
	SYS_ioctl      = 29
	SYS_mkdirat    = 34
	SYS_unlinkat   = 35
	SYS_chdir      = 49
	SYS_faccessat  = 48
	SYS_openat     = 56
	SYS_close      = 57
	SYS_pipe2      = 59
	SYS_getdents64 = 61
	SYS_lseek      = 62
	SYS_read       = 63
	SYS_write      = 64
	SYS_readv      = 65
	SYS_writev     = 66
	SYS_sendfile   = 71
	SYS_readlinkat = 78
	SYS_fstatat    = 79
	SYS_fstat      = 80
	SYS_utimensat  = 88
	SYS_renameat2  = 276

	// Task
	SYS_set_tid_address = 96
	SYS_sched_yield     = 124
	SYS_getpid          = 172
	SYS_gettid          = 178
	SYS_clone           = 220
	SYS_execve          = 221
	SYS_exit            = 93
	SYS_exit_group      = 94
	SYS_wait4           = 260

	// Memory management
	SYS_brk      = 214
	SYS_munmap   = 215
	SYS_mmap     = 222
	SYS_mprotect = 226

	// IPC and signals
	SYS_pipe           = 59 // pipe2(2); one handler, flags in the second argument
	SYS_kill           = 129
	SYS_tkill          = 130
	SYS_tgkill         = 131
	SYS_sigaltstack    = 132
	SYS_rt_sigsuspend  = 133
	SYS_rt_sigaction   = 134
	SYS_rt_sigprocmask = 135
	SYS_sigtimedwait   = 137
	SYS_rt_sigreturn   = 139
	SYS_futex          = 98 // not in the distilled dispatch table; added per internal/ksync's futex support
	SYS_shmget         = 194
	SYS_shmctl         = 195
	SYS_shmat          = 196
	SYS_shmdt          = 197

	// Misc
	SYS_set_robust_list = 99
	SYS_newuname        = 160
	SYS_getuid          = 174
	SYS_geteuid         = 175
	SYS_getgid          = 176
	SYS_getegid         = 177
	SYS_prlimit64       = 261
	SYS_rseq            = 293

	// Time and event
	SYS_clock_nanosleep = 115
	SYS_gettimeofday    = 169
	SYS_ppoll           = 73
)
