// Package diag provides call-site deduplication for kernel warnings,
// mirroring biscuit's caller.Distinct_caller_t: a hash of the current
// goroutine's call stack is recorded the first time it is seen so
// that a noisy warning site (e.g. a page-fault storm from one pid)
// logs once per distinct stack instead of once per occurrence.
package diag

import (
	"fmt"
	"runtime"
	"sync"
)

// DistinctCaller deduplicates warnings by call-stack identity.
type DistinctCaller struct {
	mu  sync.Mutex
	// Whitelist names call-stack functions that should never be
	// reported even the first time (e.g. a known-benign retry loop).
	Whitelist map[string]bool
	seen      map[uint64]bool
}

// Distinct reports whether the caller's current stack has not been
// seen before, returning a formatted trace the first time it's seen.
func (dc *DistinctCaller) Distinct() (bool, string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.seen == nil {
		dc.seen = make(map[uint64]bool)
	}

	var pcs []uintptr
	for sz, got := 32, 32; got >= sz; sz *= 2 {
		pcs = make([]uintptr, sz)
		got = runtime.Callers(3, pcs)
	}
	h := hashPCs(pcs)
	if dc.seen[h] {
		return false, ""
	}

	frames := runtime.CallersFrames(pcs)
	var trace string
	for {
		fr, more := frames.Next()
		if dc.Whitelist[fr.Function] {
			return false, ""
		}
		if trace == "" {
			trace = fmt.Sprintf("%s (%s:%d)\n", fr.Function, fr.File, fr.Line)
		} else {
			trace += fmt.Sprintf("\t%s (%s:%d)\n", fr.Function, fr.File, fr.Line)
		}
		if !more || fr.Function == "runtime.goexit" {
			break
		}
	}
	dc.seen[h] = true
	return true, trace
}

func hashPCs(pcs []uintptr) uint64 {
	var h uint64
	for _, pc := range pcs {
		h ^= uint64(pc)*1099511628211 + 14695981039346656037
	}
	return h
}
