// Package syscall implements the numeric dispatch table and per-call
// handlers (design §4.11): a switch on (num, args[0..6]) routing to a
// typed handler, with every user-memory access going through the
// UPtr/UArray/UBuffer/UString wrappers in this file so a call site can
// never forget the copy_{to,from}_user step.
package syscall

import (
	"unsafe"

	"kernelx/internal/defs"
	"kernelx/internal/vm"
)

// UPtr is a user-space pointer to a single fixed-size value of type T,
// read or written via the caller's AddressSpace (design §4.11:
// "UPtr<T> ... perform per-call copy_{to,from}_user").
type UPtr[T any] struct {
	as *vm.AddressSpace
	va uintptr
}

func NewUPtr[T any](as *vm.AddressSpace, va uintptr) UPtr[T] { return UPtr[T]{as: as, va: va} }

func (p UPtr[T]) Valid() bool { return p.va != 0 }

func (p UPtr[T]) Read() (T, defs.Errno) {
	var v T
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v))
	if err := p.as.User2K(buf, p.va); err != 0 {
		return v, err
	}
	return v, 0
}

func (p UPtr[T]) Write(v T) defs.Errno {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v))
	return p.as.K2User(p.va, buf)
}

// UArray is a user-space pointer to n contiguous values of type T.
type UArray[T any] struct {
	as *vm.AddressSpace
	va uintptr
	n  int
}

func NewUArray[T any](as *vm.AddressSpace, va uintptr, n int) UArray[T] {
	return UArray[T]{as: as, va: va, n: n}
}

func (a UArray[T]) Len() int { return a.n }

func (a UArray[T]) At(i int) UPtr[T] {
	var zero T
	return UPtr[T]{as: a.as, va: a.va + uintptr(i)*unsafe.Sizeof(zero)}
}

// UBuffer is a raw user byte range, the staging ground for read/write
// family syscalls.
type UBuffer struct {
	as *vm.AddressSpace
	va uintptr
	n  int
}

func NewUBuffer(as *vm.AddressSpace, va uintptr, n int) UBuffer {
	return UBuffer{as: as, va: va, n: n}
}

func (b UBuffer) Len() int { return b.n }

// CopyOut copies the user range into dst (used before a write(2)-class
// syscall hands the bytes to a FileOps.Write).
func (b UBuffer) CopyOut(dst []byte) defs.Errno {
	if len(dst) > b.n {
		dst = dst[:b.n]
	}
	return b.as.User2K(dst, b.va)
}

// CopyIn copies src into the user range (used after a read(2)-class
// syscall has bytes to deliver).
func (b UBuffer) CopyIn(src []byte) defs.Errno {
	if len(src) > b.n {
		src = src[:b.n]
	}
	return b.as.K2User(b.va, src)
}

// UString is a user-space NUL-terminated string pointer.
type UString struct {
	as *vm.AddressSpace
	va uintptr
}

func NewUString(as *vm.AddressSpace, va uintptr) UString { return UString{as: as, va: va} }

func (s UString) Read() (string, defs.Errno) {
	if s.va == 0 {
		return "", -defs.EFAULT
	}
	return s.as.UserString(s.va)
}
