// Package ustr is the kernel's path/name string type: a byte slice
// with the handful of operations pathname resolution needs, kept
// distinct from Go's string so kernel code never pays for a UTF-8
// decode it doesn't need.
package ustr

// Ustr is an immutable-by-convention path or name component.
type Ustr []uint8

// MkUstr returns an empty Ustr.
func MkUstr() Ustr { return Ustr{} }

// MkUstrRoot returns the Ustr for "/".
func MkUstrRoot() Ustr { return Ustr("/") }

// MkUstrDot returns the Ustr for ".".
func MkUstrDot() Ustr { return Ustr(".") }

// DotDot is a reusable Ustr for "..".
var DotDot = Ustr{'.', '.'}

// MkUstrSlice truncates buf at the first NUL byte.
func MkUstrSlice(buf []uint8) Ustr {
	for i, b := range buf {
		if b == 0 {
			return buf[:i]
		}
	}
	return buf
}

// Isdot reports whether us is exactly ".".
func (us Ustr) Isdot() bool { return len(us) == 1 && us[0] == '.' }

// Isdotdot reports whether us is exactly "..".
func (us Ustr) Isdotdot() bool { return len(us) == 2 && us[0] == '.' && us[1] == '.' }

// Eq reports byte-wise equality with s.
func (us Ustr) Eq(s Ustr) bool {
	if len(us) != len(s) {
		return false
	}
	for i, v := range us {
		if v != s[i] {
			return false
		}
	}
	return true
}

// Extend appends '/' + p and returns a new Ustr.
func (us Ustr) Extend(p Ustr) Ustr {
	tmp := make(Ustr, len(us), len(us)+1+len(p))
	copy(tmp, us)
	tmp = append(tmp, '/')
	return append(tmp, p...)
}

// ExtendStr is Extend for a Go string component.
func (us Ustr) ExtendStr(p string) Ustr { return us.Extend(Ustr(p)) }

// IsAbsolute reports whether us begins with '/'.
func (us Ustr) IsAbsolute() bool { return len(us) > 0 && us[0] == '/' }

// IndexByte returns the index of b in us, or -1.
func (us Ustr) IndexByte(b uint8) int {
	for i, v := range us {
		if v == b {
			return i
		}
	}
	return -1
}

// String renders us as a Go string, for logging and error messages.
func (us Ustr) String() string { return string(us) }
