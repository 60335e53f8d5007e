// Package bpath canonicalizes slash-separated paths: collapsing "."
// components, resolving ".." lexically, and squashing repeated
// slashes. It does not touch the filesystem -- symbolic link chasing
// happens in internal/vfs during lookup, not here.
package bpath

import "kernelx/internal/ustr"

// Canonicalize rewrites p into a path with no "." components, no
// repeated slashes, and leading ".." components resolved against
// their preceding component where possible. The result always begins
// with '/' given an absolute input.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	abs := p.IsAbsolute()
	parts := split(p)
	out := make([]ustr.Ustr, 0, len(parts))
	for _, part := range parts {
		switch {
		case len(part) == 0, part.Isdot():
			continue
		case part.Isdotdot():
			if len(out) > 0 && !out[len(out)-1].Isdotdot() {
				out = out[:len(out)-1]
			} else if !abs {
				out = append(out, part)
			}
		default:
			out = append(out, part)
		}
	}
	ret := ustr.MkUstr()
	if abs {
		ret = append(ret, '/')
	}
	for i, part := range out {
		if i > 0 {
			ret = append(ret, '/')
		}
		ret = append(ret, part...)
	}
	if len(ret) == 0 {
		ret = ustr.MkUstrDot()
	}
	return ret
}

func split(p ustr.Ustr) []ustr.Ustr {
	var out []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				out = append(out, p[start:i])
			}
			start = i + 1
		}
	}
	return out
}
