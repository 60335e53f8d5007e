package syscall

import "testing"

func TestSplitPathCanonicalizesBeforeSplitting(t *testing.T) {
	cases := []struct {
		in        string
		dir, base string
	}{
		{"/foo", "/", "foo"},
		{"/foo/bar", "/foo", "bar"},
		{"bar", ".", "bar"},
		{"/foo//bar/./baz", "/foo/bar", "baz"},
		{"/a/b/../c", "/a", "c"},
	}
	for _, c := range cases {
		dir, base := splitPath(c.in)
		if dir != c.dir || base != c.base {
			t.Errorf("splitPath(%q) = (%q, %q), want (%q, %q)", c.in, dir, base, c.dir, c.base)
		}
	}
}
