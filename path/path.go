// Package path implements the kernel's absolute-path canonicalization
// rules that sys_stat/sys_chdir/sys_getdents and every other path-based
// syscall share (spec §4.15/§6). Grounded on biscuit's bpath/ustr
// path-join helpers, minus biscuit's byte-slice Ustr type: nothing here
// needs to mutate a path in place the way biscuit's raw uaccess-path
// reads did, so a plain Go string plus the standard library's "path"
// package (POSIX-slash semantics, not "path/filepath"'s OS-dependent
// ones) is the idiomatic fit.
package path

import (
	"strings"

	stdpath "path"
)

// MaxLen is the longest canonical path the kernel will accept, matching
// uaccess.MaxPathLen (spec §4.11's path policy cap).
const MaxLen = 4096

// Resolve joins rel against cwd (both already-canonical absolute paths
// unless rel itself is absolute) and returns the cleaned, absolute
// result: no "." or ".." segments, no trailing slash but for the root.
// It never touches the filesystem; a driver only learns a name is
// missing when it Looks it up.
func Resolve(cwd, rel string) string {
	if rel == "" {
		rel = "."
	}
	var joined string
	if strings.HasPrefix(rel, "/") {
		joined = rel
	} else {
		joined = stdpath.Join(cwd, rel)
	}
	clean := stdpath.Clean("/" + joined)
	return clean
}

// Split returns a path's parent directory and final element, the way
// callers building a new entry (mkdir, a file Create) need both halves.
func Split(p string) (dir, name string) {
	dir, name = stdpath.Split(p)
	dir = stdpath.Clean(dir)
	return dir, name
}

// Valid reports whether p is short enough and contains no NUL byte,
// the two policy checks every path-accepting syscall applies before
// ever calling Resolve (spec §4.11's size-cap rule, generalized from
// "buffer" to "path").
func Valid(p string) bool {
	if len(p) == 0 || len(p) > MaxLen {
		return false
	}
	return !strings.ContainsRune(p, 0)
}
