package uaccess

import (
	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/paging"
	"github.com/TorMartin-ops/nucleus/vm"
)

// CopyInString copies a NUL-terminated user string at va, byte by
// byte, up to maxlen-1 bytes, per spec §4.11: one more probe byte is
// read past that point to distinguish "the string fit" from
// "truncated", returning errno.ENAMETOOLONG in the latter case instead
// of silently truncating.
func CopyInString(as *paging.AddressSpace, mm *vm.MM, fa *mem.FrameAllocator, va mem.Va_t, maxlen int) (string, errno.Errno) {
	if maxlen <= 0 {
		return "", errno.EINVAL
	}
	out := make([]byte, 0, maxlen-1)
	for i := 0; ; i++ {
		probe, rc := New(as, mm, fa, va+mem.Va_t(i), 1, false)
		if rc != errno.Ok {
			return "", rc
		}
		var b [1]byte
		if n, rc := probe.CopyIn(b[:]); rc != errno.Ok || n != 1 {
			return "", errno.EFAULT
		}
		if b[0] == 0 {
			return string(out), errno.Ok
		}
		if i >= maxlen-1 {
			return "", errno.ENAMETOOLONG
		}
		out = append(out, b[0])
	}
}

// CopyInPath copies a path string using the shared MaxPathLen cap.
func CopyInPath(as *paging.AddressSpace, mm *vm.MM, fa *mem.FrameAllocator, va mem.Va_t) (string, errno.Errno) {
	return CopyInString(as, mm, fa, va, MaxPathLen)
}

// MaxArgv bounds the number of pointers execve's argv/envp arrays may
// contain, guarding against a hostile or buggy caller forcing an
// unbounded scan.
const MaxArgv = 256

// CopyInStringArray reads a NUL-terminated array of user string
// pointers (argv- or envp-shaped) at va: each 4-byte slot is a pointer
// to a NUL-terminated string capped at MaxArgLen, and the array itself
// ends at the first NULL pointer slot; an array with no NULL slot among
// its first MaxArgv entries fails with E2BIG (spec §4.15 execve
// "bounded by count and per-element length caps").
func CopyInStringArray(as *paging.AddressSpace, mm *vm.MM, fa *mem.FrameAllocator, va mem.Va_t) ([]string, errno.Errno) {
	var out []string
	for i := 0; i < MaxArgv; i++ {
		ptrVA := va + mem.Va_t(i*4)
		ptrBuf, rc := New(as, mm, fa, ptrVA, 4, false)
		if rc != errno.Ok {
			return nil, rc
		}
		var raw [4]byte
		if n, rc := ptrBuf.CopyIn(raw[:]); rc != errno.Ok || n != 4 {
			return nil, errno.EFAULT
		}
		strVA := mem.Va_t(uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24)
		if strVA == 0 {
			return out, errno.Ok
		}
		s, rc := CopyInString(as, mm, fa, strVA, MaxArgLen)
		if rc != errno.Ok {
			return nil, rc
		}
		out = append(out, s)
	}
	return nil, errno.E2BIG
}
