// fs.go implements the path- and metadata-based syscalls: mkdir,
// rmdir, unlink, stat, chdir, getcwd, getdents. Spec §9's Open
// Questions mark stat/chdir/getdents as undefined stubs in the source;
// DESIGN.md's resolution implements them against vfs+path rather than
// leaving them -ENOSYS.
package syscall

import (
	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/path"
	"github.com/TorMartin-ops/nucleus/proc"
	"github.com/TorMartin-ops/nucleus/uaccess"
)

// resolvePathArg copies and validates a path argument and resolves it
// against p's cwd, the shared first step of every path-based syscall
// here.
func resolvePathArg(k *Kernel, p *proc.PCB, va mem.Va_t) (string, errno.Errno) {
	raw, rc := uaccess.CopyInPath(p.MM.AS, p.MM, k.Table.FA(), va)
	if rc != errno.Ok {
		return "", rc
	}
	if !path.Valid(raw) {
		return "", errno.ENAMETOOLONG
	}
	return path.Resolve(p.Cwd, raw), errno.Ok
}

func sysMkdir(k *Kernel, p *proc.PCB, pathVA uint32) (int32, errno.Errno) {
	resolved, rc := resolvePathArg(k, p, mem.Va_t(pathVA))
	if rc != errno.Ok {
		return 0, rc
	}
	return 0, k.FS.Mkdir(resolved)
}

func sysRmdir(k *Kernel, p *proc.PCB, pathVA uint32) (int32, errno.Errno) {
	resolved, rc := resolvePathArg(k, p, mem.Va_t(pathVA))
	if rc != errno.Ok {
		return 0, rc
	}
	return 0, k.FS.Rmdir(resolved)
}

func sysUnlink(k *Kernel, p *proc.PCB, pathVA uint32) (int32, errno.Errno) {
	resolved, rc := resolvePathArg(k, p, mem.Va_t(pathVA))
	if rc != errno.Ok {
		return 0, rc
	}
	return 0, k.FS.Unlink(resolved)
}

// statWireSize is the on-wire layout sys_stat writes into the user
// buffer: an 8-byte little-endian size followed by a single
// is-directory byte. There is no userland libc in this simulator to
// agree on struct stat's real layout with, so this is the core's own
// minimal encoding of vfs.Stat.
const statWireSize = 9

func sysStat(k *Kernel, p *proc.PCB, pathVA, statVA uint32) (int32, errno.Errno) {
	resolved, rc := resolvePathArg(k, p, mem.Va_t(pathVA))
	if rc != errno.Ok {
		return 0, rc
	}
	v, rc := k.FS.Lookup(resolved)
	if rc != errno.Ok {
		return 0, rc
	}
	st, rc := v.Stat()
	if rc != errno.Ok {
		return 0, rc
	}

	var buf [statWireSize]byte
	putU64(buf[0:8], uint64(st.Size))
	if st.IsDir {
		buf[8] = 1
	}

	out, rc := uaccess.New(p.MM.AS, p.MM, k.Table.FA(), mem.Va_t(statVA), statWireSize, true)
	if rc != errno.Ok {
		return 0, rc
	}
	if n, rc := out.CopyOut(buf[:]); rc != errno.Ok || n != statWireSize {
		return 0, errno.EFAULT
	}
	return 0, errno.Ok
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func sysChdir(k *Kernel, p *proc.PCB, pathVA uint32) (int32, errno.Errno) {
	resolved, rc := resolvePathArg(k, p, mem.Va_t(pathVA))
	if rc != errno.Ok {
		return 0, rc
	}
	v, rc := k.FS.Lookup(resolved)
	if rc != errno.Ok {
		return 0, rc
	}
	st, rc := v.Stat()
	if rc != errno.Ok {
		return 0, rc
	}
	if !st.IsDir {
		return 0, errno.ENOTDIR
	}
	p.Cwd = resolved
	return 0, errno.Ok
}

// sysGetcwd implements getcwd(buf, size): copies the caller's current
// working directory, NUL-terminated, into the user buffer, failing
// with ERANGE if size is too small to hold it (matching POSIX
// getcwd(3)'s own error for an undersized buffer).
func sysGetcwd(k *Kernel, p *proc.PCB, bufVA, size uint32) (int32, errno.Errno) {
	cwd := p.Cwd
	need := len(cwd) + 1
	if int(size) < need {
		return 0, errno.ERANGE
	}

	out, rc := uaccess.New(p.MM.AS, p.MM, k.Table.FA(), mem.Va_t(bufVA), need, true)
	if rc != errno.Ok {
		return 0, rc
	}
	wire := make([]byte, need)
	copy(wire, cwd)
	if n, rc := out.CopyOut(wire); rc != errno.Ok || n != need {
		return 0, errno.EFAULT
	}
	return int32(need - 1), errno.Ok
}

// direntWireSize is one getdents entry's fixed on-wire size: a
// one-byte is-directory flag, a one-byte name length, and up to
// maxNameLen name bytes (unused tail ignored by the reader, which
// knows the real length from the second byte).
const maxNameLen = 61
const direntWireSize = 2 + maxNameLen

// sysGetdents implements getdents(fd, buf, count): it reads fd's
// vnode directory listing afresh on every call, resumes at the FD
// slot's directory cursor (OpenFile.DirCursor), and
// serialises as many whole entries as fit in count bytes of the user
// buffer, returning the byte count written, or 0 once every entry has
// been delivered.
func sysGetdents(k *Kernel, p *proc.PCB, fd, bufVA, count uint32) (int32, errno.Errno) {
	of, rc := p.FDs.Get(int(int32(fd)))
	if rc != errno.Ok {
		return 0, rc
	}
	ents, rc := of.Vnode().Readdir()
	if rc != errno.Ok {
		return 0, rc
	}

	cursor := of.DirCursor()
	if cursor >= len(ents) {
		return 0, errno.Ok
	}

	maxEntries := int(count) / direntWireSize
	if maxEntries == 0 {
		return 0, errno.EINVAL
	}

	var wire []byte
	n := 0
	for cursor < len(ents) && n < maxEntries {
		e := ents[cursor]
		rec := make([]byte, direntWireSize)
		if e.IsDir {
			rec[0] = 1
		}
		nameLen := len(e.Name)
		if nameLen > maxNameLen {
			nameLen = maxNameLen
		}
		rec[1] = byte(nameLen)
		copy(rec[2:2+nameLen], e.Name)
		wire = append(wire, rec...)
		cursor++
		n++
	}

	out, rc := uaccess.New(p.MM.AS, p.MM, k.Table.FA(), mem.Va_t(bufVA), len(wire), true)
	if rc != errno.Ok {
		return 0, rc
	}
	written, rc := out.CopyOut(wire)
	if rc != errno.Ok || written != len(wire) {
		return 0, errno.EFAULT
	}
	of.SetDirCursor(cursor)
	return int32(written), errno.Ok
}
