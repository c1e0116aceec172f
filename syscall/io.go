// io.go implements spec §4.12's read/write syscalls plus the
// descriptor-table calls (open/close/lseek/dup2) that set up and tear
// down what read/write operate on. Read and write both chunk the
// user buffer at MaxRWChunkSize and apply the "stop on first error
// once progress has been made" partial-success policy spec §4.12
// describes.
package syscall

import (
	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/path"
	"github.com/TorMartin-ops/nucleus/proc"
	"github.com/TorMartin-ops/nucleus/uaccess"
)

// sysRead implements read(fd, buf, count): copy at most count bytes
// from fd into the user buffer at bufVA, in chunks of at most
// MaxRWChunkSize, stopping early on EOF (a short underlying read) or
// on the first error once some progress has already been made.
func sysRead(k *Kernel, p *proc.PCB, fd, bufVA, count uint32) (int32, errno.Errno) {
	n := int32(count)
	if n < 0 {
		return 0, errno.EINVAL
	}
	if n == 0 {
		return 0, errno.Ok
	}
	of, rc := p.FDs.Get(int(int32(fd)))
	if rc != errno.Ok {
		return 0, rc
	}

	bounceSize := int(n)
	if bounceSize > MaxRWChunkSize {
		bounceSize = MaxRWChunkSize
	}
	bounce := make([]byte, bounceSize)

	var done int32
	for done < n {
		want := int(n - done)
		if want > MaxRWChunkSize {
			want = MaxRWChunkSize
		}

		nread, rc := of.Read(bounce[:want])
		if rc != errno.Ok {
			if done > 0 {
				return done, errno.Ok
			}
			return 0, rc
		}
		if nread == 0 {
			break // EOF
		}

		out, rc := uaccess.New(p.MM.AS, p.MM, k.Table.FA(), mem.Va_t(bufVA)+mem.Va_t(done), nread, true)
		if rc != errno.Ok {
			if done > 0 {
				return done, errno.Ok
			}
			return 0, rc
		}
		copied, rc := out.CopyOut(bounce[:nread])
		done += int32(copied)
		if rc != errno.Ok || copied < nread {
			if done > 0 {
				return done, errno.Ok
			}
			return 0, errno.EFAULT
		}
		if nread < want {
			break // short underlying read; don't force another chunk
		}
	}
	return done, errno.Ok
}

// sysWrite implements write(fd, buf, count): copy at most count bytes
// from the user buffer at bufVA into fd, chunked at MaxRWChunkSize. If
// the user copy-in itself faults partway through a chunk, the bytes
// that did copy are still written through before reporting progress,
// per spec §4.12 step 3.
func sysWrite(k *Kernel, p *proc.PCB, fd, bufVA, count uint32) (int32, errno.Errno) {
	n := int32(count)
	if n < 0 {
		return 0, errno.EINVAL
	}
	if n == 0 {
		return 0, errno.Ok
	}
	of, rc := p.FDs.Get(int(int32(fd)))
	if rc != errno.Ok {
		return 0, rc
	}

	bounceSize := int(n)
	if bounceSize > MaxRWChunkSize {
		bounceSize = MaxRWChunkSize
	}
	bounce := make([]byte, bounceSize)

	var done int32
	for done < n {
		want := int(n - done)
		if want > MaxRWChunkSize {
			want = MaxRWChunkSize
		}

		in, rc := uaccess.New(p.MM.AS, p.MM, k.Table.FA(), mem.Va_t(bufVA)+mem.Va_t(done), want, false)
		faulted := rc != errno.Ok
		var avail int
		if !faulted {
			avail, rc = in.CopyIn(bounce[:want])
			if rc != errno.Ok {
				faulted = true
			}
		}
		if avail == 0 {
			if done > 0 {
				return done, errno.Ok
			}
			return 0, errno.EFAULT
		}

		nwrote, wrc := of.Write(bounce[:avail])
		done += int32(nwrote)
		if wrc != errno.Ok {
			if done > 0 {
				return done, errno.Ok
			}
			return 0, wrc
		}
		if faulted || nwrote < avail {
			break
		}
	}
	return done, errno.Ok
}

// sysOpen implements open(path, flags): resolve path against the
// caller's cwd, look it up (or create it, under O_CREAT) through the
// kernel's filesystem driver, and install the resulting vnode in the
// caller's FD table.
func sysOpen(k *Kernel, p *proc.PCB, pathVA, flags uint32) (int32, errno.Errno) {
	raw, rc := uaccess.CopyInPath(p.MM.AS, p.MM, k.Table.FA(), mem.Va_t(pathVA))
	if rc != errno.Ok {
		return 0, rc
	}
	if !path.Valid(raw) {
		return 0, errno.ENAMETOOLONG
	}
	resolved := path.Resolve(p.Cwd, raw)

	v, rc := k.FS.Lookup(resolved)
	if rc == errno.ENOENT && flags&OCREAT != 0 {
		v, rc = k.FS.Create(resolved)
	}
	if rc != errno.Ok {
		return 0, rc
	}

	fd, rc := p.FDs.Install(v)
	if rc != errno.Ok {
		return 0, rc
	}
	return int32(fd), errno.Ok
}

// sysLseek implements lseek(fd, offset, whence); non-seekable vnodes
// (console, pipe) report -ESPIPE through their own Lseek per spec §6.
func sysLseek(p *proc.PCB, fd, offset, whence uint32) (int32, errno.Errno) {
	of, rc := p.FDs.Get(int(int32(fd)))
	if rc != errno.Ok {
		return 0, rc
	}
	newOff, rc := of.Lseek(int64(int32(offset)), int(whence))
	if rc != errno.Ok {
		return 0, rc
	}
	return int32(newOff), errno.Ok
}

// sysDup2 implements dup2(old, new) per spec §4.15: equal fds return
// new without touching the table; otherwise new is closed first if
// open, then made to share old's open-file description.
func sysDup2(p *proc.PCB, oldfd, newfd uint32) (int32, errno.Errno) {
	o, n := int(int32(oldfd)), int(int32(newfd))
	if o < 0 || o >= proc.MaxFDs || n < 0 || n >= proc.MaxFDs {
		return 0, errno.EBADF
	}
	if o == n {
		if _, rc := p.FDs.Get(o); rc != errno.Ok {
			return 0, rc
		}
		return int32(n), errno.Ok
	}
	if rc := p.FDs.Dup2(o, n); rc != errno.Ok {
		return 0, rc
	}
	return int32(n), errno.Ok
}
