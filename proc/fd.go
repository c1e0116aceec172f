package proc

import (
	"sync"

	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/vfs"
)

// MaxFDs is the fixed size of a process's file-descriptor array
// (spec §3 PCB: "a file-descriptor array of fixed size (≈32)").
const MaxFDs = 32

// vnodeRef is the shared, refcounted handle to an open vnode: several
// OpenFile instances (one per dup'd or fork'd FD slot) may reference
// the same vnodeRef, and the vnode is only closed through its driver
// once the last slot referencing it goes away.
type vnodeRef struct {
	mu       sync.Mutex
	vnode    vfs.Vnode
	refcount int32
}

// OpenFile is one open-file description: a vnode reference plus an
// independent current offset. dup2 makes two FD slots share the exact
// same *OpenFile (so they share the offset too, per POSIX dup2
// semantics); fork gives the child a new *OpenFile per slot that
// shares the same underlying vnodeRef but tracks its own offset,
// matching spec §4.15 "each slot points to a new open-file object
// referring to the same vnode."
type OpenFile struct {
	mu     sync.Mutex
	ref    *vnodeRef
	offset int64
}

func (of *OpenFile) Read(buf []byte) (int, errno.Errno) {
	of.mu.Lock()
	defer of.mu.Unlock()
	n, rc := of.ref.vnode.Read(buf, of.offset)
	if rc == errno.Ok {
		of.offset += int64(n)
	}
	return n, rc
}

func (of *OpenFile) Write(buf []byte) (int, errno.Errno) {
	of.mu.Lock()
	defer of.mu.Unlock()
	n, rc := of.ref.vnode.Write(buf, of.offset)
	if rc == errno.Ok {
		of.offset += int64(n)
	}
	return n, rc
}

func (of *OpenFile) Lseek(off int64, whence int) (int64, errno.Errno) {
	of.mu.Lock()
	defer of.mu.Unlock()
	newOff, rc := of.ref.vnode.Lseek(off, whence)
	if rc == errno.Ok {
		of.offset = newOff
	}
	return newOff, rc
}

// Vnode returns the underlying vnode, for operations (Stat, Readdir)
// that don't go through the offset-tracking Read/Write/Lseek path.
func (of *OpenFile) Vnode() vfs.Vnode {
	return of.ref.vnode
}

// DirCursor and SetDirCursor repurpose the slot's offset field as a
// directory-entry index for sys_getdents, which reads a vnode's full
// Readdir() result incrementally across calls: directories don't
// support Lseek (spec §6 Vnode.Lseek is byte-offset-shaped, not
// entry-indexed), so getdents needs its own per-fd cursor rather than
// going through OpenFile.Lseek.
func (of *OpenFile) DirCursor() int {
	of.mu.Lock()
	defer of.mu.Unlock()
	return int(of.offset)
}

func (of *OpenFile) SetDirCursor(n int) {
	of.mu.Lock()
	defer of.mu.Unlock()
	of.offset = int64(n)
}

// FDTable is a process's file-descriptor array (spec §3 PCB field,
// §4.15 dup2/fork semantics), protected by its own lock per spec §5
// "per-PCB FD table" lock class.
type FDTable struct {
	mu    sync.Mutex
	slots [MaxFDs]*OpenFile
}

// NewFDTable returns an empty FD table.
func NewFDTable() *FDTable {
	return &FDTable{}
}

// Install places v into the lowest-numbered free slot, wrapping it in
// a fresh, singly-referenced OpenFile. Returns errno.ENFILE-equivalent
// (mapped to EMFILE's Linux cousin isn't in the tracked subset, so this
// reports errno.ENOMEM per spec §6's table) if every slot is taken.
func (t *FDTable) Install(v vfs.Vnode) (int, errno.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s == nil {
			t.slots[i] = &OpenFile{ref: &vnodeRef{vnode: v, refcount: 1}}
			return i, errno.Ok
		}
	}
	return -1, errno.ENOMEM
}

// InstallAt places v at exactly fd, failing with EINVAL if fd is out
// of range or EEXIST if already occupied (used to set up the standard
// stdin/stdout/stderr descriptors at fixed numbers during process
// creation).
func (t *FDTable) InstallAt(fd int, v vfs.Vnode) errno.Errno {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= MaxFDs {
		return errno.EINVAL
	}
	if t.slots[fd] != nil {
		return errno.EEXIST
	}
	t.slots[fd] = &OpenFile{ref: &vnodeRef{vnode: v, refcount: 1}}
	return errno.Ok
}

// Get returns the OpenFile at fd, or errno.EBADF if the slot is empty
// or out of range.
func (t *FDTable) Get(fd int) (*OpenFile, errno.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= MaxFDs || t.slots[fd] == nil {
		return nil, errno.EBADF
	}
	return t.slots[fd], errno.Ok
}

// Close releases fd, calling through the underlying driver's Close
// once the last slot referencing the vnode is gone.
func (t *FDTable) Close(fd int) errno.Errno {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked(fd)
}

func (t *FDTable) closeLocked(fd int) errno.Errno {
	if fd < 0 || fd >= MaxFDs || t.slots[fd] == nil {
		return errno.EBADF
	}
	of := t.slots[fd]
	t.slots[fd] = nil

	of.ref.mu.Lock()
	of.ref.refcount--
	last := of.ref.refcount == 0
	of.ref.mu.Unlock()
	if last {
		return of.ref.vnode.Close()
	}
	return errno.Ok
}

// Dup2 makes newfd refer to the same open-file description as oldfd,
// closing newfd first if it was occupied, per spec §4.15/§6 dup2
// semantics ("duplicates the slot reference without duplicating the
// underlying object").
func (t *FDTable) Dup2(oldfd, newfd int) errno.Errno {
	t.mu.Lock()
	defer t.mu.Unlock()
	if oldfd < 0 || oldfd >= MaxFDs || newfd < 0 || newfd >= MaxFDs {
		return errno.EBADF
	}
	old := t.slots[oldfd]
	if old == nil {
		return errno.EBADF
	}
	if oldfd == newfd {
		return errno.Ok
	}
	if t.slots[newfd] != nil {
		t.closeLocked(newfd)
	}
	old.ref.mu.Lock()
	old.ref.refcount++
	old.ref.mu.Unlock()
	t.slots[newfd] = old
	return errno.Ok
}

// CloneInto populates dst (assumed empty) with one new *OpenFile per
// occupied slot in t, each sharing t's vnodeRef but starting with its
// own independent offset snapshot — the fork-time FD duplication of
// spec §4.15.
func (t *FDTable) CloneInto(dst *FDTable) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dst.mu.Lock()
	defer dst.mu.Unlock()

	for i, of := range t.slots {
		if of == nil {
			continue
		}
		of.mu.Lock()
		offset := of.offset
		of.mu.Unlock()

		of.ref.mu.Lock()
		of.ref.refcount++
		of.ref.mu.Unlock()

		dst.slots[i] = &OpenFile{ref: of.ref, offset: offset}
	}
}

// CloseAll closes every occupied slot, the first step of
// destroy_process (spec §4.6).
func (t *FDTable) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd := range t.slots {
		if t.slots[fd] != nil {
			t.closeLocked(fd)
		}
	}
}
