// Package uaccess implements the user-pointer validation and bounded
// copy layer every syscall that touches user memory depends on (spec
// §4.11, C8 half). It is a direct semantic port of biscuit's
// vm/userbuf.go Userbuf_t/_tx: validate the whole [ptr, ptr+len) range
// against the caller's VMAs up front, then copy page by page, tracking
// how much was transferred so a fault partway through still reports
// accurate progress.
//
// Real x86-32 hardware would take a page fault mid-copy and use an
// exception fix-up table to turn it into "N bytes not copied" (spec §9
// "User/kernel boundary for copies"); this simulator has no MMU trap to
// catch, so the same contract is reached by checking mm.FindVMA before
// ever touching memory instead of catching a fault after the fact. The
// package boundary — bytes copied, residual signals EFAULT — is
// identical either way.
package uaccess

import (
	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/paging"
	"github.com/TorMartin-ops/nucleus/vm"
)

// Policy caps from spec §4.11: path length, single-argument length, and
// the largest buffer any one syscall will move.
const (
	MaxPathLen   = 4096
	MaxArgLen    = 128 * 1024
	MaxBufferLen = 1 << 20
)

// Buf is the per-syscall-argument validated user buffer: an address
// space, its mm_struct, a virtual address, and a length, checked once
// by New and then copied through repeatedly.
type Buf struct {
	as *paging.AddressSpace
	mm *vm.MM
	fa *mem.FrameAllocator

	va  mem.Va_t
	len int
}

// New validates [va, va+length) against mm's VMAs for the requested
// access (write implies a writable VMA; read requires only a present,
// user-readable VMA) and against the policy caps, per spec §4.11.
// Reject pointers into the kernel half before ever touching the VMA
// tree.
func New(as *paging.AddressSpace, mm *vm.MM, fa *mem.FrameAllocator, va mem.Va_t, length int, write bool) (*Buf, errno.Errno) {
	if length < 0 {
		return nil, errno.EINVAL
	}
	if length > MaxBufferLen {
		return nil, errno.E2BIG
	}
	if va >= mem.KernelSpaceVirtStart {
		return nil, errno.EFAULT
	}
	end := va + mem.Va_t(length)
	if end < va || end > mem.KernelSpaceVirtStart {
		return nil, errno.EFAULT
	}
	if length == 0 {
		return &Buf{as: as, mm: mm, fa: fa, va: va, len: 0}, errno.Ok
	}
	if rc := checkCoverage(mm, va, end, write); rc != errno.Ok {
		return nil, rc
	}
	return &Buf{as: as, mm: mm, fa: fa, va: va, len: length}, errno.Ok
}

// checkCoverage walks mm's VMA tree confirming every page in [start,
// end) is covered by a user-accessible VMA with the requested access,
// without allocating or mapping anything — the "without triggering
// faults if possible" half of spec §4.11.
func checkCoverage(mm *vm.MM, start, end mem.Va_t, write bool) errno.Errno {
	addr := start
	for addr < end {
		v, _ := mm.FindVMA(addr)
		if v == nil {
			return errno.EFAULT
		}
		if v.Flags&vm.User == 0 {
			return errno.EFAULT
		}
		if write && v.Flags&vm.Write == 0 {
			return errno.EFAULT
		}
		addr = v.End
	}
	return errno.Ok
}

// Len reports the buffer's validated length.
func (b *Buf) Len() int { return b.len }

// CopyIn copies up to len(dst) bytes, capped at the buffer's remaining
// length, from user memory into dst. It returns the number of bytes
// actually copied; a short count with errno.Ok means dst was larger
// than the validated range, not a fault (New already ruled faults
// out for anything within [va, va+len)).
func (b *Buf) CopyIn(dst []byte) (int, errno.Errno) {
	return b.tx(dst, false)
}

// CopyOut is CopyIn's write-direction counterpart.
func (b *Buf) CopyOut(src []byte) (int, errno.Errno) {
	return b.tx(src, true)
}

// tx performs the page-by-page copy, demand-faulting each destination
// page via mm.Fault if it isn't resident yet (anonymous VMAs are
// demand-paged, per spec §4.5, so a freshly mmap'd user buffer may not
// have a backing frame until first touched).
func (b *Buf) tx(buf []byte, write bool) (int, errno.Errno) {
	n := len(buf)
	if n > b.len {
		n = b.len
	}
	done := 0
	for done < n {
		va := b.va + mem.Va_t(done)
		pageOff := int(va) & (mem.PGSIZE - 1)
		pa, _, ok := b.as.Walk(va)
		if !ok {
			fault := paging.Fault{VA: va, Write: write, User: true}
			if rc := b.mm.Fault(fault); rc != errno.Ok {
				return done, errno.EFAULT
			}
			pa, _, ok = b.as.Walk(va)
			if !ok {
				return done, errno.EFAULT
			}
		}
		page := b.fa.Dmap(pa)
		chunk := mem.PGSIZE - pageOff
		remain := n - done
		if chunk > remain {
			chunk = remain
		}
		if write {
			copy(page[pageOff:pageOff+chunk], buf[done:done+chunk])
		} else {
			copy(buf[done:done+chunk], page[pageOff:pageOff+chunk])
		}
		done += chunk
	}
	return done, errno.Ok
}
