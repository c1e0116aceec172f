package vm

import (
	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/paging"
)

// growsDownSlack is the window below a grows-down VMA's current start
// within which a fault still counts as legitimate stack growth rather
// than a wild access (spec §4.5: "fault_addr >= vma.start - 16*PAGE_SIZE").
const growsDownSlack = 16 * mem.PGSIZE

// Kill is returned by Fault when the access cannot be serviced and the
// owning process must be terminated (no VMA, or an access-flag
// violation), matching spec §4.5 steps 1-2's "kill process" outcome.
// Its value is errno.EFAULT, but it is not a syscall return value:
// it signals a process kill rather than a return to user space.
var Kill = errno.EFAULT

// Fault services one page fault against mm per spec §4.5: it extends a
// grows-down VMA when applicable, validates the access against the
// VMA's flags, and on success allocates and maps a page (anonymous
// zero-fill or a read from the VMA's backing file).
func (mm *MM) Fault(f paging.Fault) errno.Errno {
	mm.mu.Lock()
	v, next := mm.findVMALocked(f.VA)
	if v == nil {
		if next != nil && next.Flags&GrowsDown != 0 && uintptr(f.VA) >= uintptr(next.Start)-growsDownSlack {
			next.Start = pageFloor(f.VA)
			v = next
		} else {
			mm.mu.Unlock()
			return Kill
		}
	}

	if f.Write && v.Flags&Write == 0 {
		mm.mu.Unlock()
		return Kill
	}
	if f.Fetch && v.Flags&Exec == 0 {
		mm.mu.Unlock()
		return Kill
	}
	if f.User && v.Flags&User == 0 {
		mm.mu.Unlock()
		return Kill
	}

	page := pageFloor(f.VA)
	fileSrc, fileOff := v.File, v.FileOff+int64(uintptr(page-v.Start))
	as, fa := mm.AS, mm.fa
	mm.mu.Unlock()

	frame, ok := fa.AllocIRQSafe()
	if !ok {
		return errno.ENOMEM
	}

	buf := fa.Dmap(frame)
	for i := range buf {
		buf[i] = 0
	}
	if v.Flags&FileBacked != 0 && fileSrc != nil {
		fileSrc.ReadAt(buf, fileOff)
	}

	rc := as.Map(page, frame, v.Prot)
	if rc != errno.Ok {
		fa.Put(frame)
		return rc
	}
	return errno.Ok
}
