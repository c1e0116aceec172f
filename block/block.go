// Package block defines the narrow block-device interface the VFS
// layer sits above (read_sectors / write_sectors, sector size 512),
// plus an in-memory fake backing the default boot configuration and
// tests — this core never ships a real disk driver, only the contract
// one plugs into. Grounded on biscuit's ahci/Disk_t and fs/super.go's
// device vtable shape, narrowed to those two operations.
package block

import "github.com/TorMartin-ops/nucleus/errno"

// SectorSize is the fixed sector size the core assumes (spec §6).
const SectorSize = 512

// Device is the block-device contract a filesystem driver reads and
// writes through.
type Device interface {
	ReadSectors(lba uint64, count int, buf []byte) errno.Errno
	WriteSectors(lba uint64, count int, buf []byte) errno.Errno
}

// Memory is an in-memory Device: a fixed number of zeroed sectors,
// enough to let tests and the default boot configuration exercise the
// interface without a real disk.
type Memory struct {
	data []byte
}

// NewMemory returns a Memory device with room for sectors sectors.
func NewMemory(sectors int) *Memory {
	return &Memory{data: make([]byte, sectors*SectorSize)}
}

func (m *Memory) bounds(lba uint64, count int) (int, int, errno.Errno) {
	start := int(lba) * SectorSize
	end := start + count*SectorSize
	if count < 0 || start < 0 || end > len(m.data) {
		return 0, 0, errno.EINVAL
	}
	return start, end, errno.Ok
}

// ReadSectors copies count sectors starting at lba into buf.
func (m *Memory) ReadSectors(lba uint64, count int, buf []byte) errno.Errno {
	start, end, rc := m.bounds(lba, count)
	if rc != errno.Ok {
		return rc
	}
	if len(buf) < end-start {
		return errno.EINVAL
	}
	copy(buf, m.data[start:end])
	return errno.Ok
}

// WriteSectors copies count sectors from buf to lba.
func (m *Memory) WriteSectors(lba uint64, count int, buf []byte) errno.Errno {
	start, end, rc := m.bounds(lba, count)
	if rc != errno.Ok {
		return rc
	}
	if len(buf) < end-start {
		return errno.EINVAL
	}
	copy(m.data[start:end], buf)
	return errno.Ok
}

var _ Device = (*Memory)(nil)
