package mem

// RegionKind classifies a range reported by the (simulated) Multiboot2
// memory map, mirroring gopher-os's multiboot.MemoryMapEntry.Type.
type RegionKind uint8

const (
	RegionAvailable RegionKind = iota
	RegionReserved
	RegionKernelImage
	RegionEarlyHeap
)

// Region describes one physical range from the boot memory map.
type Region struct {
	Start Pa_t
	Length uint64
	Kind  RegionKind
}

// End returns the first address past the region.
func (r Region) End() Pa_t {
	return r.Start + Pa_t(r.Length)
}

// VisitAvailable calls fn for every page-aligned sub-range of kind
// RegionAvailable across regions, in order. fn returns false to stop
// the walk early — same shape as gopher-os's multiboot.VisitMemRegions.
func VisitAvailable(regions []Region, fn func(start, end Pa_t) bool) {
	for _, r := range regions {
		if r.Kind != RegionAvailable || r.Length < uint64(PGSIZE) {
			continue
		}
		start := Pa_t(Roundup(int(r.Start), PGSIZE))
		end := Pa_t(Rounddown(int(r.End()), PGSIZE))
		if start >= end {
			continue
		}
		if !fn(start, end) {
			return
		}
	}
}
