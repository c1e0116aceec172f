package debug

import (
	"io"
	"time"

	"github.com/google/pprof/profile"
)

// Counter names one subsystem's OOM-failure tally for a stats
// snapshot (spec §4.2's "allocator tracks an OOM failure counter",
// generalized across mem/buddy/kmalloc — each exposes its own
// Failures() int64 the same way).
type Counter struct {
	Subsystem string
	Failures  int64
}

// Snapshot assembles counters into a pprof Profile so the existing
// `go tool pprof` toolchain can inspect kernel allocator pressure the
// same way it inspects a heap profile, one sample per subsystem.
// Grounded on github.com/google/pprof/profile's Profile/Sample shape.
func Snapshot(counters []Counter) *profile.Profile {
	fn := &profile.Function{ID: 1, Name: "alloc_failure"}
	loc := &profile.Location{ID: 1, Line: []profile.Line{{Function: fn}}}

	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "failures", Unit: "count"}},
		Function:   []*profile.Function{fn},
		Location:   []*profile.Location{loc},
		TimeNanos:  time.Now().UnixNano(),
	}
	for _, c := range counters {
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{c.Failures},
			Label:    map[string][]string{"subsystem": {c.Subsystem}},
		})
	}
	return p
}

// WriteSnapshot writes counters to w as a gzip-compressed pprof
// profile.
func WriteSnapshot(w io.Writer, counters []Counter) error {
	return Snapshot(counters).Write(w)
}
