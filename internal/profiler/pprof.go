package profiler

import (
	"fmt"
	"io"
	"time"

	"github.com/google/pprof/profile"

	"github.com/coral-mesh/threadprobe/internal/safe"
)

// BuildPprof converts the samples inside [start, end] to a pprof profile with
// one sample count per snapshot. Samples are labelled with the thread name and
// queue label and carry the thread id as a numeric label. It returns false when
// the window is empty.
func (p *Profiler) BuildPprof(start, end time.Time) (*profile.Profile, bool) {
	if end.IsZero() {
		end = time.Now()
	}
	w := p.rec.snapshot(start, end)
	if len(w.samples) == 0 {
		return nil, false
	}

	period, _ := safe.Uint64ToInt64(uint64(p.cfg.Interval))
	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "wall", Unit: "nanoseconds"},
		Period:     period,
		TimeNanos:  w.samples[0].Timestamp.UnixNano(),
	}
	if last := w.samples[len(w.samples)-1].Timestamp; last.After(w.samples[0].Timestamp) {
		prof.DurationNanos = last.Sub(w.samples[0].Timestamp).Nanoseconds()
	}

	locations := make(map[uintptr]*profile.Location)
	for _, s := range w.samples {
		var locs []*profile.Location
		for _, pc := range addrs(w.stacks[s.StackID], w.frames) {
			loc, ok := locations[pc]
			if !ok {
				loc = &profile.Location{ID: uint64(len(prof.Location) + 1), Address: uint64(pc)}
				locations[pc] = loc
				prof.Location = append(prof.Location, loc)
			}
			locs = append(locs, loc)
		}

		labels := map[string][]string{}
		if name := w.threads[s.ThreadID].Name; name != "" {
			labels["thread_name"] = []string{name}
		}
		if s.QueueLabel != "" {
			labels["queue"] = []string{s.QueueLabel}
		}
		tid, _ := safe.Uint64ToInt64(s.ThreadID)
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: locs,
			Value:    []int64{1},
			Label:    labels,
			NumLabel: map[string][]int64{"thread_id": {tid}},
		})
	}
	return prof, true
}

// WritePprof writes the samples inside [start, end] to w as a gzipped pprof
// profile.
func (p *Profiler) WritePprof(w io.Writer, start, end time.Time) error {
	prof, ok := p.BuildPprof(start, end)
	if !ok {
		return fmt.Errorf("no samples between %s and %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if err := prof.CheckValid(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	if err := prof.Write(w); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}
