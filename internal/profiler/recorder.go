package profiler

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// recorder accumulates samples between Start and Stop. Its lock is only held
// to append or to copy out a window, never across sampling work.
type recorder struct {
	mu      sync.Mutex
	limit   int
	samples []Sample
	stacks  *stackTable
	threads map[uint64]ThreadMetadata
	started time.Time
}

func newRecorder(limit int) *recorder {
	return &recorder{
		limit:   limit,
		stacks:  newStackTable(),
		threads: make(map[uint64]ThreadMetadata),
	}
}

// reset clears everything and marks the start of a new session.
func (r *recorder) reset(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = nil
	r.stacks = newStackTable()
	r.threads = make(map[uint64]ThreadMetadata)
	r.started = now
}

// add records observations and returns how many were dropped for lack of room.
func (r *recorder) add(obs []observation) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for _, o := range obs {
		if len(r.samples) >= r.limit {
			dropped++
			continue
		}
		s := o.sample
		s.StackID = r.stacks.intern(o.pcs)
		r.samples = append(r.samples, s)
		r.threads[s.ThreadID] = o.meta
	}
	return dropped
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// window is an immutable copy of the samples inside [start, end]. stacks and
// frames share storage with the stack table, which only ever appends.
type window struct {
	samples []Sample
	stacks  [][]int
	frames  []uintptr
	threads map[uint64]ThreadMetadata
	started time.Time
}

// snapshot copies out the samples with timestamps inside [start, end].
func (r *recorder) snapshot(start, end time.Time) window {
	r.mu.Lock()
	defer r.mu.Unlock()

	var w window
	lo, _ := slices.BinarySearchFunc(r.samples, start, func(s Sample, t time.Time) int {
		return s.Timestamp.Compare(t)
	})
	for _, s := range r.samples[lo:] {
		if s.Timestamp.After(end) {
			break
		}
		w.samples = append(w.samples, s)
	}
	if len(w.samples) == 0 {
		return w
	}

	w.stacks = r.stacks.stacks[:len(r.stacks.stacks):len(r.stacks.stacks)]
	w.frames = r.stacks.frames[:len(r.stacks.frames):len(r.stacks.frames)]
	w.threads = maps.Clone(r.threads)
	w.started = r.started
	return w
}
