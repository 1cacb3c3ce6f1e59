package profiler

import (
	"context"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/threadprobe/internal/thread"
)

// StackCollector walks the stack of a suspended thread.
//
// Collect runs while the thread is stopped. It must not allocate, block, log
// or read memory other than through memsafe, because the stopped thread may
// hold any lock in the process. It writes return addresses into pcs, innermost
// first, and returns how many it wrote.
type StackCollector interface {
	Collect(h *thread.Handle, bounds thread.StackBounds, pcs []uintptr) int
}

// StackCollectorFunc adapts a function to StackCollector.
type StackCollectorFunc func(h *thread.Handle, bounds thread.StackBounds, pcs []uintptr) int

// Collect implements StackCollector.
func (f StackCollectorFunc) Collect(h *thread.Handle, bounds thread.StackBounds, pcs []uintptr) int {
	return f(h, bounds, pcs)
}

// Sampler takes one snapshot of every other thread per pass.
type Sampler struct {
	enum      *thread.Enumerator
	collector StackCollector
	cfg       Config
	metrics   *metrics
	logger    zerolog.Logger
	now       func() time.Time

	pcs      []uintptr
	inflight atomic.Pointer[thread.Handle]
}

func newSampler(enum *thread.Enumerator, collector StackCollector, cfg Config, m *metrics, logger zerolog.Logger) *Sampler {
	return &Sampler{
		enum:      enum,
		collector: collector,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
		pcs:       make([]uintptr, cfg.MaxFrames),
	}
}

// SampleOnce runs one pass. It stops early when ctx is cancelled. Only one
// pass may run at a time on a Sampler.
func (s *Sampler) SampleOnce(ctx context.Context) []observation {
	// The caller's thread must stay the one excluded from the pass.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	start := s.now()
	defer func() { s.metrics.passDuration.Observe(time.Since(start).Seconds()) }()
	s.metrics.passes.Inc()

	handles, _ := s.enum.AllExcludingCurrent()
	defer thread.CloseAll(handles)

	out := make([]observation, 0, min(len(handles), s.cfg.MaxThreads))
	for i, h := range handles {
		if ctx.Err() != nil {
			break
		}
		if i >= s.cfg.MaxThreads {
			s.metrics.threadsSkipped.Add(float64(len(handles) - i))
			break
		}
		if s.cfg.SkipIdle && h.IsIdle() {
			s.metrics.threadsSkipped.Inc()
			continue
		}
		out = append(out, s.observe(h))
		s.metrics.threadsSampled.Inc()
	}
	return out
}

func (s *Sampler) observe(h *thread.Handle) observation {
	o := observation{
		sample: Sample{
			Timestamp: s.now(),
			ThreadID:  h.TID(),
			CPU:       h.CPUInfo(),
		},
	}

	// Everything that may allocate or take runtime locks happens before the
	// thread is stopped.
	h.WarmRuntimeHandle()
	o.meta = ThreadMetadata{
		Name:     h.Name(),
		Priority: h.Priority(),
		QoS:      h.QoS(),
	}
	o.sample.QueueLabel = h.DispatchQueueLabel()
	bounds := h.StackBounds()

	if s.collector == nil {
		return o
	}

	n := 0
	collect := func() { n = s.collector.Collect(h, bounds, s.pcs) }
	s.inflight.Store(h)
	ok := h.WithSuspended(collect)
	s.inflight.Store(nil)
	if !ok {
		s.metrics.suspendFailures.Inc()
		return o
	}
	n = min(max(n, 0), len(s.pcs))
	o.pcs = slices.Clone(s.pcs[:n])
	return o
}

// forceResume resumes the thread a pass has suspended, if any.
func (s *Sampler) forceResume() bool {
	h := s.inflight.Load()
	if h == nil {
		return false
	}
	return h.Resume()
}
