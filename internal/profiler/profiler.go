// Package profiler drives the thread snapshot layer at a fixed cadence and
// turns what it collects into profile artifacts.
package profiler

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/threadprobe/internal/thread"
)

// Profiler samples the threads of the current process between Start and Stop.
type Profiler struct {
	cfg     Config
	logger  zerolog.Logger
	sampler *Sampler
	rec     *recorder
	metrics *metrics
	device  func() DeviceInfo

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Profiler.
type Option func(*options)

type options struct {
	enum      *thread.Enumerator
	collector StackCollector
	reg       prometheus.Registerer
	device    func() DeviceInfo
}

// WithEnumerator sets the thread enumerator. By default one is built from the
// configuration.
func WithEnumerator(e *thread.Enumerator) Option {
	return func(o *options) { o.enum = e }
}

// WithStackCollector sets the unwinder run on each suspended thread. Without
// one, samples carry thread state only.
func WithStackCollector(c StackCollector) Option {
	return func(o *options) { o.collector = c }
}

// WithRegisterer registers the sampler metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

// WithDeviceInfo overrides the host description put into profiles.
func WithDeviceInfo(fn func() DeviceInfo) Option {
	return func(o *options) { o.device = fn }
}

// New creates a profiler. It does not start sampling.
func New(cfg Config, logger zerolog.Logger, opts ...Option) (*Profiler, error) {
	cfg.setDefaults()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger = logger.With().Str("component", "profiler").Logger()
	if o.enum == nil {
		o.enum = thread.NewEnumerator(logger, thread.WithSuspendLimits(cfg.SuspendTimeout, cfg.SuspendBudget))
	}
	if o.device == nil {
		o.device = sync.OnceValue(func() DeviceInfo { return CollectDeviceInfo(context.Background()) })
	}

	m := newMetrics(o.reg)
	return &Profiler{
		cfg:     cfg,
		logger:  logger,
		sampler: newSampler(o.enum, o.collector, cfg, m, logger),
		rec:     newRecorder(cfg.MaxSamples),
		metrics: m,
		device:  o.device,
	}, nil
}

// Start clears previously collected samples and begins sampling. Calling it
// while running does nothing. A loop left behind by a Stop that timed out is
// waited for up to StopTimeout; if it is still running, Start does nothing.
func (p *Profiler) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	if p.done != nil {
		select {
		case <-p.done:
		case <-time.After(p.cfg.StopTimeout):
			p.logger.Warn().
				Dur("timeout", p.cfg.StopTimeout).
				Msg("Previous sampling loop still running, not starting")
			return
		}
	}

	p.rec.reset(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.metrics.running.Set(1)

	p.logger.Info().
		Dur("interval", p.cfg.Interval).
		Int("max_threads", p.cfg.MaxThreads).
		Bool("stack_collector", p.sampler.collector != nil).
		Msg("Starting thread sampling")

	go p.loop(ctx, p.done)
}

// Stop halts sampling and waits for the loop to exit. A thread left suspended
// by an unfinished pass is resumed before Stop returns. Calling it while
// stopped does nothing.
func (p *Profiler) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(p.cfg.StopTimeout):
		resumed := p.sampler.forceResume()
		p.logger.Warn().
			Dur("timeout", p.cfg.StopTimeout).
			Bool("resumed_thread", resumed).
			Msg("Sampling loop did not exit in time")
	}
	p.metrics.running.Set(0)
	p.logger.Info().Int("samples", p.rec.count()).Msg("Stopped thread sampling")
}

// IsRunning reports whether the profiler is sampling.
func (p *Profiler) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// SampleCount returns the number of samples collected since Start.
func (p *Profiler) SampleCount() int {
	return p.rec.count()
}

func (p *Profiler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	// The sampling goroutine owns its thread for the whole session so it is
	// never among the threads being suspended.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			obs := p.sampler.SampleOnce(ctx)
			if dropped := p.rec.add(obs); dropped > 0 {
				p.metrics.droppedSamples.Add(float64(dropped))
			}
		}
	}
}
