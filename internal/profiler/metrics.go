package profiler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "threadprobe"

// metrics instruments the sampling loop. A nil registerer creates unregistered
// collectors.
type metrics struct {
	passes          prometheus.Counter
	threadsSampled  prometheus.Counter
	threadsSkipped  prometheus.Counter
	suspendFailures prometheus.Counter
	droppedSamples  prometheus.Counter
	passDuration    prometheus.Histogram
	running         prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		passes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "passes_total",
			Help:      "Sampling passes over the thread list.",
		}),
		threadsSampled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "threads_sampled_total",
			Help:      "Thread snapshots recorded.",
		}),
		threadsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "threads_skipped_total",
			Help:      "Threads skipped because they were idle or over the per-pass cap.",
		}),
		suspendFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "suspend_failures_total",
			Help:      "Threads that could not be suspended for stack collection.",
		}),
		droppedSamples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "dropped_samples_total",
			Help:      "Samples dropped because the retention limit was reached.",
		}),
		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one sampling pass.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "profiler",
			Name:      "running",
			Help:      "1 while the profiler is sampling.",
		}),
	}
}
