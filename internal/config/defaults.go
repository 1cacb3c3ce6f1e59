package config

import (
	"github.com/coral-mesh/threadprobe/internal/constants"
	"github.com/coral-mesh/threadprobe/internal/memsafe"
	"github.com/coral-mesh/threadprobe/internal/profiler"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		Profiler: ProfilerConfig{
			Interval:       constants.DefaultSampleInterval,
			MaxThreads:     constants.DefaultMaxThreads,
			MaxFrames:      constants.DefaultMaxFrames,
			MaxSamples:     constants.DefaultMaxSamples,
			SuspendTimeout: constants.DefaultSuspendTimeout,
			SuspendBudget:  constants.DefaultSuspendBudget,
			StopTimeout:    constants.DefaultStopTimeout,
		},
		MemoryProbe: MemoryProbeConfig{
			Mechanism: memsafe.MechanismSyscall,
		},
	}
}

// ProfilerConfig converts the profiler section into profiler.Config.
func (c *Config) ProfilerConfig() profiler.Config {
	p := c.Profiler
	return profiler.Config{
		Interval:       p.Interval,
		MaxThreads:     p.MaxThreads,
		MaxFrames:      p.MaxFrames,
		MaxSamples:     p.MaxSamples,
		SkipIdle:       p.SkipIdle,
		SuspendTimeout: p.SuspendTimeout,
		SuspendBudget:  p.SuspendBudget,
		StopTimeout:    p.StopTimeout,
		Release:        p.Release,
		Environment:    p.Environment,
	}
}

// Probe builds the configured memory probe.
func (c *Config) Probe() (memsafe.Probe, error) {
	return memsafe.New(c.MemoryProbe.Mechanism)
}
