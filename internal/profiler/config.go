package profiler

import (
	"time"

	"github.com/coral-mesh/threadprobe/internal/constants"
)

// Config holds sampling configuration.
type Config struct {
	Interval       time.Duration // Time between sampling passes (default: 10ms, ~101Hz).
	MaxThreads     int           // Threads visited per pass (default: 128).
	MaxFrames      int           // Frames captured per stack (default: 128).
	MaxSamples     int           // Samples retained between Start and Stop (default: 30000).
	SkipIdle       bool          // Skip threads that are not running.
	SuspendTimeout time.Duration // Wait for a thread to stop (default: 10ms).
	SuspendBudget  time.Duration // Longest a thread may stay suspended (default: 50ms).
	StopTimeout    time.Duration // Wait for the loop to exit on Stop (default: 1s).
	Release        string        // Application release reported in profiles.
	Environment    string        // Deployment environment reported in profiles.
}

// setDefaults fills zero fields.
func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = constants.DefaultSampleInterval
	}
	if c.MaxThreads <= 0 {
		c.MaxThreads = constants.DefaultMaxThreads
	}
	if c.MaxFrames <= 0 {
		c.MaxFrames = constants.DefaultMaxFrames
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = constants.DefaultMaxSamples
	}
	if c.SuspendTimeout <= 0 {
		c.SuspendTimeout = constants.DefaultSuspendTimeout
	}
	if c.SuspendBudget <= 0 {
		c.SuspendBudget = constants.DefaultSuspendBudget
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = constants.DefaultStopTimeout
	}
}
