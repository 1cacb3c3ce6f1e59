// Package constants defines shared configuration constants.
package constants

import "time"

var (
	ConfigFile = "config.yaml"

	DefaultDir = ".threadprobe"

	// ConfigDirEnv overrides the directory holding ConfigFile.
	ConfigDirEnv = "THREADPROBE_CONFIG"
)

// Sampling defaults shared by the profiler and the CLI.
const (
	// DefaultSampleInterval gives roughly 100 passes per second.
	DefaultSampleInterval = 10 * time.Millisecond

	DefaultMaxThreads = 128
	DefaultMaxFrames  = 128
	DefaultMaxSamples = 30000

	// DefaultSuspendTimeout bounds the wait for a thread to acknowledge a
	// suspend request.
	DefaultSuspendTimeout = 10 * time.Millisecond

	// DefaultSuspendBudget is the longest a thread may stay suspended before it
	// resumes on its own.
	DefaultSuspendBudget = 50 * time.Millisecond

	DefaultStopTimeout = time.Second

	// DefaultProfileDuration is used by "threadprobe profile" without --duration.
	DefaultProfileDuration = 5 * time.Second
)
